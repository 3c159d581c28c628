package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.TTL() != 30*time.Second {
		t.Fatalf("ttl = %v, want 30s", cfg.TTL())
	}
	if cfg.SweepEvery() != time.Second {
		t.Fatalf("sweep = %v, want 1s", cfg.SweepEvery())
	}
	if cfg.SendQueue != 64 {
		t.Fatalf("send queue = %d, want 64", cfg.SendQueue)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("origins = %v, want open policy", cfg.AllowedOrigins)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("redis addr = %q, want disabled", cfg.Redis.Addr)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "online.yaml")
	body := `
port: 9090
ttl_seconds: 45
allowed_origins:
  - "*.example.com"
  - "localhost:3000"
redis:
  addr: "127.0.0.1:6379"
  db: 2
nats:
  url: "nats://127.0.0.1:4222"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.TTLSeconds != 45 {
		t.Fatalf("port=%d ttl=%d", cfg.Port, cfg.TTLSeconds)
	}
	want := []string{"*.example.com", "localhost:3000"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("origins = %v, want %v", cfg.AllowedOrigins, want)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.Nats.URL != "nats://127.0.0.1:4222" {
		t.Fatalf("nats = %+v", cfg.Nats)
	}
	// Unset fields still take defaults.
	if cfg.SweepSeconds != 1 || cfg.Nats.SubjectPrefix != "presence" {
		t.Fatalf("defaults not applied: sweep=%d prefix=%q", cfg.SweepSeconds, cfg.Nats.SubjectPrefix)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "online.yaml")
	if err := os.WriteFile(path, []byte("port: 9090\nttl_seconds: 45\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	t.Setenv("PORT", "7070")
	t.Setenv("ALLOWED_ORIGINS", " Example.com , *.foo.io ,")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 7070 {
		t.Fatalf("port = %d, env must win", cfg.Port)
	}
	if cfg.TTLSeconds != 45 {
		t.Fatalf("ttl = %d, file value must survive", cfg.TTLSeconds)
	}
	want := []string{"example.com", "*.foo.io"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("origins = %v, want %v", cfg.AllowedOrigins, want)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("explicit missing file must error")
	}
}

func TestEnvBadIntIgnored(t *testing.T) {
	t.Setenv("TTL_SECONDS", "not-a-number")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TTLSeconds != 30 {
		t.Fatalf("ttl = %d, want default when env is garbage", cfg.TTLSeconds)
	}
}

func TestSplitOrigins(t *testing.T) {
	got := SplitOrigins("A.com,, b.com ,")
	want := []string{"a.com", "b.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitOrigins = %v, want %v", got, want)
	}
}
