package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"OnlineGate/logger"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type NatsConfig struct {
	URL           string `json:"url"`
	Name          string `json:"name"`
	SubjectPrefix string `json:"subject_prefix"`
}

type Config struct {
	Port           int            `json:"port"`
	TTLSeconds     int            `json:"ttl_seconds"`
	SweepSeconds   int            `json:"sweep_seconds"`
	PingSeconds    int            `json:"ping_seconds"` // 0 disables server pings
	SendQueue      int            `json:"send_queue"`
	AllowedOrigins []string       `json:"allowed_origins"`
	Redis          RedisConfig    `json:"redis"`
	Nats           NatsConfig     `json:"nats"`
	Log            logger.Config  `json:"log"`
}

// Load builds the configuration: file (optional, CONFIG_FILE or the given
// path), then environment overrides, then defaults. No field is required;
// the zero config runs a memory-only instance on :8080.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()
	cfg.norm()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           c,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "config decoder")
	}
	if err := dec.Decode(m); err != nil {
		return errors.Wrapf(err, "decode config %s", path)
	}
	return nil
}

func (c *Config) loadEnv() {
	if v, ok := envInt("PORT"); ok {
		c.Port = v
	}
	if v, ok := envInt("TTL_SECONDS"); ok {
		c.TTLSeconds = v
	}
	if v, ok := envInt("SWEEP_SECONDS"); ok {
		c.SweepSeconds = v
	}
	if v, ok := envInt("PING_INTERVAL"); ok {
		c.PingSeconds = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = SplitOrigins(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v, ok := envInt("REDIS_DB"); ok {
		c.Redis.DB = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Nats.URL = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) norm() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.TTLSeconds <= 0 {
		c.TTLSeconds = 30
	}
	if c.SweepSeconds <= 0 {
		c.SweepSeconds = 1
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.Nats.Name == "" {
		c.Nats.Name = "online-gate"
	}
	if c.Nats.SubjectPrefix == "" {
		c.Nats.SubjectPrefix = "presence"
	}
}

func (c *Config) TTL() time.Duration          { return time.Duration(c.TTLSeconds) * time.Second }
func (c *Config) SweepEvery() time.Duration   { return time.Duration(c.SweepSeconds) * time.Second }
func (c *Config) PingInterval() time.Duration { return time.Duration(c.PingSeconds) * time.Second }

// SplitOrigins parses a comma-separated origin allow-list, dropping
// blanks and lowercasing entries.
func SplitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
