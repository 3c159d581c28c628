package gateway

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResolveSessionKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/demo", nil)
	r.Header.Set(HeaderSessionID, "from-header")
	key, generated := ResolveSessionKey(r)
	if key != "from-header" || generated {
		t.Fatalf("header key = %q generated=%v", key, generated)
	}

	r = httptest.NewRequest("GET", "/ws/demo?socket_session_id=from-query", nil)
	key, generated = ResolveSessionKey(r)
	if key != "from-query" || generated {
		t.Fatalf("query key = %q generated=%v", key, generated)
	}

	// Header wins over query.
	r = httptest.NewRequest("GET", "/ws/demo?socket_session_id=from-query", nil)
	r.Header.Set(HeaderSessionID, "from-header")
	key, _ = ResolveSessionKey(r)
	if key != "from-header" {
		t.Fatalf("precedence key = %q, want header value", key)
	}

	r = httptest.NewRequest("GET", "/ws/demo", nil)
	k1, gen1 := ResolveSessionKey(r)
	k2, gen2 := ResolveSessionKey(r)
	if !gen1 || !gen2 {
		t.Fatal("absent identity must be generated")
	}
	if k1 == "" || k1 == k2 {
		t.Fatalf("generated keys must be unique, got %q and %q", k1, k2)
	}
}

func TestValidRoom(t *testing.T) {
	for _, room := range []string{"demo", "a", "team_1", "a.b-c", "org/proj:env@eu", "Room42"} {
		if !validRoom(room) {
			t.Errorf("validRoom(%q) = false, want true", room)
		}
	}
	for _, room := range []string{"", "has space", "emojié", "q?x", "a#b", strings.Repeat("x", 257)} {
		if validRoom(room) {
			t.Errorf("validRoom(%q) = true, want false", room)
		}
	}
	if !validRoom(strings.Repeat("x", 256)) {
		t.Error("256 chars must be accepted")
	}
}
