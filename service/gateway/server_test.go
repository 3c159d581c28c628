package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OnlineGate/service/presence"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newWSTestServer(t *testing.T, opts presence.Options) (*httptest.Server, *presence.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := presence.NewRegistry(opts)
	t.Cleanup(reg.Close)

	gw := NewServer(reg, Options{})
	reg.AddEventHook(gw.EventHook())

	r := gin.New()
	r.GET("/ws", gw.HandleRoomWS)
	r.GET("/ws/web", gw.HandleWebWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dialWS(t *testing.T, srv *httptest.Server, path, key string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	h := http.Header{}
	if key != "" {
		h.Set(HeaderSessionID, key)
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, h)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// awaitFrame reads frames until one satisfies match, skipping unrelated
// broadcasts that may interleave.
func awaitFrame(t *testing.T, ws *websocket.Conn, what string, match func(map[string]any) bool) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decode frame %q: %v", data, err)
		}
		if match(m) {
			return m
		}
	}
}

func isSync(count int) func(map[string]any) bool {
	return func(m map[string]any) bool {
		return m["type"] == "sync" && m["count"] == float64(count)
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRoomWireScenario(t *testing.T) {
	srv, reg := newWSTestServer(t, presence.Options{
		TTL:        30 * time.Second,
		SweepEvery: time.Hour,
	})

	a := dialWS(t, srv, "/ws?room=demo", "a")
	hello := awaitFrame(t, a, "hello", func(m map[string]any) bool { return m["type"] == "hello" })
	if hello["sid"] != "a" || hello["count"] != float64(1) {
		t.Fatalf("a hello = %v", hello)
	}
	if hello["ttl"] != float64(30) {
		t.Fatalf("a hello ttl = %v, want 30", hello["ttl"])
	}

	b := dialWS(t, srv, "/ws?room=demo", "b")
	hello = awaitFrame(t, b, "hello", func(m map[string]any) bool { return m["type"] == "hello" })
	if hello["sid"] != "b" || hello["count"] != float64(2) {
		t.Fatalf("b hello = %v", hello)
	}

	// a observes b's arrival: a count sync and the room join broadcast,
	// in either order.
	seenSync, seenJoin := false, false
	for !seenSync || !seenJoin {
		m := awaitFrame(t, a, "sync{2} or join broadcast", func(m map[string]any) bool {
			return isSync(2)(m) || m["type"] == "ACTIVITY_JOIN_PRESENCE"
		})
		if isSync(2)(m) {
			seenSync = true
			continue
		}
		data, _ := m["data"].(map[string]any)
		if data["identity"] != "b" || data["roomName"] != "demo" {
			t.Fatalf("join broadcast = %v", m)
		}
		seenJoin = true
	}

	if err := b.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("close b: %v", err)
	}
	_ = b.Close()

	seenSync, seenLeave := false, false
	for !seenSync || !seenLeave {
		m := awaitFrame(t, a, "sync{1} or leave broadcast", func(m map[string]any) bool {
			return isSync(1)(m) || m["type"] == "ACTIVITY_LEAVE_PRESENCE"
		})
		if isSync(1)(m) {
			seenSync = true
			continue
		}
		data, _ := m["data"].(map[string]any)
		if data["identity"] != "b" {
			t.Fatalf("leave broadcast = %v", m)
		}
		seenLeave = true
	}

	// a's disconnect cleans up exactly once.
	_ = a.Close()
	waitFor(t, func() bool { return reg.GlobalCount() == 0 }, "a never cleaned up")
	waitFor(t, func() bool { return len(reg.Rooms()) == 0 }, "room never emptied")
}

func TestWebGlobalChannel(t *testing.T) {
	srv, _ := newWSTestServer(t, presence.Options{
		TTL:        30 * time.Second,
		SweepEvery: time.Hour,
	})

	w1 := dialWS(t, srv, "/ws/web", "w1")
	hello := awaitFrame(t, w1, "hello", func(m map[string]any) bool { return m["type"] == "hello" })
	if hello["count"] != float64(1) {
		t.Fatalf("web hello = %v", hello)
	}
	if _, present := hello["ttl"]; present {
		t.Fatalf("global hello must not advertise a ttl: %v", hello)
	}

	dialWS(t, srv, "/ws/web", "w2")
	awaitFrame(t, w1, "sync{2}", isSync(2))
}

func TestUpdateSidRepointsConnection(t *testing.T) {
	srv, reg := newWSTestServer(t, presence.Options{
		TTL:        30 * time.Second,
		SweepEvery: time.Hour,
	})

	a := dialWS(t, srv, "/ws?room=demo", "x")
	awaitFrame(t, a, "hello", func(m map[string]any) bool { return m["type"] == "hello" })

	if err := a.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"update_sid","sessionId":"y"}`)); err != nil {
		t.Fatalf("send update_sid: %v", err)
	}

	waitFor(t, func() bool { return reg.Heartbeat("y") == nil }, "new key never registered")
	if err := reg.Heartbeat("x"); err == nil {
		t.Fatal("old key must be gone after update_sid")
	}
	snap := reg.SnapshotRoom("demo")
	if snap.Count != 1 || snap.Members[0].Identity != "y" {
		t.Fatalf("room after update_sid = %+v", snap)
	}
}

func TestHeartbeatFrameRejoinsAfterEviction(t *testing.T) {
	srv, reg := newWSTestServer(t, presence.Options{
		TTL:        50 * time.Millisecond,
		SweepEvery: 10 * time.Millisecond,
	})

	a := dialWS(t, srv, "/ws?room=demo", "hb1")
	awaitFrame(t, a, "hello", func(m map[string]any) bool { return m["type"] == "hello" })

	// Stay silent past the TTL; the reaper evicts while the socket
	// remains open.
	waitFor(t, func() bool { return reg.GlobalCount() == 0 }, "session never evicted")

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"type":"hb"}`)); err != nil {
		t.Fatalf("send hb: %v", err)
	}
	waitFor(t, func() bool {
		return reg.GlobalCount() == 1 && reg.SnapshotRoom("demo").Count == 1
	}, "hb on live socket must re-join")
}

func TestPongRejoinsAfterEviction(t *testing.T) {
	srv, reg := newWSTestServer(t, presence.Options{
		TTL:        50 * time.Millisecond,
		SweepEvery: 10 * time.Millisecond,
	})

	a := dialWS(t, srv, "/ws?room=demo", "p1")
	awaitFrame(t, a, "hello", func(m map[string]any) bool { return m["type"] == "hello" })

	waitFor(t, func() bool { return reg.GlobalCount() == 0 }, "session never evicted")

	// A ping-only client's pong is its sole inbound activity; it must
	// restore the session just like an hb frame.
	if err := a.WriteControl(websocket.PongMessage, nil, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("send pong: %v", err)
	}
	waitFor(t, func() bool { return reg.GlobalCount() == 1 }, "pong on live socket must re-join")
}
