package gateway

import (
	"time"

	"github.com/gorilla/websocket"
)

// Client is one physical websocket connection attributed to a session
// key. The key can change mid-life through an update_sid frame; it is
// only touched from the connection's read goroutine.
type Client struct {
	ConnID string
	Key    string // current session key
	Room   string // empty on the global channel
	WS     *websocket.Conn
	Send   chan []byte // consumed by the single writer goroutine
}

func NewClient(connID, key, room string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		Key:    key,
		Room:   room,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
	}
}

// queue enqueues an outbound frame without blocking; a full queue means
// a slow client, whose frame is dropped (the next sync carries the
// latest state anyway).
func (c *Client) queue(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// writePump is the connection's only writer: outbound frames from Send,
// plus optional server pings. Exits when done closes or a write fails.
func (c *Client) writePump(ping time.Duration, writeTimeout time.Duration, done <-chan struct{}) {
	var pingCh <-chan time.Time
	if ping > 0 {
		t := time.NewTicker(ping)
		defer t.Stop()
		pingCh = t.C
	}

	for {
		select {
		case msg := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.WS.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pingCh:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.WS.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
