package gateway

import (
	"net"
	"net/http"
	"time"

	"OnlineGate/logger"
	"OnlineGate/service/presence"
	"OnlineGate/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Origin policy is enforced by the route middleware before the upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Options struct {
	PingInterval time.Duration // 0 disables server pings
	WriteTimeout time.Duration
	SendQueue    int
}

func (o *Options) norm() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendQueue <= 0 {
		o.SendQueue = 64
	}
}

// Server owns the websocket side: it turns socket traffic into registry
// operations and registry output back into frames.
type Server struct {
	reg   *presence.Registry
	conns *connTable
	fan   *Fanout
	opts  Options
}

func NewServer(reg *presence.Registry, opts Options) *Server {
	opts.norm()
	return &Server{
		reg:   reg,
		conns: newConnTable(),
		fan:   NewFanout(4, 256),
		opts:  opts,
	}
}

// EventHook returns the sink that broadcasts room-scoped presence events
// to that room's connections. Global-channel events have no room
// audience; subscribers see those as count syncs instead.
func (s *Server) EventHook() func(presence.Event) {
	return func(evt presence.Event) {
		if evt.Room == "" {
			return
		}
		payload := encodeEvent(evt)
		if payload == nil {
			return
		}
		s.fan.Broadcast(s.conns.listRoom(evt.Room), payload)
	}
}

// HandleRoomWS serves GET /ws?room=<name>: room presence with heartbeat
// liveness.
func (s *Server) HandleRoomWS(c *gin.Context) {
	room := c.Query("room")
	if !validRoom(room) {
		c.String(http.StatusBadRequest, "invalid room")
		return
	}
	s.serve(c, room)
}

// HandleWebWS serves GET /ws/web: the global online counter channel.
func (s *Server) HandleWebWS(c *gin.Context) {
	s.serve(c, "")
}

func (s *Server) serve(c *gin.Context, room string) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[WS] upgrade error: %v", err)
		return
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			logger.Debugf("[WS] close: %v", cerr)
		}
	}()

	key, generated := ResolveSessionKey(c.Request)
	client := NewClient(ids.GenerateString(), key, room, ws, s.opts.SendQueue)

	// Subscribe before joining so the pending slot value is never older
	// than the hello count.
	var sub *presence.CountSub
	if room != "" {
		sub = s.reg.SubscribeRoom(room)
	} else {
		sub = s.reg.SubscribeGlobal()
	}

	res := s.reg.Join(key, room)
	s.conns.add(client)
	logger.Infof("[WS] join conn=%s key=%s room=%q generated=%v", client.ConnID, key, room, generated)

	var ttlSecs int64
	count := res.GlobalCount
	if room != "" {
		ttlSecs = int64(s.reg.TTL() / time.Second)
		count = res.RoomCount
	}
	client.queue(encodeHello(key, ttlSecs, count))

	// Pong refreshes liveness like any other inbound activity; a key
	// already reaped re-joins, since the socket itself proves liveness.
	ws.SetPongHandler(func(string) error {
		if err := s.reg.Heartbeat(client.Key); err != nil {
			s.reg.Join(client.Key, room)
		}
		return nil
	})

	done := make(chan struct{})
	go client.writePump(s.opts.PingInterval, s.opts.WriteTimeout, done)
	go forwardCounts(client, sub, done)

	s.readLoop(client)

	// At-most-once cleanup; a key already evicted by the reaper makes
	// Leave a no-op.
	s.conns.remove(client)
	close(done)
	sub.Close()
	s.reg.Leave(client.Key, room)
	logger.Infof("[WS] leave conn=%s key=%s room=%q", client.ConnID, client.Key, room)
}

func (s *Server) readLoop(client *Client) {
	for {
		mt, data, err := client.WS.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed conn=%s err=%v", client.ConnID, err)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s err=%v", client.ConnID, err)
			} else {
				logger.Infof("[WS] read err conn=%s err=%v", client.ConnID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		in, perr := ParseInbound(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[WS] bad frame conn=%s err=%v sample=%q", client.ConnID, perr, sample)
			continue
		}
		s.dispatch(client, in)
	}
}

func (s *Server) dispatch(client *Client, in *Inbound) {
	switch in.Type {
	case inHeartbeat:
		if err := s.reg.Heartbeat(client.Key); err != nil {
			// Evicted while the socket stayed open; fall back to a
			// fresh join rather than failing the connection.
			s.reg.Join(client.Key, client.Room)
		}
	case inUpdateSID:
		if in.SessionID == "" || in.SessionID == client.Key {
			return
		}
		s.reg.Reidentify(client.Key, in.SessionID, client.Room)
		client.Key = in.SessionID
		logger.Infof("[WS] reidentify conn=%s key=%s", client.ConnID, client.Key)
	case inUpdatePresence:
		room := in.RoomName
		if room == "" {
			room = client.Room
		}
		fields := make(map[string]any)
		if in.DisplayName != nil {
			fields["displayName"] = *in.DisplayName
		}
		if in.Position != nil {
			fields["position"] = *in.Position
		}
		if _, err := s.reg.UpdateMeta(client.Key, room, fields); err != nil {
			logger.Infof("[WS] update on gone session conn=%s key=%s", client.ConnID, client.Key)
		}
	default:
		// Unrecognized types never reach the registry.
	}
}

func forwardCounts(client *Client, sub *presence.CountSub, done <-chan struct{}) {
	for {
		select {
		case v := <-sub.C():
			client.queue(encodeSync(v))
		case <-done:
			return
		}
	}
}
