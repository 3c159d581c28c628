package natsx

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"OnlineGate/logger"
	"OnlineGate/service/presence"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Relay mirrors presence business events onto NATS subjects for backend
// consumers (dashboards, audit). Strictly best-effort: a full queue or a
// publish error drops the event and logs; live counts stay local to the
// gateway instance.
type Relay struct {
	nc     *nats.Conn
	prefix string
	ch     chan presence.Event

	stopOnce sync.Once
	stopCh   chan struct{}
}

type RelayConfig struct {
	URL           string
	Name          string
	SubjectPrefix string // defaults to "presence"
	QueueSize     int
}

func NewRelay(cfg RelayConfig) (*Relay, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url missing")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "presence"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3 * time.Second),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "nats connect %s", cfg.URL)
	}
	r := &Relay{
		nc:     nc,
		prefix: cfg.SubjectPrefix,
		ch:     make(chan presence.Event, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

// Hook returns a non-blocking event sink suitable for
// Registry.AddEventHook.
func (r *Relay) Hook() func(presence.Event) {
	return func(evt presence.Event) {
		select {
		case r.ch <- evt:
		default:
			logger.Warnf("[natsx] relay queue full, drop %s %s", evt.Kind, evt.Identity)
		}
	}
}

func (r *Relay) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	_ = r.nc.Drain()
}

func (r *Relay) loop() {
	for {
		select {
		case <-r.stopCh:
			return
		case evt := <-r.ch:
			if err := r.publish(evt); err != nil {
				logger.Errorf("[natsx] publish: %v", err)
			}
		}
	}
}

type relayEvent struct {
	Type      string         `json:"type"`
	Identity  string         `json:"identity,omitempty"`
	Room      string         `json:"roomName,omitempty"`
	Online    int            `json:"online,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func (r *Relay) publish(evt presence.Event) error {
	msg := relayEvent{
		Identity:  evt.Identity,
		Room:      evt.Room,
		Timestamp: evt.At,
		Fields:    evt.Fields,
	}
	var subject string
	if evt.Room == "" {
		msg.Online = evt.Count
		subject = r.prefix + ".global"
		switch evt.Kind {
		case presence.EventJoin:
			msg.Type = "VISITOR_ONLINE"
		case presence.EventLeave:
			msg.Type = "VISITOR_OFFLINE"
		default:
			return nil
		}
	} else {
		subject = r.prefix + ".room." + subjectToken(evt.Room)
		switch evt.Kind {
		case presence.EventJoin:
			msg.Type = "ACTIVITY_JOIN_PRESENCE"
		case presence.EventUpdate:
			msg.Type = "ACTIVITY_UPDATE_PRESENCE"
		case presence.EventLeave:
			msg.Type = "ACTIVITY_LEAVE_PRESENCE"
		default:
			return nil
		}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal relay event")
	}
	return errors.Wrapf(r.nc.Publish(subject, payload), "subject %s", subject)
}

// Room names allow '.' and '/', which are structural in NATS subjects;
// fold them into '-'.
func subjectToken(room string) string {
	return strings.Map(func(c rune) rune {
		switch c {
		case '.', '/', ':', '@':
			return '-'
		}
		return c
	}, room)
}
