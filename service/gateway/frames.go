package gateway

import (
	"encoding/json"

	"OnlineGate/service/presence"

	"github.com/pkg/errors"
)

// Inbound frame types. Anything else on the wire is skipped without
// reaching the registry.
const (
	inHeartbeat      = "hb"
	inUpdateSID      = "update_sid"
	inUpdatePresence = "update_presence"
)

// Inbound is the decoded client frame; the tag selects which fields are
// meaningful.
type Inbound struct {
	Type        string  `json:"type"`
	SessionID   string  `json:"sessionId"`
	RoomName    string  `json:"roomName"`
	DisplayName *string `json:"displayName"`
	Position    *int    `json:"position"`
}

// ParseInbound decodes a single tagged frame. A frame without a type tag
// is malformed.
func ParseInbound(data []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, errors.Wrap(err, "parse frame")
	}
	if in.Type == "" {
		return nil, errors.New("frame missing type")
	}
	return &in, nil
}

// Outbound business event tags, room-scoped.
const (
	evtJoinPresence   = "ACTIVITY_JOIN_PRESENCE"
	evtUpdatePresence = "ACTIVITY_UPDATE_PRESENCE"
	evtLeavePresence  = "ACTIVITY_LEAVE_PRESENCE"
)

type helloMsg struct {
	Type  string `json:"type"`
	SID   string `json:"sid"`
	TTL   int64  `json:"ttl,omitempty"` // seconds; omitted on the global channel
	Count int    `json:"count"`
}

type syncMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func encodeHello(sid string, ttlSecs int64, count int) []byte {
	b, _ := json.Marshal(helloMsg{Type: "hello", SID: sid, TTL: ttlSecs, Count: count})
	return b
}

func encodeSync(count int) []byte {
	b, _ := json.Marshal(syncMsg{Type: "sync", Count: count})
	return b
}

type eventEnvelope struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// encodeEvent serializes a room-scoped presence event for broadcast.
// Returns nil for kinds that have no wire representation.
func encodeEvent(evt presence.Event) []byte {
	data := map[string]any{
		"identity": evt.Identity,
		"roomName": evt.Room,
	}
	var tag string
	switch evt.Kind {
	case presence.EventJoin:
		tag = evtJoinPresence
		data["joinedAt"] = evt.At
	case presence.EventUpdate:
		tag = evtUpdatePresence
		data["updatedAt"] = evt.At
		for k, v := range evt.Fields {
			data[k] = v
		}
	case presence.EventLeave:
		tag = evtLeavePresence
	default:
		return nil
	}
	b, err := json.Marshal(eventEnvelope{Type: tag, Data: data})
	if err != nil {
		return nil
	}
	return b
}
