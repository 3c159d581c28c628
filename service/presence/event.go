package presence

import "context"

type EventKind int

const (
	EventJoin EventKind = iota
	EventUpdate
	EventLeave
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventUpdate:
		return "update"
	case EventLeave:
		return "leave"
	}
	return "unknown"
}

// Event describes a membership mutation. Room is empty for the global
// channel, in which case Count carries the new online total. Hooks run
// synchronously inside the mutation and must not block; hand off to a
// buffered channel or drop.
type Event struct {
	Kind     EventKind
	Identity string
	Room     string
	Count    int
	At       int64 // unix milliseconds
	Fields   map[string]any
}

// GlobalChannel names the implicit global channel for the recorder.
// Room channels are reported as "room:<name>" so a room literally named
// "global" cannot shadow the global figures.
const GlobalChannel = "global"

func roomChannel(name string) string { return "room:" + name }

// Recorder receives count changes for the optional daily aggregate
// store. Calls are dispatched off the mutation path; a failing or absent
// recorder never affects presence state.
type Recorder interface {
	RecordOnline(ctx context.Context, channel string, online int) error
}
