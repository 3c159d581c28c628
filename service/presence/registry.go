package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"OnlineGate/logger"
	"OnlineGate/tools/safe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrSessionNotFound reports an operation on a session key that was
// never joined or has already been evicted. Recoverable: the caller
// should treat it as "rejoin required".
var ErrSessionNotFound = errors.New("session not found")

// session is one logical participant. Multiple physical connections
// under the same key share a session; the displayed counts are session
// counts, not connection counts.
type session struct {
	key        string
	conns      int            // live physical connections
	lastSeen   time.Time      // refreshed on any inbound activity
	joinedAt   time.Time      // fixed at first join
	updatedAt  time.Time      // last metadata/activity touch
	rooms      map[string]int // room -> live connections in that room
	roomJoined map[string]time.Time
	meta       map[string]any
}

type room struct {
	name    string
	members map[string]struct{} // session keys
	counter *Counter
}

type Options struct {
	TTL        time.Duration // max silent duration before eviction
	SweepEvery time.Duration
	Clock      Clock    // nil => time.Now
	Recorder   Recorder // optional daily aggregate store
}

func (o *Options) norm() {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.SweepEvery <= 0 {
		o.SweepEvery = time.Second
	}
}

// Registry owns all presence state. Every mutation runs under one mutex
// so counts are always recomputed against the membership set of that
// instant; mutations are short and never block on I/O.
type Registry struct {
	mu       sync.Mutex
	opts     Options
	sessions map[string]*session
	rooms    map[string]*room
	global   *room // implicit channel, never destroyed
	hooks    []func(Event)

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRegistry(opts Options) *Registry {
	opts.norm()
	r := &Registry{
		opts:     opts,
		sessions: make(map[string]*session),
		rooms:    make(map[string]*room),
		global:   &room{members: make(map[string]struct{}), counter: NewCounter()},
		stopCh:   make(chan struct{}),
	}
	go r.sweeper()
	return r
}

// AddEventHook registers a presence-event sink. Hooks are invoked in
// mutation order and must not block; register before serving traffic.
func (r *Registry) AddEventHook(fn func(Event)) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// TTL reports the configured liveness window, advertised in hello frames.
func (r *Registry) TTL() time.Duration { return r.opts.TTL }

type JoinResult struct {
	Identity    string
	RoomCount   int
	GlobalCount int
}

// Join registers one physical connection under key in room (empty room
// means global-only). Creates the session and room as needed; a reused
// key augments the existing session and never inflates counts. Always
// succeeds.
func (r *Registry) Join(key, roomName string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joinLocked(key, roomName, nil)
}

func (r *Registry) joinLocked(key, roomName string, inheritMeta map[string]any) JoinResult {
	now := r.opts.Clock()

	s := r.sessions[key]
	if s == nil {
		s = &session{
			key:        key,
			joinedAt:   now,
			rooms:      make(map[string]int),
			roomJoined: make(map[string]time.Time),
			meta:       make(map[string]any),
		}
		for k, v := range inheritMeta {
			s.meta[k] = v
		}
		r.sessions[key] = s
	}
	s.conns++
	s.lastSeen = now
	s.updatedAt = now

	var roomCount int
	if roomName != "" {
		rm := r.roomLocked(roomName)
		s.rooms[roomName]++
		if s.rooms[roomName] == 1 {
			rm.members[key] = struct{}{}
			s.roomJoined[roomName] = now
			roomCount = len(rm.members)
			rm.counter.Publish(roomCount)
			r.emit(Event{Kind: EventJoin, Identity: key, Room: roomName, At: now.UnixMilli()})
			r.record(roomChannel(roomName), roomCount)
		} else {
			roomCount = len(rm.members)
		}
	}

	if s.conns == 1 {
		r.global.members[key] = struct{}{}
		n := len(r.global.members)
		r.global.counter.Publish(n)
		r.emit(Event{Kind: EventJoin, Identity: key, Count: n, At: now.UnixMilli()})
		r.record(GlobalChannel, n)
	}

	return JoinResult{Identity: key, RoomCount: roomCount, GlobalCount: len(r.global.members)}
}

// Heartbeat refreshes the session's liveness window. Returns
// ErrSessionNotFound after eviction (a race with the reaper is expected;
// the caller rejoins).
func (r *Registry) Heartbeat(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[key]
	if s == nil {
		return errors.Wrapf(ErrSessionNotFound, "heartbeat %s", key)
	}
	now := r.opts.Clock()
	s.lastSeen = now
	s.updatedAt = now
	return nil
}

type UpdateResult struct {
	Identity  string
	UpdatedAt int64
}

// UpdateMeta refreshes liveness and merges metadata fields, then emits
// an update event scoped to roomName. Unknown keys are rejected, not
// implicitly joined: a caller whose session expired must reconnect
// rather than resurrect state through a metadata write.
func (r *Registry) UpdateMeta(key, roomName string, fields map[string]any) (UpdateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[key]
	if s == nil {
		return UpdateResult{}, errors.Wrapf(ErrSessionNotFound, "update %s", key)
	}
	now := r.opts.Clock()
	s.lastSeen = now
	s.updatedAt = now
	for k, v := range fields {
		s.meta[k] = v
	}
	r.emit(Event{
		Kind:     EventUpdate,
		Identity: key,
		Room:     roomName,
		At:       now.UnixMilli(),
		Fields:   fields,
	})
	return UpdateResult{Identity: key, UpdatedAt: now.UnixMilli()}, nil
}

// Leave detaches one physical connection of key from roomName. When the
// last connection in the room goes, the key leaves the member set; when
// the last connection overall goes, the session is destroyed. Unknown
// keys are a no-op, which makes disconnect cleanup at-most-once.
func (r *Registry) Leave(key, roomName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(key, roomName)
}

func (r *Registry) leaveLocked(key, roomName string) {
	s := r.sessions[key]
	if s == nil {
		return
	}
	s.conns--

	if roomName != "" && s.rooms[roomName] > 0 {
		s.rooms[roomName]--
		if s.rooms[roomName] == 0 {
			delete(s.rooms, roomName)
			delete(s.roomJoined, roomName)
			r.dropRoomMemberLocked(roomName, key)
		}
	}

	if s.conns <= 0 {
		delete(r.sessions, key)
		delete(r.global.members, key)
		n := len(r.global.members)
		r.global.counter.Publish(n)
		r.emit(Event{Kind: EventLeave, Identity: key, Count: n, At: r.opts.Clock().UnixMilli()})
		r.record(GlobalChannel, n)
	}
}

func (r *Registry) dropRoomMemberLocked(roomName, key string) {
	rm := r.rooms[roomName]
	if rm == nil {
		return
	}
	if _, ok := rm.members[key]; !ok {
		return
	}
	delete(rm.members, key)
	n := len(rm.members)
	rm.counter.Publish(n)
	r.emit(Event{Kind: EventLeave, Identity: key, Room: roomName, At: r.opts.Clock().UnixMilli()})
	r.record(roomChannel(roomName), n)
	if n == 0 && rm.counter.subscriberCount() == 0 {
		delete(r.rooms, roomName)
	}
}

// Reidentify re-points one connection from oldKey to newKey within
// roomName (empty for global-only connections), recomputing counts for
// both keys atomically. Metadata moves along when the old session ends
// with the re-pointed connection.
func (r *Registry) Reidentify(oldKey, newKey, roomName string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oldKey == newKey {
		s := r.sessions[oldKey]
		if s == nil {
			return r.joinLocked(newKey, roomName, nil)
		}
		var rc int
		if rm := r.rooms[roomName]; rm != nil {
			rc = len(rm.members)
		}
		return JoinResult{Identity: newKey, RoomCount: rc, GlobalCount: len(r.global.members)}
	}

	var inherit map[string]any
	if s := r.sessions[oldKey]; s != nil && s.conns == 1 {
		inherit = s.meta
	}
	r.leaveLocked(oldKey, roomName)
	return r.joinLocked(newKey, roomName, inherit)
}

type Member struct {
	Identity  string
	JoinedAt  int64 // unix ms, when the key joined this room
	UpdatedAt int64
}

type Snapshot struct {
	Count   int
	Members []Member
}

// SnapshotRoom returns a point-in-time view of a room's membership,
// ordered by join time then identity.
func (r *Registry) SnapshotRoom(roomName string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[roomName]
	if rm == nil {
		return Snapshot{}
	}
	out := Snapshot{Count: len(rm.members), Members: make([]Member, 0, len(rm.members))}
	for key := range rm.members {
		s := r.sessions[key]
		if s == nil {
			continue
		}
		out.Members = append(out.Members, Member{
			Identity:  key,
			JoinedAt:  s.roomJoined[roomName].UnixMilli(),
			UpdatedAt: s.updatedAt.UnixMilli(),
		})
	}
	sort.Slice(out.Members, func(i, j int) bool {
		if out.Members[i].JoinedAt != out.Members[j].JoinedAt {
			return out.Members[i].JoinedAt < out.Members[j].JoinedAt
		}
		return out.Members[i].Identity < out.Members[j].Identity
	})
	return out
}

// Rooms returns all known room names with their current counts.
func (r *Registry) Rooms() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.rooms))
	for name, rm := range r.rooms {
		if len(rm.members) > 0 {
			out[name] = len(rm.members)
		}
	}
	return out
}

type RoomCount struct {
	Room  string
	Count int
}

// TopRooms lists the busiest rooms, count descending with name ascending
// as the tie-break.
func (r *Registry) TopRooms(limit int) []RoomCount {
	counts := r.Rooms()
	out := make([]RoomCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, RoomCount{Room: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Room < out[j].Room
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GlobalCount returns the number of distinct live session keys.
func (r *Registry) GlobalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.global.members)
}

// SubscribeRoom attaches to a room's count fan-out, creating the room
// slot on demand.
func (r *Registry) SubscribeRoom(roomName string) *CountSub {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomLocked(roomName).counter.Subscribe()
}

// SubscribeGlobal attaches to the global online-count fan-out.
func (r *Registry) SubscribeGlobal() *CountSub {
	return r.global.counter.Subscribe()
}

func (r *Registry) roomLocked(name string) *room {
	rm := r.rooms[name]
	if rm == nil {
		rm = &room{name: name, members: make(map[string]struct{}), counter: NewCounter()}
		r.rooms[name] = rm
	}
	return rm
}

func (r *Registry) emit(evt Event) {
	for _, fn := range r.hooks {
		fn(evt)
	}
}

// record forwards a count change to the aggregate recorder off the
// mutation path. Failures are logged and dropped.
func (r *Registry) record(channel string, online int) {
	rec := r.opts.Recorder
	if rec == nil {
		return
	}
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rec.RecordOnline(ctx, channel, online); err != nil {
			logger.Errorf("[presence] record online channel=%s n=%d err=%v", channel, online, err)
		}
	})
}

// ===== TTL reaper =====

func (r *Registry) sweeper() {
	t := time.NewTicker(r.opts.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-t.C:
			r.sweepOnce(r.opts.Clock())
		}
	}
}

// sweepOnce evicts every session silent for longer than the TTL through
// the same leave path an explicit disconnect takes, then drops empty
// rooms nobody subscribes to. This is the only recovery for half-open
// connections that never delivered a close.
func (r *Registry) sweepOnce(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*session
	for _, s := range r.sessions {
		if now.Sub(s.lastSeen) >= r.opts.TTL {
			stale = append(stale, s)
		}
	}
	for _, s := range stale {
		logger.Debug("evicting stale session",
			zap.String("key", s.key), zap.Int("conns", s.conns))
		for name := range s.rooms {
			delete(s.rooms, name)
			delete(s.roomJoined, name)
			r.dropRoomMemberLocked(name, s.key)
		}
		delete(r.sessions, s.key)
		delete(r.global.members, s.key)
		n := len(r.global.members)
		r.global.counter.Publish(n)
		r.emit(Event{Kind: EventLeave, Identity: s.key, Count: n, At: now.UnixMilli()})
		r.record(GlobalChannel, n)
	}

	for name, rm := range r.rooms {
		if len(rm.members) == 0 && rm.counter.subscriberCount() == 0 {
			delete(r.rooms, name)
		}
	}
	return len(stale)
}
