package storage

import (
	"context"
	"sync"
	"time"

	"OnlineGate/service/presence"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// StatsToday is the daily aggregate view. Backend tells the caller
// whether the external store answered ("redis") or the figures are
// local-only ("memory").
type StatsToday struct {
	Date    string `json:"date"`
	Max     int    `json:"max"`
	Total   int    `json:"total"`
	Backend string `json:"backend"`
}

// Stats maintains a running per-day maximum and total of the global
// online count. RecordOnline is best-effort and must stay off the
// registry's mutation path.
type Stats interface {
	RecordOnline(ctx context.Context, channel string, online int) error
	Today(ctx context.Context) (StatsToday, error)
}

const (
	keyMaxOnline      = "max_online_count"
	keyMaxOnlineTotal = "max_online_count:total"
	dayLayout         = "2006-01-02"
)

// Keeps the max update atomic under concurrent gateways sharing one store.
const luaRecordOnline = `
local cur = redis.call("HGET", KEYS[1], ARGV[1])
if not cur or tonumber(ARGV[2]) > tonumber(cur) then
  redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
end
redis.call("HINCRBY", KEYS[2], ARGV[1], 1)
return 1
`

type redisStats struct {
	rdb    *redis.Client
	clock  func() time.Time
	script *redis.Script
}

// NewRedisStats wraps a connected client. The day boundary follows the
// given clock's local calendar date.
func NewRedisStats(rdb *redis.Client, clock func() time.Time) Stats {
	if clock == nil {
		clock = time.Now
	}
	return &redisStats{rdb: rdb, clock: clock, script: redis.NewScript(luaRecordOnline)}
}

func (s *redisStats) RecordOnline(ctx context.Context, channel string, online int) error {
	if channel != presence.GlobalChannel {
		// The store schema tracks the global channel only.
		return nil
	}
	day := s.clock().Format(dayLayout)
	err := s.script.Run(ctx, s.rdb, []string{keyMaxOnline, keyMaxOnlineTotal}, day, online).Err()
	return errors.Wrap(err, "record online")
}

func (s *redisStats) Today(ctx context.Context) (StatsToday, error) {
	day := s.clock().Format(dayLayout)
	max, err := s.rdb.HGet(ctx, keyMaxOnline, day).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return StatsToday{}, errors.Wrap(err, "read daily max")
	}
	total, err := s.rdb.HGet(ctx, keyMaxOnlineTotal, day).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return StatsToday{}, errors.Wrap(err, "read daily total")
	}
	return StatsToday{Date: day, Max: max, Total: total, Backend: "redis"}, nil
}

// ===== memory fallback =====

type dayStats struct {
	max   int
	total int
}

type memoryStats struct {
	mu    sync.Mutex
	clock func() time.Time
	days  map[string]*dayStats
}

// NewMemoryStats keeps the daily aggregates in process memory. Used when
// no external store is configured; figures reset on restart and are
// never shared across instances.
func NewMemoryStats(clock func() time.Time) Stats {
	if clock == nil {
		clock = time.Now
	}
	return &memoryStats{clock: clock, days: make(map[string]*dayStats)}
}

func (s *memoryStats) RecordOnline(_ context.Context, channel string, online int) error {
	if channel != presence.GlobalChannel {
		return nil
	}
	day := s.clock().Format(dayLayout)
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.days[day]
	if d == nil {
		d = &dayStats{}
		s.days[day] = d
	}
	if online > d.max {
		d.max = online
	}
	d.total++
	return nil
}

func (s *memoryStats) Today(_ context.Context) (StatsToday, error) {
	day := s.clock().Format(dayLayout)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := StatsToday{Date: day, Backend: "memory"}
	if d := s.days[day]; d != nil {
		out.Max = d.max
		out.Total = d.total
	}
	return out, nil
}
