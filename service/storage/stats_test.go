package storage

import (
	"context"
	"testing"
	"time"

	"OnlineGate/service/presence"
)

func TestMemoryStatsMaxAndTotal(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	st := NewMemoryStats(func() time.Time { return now })
	ctx := context.Background()

	for _, n := range []int{1, 2, 3, 2, 1} {
		if err := st.RecordOnline(ctx, presence.GlobalChannel, n); err != nil {
			t.Fatalf("record %d: %v", n, err)
		}
	}

	today, err := st.Today(ctx)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if today.Date != "2025-06-01" {
		t.Fatalf("date = %q", today.Date)
	}
	if today.Max != 3 {
		t.Fatalf("max = %d, want 3", today.Max)
	}
	if today.Total != 5 {
		t.Fatalf("total = %d, want 5 changes", today.Total)
	}
	if today.Backend != "memory" {
		t.Fatalf("backend = %q", today.Backend)
	}
}

func TestMemoryStatsIgnoresRoomChannels(t *testing.T) {
	st := NewMemoryStats(nil)
	ctx := context.Background()

	if err := st.RecordOnline(ctx, "room:demo", 50); err != nil {
		t.Fatalf("record: %v", err)
	}
	today, err := st.Today(ctx)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if today.Max != 0 || today.Total != 0 {
		t.Fatalf("room traffic leaked into daily stats: %+v", today)
	}
}

func TestMemoryStatsRollsOverAtMidnight(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	st := NewMemoryStats(func() time.Time { return now })
	ctx := context.Background()

	st.RecordOnline(ctx, presence.GlobalChannel, 9)

	now = now.Add(2 * time.Minute)
	today, err := st.Today(ctx)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if today.Date != "2025-06-02" {
		t.Fatalf("date = %q, want the new day", today.Date)
	}
	if today.Max != 0 || today.Total != 0 {
		t.Fatalf("yesterday's figures bled over: %+v", today)
	}
}

func TestMemoryStatsEmptyDay(t *testing.T) {
	st := NewMemoryStats(nil)
	today, err := st.Today(context.Background())
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if today.Max != 0 || today.Total != 0 || today.Backend != "memory" {
		t.Fatalf("empty day = %+v", today)
	}
}
