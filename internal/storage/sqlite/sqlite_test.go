package sqlite

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Use a unique file-based temp DB per test to avoid shared :memory: races.
	path := t.TempDir() + "/test.db"
	s, err := New(path, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordHitFirstSeen(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	prevCount, prevTime, err := s.RecordHit(ctx, "u1", 1000)
	if err != nil {
		t.Fatal("record hit:", err)
	}
	if prevCount != 0 || prevTime != 0 {
		t.Errorf("first hit previous = (%d, %d), want (0, 0)", prevCount, prevTime)
	}

	stats, err := s.StatsFor(ctx, "u1", "2024-01-01")
	if err != nil {
		t.Fatal("stats for:", err)
	}
	if stats.HitCount != 1 {
		t.Errorf("hit count = %d, want 1", stats.HitCount)
	}
}

func TestRecordHitReturnsPriorValues(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.RecordHit(ctx, "u1", 1000); err != nil {
		t.Fatal(err)
	}
	prevCount, prevTime, err := s.RecordHit(ctx, "u1", 1010)
	if err != nil {
		t.Fatal(err)
	}
	if prevCount != 1 {
		t.Errorf("prevCount = %d, want 1", prevCount)
	}
	if prevTime != 1000 {
		t.Errorf("prevTime = %d, want 1000", prevTime)
	}

	stats, err := s.StatsFor(ctx, "u1", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if stats.HitCount != 2 {
		t.Errorf("hit count = %d, want 2", stats.HitCount)
	}
}

func TestAddTokensAccumulates(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddTokens(ctx, "u1", "2024-01-01", 100); err != nil {
		t.Fatal("add tokens:", err)
	}
	if err := s.AddTokens(ctx, "u1", "2024-01-01", 50); err != nil {
		t.Fatal("add tokens:", err)
	}
	if err := s.AddTokens(ctx, "u1", "2024-01-02", 10); err != nil {
		t.Fatal("add tokens:", err)
	}

	stats, err := s.StatsFor(ctx, "u1", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TodayTokens != 150 {
		t.Errorf("today tokens = %d, want 150", stats.TodayTokens)
	}
	if len(stats.PerDay) != 2 {
		t.Fatalf("per-day entries = %d, want 2", len(stats.PerDay))
	}
	// Descending date order.
	if stats.PerDay[0].Date != "2024-01-02" {
		t.Errorf("PerDay[0].Date = %q, want 2024-01-02", stats.PerDay[0].Date)
	}
}

func TestStatsForUnknownUID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.StatsFor(ctx, "ghost", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if stats.HitCount != 0 || stats.TodayTokens != 0 || len(stats.PerDay) != 0 {
		t.Errorf("stats for unknown uid = %+v, want all zero", stats)
	}
}

func TestTotalStats(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.RecordHit(ctx, "u1", 1000); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.RecordHit(ctx, "u2", 1000); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTokens(ctx, "u1", "2024-01-01", 25); err != nil {
		t.Fatal(err)
	}

	all, err := s.TotalStats(ctx, "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("total stats len = %d, want 2", len(all))
	}

	byUID := make(map[string]uint64)
	for _, st := range all {
		byUID[st.UID] = st.TodayTokens
	}
	if byUID["u1"] != 25 {
		t.Errorf("u1 today tokens = %d, want 25", byUID["u1"])
	}
	if byUID["u2"] != 0 {
		t.Errorf("u2 today tokens = %d, want 0", byUID["u2"])
	}
}
