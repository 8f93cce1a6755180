package admission

import (
	"context"
	"testing"
	"time"

	"github.com/raskol/raskol/internal/raskol"
	"github.com/raskol/raskol/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(t.TempDir()+"/test.db", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckAcceptsFirstHit(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	c := New(store, raskol.Limits{MinHitIntervalSeconds: 5, MaxTokensPerDay: 1000})

	res, err := c.Check(context.Background(), "u1", time.Unix(1000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != Accept {
		t.Errorf("decision = %s, want ACCEPT", res.Decision)
	}
	if res.HitCount != 1 {
		t.Errorf("hit count = %d, want 1", res.HitCount)
	}
}

func TestCheckRejectsRate(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	c := New(store, raskol.Limits{MinHitIntervalSeconds: 5, MaxTokensPerDay: 1000})
	ctx := context.Background()

	if _, err := c.Check(ctx, "u1", time.Unix(1000, 0)); err != nil {
		t.Fatal(err)
	}
	res, err := c.Check(ctx, "u1", time.Unix(1001, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != RejectRate {
		t.Errorf("decision = %s, want REJECT-RATE", res.Decision)
	}
	if res.RetryAfter < 4*time.Second {
		t.Errorf("retry after = %v, want >= 4s", res.RetryAfter)
	}
	if res.HitCount != 2 {
		t.Errorf("hit count = %d, want 2 (rejected attempts still bump)", res.HitCount)
	}
}

func TestCheckUnlimitedRate(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	c := New(store, raskol.Limits{MinHitIntervalSeconds: 0, MaxTokensPerDay: 1000})
	ctx := context.Background()

	if _, err := c.Check(ctx, "u1", time.Unix(1000, 0)); err != nil {
		t.Fatal(err)
	}
	res, err := c.Check(ctx, "u1", time.Unix(1000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != Accept {
		t.Errorf("decision = %s, want ACCEPT with min_hit_interval=0", res.Decision)
	}
}

func TestCheckRejectsQuota(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	c := New(store, raskol.Limits{MinHitIntervalSeconds: 0, MaxTokensPerDay: 100})
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	if err := store.AddTokens(ctx, "u1", raskol.TodayUTC(now), 100); err != nil {
		t.Fatal(err)
	}

	res, err := c.Check(ctx, "u1", now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != RejectQuota {
		t.Errorf("decision = %s, want REJECT-QUOTA", res.Decision)
	}
	if res.HitCount != 1 {
		t.Errorf("hit count = %d, want 1 (quota rejection still bumps hits)", res.HitCount)
	}
}

func TestCheckUnlimitedQuota(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	c := New(store, raskol.Limits{MinHitIntervalSeconds: 0, MaxTokensPerDay: 0})
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	if err := store.AddTokens(ctx, "u1", raskol.TodayUTC(now), 1_000_000); err != nil {
		t.Fatal(err)
	}

	res, err := c.Check(ctx, "u1", now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != Accept {
		t.Errorf("decision = %s, want ACCEPT with max_tokens_per_day=0", res.Decision)
	}
}
