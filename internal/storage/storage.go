// Package storage defines the persistence interface for the accounting store.
package storage

import (
	"context"

	"github.com/raskol/raskol/internal/raskol"
)

// Accounting records per-uid hit and token-usage counters and reports them
// back out. sqlite.Store is the only implementation; the interface exists
// so server and admission can be tested against a fake.
type Accounting interface {
	// RecordHit atomically increments uid's all-time hit count and sets its
	// time_of_last to now, returning the values from before this call.
	RecordHit(ctx context.Context, uid string, now int64) (prevCount uint64, prevTimeOfLast int64, err error)

	// AddTokens adds tokens to uid's running total for date (YUTC,
	// YYYY-MM-DD).
	AddTokens(ctx context.Context, uid, date string, tokens int64) error

	// StatsFor reports uid's current counters. today is the UTC date used
	// to pick out TodayTokens from PerDay.
	StatsFor(ctx context.Context, uid, today string) (raskol.Stats, error)

	// TotalStats reports StatsFor for every known uid.
	TotalStats(ctx context.Context, today string) ([]raskol.Stats, error)

	Ping(ctx context.Context) error
	Close() error
}
