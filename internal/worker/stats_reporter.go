package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/raskol/raskol/internal/raskol"
)

const reportInterval = 5 * time.Minute

// StatsSource is the read-only persistence interface consumed by
// StatsReporter.
type StatsSource interface {
	TotalStats(ctx context.Context, today string) ([]raskol.Stats, error)
}

// StatsReporter periodically logs an aggregate view of known users' hit and
// token counters, giving operators a coarse signal without scraping metrics.
type StatsReporter struct {
	store StatsSource
}

// NewStatsReporter creates a new stats reporter.
func NewStatsReporter(store StatsSource) *StatsReporter {
	return &StatsReporter{store: store}
}

// Name returns the worker identifier.
func (w *StatsReporter) Name() string { return "stats_reporter" }

// Run logs aggregate counters on a periodic schedule until ctx is cancelled.
func (w *StatsReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.report(ctx)
		}
	}
}

func (w *StatsReporter) report(ctx context.Context) {
	today := raskol.TodayUTC(time.Now())
	all, err := w.store.TotalStats(ctx, today)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "stats report query failed",
			slog.String("error", err.Error()),
		)
		return
	}

	var totalHits uint64
	var totalTokensToday uint64
	for _, s := range all {
		totalHits += s.HitCount
		totalTokensToday += s.TodayTokens
	}

	slog.LogAttrs(ctx, slog.LevelInfo, "stats report",
		slog.Int("users", len(all)),
		slog.Uint64("total_hits", totalHits),
		slog.Uint64("total_tokens_today", totalTokensToday),
	)
}
