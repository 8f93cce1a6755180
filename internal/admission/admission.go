// Package admission decides whether a request proceeds to the upstream,
// combining the per-uid hit counter with the configured rate and quota
// limits.
package admission

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/raskol/raskol/internal/raskol"
	"github.com/raskol/raskol/internal/storage"
)

// Decision is the outcome of a Check call.
type Decision int

const (
	// Accept means the request may proceed to the upstream.
	Accept Decision = iota
	// RejectRate means the uid's last hit was too recent.
	RejectRate
	// RejectQuota means the uid has exhausted its daily token budget.
	RejectQuota
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "ACCEPT"
	case RejectRate:
		return "REJECT-RATE"
	case RejectQuota:
		return "REJECT-QUOTA"
	default:
		return "UNKNOWN"
	}
}

// Result carries the decision plus whatever the caller needs to build a
// response: a Retry-After hint for REJECT-RATE, and the hit count this
// request contributed (for logging).
type Result struct {
	Decision   Decision
	RetryAfter time.Duration
	HitCount   uint64 // count_of_all after this request's hit was recorded
}

// Controller evaluates admission decisions against a store and a fixed
// set of limits.
type Controller struct {
	store  storage.Accounting
	limits raskol.Limits
}

// New builds a Controller. limits are immutable for the controller's
// lifetime, matching spec.md's "process-wide immutable after startup".
func New(store storage.Accounting, limits raskol.Limits) *Controller {
	return &Controller{store: store, limits: limits}
}

// Check records a hit for uid at now and returns the admission decision.
// It always calls record_hit first, even on eventual rejection, so the
// hit counter reflects every authorized attempt reaching this point.
func (c *Controller) Check(ctx context.Context, uid string, now time.Time) (Result, error) {
	nowEpoch := now.Unix()
	prevCount, prevTimeOfLast, err := c.store.RecordHit(ctx, uid, nowEpoch)
	if err != nil {
		return Result{}, fmt.Errorf("record hit: %w", err)
	}
	hitCount := prevCount + 1

	if prevTimeOfLast != 0 && c.limits.MinHitIntervalSeconds > 0 {
		elapsed := float64(nowEpoch - prevTimeOfLast)
		if elapsed < c.limits.MinHitIntervalSeconds {
			retryAfter := time.Duration(math.Ceil(c.limits.MinHitIntervalSeconds-elapsed)) * time.Second
			return Result{Decision: RejectRate, RetryAfter: retryAfter, HitCount: hitCount}, nil
		}
	}

	if c.limits.MaxTokensPerDay > 0 {
		today := raskol.TodayUTC(now)
		stats, err := c.store.StatsFor(ctx, uid, today)
		if err != nil {
			return Result{}, fmt.Errorf("stats for: %w", err)
		}
		if int64(stats.TodayTokens) >= c.limits.MaxTokensPerDay {
			return Result{Decision: RejectQuota, HitCount: hitCount}, nil
		}
	}

	return Result{Decision: Accept, HitCount: hitCount}, nil
}
