// Package raskol defines the domain types and request-context plumbing for
// the Raskol reverse proxy. This package has no project imports -- it is
// the dependency root.
package raskol

import (
	"context"
	"time"
)

// Role is the authorization level carried by a Claims.
type Role string

const (
	RoleUser   Role = "USER"
	RoleHacker Role = "HACKER"
	RoleAdmin  Role = "ADMIN"
)

// rank orders roles so Satisfies can compare them without a lookup map per call.
func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleHacker:
		return 1
	default:
		return 0
	}
}

// Satisfies reports whether r grants at least the capabilities of need.
// ADMIN satisfies HACKER and USER; HACKER satisfies only USER and itself.
func (r Role) Satisfies(need Role) bool { return r.rank() >= need.rank() }

// Claims is the authenticated caller context extracted from a verified token.
type Claims struct {
	Subject   string // uid
	Issuer    string
	Audience  string
	ExpiresAt time.Time
	Role      Role
}

// Limits holds the process-wide, immutable-after-startup admission thresholds.
// A value of 0 on both fields means unlimited (see admission package).
type Limits struct {
	MinHitIntervalSeconds float64
	MaxTokensPerDay       int64
}

// HitRecord is the per-uid hit counter row.
type HitRecord struct {
	UID         string
	CountOfAll  uint64
	TimeOfLast  int64 // epoch seconds
}

// TokenDay is a per-uid-per-day token total row.
type TokenDay struct {
	UID   string
	Date  string // YYYY-MM-DD, UTC
	Total uint64
}

// Stats is the response shape for stats_for(uid).
type Stats struct {
	UID         string     `json:"uid"`
	HitCount    uint64     `json:"hit_count"`
	TodayTokens uint64     `json:"today_tokens"`
	PerDay      []TokenDay `json:"per_day"`
}

// Usage holds the fields extracted from an upstream JSON response body.
type Usage struct {
	TotalTokens  int64
	QueueTime    float64
	PromptTime   float64
	CompletionTime float64
	TotalTime    float64
}

// TodayUTC formats now as the UTC calendar date used as the TokenDay key.
func TodayUTC(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// --- context plumbing ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// Claims is set later by the authenticate middleware via mutation of the
// same pointer, avoiding a second context.WithValue allocation.
type requestMeta struct {
	RequestID string
	Claims    *Claims
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// ClaimsFromContext extracts the authenticated claims from context, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	if m := metaFromContext(ctx); m != nil {
		return m.Claims
	}
	return nil
}

// ContextWithClaims stores claims in the existing requestMeta if present,
// avoiding a new context.WithValue allocation. Falls back to creating new
// metadata if none exists (e.g., in tests).
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Claims = c
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Claims: c})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}
