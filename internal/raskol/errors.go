package raskol

import "errors"

// Sentinel errors for the Raskol domain, mapped to HTTP status at the
// server boundary via errors.Is (see internal/server/handlers.go).
var (
	ErrMissingAuth         = errors.New("missing auth")
	ErrBadAuth             = errors.New("bad auth")
	ErrForbidden           = errors.New("forbidden")
	ErrRateLimited         = errors.New("rate limited")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrStoreBusy           = errors.New("store busy")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)
