package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/raskol/raskol/internal/admission"
	"github.com/raskol/raskol/internal/raskol"
)

// maxRequestBody is the maximum allowed forwarded request body size (4 MB).
const maxRequestBody = 4 << 20

// apiError is the JSON error body shape for every non-2xx response this
// server produces directly (as opposed to passthrough upstream bodies).
type apiError struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorResponse(kind, msg string) apiError {
	var e apiError
	e.Error.Kind = kind
	e.Error.Message = msg
	return e
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc that
// Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		return
	}
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(data)
}

// statusAndKind maps a domain sentinel error to its HTTP status and the
// "kind" string reported in the JSON error body.
func statusAndKind(err error) (int, string) {
	switch {
	case errors.Is(err, raskol.ErrMissingAuth):
		return http.StatusUnauthorized, "MISSING-AUTH"
	case errors.Is(err, raskol.ErrBadAuth):
		return http.StatusUnauthorized, "BAD-AUTH"
	case errors.Is(err, raskol.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, raskol.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE-LIMITED"
	case errors.Is(err, raskol.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "QUOTA-EXCEEDED"
	case errors.Is(err, raskol.ErrStoreBusy):
		return http.StatusServiceUnavailable, "STORE-BUSY"
	case errors.Is(err, raskol.ErrUpstreamUnreachable):
		return http.StatusBadGateway, "UPSTREAM-UNREACHABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeError maps err via statusAndKind and writes the resulting JSON error
// body, using msg as the human-readable message.
func writeError(w http.ResponseWriter, err error, msg string) {
	status, kind := statusAndKind(err)
	writeJSON(w, status, errorResponse(kind, msg))
}

func (s *server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	claims := raskol.ClaimsFromContext(r.Context())
	stats, err := s.deps.Accounting.StatsFor(r.Context(), claims.Subject, raskol.TodayUTC(time.Now()))
	if err != nil {
		slog.LogAttrs(r.Context(), slog.LevelError, "stats lookup failed", slog.String("error", err.Error()))
		writeError(w, err, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleTotalStats(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Accounting.TotalStats(r.Context(), raskol.TodayUTC(time.Now()))
	if err != nil {
		slog.LogAttrs(r.Context(), slog.LevelError, "total stats lookup failed", slog.String("error", err.Error()))
		writeError(w, err, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// handleForward implements steps 4-7 of the seven-step POST pipeline:
// admission, upstream dispatch, post-response accounting, and verbatim
// passthrough of the upstream response. Steps 1-3 (bearer extraction,
// verification, role check) run in the authenticate and requireRole
// middleware.
func (s *server) handleForward(w http.ResponseWriter, r *http.Request) {
	claims := raskol.ClaimsFromContext(r.Context())
	now := time.Now()

	result, err := s.deps.Admission.Check(r.Context(), claims.Subject, now)
	if err != nil {
		slog.LogAttrs(r.Context(), slog.LevelError, "admission check failed", slog.String("error", err.Error()))
		writeError(w, err, "store unavailable")
		return
	}

	switch result.Decision {
	case admission.RejectRate:
		if result.RetryAfter > 0 {
			w.Header()["Retry-After"] = []string{strconv.Itoa(int(result.RetryAfter.Seconds()))}
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.AdmissionRejects.WithLabelValues("rate_limited").Inc()
		}
		writeError(w, raskol.ErrRateLimited, "rate limited")
		return
	case admission.RejectQuota:
		if s.deps.Metrics != nil {
			s.deps.Metrics.AdmissionRejects.WithLabelValues("quota_exceeded").Inc()
		}
		writeError(w, raskol.ErrQuotaExceeded, "daily token quota exhausted")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("INTERNAL", "invalid request body"))
		return
	}

	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	resp, err := s.deps.Upstream.Forward(r.Context(), r.Method, path, r.Header, body)
	if err != nil {
		slog.LogAttrs(r.Context(), slog.LevelError, "upstream forward failed",
			slog.String("error", err.Error()))
		writeError(w, raskol.ErrUpstreamUnreachable, "upstream unreachable")
		return
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.Usage != nil {
		today := raskol.TodayUTC(time.Now())
		if err := s.deps.Accounting.AddTokens(r.Context(), claims.Subject, today, resp.Usage.TotalTokens); err != nil {
			slog.LogAttrs(r.Context(), slog.LevelError, "add tokens failed",
				slog.String("uid", claims.Subject), slog.String("error", err.Error()))
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.TokensProcessed.Add(float64(resp.Usage.TotalTokens))
		}
	}

	for key, vals := range resp.Header {
		w.Header()[key] = vals
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
