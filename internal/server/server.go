// Package server implements the HTTP transport layer for the Raskol proxy.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/raskol/raskol/internal/admission"
	"github.com/raskol/raskol/internal/identity"
	"github.com/raskol/raskol/internal/raskol"
	"github.com/raskol/raskol/internal/storage"
	"github.com/raskol/raskol/internal/telemetry"
	"github.com/raskol/raskol/internal/upstream"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Identity       *identity.Service
	Admission      *admission.Controller
	Accounting     storage.Accounting
	Upstream       *upstream.Client
	Metrics        *telemetry.Metrics // nil = no Prometheus metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
	Tracer         trace.Tracer       // nil = no distributed tracing
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	r.Use(s.securityHeaders)
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	if deps.Tracer != nil {
		r.Use(tracingMiddleware(deps.Tracer))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.requireRole(raskol.RoleHacker))
		r.Get("/ping", s.handlePing)
		r.Get("/stats", s.handleStats)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.requireRole(raskol.RoleAdmin))
		r.Get("/total-stats", s.handleTotalStats)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.requireRole(raskol.RoleHacker))
		r.Post("/*", s.handleForward)
	})

	return r
}

type server struct {
	deps Deps
}
