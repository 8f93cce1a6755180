// Package telemetry provides observability primitives for the Raskol proxy.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the proxy.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveRequests    prometheus.Gauge
	AdmissionRejects  *prometheus.CounterVec // labels: reason (rate_limited, quota_exceeded)
	TokensProcessed   prometheus.Counter
	CircuitBreakerState   prometheus.Gauge   // 0=closed, 1=open, 2=half_open
	CircuitBreakerRejects prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raskol",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "raskol",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raskol",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		AdmissionRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raskol",
			Name:      "admission_rejects_total",
			Help:      "Total requests rejected by the admission controller.",
		}, []string{"reason"}),

		TokensProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raskol",
			Name:      "tokens_processed_total",
			Help:      "Total upstream total_tokens accounted across all users.",
		}),

		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raskol",
			Name:      "circuit_breaker_state",
			Help:      "Upstream circuit breaker state (0=closed, 1=open, 2=half_open).",
		}),

		CircuitBreakerRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raskol",
			Name:      "circuit_breaker_rejects_total",
			Help:      "Total requests rejected by the circuit breaker.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.AdmissionRejects,
		m.TokensProcessed,
		m.CircuitBreakerState,
		m.CircuitBreakerRejects,
	)

	return m
}
