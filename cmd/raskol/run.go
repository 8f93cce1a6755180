package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/trace"

	"github.com/raskol/raskol/internal/admission"
	"github.com/raskol/raskol/internal/circuitbreaker"
	"github.com/raskol/raskol/internal/config"
	"github.com/raskol/raskol/internal/identity"
	"github.com/raskol/raskol/internal/raskol"
	"github.com/raskol/raskol/internal/server"
	"github.com/raskol/raskol/internal/storage/sqlite"
	"github.com/raskol/raskol/internal/telemetry"
	"github.com/raskol/raskol/internal/upstream"
	"github.com/raskol/raskol/internal/worker"
)

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	setLogLevel(cfg.LogLevel)
	addr := fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port)
	slog.Info("starting raskol", "version", version, "addr", addr)

	store, err := sqlite.New("raskol.db", time.Duration(cfg.SQLiteBusyTimeout*float64(time.Second)))
	if err != nil {
		return err
	}
	defer store.Close()

	idsvc, err := identity.New(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		return err
	}

	admissionCtl := admission.New(store, raskol.Limits{
		MinHitIntervalSeconds: cfg.MinHitInterval,
		MaxTokensPerDay:       cfg.MaxTokensPerDay,
	})

	// Shared DNS cache for the upstream HTTP client.
	dnsResolver := &dnscache.Resolver{}
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			dnsResolver.Refresh(true)
		}
	}()

	// Prometheus metrics.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRegistry.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.NewMetrics(promRegistry)
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	transport := upstream.NewTransport(dnsResolver, cfg.InsecureSkipVerify)
	breaker := circuitbreaker.NewBreaker(circuitbreaker.DefaultConfig())
	upstreamClient := upstream.New(transport, cfg.TargetAddress, cfg.TargetAuthToken, breaker).WithMetrics(metrics)

	// Background workers.
	runner := worker.NewRunner(worker.NewStatsReporter(store))
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() { workerDone <- runner.Run(workerCtx) }()

	// OpenTelemetry tracing, best-effort.
	var tracer trace.Tracer
	var tracingShutdown func(context.Context) error
	if cfg.Telemetry.Tracing.Enabled {
		endpoint := cfg.Telemetry.Tracing.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		sampleRate := cfg.Telemetry.Tracing.SampleRate
		if sampleRate == 0 {
			sampleRate = 0.1
		}
		shutdown, err := telemetry.SetupTracing(context.Background(), endpoint, sampleRate)
		if err != nil {
			slog.Warn("tracing setup failed, continuing without tracing", "error", err)
		} else {
			tracingShutdown = shutdown
			tracer = telemetry.Tracer("raskol/server")
			slog.Info("opentelemetry tracing enabled", "endpoint", endpoint, "sample_rate", sampleRate)
		}
	}

	handler := server.New(server.Deps{
		Identity:       idsvc,
		Admission:      admissionCtl,
		Accounting:     store,
		Upstream:       upstreamClient,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Tracer:         tracer,
		ReadyCheck:     store.Ping,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if cfg.TLS != nil {
		slog.Info("tls enabled", "cert_file", cfg.TLS.CertFile)
	}

	errCh := make(chan error, 1)
	go func() {
		var serveErr error
		if cfg.TLS != nil {
			serveErr = srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	slog.Info("raskol ready", "addr", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		workerCancel()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		workerCancel()
		return err
	}

	workerCancel()
	if err := <-workerDone; err != nil {
		slog.Error("worker shutdown error", "error", err)
	}

	if tracingShutdown != nil {
		if err := tracingShutdown(shutdownCtx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
		}
	}

	slog.Info("raskol stopped")
	return nil
}

func setLogLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(l)
}
