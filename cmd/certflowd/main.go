// Package main runs the certflow daemon: the pipeline runner, its
// checkpoint store, and the HTTP API, plus a Prometheus metrics endpoint.
//
// Usage:
//
//	certflowd -addr :8080 -checkpoints ./checkpoints \
//	  -smtp-host smtp.example.com -smtp-port 587 \
//	  -smtp-user events@example.com -from events@example.com
//
// The SMTP password is read from CERTFLOW_SMTP_PASSWORD.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ekansh09/certflow/api"
	"github.com/ekansh09/certflow/checkpoint"
	"github.com/ekansh09/certflow/hook"
	"github.com/ekansh09/certflow/mail"
	"github.com/ekansh09/certflow/observability"
	"github.com/ekansh09/certflow/pipeline"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "API listen address")
		checkpointDir = flag.String("checkpoints", "checkpoints", "checkpoint storage directory")
		smtpHost      = flag.String("smtp-host", "", "SMTP server host")
		smtpPort      = flag.Int("smtp-port", 587, "SMTP server port")
		smtpUser      = flag.String("smtp-user", "", "SMTP username")
		from          = flag.String("from", "", "sender address")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// ──────────────────────────────────────────────────
	// 1. Metrics
	// ──────────────────────────────────────────────────

	exporter, err := otelprom.New()
	if err != nil {
		logger.Error("failed to create metrics exporter", slog.String("error", err.Error()))
		os.Exit(1)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	// ──────────────────────────────────────────────────
	// 2. Core components
	// ──────────────────────────────────────────────────

	store, err := checkpoint.NewStore(*checkpointDir, logger)
	if err != nil {
		logger.Error("failed to open checkpoint store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	transport, err := mail.NewSMTPTransport(mail.SMTPConfig{
		Host:     *smtpHost,
		Port:     *smtpPort,
		Username: *smtpUser,
		Password: os.Getenv("CERTFLOW_SMTP_PASSWORD"),
		From:     *from,
	})
	if err != nil {
		logger.Error("invalid smtp configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	hooks := hook.NewRegistry(logger)
	hooks.Register(observability.NewMetrics())

	runner := pipeline.NewRunner(store, transport, logger, pipeline.WithHooks(hooks))

	// ──────────────────────────────────────────────────
	// 3. HTTP server
	// ──────────────────────────────────────────────────

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.New(runner, store, transport, nil).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("certflow daemon running",
			slog.String("addr", *addr),
			slog.String("checkpoints", *checkpointDir),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("run shutdown error", slog.String("error", err.Error()))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("goodbye")
}
