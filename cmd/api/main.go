// Package main is the entry point for the TillPoint billing API server.
//
// It loads configuration, connects the database pool, wires the webhook
// ingestion pipeline (signature verification, replay guard, subscription
// ledger), and serves HTTP with graceful shutdown on SIGINT/SIGTERM.
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

	"tillpoint/internal/api/handlers"
	"tillpoint/internal/billing"
	"tillpoint/internal/config"
	"tillpoint/internal/core"
	"tillpoint/internal/db"
	"tillpoint/internal/idempotency"
	"tillpoint/internal/types"
	"tillpoint/internal/webhooks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("tillpoint API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(initCtx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	subRepo := db.NewSubscriptionRepo(pool, logger)
	paymentRepo := db.NewPaymentRepo(pool, logger)
	orgRepo := db.NewOrganizationRepo(pool, logger)

	lockManager := billing.NewLockManager(orgRepo, logger)
	ledger := billing.NewLedger(subRepo, paymentRepo, lockManager, cfg.Billing, nil, logger)

	webhookHandler := handlers.NewPaymentWebhookHandler(
		webhooks.NewVerifier(cfg.Billing),
		idempotency.NewMemoryStore(types.RealClock{}),
		ledger,
		cfg.Webhook.IdempotencyTTL,
		cfg.Webhook.SkewWindow,
		nil,
		logger,
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{core.NewPingProbe("database", pool)}
	srv.RouteRegistrars = append(srv.RouteRegistrars, webhookHandler.RegisterRoutes)
	srv.OnShutdown(func() error {
		pool.Close()
		return nil
	})
	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON logger for the given level name.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
