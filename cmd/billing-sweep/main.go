// Package main is the entrypoint for the billing sweep worker.
//
// The sweep selects subscriptions whose trial has ended or whose billing
// date has passed and charges their stored autopay credential. With
// SWEEP_INTERVAL unset it runs one batch and exits, which suits a
// cron-driven deployment; with an interval it loops until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tillpoint/internal/billing"
	"tillpoint/internal/config"
	"tillpoint/internal/db"
	"tillpoint/internal/external"
	"tillpoint/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("billing sweep starting",
		"environment", cfg.Environment,
		"batch_size", cfg.Sweep.BatchSize,
		"concurrency", cfg.Sweep.Concurrency,
		"interval", cfg.Sweep.Interval,
	)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(initCtx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	subRepo := db.NewSubscriptionRepo(pool, logger)
	paymentRepo := db.NewPaymentRepo(pool, logger)
	orgRepo := db.NewOrganizationRepo(pool, logger)

	lockManager := billing.NewLockManager(orgRepo, logger)
	ledger := billing.NewLedger(subRepo, paymentRepo, lockManager, cfg.Billing, nil, logger)

	httpClient := &http.Client{Timeout: cfg.Billing.ChargeTimeout}
	gateways := map[types.PaymentProvider]external.PaymentGateway{
		types.ProviderPaystack: external.NewPaystackGateway(httpClient, external.PaystackConfig{
			SecretKey: cfg.Billing.PaystackSecretKey,
			Logger:    logger,
		}),
		types.ProviderFlutterwave: external.NewFlutterwaveGateway(httpClient, external.FlutterwaveConfig{
			SecretKey: cfg.Billing.FlutterwaveSecretKey,
			Logger:    logger,
		}),
	}

	sweep := billing.NewSweep(subRepo, ledger, gateways, cfg.Sweep, cfg.Billing.ChargeTimeout, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sweep.Interval <= 0 {
		_, err := sweep.Run(ctx)
		return err
	}
	return runLoop(ctx, sweep, cfg.Sweep.Interval, logger)
}

// runLoop executes one sweep immediately, then one per interval tick, until
// the context is cancelled by a shutdown signal.
func runLoop(ctx context.Context, sweep *billing.Sweep, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := sweep.Run(ctx); err != nil {
			logger.Error("sweep run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, stopping sweep loop")
			return nil
		case <-ticker.C:
		}
	}
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
