// Package main is a small operator tool that prints the payment ledger rows
// recorded for a provider transaction reference. The webhook dedup window is
// short-lived; when a processor dashboard and the platform disagree about a
// charge, the append-only ledger is the record to consult.
//
// Usage:
//
//	reconcile -provider paystack -reference paystack-6f1c...
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tillpoint/internal/config"
	"tillpoint/internal/db"
	"tillpoint/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	providerFlag := flag.String("provider", "", "payment provider (paystack or flutterwave)")
	reference := flag.String("reference", "", "provider transaction reference")
	flag.Parse()

	provider := types.PaymentProvider(*providerFlag)
	if !types.IsKnownProvider(provider) {
		return fmt.Errorf("unknown provider %q", *providerFlag)
	}
	if *reference == "" {
		return fmt.Errorf("reference is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	payments, err := db.NewPaymentRepo(pool, logger).ListByReference(ctx, provider, *reference)
	if err != nil {
		return fmt.Errorf("querying ledger: %w", err)
	}
	if len(payments) == 0 {
		fmt.Printf("no ledger rows for %s reference %s\n", provider, *reference)
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, p := range payments {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}
