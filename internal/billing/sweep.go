package billing

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tillpoint/internal/config"
	"tillpoint/internal/external"
	"tillpoint/internal/types"
)

// SweepStore is the subscription selection and claim surface the sweep
// needs. Implemented by db.SubscriptionRepo.
type SweepStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*types.Subscription, error)
	Claim(ctx context.Context, subID string, now time.Time) (bool, error)
}

// ChargeApplier records the outcome of a sweep charge. Implemented by Ledger.
type ChargeApplier interface {
	ApplyChargeResult(ctx context.Context, sub *types.Subscription, res *external.ChargeResult) error
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	// Selected is how many due subscriptions the batch picked up.
	Selected int
	// Charged counts successful charges applied to the ledger.
	Charged int
	// Failed counts declined charges, gateway errors, and items whose
	// outcome could not be recorded.
	Failed int
	// Skipped counts rows another sweep run claimed first.
	Skipped int
}

// Sweep charges due subscriptions against their stored autopay credential.
// Each row is claimed with a conditional update before the gateway call, so
// overlapping runs never charge the same subscription twice.
type Sweep struct {
	store    SweepStore
	ledger   ChargeApplier
	gateways map[types.PaymentProvider]external.PaymentGateway
	clock    types.Clock
	logger   *slog.Logger

	batchSize     int
	concurrency   int
	chargeTimeout time.Duration
}

// NewSweep creates a Sweep. A nil clock falls back to real time and a nil
// logger to slog.Default().
func NewSweep(
	store SweepStore,
	ledger ChargeApplier,
	gateways map[types.PaymentProvider]external.PaymentGateway,
	cfg config.SweepConfig,
	chargeTimeout time.Duration,
	clock types.Clock,
	logger *slog.Logger,
) *Sweep {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweep{
		store:         store,
		ledger:        ledger,
		gateways:      gateways,
		clock:         clock,
		logger:        logger,
		batchSize:     cfg.BatchSize,
		concurrency:   cfg.Concurrency,
		chargeTimeout: chargeTimeout,
	}
}

type itemOutcome int

const (
	itemCharged itemOutcome = iota
	itemFailed
	itemSkipped
)

// Run selects one batch of due subscriptions and charges them with bounded
// concurrency. A failed or panicking item never aborts the rest of the
// batch; the only error Run returns is a failure to select the batch.
func (s *Sweep) Run(ctx context.Context) (SweepReport, error) {
	now := s.clock.Now()

	subs, err := s.store.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return SweepReport{}, err
	}

	var charged, failed, skipped atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			switch s.processOne(ctx, sub, now) {
			case itemCharged:
				charged.Add(1)
			case itemFailed:
				failed.Add(1)
			case itemSkipped:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := SweepReport{
		Selected: len(subs),
		Charged:  int(charged.Load()),
		Failed:   int(failed.Load()),
		Skipped:  int(skipped.Load()),
	}
	s.logger.InfoContext(ctx, "billing sweep finished",
		"selected", report.Selected,
		"charged", report.Charged,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

func (s *Sweep) processOne(ctx context.Context, sub *types.Subscription, now time.Time) (out itemOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "sweep item panicked",
				"subscription_id", sub.ID,
				"panic", r,
			)
			out = itemFailed
		}
	}()

	claimed, err := s.store.Claim(ctx, sub.ID, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to claim subscription",
			"subscription_id", sub.ID,
			"error", err,
		)
		return itemFailed
	}
	if !claimed {
		s.logger.DebugContext(ctx, "subscription claimed elsewhere, skipping",
			"subscription_id", sub.ID,
		)
		return itemSkipped
	}

	res := s.charge(ctx, sub)
	if err := s.ledger.ApplyChargeResult(ctx, sub, res); err != nil {
		s.logger.ErrorContext(ctx, "failed to record charge outcome",
			"subscription_id", sub.ID,
			"reference", res.Reference,
			"error", err,
		)
		return itemFailed
	}
	if res.Success {
		return itemCharged
	}
	return itemFailed
}

// charge calls the subscription's gateway with a per-charge timeout. All
// failure modes, including a missing credential and a timed-out call, come
// back as an unsuccessful ChargeResult so the ledger records them uniformly.
func (s *Sweep) charge(ctx context.Context, sub *types.Subscription) *external.ChargeResult {
	provider := sub.AutopayProvider
	if provider == "" {
		provider = sub.Provider
	}
	ref := external.GenerateReference(provider)

	if !sub.AutopayEnabled || sub.AutopayReference == "" {
		return &external.ChargeResult{
			Success:   false,
			Reference: ref,
			Message:   "no stored payment credential",
		}
	}
	gw, ok := s.gateways[provider]
	if !ok {
		return &external.ChargeResult{
			Success:   false,
			Reference: ref,
			Message:   "no gateway configured for provider " + string(provider),
		}
	}

	cctx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	res, err := gw.ChargeStoredCredential(cctx, external.ChargeRequest{
		Credential: sub.AutopayReference,
		Email:      sub.BillingEmail,
		Amount:     sub.MonthlyAmount,
		Currency:   sub.MonthlyCurrency,
		Reference:  ref,
		Metadata: map[string]string{
			"org_id":       sub.OrgID,
			"plan_code":    sub.PlanCode,
			"payment_type": string(types.PaymentTypeRecurring),
		},
	})
	if err != nil {
		return &external.ChargeResult{
			Success:   false,
			Reference: ref,
			Message:   err.Error(),
		}
	}
	return res
}
