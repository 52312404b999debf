// Package billing holds the subscription state machine: the ledger that
// applies charge outcomes, the sweep that charges due subscriptions, and the
// lock manager that flips tenant access.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tillpoint/internal/config"
	"tillpoint/internal/external"
	"tillpoint/internal/types"
	"tillpoint/internal/webhooks"
)

// SubscriptionStore is the subscription persistence the ledger needs.
// Implemented by db.SubscriptionRepo.
type SubscriptionStore interface {
	GetForOrgPlan(ctx context.Context, orgID, planCode string) (*types.Subscription, error)
	GetByCustomerRef(ctx context.Context, provider types.PaymentProvider, customerRef string) (*types.Subscription, error)
	ApplyTransition(ctx context.Context, subID string, status types.SubscriptionStatus, autopayStatus types.AutopayStatus, nextBillingDate *time.Time, now time.Time) error
}

// PaymentStore appends charge-attempt rows. Implemented by db.PaymentRepo.
type PaymentStore interface {
	Insert(ctx context.Context, p *types.SubscriptionPayment) error
}

// OrganizationLocker flips tenant access on billing transitions.
// Implemented by LockManager.
type OrganizationLocker interface {
	Lock(ctx context.Context, orgID string, until time.Time) error
	Unlock(ctx context.Context, orgID string) error
}

// Ledger applies charge outcomes to subscriptions. It is the only component
// that transitions subscription status, and every transition it makes writes
// exactly one SubscriptionPayment row.
type Ledger struct {
	subs     SubscriptionStore
	payments PaymentStore
	orgs     OrganizationLocker
	clock    types.Clock
	logger   *slog.Logger

	billingPeriod time.Duration
	pastDueGrace  time.Duration
}

// NewLedger creates a Ledger. A nil clock falls back to real time and a nil
// logger to slog.Default().
func NewLedger(
	subs SubscriptionStore,
	payments PaymentStore,
	orgs OrganizationLocker,
	cfg config.BillingConfig,
	clock types.Clock,
	logger *slog.Logger,
) *Ledger {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		subs:          subs,
		payments:      payments,
		orgs:          orgs,
		clock:         clock,
		logger:        logger,
		billingPeriod: cfg.BillingPeriod,
		pastDueGrace:  cfg.PastDueGrace,
	}
}

// chargeOutcome is the provider-agnostic view of one settled charge attempt,
// whether it arrived as a webhook event or came back from a gateway call.
type chargeOutcome struct {
	success     bool
	reference   string
	amount      int64
	currency    string
	paymentType types.PaymentType
	message     string
	metadata    map[string]any
}

// ApplyChargeResult applies a sweep-initiated gateway result to the
// subscription: success confirms or keeps ACTIVE and advances the billing
// date, failure moves to PAST_DUE and locks the organization for the grace
// window.
func (l *Ledger) ApplyChargeResult(ctx context.Context, sub *types.Subscription, res *external.ChargeResult) error {
	return l.apply(ctx, sub, chargeOutcome{
		success:     res.Success,
		reference:   res.Reference,
		amount:      sub.MonthlyAmount,
		currency:    sub.MonthlyCurrency,
		paymentType: types.PaymentTypeRecurring,
		message:     res.Message,
	})
}

// ApplyPaymentEvent applies a verified, deduplicated webhook event. It
// resolves the subscription from the event's identifiers, using the stored
// customer reference when the metadata bag was stripped in transit.
//
// An upfront-fee event only appends a ledger row; the trial keeps running
// and no lock state changes. Recurring events go through the same transition
// logic as sweep charges.
func (l *Ledger) ApplyPaymentEvent(ctx context.Context, provider types.PaymentProvider, evt *webhooks.NormalizedEvent) error {
	sub, err := l.resolveSubscription(ctx, provider, evt)
	if err != nil {
		return err
	}

	currency := evt.Currency
	if currency == "" {
		currency = sub.MonthlyCurrency
	}
	amount := evt.Amount
	if amount == 0 && !evt.UpfrontFee {
		amount = sub.MonthlyAmount
	}

	if evt.UpfrontFee {
		now := l.clock.Now()
		status := types.PaymentCompleted
		if !evt.Success {
			status = types.PaymentFailed
		}
		return l.recordPayment(ctx, sub, chargeOutcome{
			success:     evt.Success,
			reference:   evt.TxID,
			amount:      amount,
			currency:    currency,
			paymentType: types.PaymentTypeUpfrontFee,
			message:     evt.Status,
			metadata:    eventMetadata(evt),
		}, status, now)
	}

	return l.apply(ctx, sub, chargeOutcome{
		success:     evt.Success,
		reference:   evt.TxID,
		amount:      amount,
		currency:    currency,
		paymentType: types.PaymentTypeRecurring,
		message:     evt.Status,
		metadata:    eventMetadata(evt),
	})
}

func eventMetadata(evt *webhooks.NormalizedEvent) map[string]any {
	return map[string]any{
		"event_id":   evt.EventID,
		"event_type": evt.EventType,
	}
}

func (l *Ledger) resolveSubscription(ctx context.Context, provider types.PaymentProvider, evt *webhooks.NormalizedEvent) (*types.Subscription, error) {
	if evt.OrgID != "" && evt.PlanCode != "" {
		return l.subs.GetForOrgPlan(ctx, evt.OrgID, evt.PlanCode)
	}
	if evt.CustomerRef != "" {
		return l.subs.GetByCustomerRef(ctx, provider, evt.CustomerRef)
	}
	return nil, types.NewAppError(types.ErrCodeValidationMissingIdentifiers,
		"event carries neither org/plan metadata nor a customer reference", nil)
}

func (l *Ledger) apply(ctx context.Context, sub *types.Subscription, out chargeOutcome) error {
	now := l.clock.Now()

	if sub.Status == types.SubStatusCanceled {
		l.logger.WarnContext(ctx, "charge outcome for canceled subscription ignored",
			"subscription_id", sub.ID,
			"reference", out.reference,
		)
		return nil
	}

	if out.success {
		return l.applySuccess(ctx, sub, out, now)
	}
	return l.applyFailure(ctx, sub, out, now)
}

func (l *Ledger) applySuccess(ctx context.Context, sub *types.Subscription, out chargeOutcome, now time.Time) error {
	// The billing date advances from the later of the prior date and now,
	// so a late charge never schedules the next one in the past and an
	// early charge never shortens the cycle.
	base := now
	if sub.Status == types.SubStatusActive && sub.NextBillingDate != nil && sub.NextBillingDate.After(now) {
		base = *sub.NextBillingDate
	}
	next := base.Add(l.billingPeriod)

	if err := l.subs.ApplyTransition(ctx, sub.ID, types.SubStatusActive, types.AutopayCharged, &next, now); err != nil {
		return err
	}
	if err := l.recordPayment(ctx, sub, out, types.PaymentCompleted, now); err != nil {
		return err
	}
	if err := l.orgs.Unlock(ctx, sub.OrgID); err != nil {
		return fmt.Errorf("unlocking org %s after successful charge: %w", sub.OrgID, err)
	}

	l.logger.InfoContext(ctx, "charge applied",
		"subscription_id", sub.ID,
		"org_id", sub.OrgID,
		"from_status", sub.Status,
		"to_status", types.SubStatusActive,
		"next_billing_date", next,
		"reference", out.reference,
	)
	return nil
}

func (l *Ledger) applyFailure(ctx context.Context, sub *types.Subscription, out chargeOutcome, now time.Time) error {
	if err := l.subs.ApplyTransition(ctx, sub.ID, types.SubStatusPastDue, types.AutopayFailed, nil, now); err != nil {
		return err
	}
	if err := l.recordPayment(ctx, sub, out, types.PaymentFailed, now); err != nil {
		return err
	}

	until := now.Add(l.pastDueGrace)
	if err := l.orgs.Lock(ctx, sub.OrgID, until); err != nil {
		return fmt.Errorf("locking org %s after failed charge: %w", sub.OrgID, err)
	}

	l.logger.WarnContext(ctx, "charge failed, subscription past due",
		"subscription_id", sub.ID,
		"org_id", sub.OrgID,
		"from_status", sub.Status,
		"locked_until", until,
		"reference", out.reference,
		"message", out.message,
	)
	return nil
}

func (l *Ledger) recordPayment(ctx context.Context, sub *types.Subscription, out chargeOutcome, status types.PaymentStatus, now time.Time) error {
	metadata := out.metadata
	if out.message != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["message"] = out.message
	}
	return l.payments.Insert(ctx, &types.SubscriptionPayment{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		OrgID:          sub.OrgID,
		Reference:      out.reference,
		Amount:         out.amount,
		Currency:       out.currency,
		PaymentType:    out.paymentType,
		Status:         status,
		Provider:       sub.Provider,
		Metadata:       metadata,
		CreatedAt:      now,
	})
}
