package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"tillpoint/internal/types"
)

// subscriptionColumns is the column list scanned into types.Subscription.
const subscriptionColumns = `
	id, org_id, user_id, provider,
	plan_code, tier, monthly_amount, monthly_currency,
	upfront_fee_paid, upfront_fee_currency,
	status, trial_start_date, trial_end_date, next_billing_date,
	autopay_enabled, autopay_provider, autopay_reference,
	autopay_last_status, autopay_configured_at,
	customer_ref, billing_email,
	created_at, updated_at`

// SubscriptionRepo is the pgx-backed subscription store used by the ledger
// and the billing sweep.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given pool or
// transaction.
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(
		&s.ID, &s.OrgID, &s.UserID, &s.Provider,
		&s.PlanCode, &s.Tier, &s.MonthlyAmount, &s.MonthlyCurrency,
		&s.UpfrontFeePaid, &s.UpfrontFeeCurrency,
		&s.Status, &s.TrialStartDate, &s.TrialEndDate, &s.NextBillingDate,
		&s.AutopayEnabled, &s.AutopayProvider, &s.AutopayReference,
		&s.AutopayLastStatus, &s.AutopayConfiguredAt,
		&s.CustomerRef, &s.BillingEmail,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetForOrgPlan returns the organization's current (non-canceled)
// subscription for a plan code. Used by the webhook path to locate the
// subscription a payment event confirms.
func (r *SubscriptionRepo) GetForOrgPlan(ctx context.Context, orgID, planCode string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE org_id = $1 AND plan_code = $2 AND status <> $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		orgID, planCode, types.SubStatusCanceled,
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("no subscription for org %s plan %s", orgID, planCode), err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription", err)
	}
	return sub, nil
}

// GetByCustomerRef returns the newest non-canceled subscription whose stored
// processor customer reference matches. This is the webhook fallback when an
// event's metadata bag carries no org identifiers.
func (r *SubscriptionRepo) GetByCustomerRef(ctx context.Context, provider types.PaymentProvider, customerRef string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE provider = $1 AND customer_ref = $2 AND status <> $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		provider, customerRef, types.SubStatusCanceled,
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("no %s subscription for customer ref %s", provider, customerRef), err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription by customer ref", err)
	}
	return sub, nil
}

// ListDue returns subscriptions the billing sweep should evaluate:
// TRIAL rows past their trial end, and ACTIVE rows past their billing date.
// PAST_DUE rows are deliberately excluded; their recovery path is a manual
// reconciliation flow, not the sweep.
func (r *SubscriptionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE (status = $1 AND trial_end_date <= $3)
		    OR (status = $2 AND next_billing_date IS NOT NULL AND next_billing_date <= $3)
		 ORDER BY COALESCE(next_billing_date, trial_end_date)
		 LIMIT $4`,
		types.SubStatusTrial, types.SubStatusActive, now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due subscriptions", err)
	}
	defer rows.Close()

	var subs []*types.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription row", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed iterating due subscriptions", err)
	}
	return subs, nil
}

// claimLease bounds how long a 'charging' marker blocks re-claiming. A worker
// that crashes after Claim never clears the marker; once the lease passes the
// row becomes claimable again instead of staying stuck. Must comfortably
// exceed ChargeTimeout so an in-flight charge is never claimed twice.
const claimLease = 15 * time.Minute

// Claim marks a due subscription as in-flight before charging it. The
// conditional UPDATE re-checks the due predicate and the not-already-charging
// guard in one statement, so of two overlapping sweep runs exactly one wins
// the row; the loser sees claimed=false and skips it. A stale 'charging'
// marker older than claimLease no longer blocks the claim.
func (r *SubscriptionRepo) Claim(ctx context.Context, subID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET autopay_last_status = $1, updated_at = $2
		 WHERE id = $3
		   AND (autopay_last_status <> $1 OR updated_at < $6)
		   AND ((status = $4 AND trial_end_date <= $2)
		     OR (status = $5 AND next_billing_date IS NOT NULL AND next_billing_date <= $2))`,
		types.AutopayCharging, now, subID,
		types.SubStatusTrial, types.SubStatusActive,
		now.Add(-claimLease),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim subscription", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyTransition persists the outcome of a charge attempt: new status,
// autopay state, and (on success) the advanced billing date.
func (r *SubscriptionRepo) ApplyTransition(
	ctx context.Context,
	subID string,
	status types.SubscriptionStatus,
	autopayStatus types.AutopayStatus,
	nextBillingDate *time.Time,
	now time.Time,
) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     autopay_last_status = $2,
		     next_billing_date = COALESCE($3, next_billing_date),
		     updated_at = $4
		 WHERE id = $5`,
		status, autopayStatus, nextBillingDate, now, subID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply subscription transition", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("subscription %s not found for transition", subID), nil)
	}

	r.logger.InfoContext(ctx, "subscription transition applied",
		"subscription_id", subID,
		"status", status,
		"autopay_status", autopayStatus,
	)
	return nil
}
