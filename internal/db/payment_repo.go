package db

import (
	"context"
	"log/slog"

	"tillpoint/internal/types"
)

// PaymentRepo is the append-only subscription_payments ledger. Rows are
// inserted once per charge attempt and never updated; there is deliberately
// no Update method on this type.
type PaymentRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewPaymentRepo creates a PaymentRepo backed by the given pool or
// transaction.
func NewPaymentRepo(db DBTX, logger *slog.Logger) *PaymentRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentRepo{db: db, logger: logger}
}

// Insert appends one charge-attempt row.
func (r *PaymentRepo) Insert(ctx context.Context, p *types.SubscriptionPayment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscription_payments
		   (id, subscription_id, org_id, reference, amount, currency,
		    payment_type, status, provider, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.SubscriptionID, p.OrgID, p.Reference, p.Amount, p.Currency,
		p.PaymentType, p.Status, p.Provider, p.Metadata, p.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert payment row", err)
	}

	r.logger.InfoContext(ctx, "payment recorded",
		"payment_id", p.ID,
		"subscription_id", p.SubscriptionID,
		"reference", p.Reference,
		"status", p.Status,
		"payment_type", p.PaymentType,
	)
	return nil
}

// ListByReference returns ledger rows for a provider transaction reference.
// Used by reconciliation once the short-lived webhook dedup window has
// passed: the ledger, not the dedup cache, is the permanent record.
func (r *PaymentRepo) ListByReference(ctx context.Context, provider types.PaymentProvider, reference string) ([]*types.SubscriptionPayment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, subscription_id, org_id, reference, amount, currency,
		        payment_type, status, provider, metadata, created_at
		 FROM subscription_payments
		 WHERE provider = $1 AND reference = $2
		 ORDER BY created_at`,
		provider, reference,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query payments by reference", err)
	}
	defer rows.Close()

	var payments []*types.SubscriptionPayment
	for rows.Next() {
		var p types.SubscriptionPayment
		if err := rows.Scan(
			&p.ID, &p.SubscriptionID, &p.OrgID, &p.Reference, &p.Amount, &p.Currency,
			&p.PaymentType, &p.Status, &p.Provider, &p.Metadata, &p.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payment row", err)
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed iterating payment rows", err)
	}
	return payments, nil
}
