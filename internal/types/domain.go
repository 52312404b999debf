// Package types defines the shared domain model for the TillPoint billing
// core: subscriptions, the append-only payment ledger, and the organization
// lock surface, along with the error taxonomy and request-scoped context
// helpers used across packages.
package types

import "time"

// Subscription is a tenant organization's billing subscription.
//
// TrialEndDate and NextBillingDate are mutually exclusive drivers: a TRIAL
// subscription is evaluated against TrialEndDate, an ACTIVE one against
// NextBillingDate. NextBillingDate stays nil until the first successful
// charge.
type Subscription struct {
	ID       string
	OrgID    string
	UserID   string
	Provider PaymentProvider

	PlanCode           string
	Tier               PlanTier
	MonthlyAmount      int64 // minor units (kobo, cents)
	MonthlyCurrency    string
	UpfrontFeePaid     int64
	UpfrontFeeCurrency string

	Status          SubscriptionStatus
	TrialStartDate  time.Time
	TrialEndDate    time.Time
	NextBillingDate *time.Time

	AutopayEnabled      bool
	AutopayProvider     PaymentProvider
	AutopayReference    string // opaque stored credential: authorization code or card token
	AutopayLastStatus   AutopayStatus
	AutopayConfiguredAt *time.Time

	// CustomerRef is the processor's customer reference captured at signup.
	// It is the fallback identifier for webhook events whose metadata bag
	// was stripped in transit.
	CustomerRef string

	// BillingEmail is sent with off-session charges; processors require an
	// email on charge calls.
	BillingEmail string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Due reports whether the subscription should be picked up by the billing
// sweep at the given instant.
func (s *Subscription) Due(now time.Time) bool {
	switch s.Status {
	case SubStatusTrial:
		return !s.TrialEndDate.After(now)
	case SubStatusActive:
		return s.NextBillingDate != nil && !s.NextBillingDate.After(now)
	default:
		return false
	}
}

// SubscriptionPayment is one row of the append-only charge audit trail.
// Exactly one row is written per charge attempt, successful or failed, and
// it is never updated afterwards. The Reference column (provider transaction
// id) is the durable reconciliation key that outlives the short-lived
// webhook dedup window.
type SubscriptionPayment struct {
	ID             string
	SubscriptionID string
	OrgID          string
	Reference      string
	Amount         int64
	Currency       string
	PaymentType    PaymentType
	Status         PaymentStatus
	Provider       PaymentProvider
	Metadata       map[string]any
	CreatedAt      time.Time
}

// Organization is the tenant lock surface. IsActive and LockedUntil are
// flipped only by ledger transitions through the lock manager; request
// handlers never touch them directly.
//
// Locked state is IsActive=false with a populated LockedUntil; unlocked is
// IsActive=true with LockedUntil=nil.
type Organization struct {
	ID          string
	Name        string
	IsActive    bool
	LockedUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
