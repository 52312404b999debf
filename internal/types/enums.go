package types

// SubscriptionStatus is the lifecycle state of a tenant subscription.
type SubscriptionStatus string

const (
	SubStatusTrial    SubscriptionStatus = "TRIAL"
	SubStatusActive   SubscriptionStatus = "ACTIVE"
	SubStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubStatusCanceled SubscriptionStatus = "CANCELED"
)

// PaymentProvider identifies a payment processor integration.
type PaymentProvider string

const (
	ProviderPaystack    PaymentProvider = "paystack"
	ProviderFlutterwave PaymentProvider = "flutterwave"
)

// KnownProviders lists every processor the platform accepts webhooks from
// and can charge through.
var KnownProviders = []PaymentProvider{ProviderPaystack, ProviderFlutterwave}

// IsKnownProvider reports whether p is a supported payment processor.
func IsKnownProvider(p PaymentProvider) bool {
	for _, known := range KnownProviders {
		if p == known {
			return true
		}
	}
	return false
}

// PaymentType distinguishes the one-time signup fee from recurring charges.
type PaymentType string

const (
	PaymentTypeUpfrontFee PaymentType = "upfront_fee"
	PaymentTypeRecurring  PaymentType = "recurring"
)

// PaymentStatus is the outcome recorded for a single charge attempt.
// Payment rows are append-only; the status never changes after insert.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// AutopayStatus tracks the most recent state of a subscription's stored
// payment credential. "charging" is the in-flight claim marker set by the
// billing sweep before it calls the gateway, so an overlapping sweep run
// cannot charge the same subscription twice.
type AutopayStatus string

const (
	AutopayConfigured AutopayStatus = "configured"
	AutopayCharging   AutopayStatus = "charging"
	AutopayCharged    AutopayStatus = "charged"
	AutopayFailed     AutopayStatus = "failed"
)

// PlanTier is the coarse product tier a plan code belongs to.
type PlanTier string

const (
	TierBasic    PlanTier = "basic"
	TierStandard PlanTier = "standard"
	TierPremium  PlanTier = "premium"
)
