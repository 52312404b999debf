// Package config defines the configuration surface for the TillPoint billing
// core. Configuration is loaded once at process startup and is immutable
// thereafter, following 12-Factor principles: values come from the OS
// environment, optionally seeded by a local .env file.
//
// Any missing required value or invalid format fails the load immediately
// (fail fast).
package config

import (
	"time"

	"tillpoint/internal/types"
)

// SecretString aliases types.SecretString, the redacted secret type used for
// webhook secrets and gateway API keys so they never leak into logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tillpoint-billing"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Billing  BillingConfig
	Webhook  WebhookConfig
	Sweep    SweepConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// BillingConfig holds payment gateway credentials and the billing cycle
// parameters applied by ledger transitions.
type BillingConfig struct {
	PaystackSecretKey        SecretString `envconfig:"PAYSTACK_SECRET_KEY" validate:"required"`
	PaystackWebhookSecret    SecretString `envconfig:"PAYSTACK_WEBHOOK_SECRET" validate:"required"`
	FlutterwaveSecretKey     SecretString `envconfig:"FLUTTERWAVE_SECRET_KEY" validate:"required"`
	FlutterwaveWebhookSecret SecretString `envconfig:"FLUTTERWAVE_WEBHOOK_SECRET" validate:"required"`

	// BillingPeriod is the length of one billing cycle.
	BillingPeriod time.Duration `envconfig:"BILLING_PERIOD" default:"720h"`
	// PastDueGrace is how long an organization stays locked after a failed
	// charge before the lock deadline passes.
	PastDueGrace time.Duration `envconfig:"PAST_DUE_GRACE" default:"168h"`
	// ChargeTimeout bounds a single off-session charge call. A timeout is
	// treated as a failed attempt, not left pending.
	ChargeTimeout time.Duration `envconfig:"CHARGE_TIMEOUT" default:"20s"`
}

// WebhookConfig holds inbound webhook validation settings.
type WebhookConfig struct {
	// IdempotencyTTL bounds the replay-dedup window. A redelivery after the
	// TTL is reprocessed; the payment ledger remains the permanent audit
	// trail.
	IdempotencyTTL time.Duration `envconfig:"WEBHOOK_IDEMPOTENCY_TTL" default:"24h"`
	// SkewWindow is the allowed clock drift for the event timestamp header,
	// applied symmetrically in both directions.
	SkewWindow time.Duration `envconfig:"WEBHOOK_SKEW_WINDOW" default:"5m"`
}

// SweepConfig tunes the periodic billing sweep.
type SweepConfig struct {
	BatchSize   int           `envconfig:"SWEEP_BATCH_SIZE" default:"200"`
	Concurrency int           `envconfig:"SWEEP_CONCURRENCY" default:"4"`
	// Interval enables loop mode in cmd/billing-sweep; zero means run once
	// and exit (cron-driven deployment).
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"0"`
}

// WebhookSecret returns the webhook signing secret for the given provider.
// Returns the empty secret for unknown providers; the verifier rejects those
// before any comparison.
func (c BillingConfig) WebhookSecret(p types.PaymentProvider) SecretString {
	switch p {
	case types.ProviderPaystack:
		return c.PaystackWebhookSecret
	case types.ProviderFlutterwave:
		return c.FlutterwaveWebhookSecret
	default:
		return ""
	}
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was absent.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment variable values
	// into their declared Go types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
