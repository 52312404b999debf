// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in due-date arithmetic.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Process envconfig struct tags to populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the TillPoint configuration from the environment.
// A .env file in the working directory seeds missing variables but never
// overrides ones already set.
func Load() (*Config, error) {
	// Enforce UTC. Trial/billing due dates are stored and compared in UTC;
	// a process-local timezone would shift the sweep's selection boundary.
	time.Local = time.UTC

	// godotenv silently succeeds if no .env file exists.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment variables",
			Err:     err,
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig runs struct-tag validation plus the cross-field checks that
// tags cannot express.
func validateConfig(cfg *Config) error {
	v := validator.New()

	// SecretString masks its value; validate the unmasked content.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if s, ok := field.Interface().(SecretString); ok {
			return s.Unmask()
		}
		return nil
	}, SecretString(""))

	if err := v.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if cfg.Webhook.IdempotencyTTL <= 0 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "WEBHOOK_IDEMPOTENCY_TTL must be positive",
		}
	}
	if cfg.Webhook.SkewWindow <= 0 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "WEBHOOK_SKEW_WINDOW must be positive",
		}
	}
	if cfg.Sweep.Concurrency < 1 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "SWEEP_CONCURRENCY must be at least 1",
		}
	}

	return nil
}
