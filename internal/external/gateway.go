package external

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tillpoint/internal/types"
)

// ChargeRequest describes one off-session charge against a stored credential.
type ChargeRequest struct {
	// Credential is the opaque stored autopay reference: a Paystack
	// authorization code or a Flutterwave card token.
	Credential string
	// Email is the customer email the processors require on charge calls.
	Email string
	// Amount in minor units; converted per processor convention on the wire.
	Amount   int64
	Currency string
	// Reference is the merchant-generated transaction reference. Reusing a
	// reference makes a retried submit idempotent on the processor side.
	Reference string
	Metadata  map[string]string
}

// ChargeResult is the normalized outcome of a charge attempt. A declined
// charge is a successful call with Success=false; only transport/availability
// problems surface as errors from the gateway.
type ChargeResult struct {
	Success   bool
	Reference string
	Message   string
	Raw       map[string]any
}

// PaymentGateway performs off-session charges for one processor.
type PaymentGateway interface {
	ChargeStoredCredential(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// GenerateReference produces a merchant transaction reference for initiating
// a charge. Provider-prefixed so references are traceable to a processor in
// logs and reconciliation exports.
func GenerateReference(provider types.PaymentProvider) string {
	return fmt.Sprintf("%s-%s", provider, uuid.New().String())
}
