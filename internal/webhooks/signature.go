package webhooks

import (
	"crypto/hmac"
	"encoding/hex"
	"fmt"

	"tillpoint/internal/types"
)

// SecretSource resolves the webhook signing secret for a provider.
// config.BillingConfig satisfies this.
type SecretSource interface {
	WebhookSecret(p types.PaymentProvider) types.SecretString
}

// Verifier validates inbound webhook authenticity against per-provider
// signing secrets.
type Verifier struct {
	secrets SecretSource
}

// NewVerifier creates a Verifier backed by the given secret source.
func NewVerifier(secrets SecretSource) *Verifier {
	return &Verifier{secrets: secrets}
}

// Verify checks the hex-encoded HMAC in signatureHeader against the exact
// raw request bytes. The raw bytes matter: re-serializing the parsed body can
// change whitespace or key ordering and invalidate the signature, so this
// runs before any JSON parsing.
//
// The comparison is constant-time; the signature is a bearer-token-equivalent
// credential and must not leak match length through timing.
func (v *Verifier) Verify(provider types.PaymentProvider, rawBody []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return types.NewAppError(
			types.ErrCodeAuthSignatureMissing,
			"missing webhook signature header",
			nil,
		)
	}

	profile := ProfileFor(provider)
	if profile == nil {
		return types.NewAppError(
			types.ErrCodeValidationUnknownProvider,
			fmt.Sprintf("no webhook profile for provider %q", provider),
			nil,
		)
	}

	secret := v.secrets.WebhookSecret(provider)
	if secret.Unmask() == "" {
		return types.NewAppError(
			types.ErrCodeAuthSignatureInvalid,
			fmt.Sprintf("no webhook secret configured for provider %q", provider),
			nil,
		)
	}

	mac := hmac.New(profile.NewDigest, []byte(secret.Unmask()))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return types.NewAppError(
			types.ErrCodeAuthSignatureInvalid,
			"webhook signature verification failed",
			nil,
		)
	}

	return nil
}

// Sign computes the signature header value for a payload. Used by tests and
// by the webhook replay tooling; the inverse of Verify.
func Sign(provider types.PaymentProvider, secret types.SecretString, rawBody []byte) (string, error) {
	profile := ProfileFor(provider)
	if profile == nil {
		return "", fmt.Errorf("no webhook profile for provider %q", provider)
	}
	mac := hmac.New(profile.NewDigest, []byte(secret.Unmask()))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
