// Package webhooks implements the inbound side of the payment-provider
// integration: per-provider wire profiles, HMAC signature verification over
// the raw request bytes, event timestamp freshness checking, and translation
// of provider envelopes into the normalized event the ledger consumes.
package webhooks

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"tillpoint/internal/types"
)

// Profile describes how one provider delivers webhooks: which headers carry
// the signature, event timestamp, and delivery id, which digest its HMAC
// uses, and which event types the platform processes.
//
// Header lookups go through http.Header, which canonicalizes names, so the
// casing here is documentation only.
type Profile struct {
	Provider         types.PaymentProvider
	SignatureHeader  string
	TimestampHeader  string
	DeliveryIDHeader string
	// NewDigest returns the hash constructor for this provider's HMAC.
	NewDigest func() hash.Hash
	// SupportedEvents is the allow-list of event types; anything else is
	// rejected without mutating state.
	SupportedEvents map[string]struct{}
}

// Supports reports whether the profile accepts the given event type.
func (p *Profile) Supports(eventType string) bool {
	_, ok := p.SupportedEvents[eventType]
	return ok
}

var profiles = map[types.PaymentProvider]*Profile{
	types.ProviderPaystack: {
		Provider:         types.ProviderPaystack,
		SignatureHeader:  "X-Paystack-Signature",
		TimestampHeader:  "X-Paystack-Timestamp",
		DeliveryIDHeader: "X-Paystack-Event-Id",
		NewDigest:        sha512.New,
		SupportedEvents: map[string]struct{}{
			"charge.success": {},
		},
	},
	types.ProviderFlutterwave: {
		Provider:         types.ProviderFlutterwave,
		SignatureHeader:  "X-Flw-Signature",
		TimestampHeader:  "X-Flw-Timestamp",
		DeliveryIDHeader: "X-Flw-Event-Id",
		NewDigest:        sha256.New,
		SupportedEvents: map[string]struct{}{
			"charge.completed": {},
		},
	},
}

// ProfileFor returns the wire profile for a provider, or nil if the provider
// is not integrated.
func ProfileFor(provider types.PaymentProvider) *Profile {
	return profiles[provider]
}
