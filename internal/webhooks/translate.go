package webhooks

import (
	"encoding/json"
	"fmt"
	"math"

	"tillpoint/internal/types"
)

// NormalizedEvent is the provider-agnostic record the ledger consumes. One
// NormalizedEvent corresponds to one real-world payment event regardless of
// how many times the provider delivers it.
type NormalizedEvent struct {
	// EventID is the provider's event identifier when the envelope carries
	// one; the gateway fills it from the delivery-id header otherwise.
	EventID string
	// TxID is the business transaction id (provider charge reference). It is
	// the preferred idempotency key component and the reference written to
	// the payment ledger.
	TxID      string
	EventType string
	// Success is the normalized charge outcome.
	Success bool
	// Status is the provider's raw status string, kept for payment metadata.
	Status string

	// Subscription identifiers. OrgID/PlanCode come from the metadata bag;
	// CustomerRef is the fallback identifier (provider customer code) used
	// to locate the subscription when metadata is absent.
	OrgID       string
	PlanCode    string
	CustomerRef string

	Amount   int64 // minor units
	Currency string

	// UpfrontFee marks a signup-fee charge; the payment row is typed
	// upfront_fee instead of recurring.
	UpfrontFee bool
}

// Translate maps a provider's raw event body into a NormalizedEvent.
//
// Only the profile's allow-listed event types are accepted; anything else
// returns ErrCodeValidationUnsupportedEvent without touching state. Events
// carrying neither metadata identifiers nor a customer reference return
// ErrCodeValidationMissingIdentifiers — the translator never guesses.
func Translate(provider types.PaymentProvider, body []byte) (*NormalizedEvent, error) {
	profile := ProfileFor(provider)
	if profile == nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationUnknownProvider,
			fmt.Sprintf("no webhook profile for provider %q", provider),
			nil,
		)
	}

	switch provider {
	case types.ProviderPaystack:
		return translatePaystack(profile, body)
	case types.ProviderFlutterwave:
		return translateFlutterwave(profile, body)
	default:
		return nil, types.NewAppError(
			types.ErrCodeValidationUnknownProvider,
			fmt.Sprintf("no translator for provider %q", provider),
			nil,
		)
	}
}

// eventMetadata is the metadata bag both providers let merchants attach to a
// charge. Set at charge initiation by the signup flow.
type eventMetadata struct {
	OrgID       string `json:"org_id"`
	PlanCode    string `json:"plan_code"`
	PaymentType string `json:"payment_type"`
}

// ---------------------------------------------------------------------------
// Paystack
// ---------------------------------------------------------------------------

// paystackEnvelope is the minimal shape of a Paystack webhook event. Amounts
// arrive in minor units (kobo).
type paystackEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number    `json:"id"`
		Reference string         `json:"reference"`
		Status    string         `json:"status"`
		Amount    int64          `json:"amount"`
		Currency  string         `json:"currency"`
		Metadata  *eventMetadata `json:"metadata"`
		Customer  struct {
			CustomerCode string `json:"customer_code"`
		} `json:"customer"`
	} `json:"data"`
}

func translatePaystack(profile *Profile, body []byte) (*NormalizedEvent, error) {
	var env paystackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"invalid paystack event JSON",
			err,
		)
	}

	if !profile.Supports(env.Event) {
		return nil, unsupportedEvent(types.ProviderPaystack, env.Event)
	}

	ev := &NormalizedEvent{
		TxID:        env.Data.Reference,
		EventType:   env.Event,
		Success:     env.Data.Status == "success",
		Status:      env.Data.Status,
		Amount:      env.Data.Amount,
		Currency:    env.Data.Currency,
		CustomerRef: env.Data.Customer.CustomerCode,
	}
	if env.Data.Metadata != nil {
		ev.OrgID = env.Data.Metadata.OrgID
		ev.PlanCode = env.Data.Metadata.PlanCode
		ev.UpfrontFee = env.Data.Metadata.PaymentType == string(types.PaymentTypeUpfrontFee)
	}

	return validated(ev)
}

// ---------------------------------------------------------------------------
// Flutterwave
// ---------------------------------------------------------------------------

// flutterwaveEnvelope is the minimal shape of a Flutterwave webhook event.
// Amounts arrive in major units and are converted to minor units here.
type flutterwaveEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		ID       json.Number `json:"id"`
		TxRef    string      `json:"tx_ref"`
		FlwRef   string      `json:"flw_ref"`
		Status   string      `json:"status"`
		Amount   float64     `json:"amount"`
		Currency string      `json:"currency"`
		Customer struct {
			ID    json.Number `json:"id"`
			Email string      `json:"email"`
		} `json:"customer"`
	} `json:"data"`
	Meta *eventMetadata `json:"meta_data"`
}

func translateFlutterwave(profile *Profile, body []byte) (*NormalizedEvent, error) {
	var env flutterwaveEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"invalid flutterwave event JSON",
			err,
		)
	}

	if !profile.Supports(env.Event) {
		return nil, unsupportedEvent(types.ProviderFlutterwave, env.Event)
	}

	ev := &NormalizedEvent{
		TxID:        env.Data.TxRef,
		EventType:   env.Event,
		Success:     env.Data.Status == "successful",
		Status:      env.Data.Status,
		Amount:      int64(math.Round(env.Data.Amount * 100)),
		Currency:    env.Data.Currency,
		CustomerRef: env.Data.Customer.ID.String(),
	}
	if env.Meta != nil {
		ev.OrgID = env.Meta.OrgID
		ev.PlanCode = env.Meta.PlanCode
		ev.UpfrontFee = env.Meta.PaymentType == string(types.PaymentTypeUpfrontFee)
	}

	return validated(ev)
}

// ---------------------------------------------------------------------------
// Shared validation
// ---------------------------------------------------------------------------

// validated enforces the identifier requirement: metadata org id, or a
// customer reference to fall back on.
func validated(ev *NormalizedEvent) (*NormalizedEvent, error) {
	if ev.OrgID == "" && ev.CustomerRef == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingIdentifiers,
			"event carries neither metadata identifiers nor a customer reference",
			nil,
		)
	}
	return ev, nil
}

func unsupportedEvent(provider types.PaymentProvider, eventType string) error {
	return types.NewAppError(
		types.ErrCodeValidationUnsupportedEvent,
		fmt.Sprintf("unsupported %s event type %q", provider, eventType),
		nil,
	)
}
