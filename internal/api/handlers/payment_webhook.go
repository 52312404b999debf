// Package handlers contains the HTTP handler implementations for the
// TillPoint billing API.
//
// The webhook routes are NOT behind auth middleware; the payment processors
// call them directly. Security is provided by verifying the provider
// signature over the raw request body.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tillpoint/internal/core"
	"tillpoint/internal/idempotency"
	"tillpoint/internal/types"
	"tillpoint/internal/webhooks"
)

// maxWebhookBodySize caps webhook payloads at 64 KB. Processor payloads are
// typically a few KB; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// SignatureVerifier checks a raw webhook body against its signature header.
// Implemented by webhooks.Verifier.
type SignatureVerifier interface {
	Verify(provider types.PaymentProvider, rawBody []byte, signatureHeader string) error
}

// PaymentEventApplier applies a verified, deduplicated payment event to the
// subscription ledger. Implemented by billing.Ledger.
type PaymentEventApplier interface {
	ApplyPaymentEvent(ctx context.Context, provider types.PaymentProvider, evt *webhooks.NormalizedEvent) error
}

// webhookAck is the acknowledgment body sent for every accepted delivery.
type webhookAck struct {
	Received   bool `json:"received"`
	Idempotent bool `json:"idempotent"`
}

// PaymentWebhookHandler ingests charge events from the payment processors.
type PaymentWebhookHandler struct {
	verifier SignatureVerifier
	guard    idempotency.Store
	ledger   PaymentEventApplier
	clock    types.Clock
	logger   *slog.Logger

	dedupTTL   time.Duration
	skewWindow time.Duration
}

// NewPaymentWebhookHandler creates a PaymentWebhookHandler. A nil clock
// falls back to real time and a nil logger to slog.Default().
func NewPaymentWebhookHandler(
	verifier SignatureVerifier,
	guard idempotency.Store,
	ledger PaymentEventApplier,
	dedupTTL time.Duration,
	skewWindow time.Duration,
	clock types.Clock,
	logger *slog.Logger,
) *PaymentWebhookHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentWebhookHandler{
		verifier:   verifier,
		guard:      guard,
		ledger:     ledger,
		clock:      clock,
		logger:     logger,
		dedupTTL:   dedupTTL,
		skewWindow: skewWindow,
	}
}

// RegisterRoutes mounts one endpoint per supported processor. These are
// public routes; see the package comment.
func (h *PaymentWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/paystack", h.handlerFor(types.ProviderPaystack))
	r.Post("/webhooks/flutterwave", h.handlerFor(types.ProviderFlutterwave))
}

func (h *PaymentWebhookHandler) handlerFor(provider types.PaymentProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.handle(w, r, provider)
	}
}

// handle runs the ingestion pipeline, short-circuiting on the first failure:
// signature, timestamp freshness, body parse, delivery id, translation,
// replay guard, ledger apply. Signature and freshness failures are 401;
// malformed or unsupported payloads are 400; everything past the replay
// guard acknowledges with 200 so the processor stops redelivering.
func (h *PaymentWebhookHandler) handle(w http.ResponseWriter, r *http.Request, provider types.PaymentProvider) {
	ctx := r.Context()
	profile := webhooks.ProfileFor(provider)

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body",
			"provider", provider,
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"failed to read request body",
			err,
		))
		return
	}

	if err := h.verifier.Verify(provider, payload, r.Header.Get(profile.SignatureHeader)); err != nil {
		h.logger.WarnContext(ctx, "webhook signature rejected",
			"provider", provider,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	freshness := webhooks.CheckFreshness(r.Header.Get(profile.TimestampHeader), h.clock.Now(), h.skewWindow)
	if freshness != webhooks.FreshnessOK {
		h.logger.WarnContext(ctx, "webhook timestamp rejected",
			"provider", provider,
			"freshness", freshness.String(),
		)
		core.Error(w, r, freshnessError(freshness))
		return
	}

	if !json.Valid(payload) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"request body is not valid JSON",
			nil,
		))
		return
	}

	deliveryID := r.Header.Get(profile.DeliveryIDHeader)
	if deliveryID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingDeliveryID,
			"missing "+profile.DeliveryIDHeader+" header",
			nil,
		))
		return
	}

	evt, err := webhooks.Translate(provider, payload)
	if err != nil {
		h.logger.WarnContext(ctx, "webhook event rejected",
			"provider", provider,
			"delivery_id", deliveryID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	if evt.EventID == "" {
		evt.EventID = deliveryID
	}

	key, err := idempotency.ResolveKey(provider, evt.TxID, deliveryID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	isNew, err := h.guard.CheckAndRecord(ctx, key, h.dedupTTL)
	if err != nil {
		// Guard store down. Process anyway: a rare duplicate apply beats
		// dropping a payment confirmation.
		h.logger.ErrorContext(ctx, "replay guard unavailable, processing without dedup",
			"provider", provider,
			"key", string(key),
			"error", err,
		)
		isNew = true
	}
	if !isNew {
		h.logger.InfoContext(ctx, "duplicate webhook delivery acknowledged",
			"provider", provider,
			"key", string(key),
		)
		core.JSON(w, r, http.StatusOK, webhookAck{Received: true, Idempotent: true})
		return
	}

	if err := h.ledger.ApplyPaymentEvent(ctx, provider, evt); err != nil {
		// The replay key is already recorded and is never rolled back. The
		// processor's retry of this delivery will be answered idempotently,
		// so the failure is surfaced through logs, not the response.
		h.logger.ErrorContext(ctx, "failed to apply payment event",
			"provider", provider,
			"key", string(key),
			"tx_id", evt.TxID,
			"error", err,
		)
	}

	core.JSON(w, r, http.StatusOK, webhookAck{Received: true, Idempotent: false})
}

func freshnessError(res webhooks.FreshnessResult) error {
	if res == webhooks.FreshnessMissing {
		return types.NewAppError(
			types.ErrCodeAuthTimestampMissing,
			"missing or unparseable event timestamp header",
			nil,
		)
	}
	return types.NewAppError(
		types.ErrCodeAuthTimestampSkew,
		"event timestamp outside the accepted window",
		nil,
	)
}
