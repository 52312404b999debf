package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillpoint/internal/config"
	"tillpoint/internal/idempotency"
	"tillpoint/internal/types"
	"tillpoint/internal/webhooks"
)

const (
	paystackSecret    = "sk_test_paystack_webhook"
	flutterwaveSecret = "sk_test_flw_webhook"
)

var handlerNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type stubHandlerClock struct{}

func (stubHandlerClock) Now() time.Time { return handlerNow }

type recordingLedger struct {
	mu       sync.Mutex
	applied  []*webhooks.NormalizedEvent
	applyErr error
}

func (f *recordingLedger) ApplyPaymentEvent(_ context.Context, _ types.PaymentProvider, evt *webhooks.NormalizedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, evt)
	return nil
}

type failingGuard struct{}

func (failingGuard) CheckAndRecord(context.Context, idempotency.Key, time.Duration) (bool, error) {
	return false, errors.New("store unreachable")
}

func testSecrets() config.BillingConfig {
	return config.BillingConfig{
		PaystackWebhookSecret:    types.SecretString(paystackSecret),
		FlutterwaveWebhookSecret: types.SecretString(flutterwaveSecret),
	}
}

func newTestRouter(t *testing.T, guard idempotency.Store, ledger PaymentEventApplier) chi.Router {
	t.Helper()
	if guard == nil {
		guard = idempotency.NewMemoryStore(stubHandlerClock{})
	}
	h := NewPaymentWebhookHandler(
		webhooks.NewVerifier(testSecrets()),
		guard,
		ledger,
		24*time.Hour,
		5*time.Minute,
		stubHandlerClock{},
		nil,
	)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func paystackPayload() []byte {
	return []byte(`{
		"event": "charge.success",
		"data": {
			"reference": "tx_ps_1",
			"status": "success",
			"amount": 500000,
			"currency": "NGN",
			"metadata": {"org_id": "org_1", "plan_code": "standard-monthly"},
			"customer": {"customer_code": "CUS_ps_1", "email": "owner@shop.example"}
		}
	}`)
}

type deliveryOpts struct {
	signature string
	timestamp string
	eventID   string
}

func deliverPaystack(t *testing.T, r chi.Router, payload []byte, opts *deliveryOpts) *httptest.ResponseRecorder {
	t.Helper()

	sig, err := webhooks.Sign(types.ProviderPaystack, types.SecretString(paystackSecret), payload)
	require.NoError(t, err)
	ts := strconv.FormatInt(handlerNow.UnixMilli(), 10)
	eventID := "evt_ps_1"
	if opts != nil {
		if opts.signature != "" {
			sig = opts.signature
		}
		if opts.timestamp != "" {
			ts = opts.timestamp
		}
		eventID = opts.eventID
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set("X-Paystack-Signature", sig)
	if ts != "none" {
		req.Header.Set("X-Paystack-Timestamp", ts)
	}
	if eventID != "" {
		req.Header.Set("X-Paystack-Event-Id", eventID)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeAck(t *testing.T, w *httptest.ResponseRecorder) webhookAck {
	t.Helper()
	var ack webhookAck
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	return ack
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestWebhook_ValidDeliveryApplied(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, nil, ledger)

	w := deliverPaystack(t, r, paystackPayload(), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	ack := decodeAck(t, w)
	assert.True(t, ack.Received)
	assert.False(t, ack.Idempotent)

	require.Len(t, ledger.applied, 1)
	evt := ledger.applied[0]
	assert.Equal(t, "tx_ps_1", evt.TxID)
	assert.Equal(t, "org_1", evt.OrgID)
	assert.Equal(t, "standard-monthly", evt.PlanCode)
	assert.True(t, evt.Success)
	assert.Equal(t, int64(500000), evt.Amount)
}

func TestWebhook_DuplicateDeliveryAcknowledgedOnce(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, nil, ledger)

	first := deliverPaystack(t, r, paystackPayload(), nil)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.False(t, decodeAck(t, first).Idempotent)

	second := deliverPaystack(t, r, paystackPayload(), nil)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.True(t, decodeAck(t, second).Idempotent)

	assert.Len(t, ledger.applied, 1)
}

func TestWebhook_SameTxDifferentDeliveryIsDuplicate(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, nil, ledger)

	deliverPaystack(t, r, paystackPayload(), &deliveryOpts{eventID: "evt_a"})
	w := deliverPaystack(t, r, paystackPayload(), &deliveryOpts{eventID: "evt_b"})

	// Dedup keys on the business transaction id, so a redelivery under a
	// fresh event id still collapses.
	assert.True(t, decodeAck(t, w).Idempotent)
	assert.Len(t, ledger.applied, 1)
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, nil, ledger)

	w := deliverPaystack(t, r, paystackPayload(), &deliveryOpts{
		signature: "deadbeef",
		eventID:   "evt_ps_1",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "auth_signature_invalid", errorCode(t, w))
	assert.Empty(t, ledger.applied)
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	r := newTestRouter(t, nil, &recordingLedger{})

	payload := paystackPayload()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set("X-Paystack-Timestamp", strconv.FormatInt(handlerNow.UnixMilli(), 10))
	req.Header.Set("X-Paystack-Event-Id", "evt_ps_1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "auth_signature_missing", errorCode(t, w))
}

func TestWebhook_StaleTimestampRejected(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, nil, ledger)

	stale := handlerNow.Add(-10 * time.Minute)
	w := deliverPaystack(t, r, paystackPayload(), &deliveryOpts{
		timestamp: strconv.FormatInt(stale.UnixMilli(), 10),
		eventID:   "evt_ps_1",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "auth_timestamp_out_of_window", errorCode(t, w))
	assert.Empty(t, ledger.applied)
}

func TestWebhook_MissingTimestampRejected(t *testing.T) {
	r := newTestRouter(t, nil, &recordingLedger{})

	w := deliverPaystack(t, r, paystackPayload(), &deliveryOpts{
		timestamp: "none",
		eventID:   "evt_ps_1",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "auth_timestamp_missing", errorCode(t, w))
}

func TestWebhook_InvalidJSONRejected(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, nil, ledger)

	w := deliverPaystack(t, r, []byte(`{"event": "charge.success",`), &deliveryOpts{eventID: "evt_ps_1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_invalid_json", errorCode(t, w))
	assert.Empty(t, ledger.applied)
}

func TestWebhook_MissingDeliveryIDRejected(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, nil, ledger)

	w := deliverPaystack(t, r, paystackPayload(), &deliveryOpts{eventID: ""})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_missing_delivery_id", errorCode(t, w))
	assert.Empty(t, ledger.applied)
}

func TestWebhook_UnsupportedEventRejected(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, nil, ledger)

	payload := []byte(`{"event": "subscription.disable", "data": {"reference": "tx_x"}}`)
	w := deliverPaystack(t, r, payload, &deliveryOpts{eventID: "evt_ps_1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_unsupported_event_type", errorCode(t, w))
	assert.Empty(t, ledger.applied)
}

func TestWebhook_MissingIdentifiersRejectedWithoutMutation(t *testing.T) {
	ledger := &recordingLedger{}
	guard := idempotency.NewMemoryStore(stubHandlerClock{})
	r := newTestRouter(t, guard, ledger)

	payload := []byte(`{
		"event": "charge.success",
		"data": {"reference": "tx_anon", "status": "success", "amount": 1000, "currency": "NGN"}
	}`)
	w := deliverPaystack(t, r, payload, &deliveryOpts{eventID: "evt_ps_1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_missing_subscription_identifiers", errorCode(t, w))
	assert.Empty(t, ledger.applied)
	assert.Equal(t, 0, guard.Len())
}

func TestWebhook_GuardFailureStillProcesses(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, failingGuard{}, ledger)

	w := deliverPaystack(t, r, paystackPayload(), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeAck(t, w).Idempotent)
	assert.Len(t, ledger.applied, 1)
}

func TestWebhook_LedgerFailureStillAcknowledged(t *testing.T) {
	ledger := &recordingLedger{applyErr: errors.New("db down")}
	r := newTestRouter(t, nil, ledger)

	w := deliverPaystack(t, r, paystackPayload(), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeAck(t, w).Received)
}

func TestWebhook_FlutterwaveDelivery(t *testing.T) {
	ledger := &recordingLedger{}
	r := newTestRouter(t, nil, ledger)

	payload := []byte(`{
		"event": "charge.completed",
		"meta_data": {"org_id": "org_2", "plan_code": "premium-monthly"},
		"data": {
			"id": 4410000,
			"tx_ref": "tx_flw_1",
			"status": "successful",
			"amount": 5000,
			"currency": "NGN",
			"customer": {"id": 218000, "email": "owner@shop.example"}
		}
	}`)
	sig, err := webhooks.Sign(types.ProviderFlutterwave, types.SecretString(flutterwaveSecret), payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/flutterwave", bytes.NewReader(payload))
	req.Header.Set("X-Flw-Signature", sig)
	req.Header.Set("X-Flw-Timestamp", strconv.FormatInt(handlerNow.UnixMilli(), 10))
	req.Header.Set("X-Flw-Event-Id", "evt_flw_1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ledger.applied, 1)
	evt := ledger.applied[0]
	assert.Equal(t, "tx_flw_1", evt.TxID)
	assert.Equal(t, "org_2", evt.OrgID)
	assert.Equal(t, int64(500000), evt.Amount)
	assert.Equal(t, "evt_flw_1", evt.EventID)
}
