package external

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillpoint/internal/types"
)

// testLogger returns a logger that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFlutterwaveTestServer(t *testing.T, handler http.HandlerFunc) *FlutterwaveGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewFlutterwaveGateway(&http.Client{Timeout: 5 * time.Second}, FlutterwaveConfig{
		SecretKey: "FLWSECK_TEST-1",
		BaseURL:   srv.URL,
		Logger:    testLogger(),
	})
}

func TestFlutterwaveGateway_SuccessfulCharge(t *testing.T) {
	gw := newFlutterwaveTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokenized-charges", r.URL.Path)
		require.Equal(t, "Bearer FLWSECK_TEST-1", r.Header.Get("Authorization"))

		var body flutterwaveChargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "flw-tok-1", body.Token)
		// Minor units converted to major on the wire.
		assert.Equal(t, 5000.0, body.Amount)
		assert.Equal(t, "till-ref-1", body.TxRef)

		_, _ = w.Write([]byte(`{
			"status": "success",
			"message": "Charge successful",
			"data": {"status": "successful", "tx_ref": "till-ref-1", "flw_ref": "FLW-MOCK-1"}
		}`))
	})

	result, err := gw.ChargeStoredCredential(context.Background(), ChargeRequest{
		Credential: "flw-tok-1",
		Email:      "owner@org-flw.example",
		Amount:     500000,
		Currency:   "NGN",
		Reference:  "till-ref-1",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "FLW-MOCK-1", result.Reference)
}

func TestFlutterwaveGateway_DeclinedCharge(t *testing.T) {
	gw := newFlutterwaveTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "success",
			"message": "Charge attempted",
			"data": {"status": "failed", "tx_ref": "till-ref-2", "flw_ref": "FLW-MOCK-2"}
		}`))
	})

	result, err := gw.ChargeStoredCredential(context.Background(), ChargeRequest{
		Credential: "flw-tok-2",
		Amount:     500000,
		Currency:   "NGN",
		Reference:  "till-ref-2",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestFlutterwaveGateway_ErrorEnvelope(t *testing.T) {
	gw := newFlutterwaveTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status": "error", "message": "Token not found", "data": null}`))
	})

	result, err := gw.ChargeStoredCredential(context.Background(), ChargeRequest{
		Credential: "flw-tok-gone",
		Reference:  "till-ref-3",
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "Token not found", result.Message)
	assert.Equal(t, "till-ref-3", result.Reference)
}

func TestGenerateReference_ProviderPrefixedAndUnique(t *testing.T) {
	r1 := GenerateReference(types.ProviderPaystack)
	r2 := GenerateReference(types.ProviderPaystack)

	assert.True(t, strings.HasPrefix(r1, "paystack-"))
	assert.NotEqual(t, r1, r2)

	assert.True(t, strings.HasPrefix(GenerateReference(types.ProviderFlutterwave), "flutterwave-"))
}
