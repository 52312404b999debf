package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tillpoint/internal/types"
)

// paystackAPIBase is the default Paystack API base URL. Overridable in tests
// via PaystackConfig.BaseURL.
const paystackAPIBase = "https://api.paystack.co"

// PaystackConfig holds the configuration for creating a PaystackGateway.
type PaystackConfig struct {
	SecretKey types.SecretString
	BaseURL   string // override for testing; defaults to paystackAPIBase
	Logger    *slog.Logger
}

// PaystackGateway implements PaymentGateway against Paystack's REST API.
// Off-session charges use the charge_authorization endpoint with the
// authorization code captured when the customer first paid.
type PaystackGateway struct {
	base      *BaseClient
	secretKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

// NewPaystackGateway creates a PaystackGateway. The httpClient's timeout
// bounds each attempt; the caller's context bounds the whole call.
func NewPaystackGateway(httpClient *http.Client, cfg PaystackConfig) *PaystackGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paystackAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"paystack",
		DefaultRetryPolicy(),
		"TillPoint/1.0",
		WithSleepFunc(time.Sleep),
	)

	return &PaystackGateway{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// paystackChargeRequest is the charge_authorization request body. Amounts
// are already in minor units (kobo), matching Paystack's convention.
type paystackChargeRequest struct {
	AuthorizationCode string            `json:"authorization_code"`
	Email             string            `json:"email"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency,omitempty"`
	Reference         string            `json:"reference,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// paystackChargeResponse is the minimal response shape we consume.
// The envelope "status" indicates whether the API call was understood;
// data.status carries the charge outcome.
type paystackChargeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status         string `json:"status"`
		Reference      string `json:"reference"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// ChargeStoredCredential charges the stored authorization code.
//
// A processor-side decline (data.status != "success", or a 4xx envelope)
// returns ChargeResult{Success:false} with the processor's message — not an
// error. Transport failures, 5xx after retries, and open-breaker states
// return an error.
func (g *PaystackGateway) ChargeStoredCredential(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(paystackChargeRequest{
		AuthorizationCode: req.Credential,
		Email:             req.Email,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Reference:         req.Reference,
		Metadata:          req.Metadata,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode charge request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/transaction/charge_authorization", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build charge request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey.Unmask())
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.base.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGateway, "failed to read charge response", err)
	}

	var parsed paystackChargeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGateway,
			fmt.Sprintf("unparseable charge response (status %d)", resp.StatusCode), err)
	}

	var raw map[string]any
	_ = json.Unmarshal(respBody, &raw)

	result := &ChargeResult{
		Reference: parsed.Data.Reference,
		Message:   parsed.Message,
		Raw:       raw,
	}
	if result.Reference == "" {
		result.Reference = req.Reference
	}
	if parsed.Data.GatewayResponse != "" {
		result.Message = parsed.Data.GatewayResponse
	}

	result.Success = resp.StatusCode == http.StatusOK && parsed.Status && parsed.Data.Status == "success"

	g.logger.InfoContext(ctx, "paystack charge attempt completed",
		"reference", result.Reference,
		"success", result.Success,
		"http_status", resp.StatusCode,
		"charge_status", parsed.Data.Status,
	)

	return result, nil
}

// Compile-time assertion that PaystackGateway satisfies PaymentGateway.
var _ PaymentGateway = (*PaystackGateway)(nil)
