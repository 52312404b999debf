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

// flutterwaveAPIBase is the default Flutterwave API base URL.
const flutterwaveAPIBase = "https://api.flutterwave.com/v3"

// FlutterwaveConfig holds the configuration for creating a FlutterwaveGateway.
type FlutterwaveConfig struct {
	SecretKey types.SecretString
	BaseURL   string // override for testing; defaults to flutterwaveAPIBase
	Logger    *slog.Logger
}

// FlutterwaveGateway implements PaymentGateway against Flutterwave's REST
// API. Off-session charges use the tokenized-charges endpoint with the card
// token captured on first payment.
type FlutterwaveGateway struct {
	base      *BaseClient
	secretKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

// NewFlutterwaveGateway creates a FlutterwaveGateway.
func NewFlutterwaveGateway(httpClient *http.Client, cfg FlutterwaveConfig) *FlutterwaveGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = flutterwaveAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"flutterwave",
		DefaultRetryPolicy(),
		"TillPoint/1.0",
		WithSleepFunc(time.Sleep),
	)

	return &FlutterwaveGateway{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// flutterwaveChargeRequest is the tokenized-charges request body. Flutterwave
// expects amounts in major units, so minor units are converted on the way out.
type flutterwaveChargeRequest struct {
	Token    string            `json:"token"`
	Email    string            `json:"email"`
	Amount   float64           `json:"amount"`
	Currency string            `json:"currency"`
	TxRef    string            `json:"tx_ref"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// flutterwaveChargeResponse is the minimal response shape we consume.
type flutterwaveChargeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status string `json:"status"`
		TxRef  string `json:"tx_ref"`
		FlwRef string `json:"flw_ref"`
	} `json:"data"`
}

// ChargeStoredCredential charges the stored card token. Decline semantics
// match PaystackGateway: a processor decline is Success=false, not an error.
func (g *FlutterwaveGateway) ChargeStoredCredential(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(flutterwaveChargeRequest{
		Token:    req.Credential,
		Email:    req.Email,
		Amount:   float64(req.Amount) / 100,
		Currency: req.Currency,
		TxRef:    req.Reference,
		Meta:     req.Metadata,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode charge request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/tokenized-charges", bytes.NewReader(body))
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

	var parsed flutterwaveChargeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGateway,
			fmt.Sprintf("unparseable charge response (status %d)", resp.StatusCode), err)
	}

	var raw map[string]any
	_ = json.Unmarshal(respBody, &raw)

	result := &ChargeResult{
		Reference: parsed.Data.FlwRef,
		Message:   parsed.Message,
		Raw:       raw,
	}
	if result.Reference == "" {
		result.Reference = req.Reference
	}

	result.Success = resp.StatusCode == http.StatusOK &&
		parsed.Status == "success" && parsed.Data.Status == "successful"

	g.logger.InfoContext(ctx, "flutterwave charge attempt completed",
		"reference", result.Reference,
		"success", result.Success,
		"http_status", resp.StatusCode,
		"charge_status", parsed.Data.Status,
	)

	return result, nil
}

// Compile-time assertion that FlutterwaveGateway satisfies PaymentGateway.
var _ PaymentGateway = (*FlutterwaveGateway)(nil)
