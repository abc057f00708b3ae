package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seludoto/dolesecommerce/internal/metrics"
	"github.com/seludoto/dolesecommerce/internal/models"
)

const (
	piMainnetURL = "https://api.mainnet.pi.network"
	piSandboxURL = "https://api.sandbox.pi.network"
	piAPIVersion = "v2"
)

// PiClient talks to the Pi Network platform API. Payments follow a
// two-phase server flow: the client app initiates, the server approves,
// the client submits the blockchain transaction, the server completes.
type PiClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewPiClient(apiKey string, sandbox bool) *PiClient {
	baseURL := piMainnetURL
	if sandbox {
		baseURL = piSandboxURL
	}
	return &PiClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// PiPaymentStatus is the provider-side lifecycle of a Pi payment.
type PiPaymentStatus struct {
	DeveloperApproved   bool `json:"developer_approved"`
	TransactionVerified bool `json:"transaction_verified"`
	DeveloperCompleted  bool `json:"developer_completed"`
	Cancelled           bool `json:"cancelled"`
	UserCancelled       bool `json:"user_cancelled"`
}

// PiTransaction is the blockchain transaction attached to a payment once
// the payer has signed it.
type PiTransaction struct {
	TxID     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link"`
}

// PiPayment is the provider's payment record.
type PiPayment struct {
	Identifier  string          `json:"identifier"`
	UserUID     string          `json:"user_uid"`
	Amount      decimal.Decimal `json:"amount"`
	Memo        string          `json:"memo"`
	Metadata    map[string]any  `json:"metadata"`
	Status      PiPaymentStatus `json:"status"`
	Transaction *PiTransaction  `json:"transaction"`
}

type piIncompleteResponse struct {
	IncompleteServerPayments []PiPayment `json:"incomplete_server_payments"`
}

type piCreatePaymentRequest struct {
	Amount   float64        `json:"amount"`
	Memo     string         `json:"memo"`
	Metadata map[string]any `json:"metadata"`
}

// CreatePayment registers a new payment with the provider. The platform
// expects the amount as a JSON number and metadata as an object, never null.
func (c *PiClient) CreatePayment(ctx context.Context, amount decimal.Decimal, memo string, metadata map[string]any) (*PiPayment, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload := piCreatePaymentRequest{
		Amount:   amount.InexactFloat64(),
		Memo:     memo,
		Metadata: metadata,
	}

	var out PiPayment
	if err := c.request(ctx, http.MethodPost, "payments", "create", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPayment fetches a payment by its provider identifier.
func (c *PiClient) GetPayment(ctx context.Context, paymentID string) (*PiPayment, error) {
	var out PiPayment
	if err := c.request(ctx, http.MethodGet, "payments/"+paymentID, "get", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApprovePayment is the server-side approval step; funds cannot move until
// it has been called.
func (c *PiClient) ApprovePayment(ctx context.Context, paymentID string) (*PiPayment, error) {
	var out PiPayment
	if err := c.request(ctx, http.MethodPost, "payments/"+paymentID+"/approve", "approve", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompletePayment acknowledges the blockchain transaction and closes the
// payment on the provider side.
func (c *PiClient) CompletePayment(ctx context.Context, paymentID, txid string) (*PiPayment, error) {
	payload := map[string]any{"txid": txid}

	var out PiPayment
	if err := c.request(ctx, http.MethodPost, "payments/"+paymentID+"/complete", "complete", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelPayment cancels a payment that has not completed.
func (c *PiClient) CancelPayment(ctx context.Context, paymentID string) (*PiPayment, error) {
	var out PiPayment
	if err := c.request(ctx, http.MethodPost, "payments/"+paymentID+"/cancel", "cancel", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IncompletePayments lists server payments the provider still considers
// open, used for manual reconciliation.
func (c *PiClient) IncompletePayments(ctx context.Context) ([]PiPayment, error) {
	var out piIncompleteResponse
	if err := c.request(ctx, http.MethodGet, "payments/incomplete_server_payments", "incomplete", nil, &out); err != nil {
		return nil, err
	}
	return out.IncompleteServerPayments, nil
}

func (c *PiClient) request(ctx context.Context, method, endpoint, operation string, payload, out any) error {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, piAPIVersion, endpoint)

	var bodyReader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal pi payload: %w", err)
		}
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues("pi", operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return &ProviderRequestError{Provider: models.ProviderPi, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderRequestError{Provider: models.ProviderPi, Operation: operation, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthenticationError{Provider: models.ProviderPi, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderRequestError{
			Provider:   models.ProviderPi,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response body: %s", string(respBody)),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &ProviderRequestError{Provider: models.ProviderPi, Operation: operation, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return nil
}
