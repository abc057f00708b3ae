package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seludoto/dolesecommerce/internal/cache"
	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/metrics"
	"github.com/seludoto/dolesecommerce/internal/models"
)

const (
	darajaTokenKey     = "daraja:access_token"
	tokenRefreshLeeway = 30 * time.Second
	authMaxRetries     = 3
	authRetryBackoff   = 500 * time.Millisecond
)

// DarajaClient talks to the Safaricom Daraja API: OAuth, STK push, B2C and
// transaction status queries. The access token is cached in-process behind a
// mutex (and in Redis when available so instances share it) and refreshed
// with a leeway before expiry.
type DarajaClient struct {
	baseURL            string
	consumerKey        string
	consumerSecret     string
	shortcode          string
	passkey            string
	initiatorName      string
	securityCredential string

	http  *http.Client
	cache *cache.Cache

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func NewDarajaClient(cfg *config.Config, c *cache.Cache) *DarajaClient {
	return &DarajaClient{
		baseURL:            cfg.MpesaBaseURL,
		consumerKey:        cfg.MpesaConsumerKey,
		consumerSecret:     cfg.MpesaConsumerSecret,
		shortcode:          cfg.MpesaShortcode,
		passkey:            cfg.MpesaPasskey,
		initiatorName:      cfg.MpesaInitiatorName,
		securityCredential: cfg.MpesaSecurityCredential,
		http:               &http.Client{Timeout: 30 * time.Second},
		cache:              c,
	}
}

type darajaAuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type cachedDarajaToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

// StkPushResponse is Daraja's acknowledgment of an STK push request.
type StkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// B2CResponse is Daraja's acknowledgment of a B2C payment request.
type B2CResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// StkQueryResponse is the synchronous status of an STK push request.
type StkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// Authenticate returns a valid access token, fetching a new one if the
// cached token is missing or about to expire. Credential failures are
// retried a bounded number of times with backoff before giving up with an
// AuthenticationError.
func (c *DarajaClient) Authenticate(ctx context.Context) (string, error) {
	if token, ok := c.cachedToken(ctx); ok {
		return token, nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	// Another request may have refreshed while we waited for the lock.
	if token := c.currentTokenLocked(); token != "" {
		return token, nil
	}

	var lastErr error
	for i := 0; i < authMaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(authRetryBackoff << (i - 1)):
			}
		}

		token, expiry, err := c.fetchToken(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		c.token = token
		c.tokenExpiry = expiry
		_ = c.cache.Set(ctx, darajaTokenKey, cachedDarajaToken{Token: token, Expiry: expiry}, time.Until(expiry))
		return token, nil
	}

	return "", &AuthenticationError{Provider: models.ProviderMpesa, Err: lastErr}
}

func (c *DarajaClient) fetchToken(ctx context.Context) (string, time.Time, error) {
	url := c.baseURL + "/oauth/v1/generate?grant_type=client_credentials"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues("mpesa", "oauth").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, fmt.Errorf("oauth status %d: %s", resp.StatusCode, string(body))
	}

	var auth darajaAuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return "", time.Time{}, fmt.Errorf("unmarshal oauth response: %w", err)
	}
	if auth.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("oauth response missing access_token")
	}

	ttl := 3600
	if parsed, err := strconv.Atoi(auth.ExpiresIn); err == nil && parsed > 0 {
		ttl = parsed
	}

	return auth.AccessToken, time.Now().Add(time.Duration(ttl) * time.Second), nil
}

func (c *DarajaClient) cachedToken(ctx context.Context) (string, bool) {
	c.tokenMu.RLock()
	token := c.currentTokenLocked()
	c.tokenMu.RUnlock()
	if token != "" {
		return token, true
	}

	var shared cachedDarajaToken
	if err := c.cache.Get(ctx, darajaTokenKey, &shared); err == nil {
		if shared.Token != "" && time.Now().Add(tokenRefreshLeeway).Before(shared.Expiry) {
			c.tokenMu.Lock()
			c.token = shared.Token
			c.tokenExpiry = shared.Expiry
			c.tokenMu.Unlock()
			return shared.Token, true
		}
	}

	return "", false
}

func (c *DarajaClient) currentTokenLocked() string {
	if c.token == "" {
		return ""
	}
	if time.Now().Add(tokenRefreshLeeway).After(c.tokenExpiry) {
		return ""
	}
	return c.token
}

func (c *DarajaClient) invalidateToken(ctx context.Context) {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.tokenMu.Unlock()
	_ = c.cache.Set(ctx, darajaTokenKey, cachedDarajaToken{}, time.Second)
}

// StkPush submits a C2B STK push request. Phone must already be in
// canonical 254XXXXXXXXX form.
func (c *DarajaClient) StkPush(ctx context.Context, phone string, amount decimal.Decimal, reference, description, callbackURL string) (*StkPushResponse, error) {
	timestamp := darajaTimestamp(time.Now())
	payload := map[string]any{
		"BusinessShortCode": c.shortcode,
		"Password":          darajaPassword(c.shortcode, c.passkey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount.Round(0).IntPart(),
		"PartyA":            phone,
		"PartyB":            c.shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       callbackURL,
		"AccountReference":  reference,
		"TransactionDesc":   description,
	}

	var out StkPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", "stk_push", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// B2CPayment submits a business-to-customer payout request.
func (c *DarajaClient) B2CPayment(ctx context.Context, phone string, amount decimal.Decimal, remarks, occasion, resultURL, timeoutURL string) (*B2CResponse, error) {
	payload := map[string]any{
		"InitiatorName":      c.initiatorName,
		"SecurityCredential": c.securityCredential,
		"CommandID":          "BusinessPayment",
		"Amount":             amount.Round(0).IntPart(),
		"PartyA":             c.shortcode,
		"PartyB":             phone,
		"Remarks":            remarks,
		"QueueTimeOutURL":    timeoutURL,
		"ResultURL":          resultURL,
		"Occasion":           occasion,
	}

	var out B2CResponse
	if err := c.post(ctx, "/mpesa/b2c/v1/paymentrequest", "b2c", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryStkStatus polls the status of an STK push by CheckoutRequestID.
// Idempotent and safe to call repeatedly.
func (c *DarajaClient) QueryStkStatus(ctx context.Context, checkoutRequestID string) (*StkQueryResponse, error) {
	timestamp := darajaTimestamp(time.Now())
	payload := map[string]any{
		"BusinessShortCode": c.shortcode,
		"Password":          darajaPassword(c.shortcode, c.passkey, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var out StkQueryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", "stk_query", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// post sends an authenticated JSON request, refreshing the token and
// retrying once when Daraja answers 401.
func (c *DarajaClient) post(ctx context.Context, path, operation string, payload any, out any) error {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}

	status, body, err := c.doPost(ctx, path, operation, token, payload)
	if err != nil {
		return &ProviderRequestError{Provider: models.ProviderMpesa, Operation: operation, Err: err}
	}

	if status == http.StatusUnauthorized {
		c.invalidateToken(ctx)
		token, err = c.Authenticate(ctx)
		if err != nil {
			return err
		}
		status, body, err = c.doPost(ctx, path, operation, token, payload)
		if err != nil {
			return &ProviderRequestError{Provider: models.ProviderMpesa, Operation: operation, Err: err}
		}
	}

	if status < 200 || status >= 300 {
		return &ProviderRequestError{
			Provider:   models.ProviderMpesa,
			Operation:  operation,
			StatusCode: status,
			Err:        fmt.Errorf("response body: %s", string(body)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderRequestError{Provider: models.ProviderMpesa, Operation: operation, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return nil
}

func (c *DarajaClient) doPost(ctx context.Context, path, operation, token string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues("mpesa", operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, respBody, nil
}

// darajaTimestamp formats a time the way Daraja's password scheme expects.
func darajaTimestamp(t time.Time) string {
	return t.Format("20060102150405")
}

// darajaPassword builds the shortcode+passkey+timestamp credential required
// by STK push and query requests.
func darajaPassword(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}
