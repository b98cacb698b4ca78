package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/skyfare/internal/config"
)

const (
	// Paymob tokens nominally live 3600s; refresh well before that so a
	// token is never used near its real expiry.
	authTokenLifetime = 50 * time.Minute

	paymentKeyExpirySeconds = 3600

	defaultRetryBase = time.Second
)

// AuthSession is the cached gateway credential shared across concurrent
// payment intents.
type AuthSession struct {
	Token     string
	ExpiresAt time.Time
}

// PaymobClient wraps the Paymob Accept REST API. One instance owns the
// auth-token cache and is safe for concurrent use.
type PaymobClient struct {
	baseURL       string
	apiKey        string
	integrationID string
	iframeID      string
	attempts      int
	retryBase     time.Duration
	httpClient    *http.Client

	mu      sync.RWMutex
	session AuthSession
}

// NewPaymobClient constructs a client from application config.
func NewPaymobClient(cfg *config.Config) *PaymobClient {
	return &PaymobClient{
		baseURL:       strings.TrimRight(cfg.PaymobBaseURL, "/"),
		apiKey:        cfg.PaymobAPIKey,
		integrationID: cfg.PaymobIntegrationID,
		iframeID:      cfg.PaymobIframeID,
		attempts:      cfg.PaymobRetryAttempts,
		retryBase:     defaultRetryBase,
		httpClient:    &http.Client{Timeout: cfg.PaymobTimeout},
	}
}

type authRequest struct {
	APIKey string `json:"api_key"`
}

type authResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Authenticate returns a valid bearer token, reusing the cached session
// while it is fresh. Concurrent callers share one refresh.
func (c *PaymobClient) Authenticate(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.session.Token != "" && time.Now().Before(c.session.ExpiresAt) {
		token := c.session.Token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock.
	if c.session.Token != "" && time.Now().Before(c.session.ExpiresAt) {
		return c.session.Token, nil
	}

	var resp authResponse
	err := withRetry(ctx, "authenticate", c.attempts, c.retryBase, func() error {
		return c.doJSON(ctx, "authenticate", http.MethodPost, "/auth/tokens", "", authRequest{APIKey: c.apiKey}, &resp)
	})
	if err != nil {
		return "", err
	}

	if resp.Token == "" {
		return "", &GatewayError{Kind: ErrKindRejected, Op: "authenticate", Body: "empty token in auth response"}
	}

	lifetime := authTokenLifetime
	if resp.ExpiresIn > 0 {
		// Trust a shorter server-side lifetime, never a longer one.
		serverLifetime := time.Duration(resp.ExpiresIn) * time.Second
		if serverLifetime < lifetime {
			lifetime = serverLifetime - 30*time.Second
		}
	}

	c.session = AuthSession{Token: resp.Token, ExpiresAt: time.Now().Add(lifetime)}
	return c.session.Token, nil
}

// OrderItem is a line item sent when registering a gateway order.
type OrderItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
}

type registerOrderRequest struct {
	AuthToken       string      `json:"auth_token"`
	DeliveryNeeded  bool        `json:"delivery_needed"`
	AmountCents     int64       `json:"amount_cents"`
	Currency        string      `json:"currency"`
	MerchantOrderID string      `json:"merchant_order_id"`
	Items           []OrderItem `json:"items"`
}

type registerOrderResponse struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
}

// RegisteredOrder is the result of registering one order with the gateway.
type RegisteredOrder struct {
	GatewayOrderID  int64
	MerchantOrderID string
}

// MerchantOrderID derives the unique order reference sent to the gateway.
// Paymob refuses merchant order id reuse, so the booking reference alone is
// not enough: a retry of the same booking must produce a fresh value.
func MerchantOrderID(bookingID string) string {
	return fmt.Sprintf("%s-%s", bookingID, uuid.NewString()[:8])
}

// RegisterOrder registers an order and returns the gateway-assigned id.
func (c *PaymobClient) RegisterOrder(ctx context.Context, authToken string, amountCents int64, currency, merchantOrderID string, items []OrderItem) (*RegisteredOrder, error) {
	if items == nil {
		items = []OrderItem{}
	}

	req := registerOrderRequest{
		AuthToken:       authToken,
		DeliveryNeeded:  false,
		AmountCents:     amountCents,
		Currency:        currency,
		MerchantOrderID: merchantOrderID,
		Items:           items,
	}

	var resp registerOrderResponse
	err := withRetry(ctx, "register-order", c.attempts, c.retryBase, func() error {
		return c.doJSON(ctx, "register-order", http.MethodPost, "/ecommerce/orders", "", req, &resp)
	})
	if err != nil {
		return nil, err
	}

	return &RegisteredOrder{GatewayOrderID: resp.ID, MerchantOrderID: merchantOrderID}, nil
}

// BillingData carries the customer fields Paymob requires on a payment key.
type BillingData struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	Street         string `json:"street"`
	Building       string `json:"building"`
	Floor          string `json:"floor"`
	Apartment      string `json:"apartment"`
	City           string `json:"city"`
	State          string `json:"state"`
	Country        string `json:"country"`
	PostalCode     string `json:"postal_code"`
	ShippingMethod string `json:"shipping_method"`
}

// withDefaults fills the placeholder values the gateway mandates for
// absent billing fields; it rejects payment keys with empty ones.
func (b BillingData) withDefaults() BillingData {
	def := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}

	b.FirstName = def(b.FirstName, "NA")
	b.LastName = def(b.LastName, "NA")
	b.Email = def(b.Email, "na@example.com")
	b.PhoneNumber = def(b.PhoneNumber, "+201000000000")
	b.Street = def(b.Street, "NA")
	b.Building = def(b.Building, "NA")
	b.Floor = def(b.Floor, "NA")
	b.Apartment = def(b.Apartment, "NA")
	b.City = def(b.City, "Cairo")
	b.State = def(b.State, "NA")
	b.Country = def(b.Country, "EG")
	b.PostalCode = def(b.PostalCode, "NA")
	b.ShippingMethod = def(b.ShippingMethod, "NA")
	return b
}

type paymentKeyRequest struct {
	AuthToken         string      `json:"auth_token"`
	AmountCents       int64       `json:"amount_cents"`
	Expiration        int         `json:"expiration"`
	OrderID           int64       `json:"order_id"`
	BillingData       BillingData `json:"billing_data"`
	Currency          string      `json:"currency"`
	IntegrationID     string      `json:"integration_id"`
	LockOrderWhenPaid bool        `json:"lock_order_when_paid"`
}

type paymentKeyResponse struct {
	Token string `json:"token"`
}

// RequestPaymentKey obtains the one-time token that unlocks the hosted
// checkout page for the given order.
func (c *PaymobClient) RequestPaymentKey(ctx context.Context, authToken string, gatewayOrderID, amountCents int64, currency string, billing BillingData) (string, error) {
	req := paymentKeyRequest{
		AuthToken:         authToken,
		AmountCents:       amountCents,
		Expiration:        paymentKeyExpirySeconds,
		OrderID:           gatewayOrderID,
		BillingData:       billing.withDefaults(),
		Currency:          currency,
		IntegrationID:     c.integrationID,
		LockOrderWhenPaid: true,
	}

	var resp paymentKeyResponse
	err := withRetry(ctx, "payment-key", c.attempts, c.retryBase, func() error {
		return c.doJSON(ctx, "payment-key", http.MethodPost, "/acceptance/payment_keys", "", req, &resp)
	})
	if err != nil {
		return "", err
	}

	if resp.Token == "" {
		return "", &GatewayError{Kind: ErrKindRejected, Op: "payment-key", Body: "empty payment key token"}
	}

	return resp.Token, nil
}

// BuildCheckoutURL composes the hosted-iframe URL for a payment key.
// Pure string work, no network call.
func (c *PaymobClient) BuildCheckoutURL(paymentKeyToken string) string {
	return fmt.Sprintf("%s/acceptance/iframes/%s?payment_token=%s", c.baseURL, c.iframeID, paymentKeyToken)
}

// TransactionDetails is the gateway's view of one transaction, used for
// out-of-band reconciliation independent of the callback path.
type TransactionDetails struct {
	ID           int64              `json:"id"`
	AmountCents  int64              `json:"amount_cents"`
	Currency     string             `json:"currency"`
	Success      bool               `json:"success"`
	Pending      bool               `json:"pending"`
	IsRefunded   bool               `json:"is_refunded"`
	IsVoided     bool               `json:"is_voided"`
	ErrorOccured bool               `json:"error_occured"`
	Order        CallbackOrder      `json:"order"`
	SourceData   CallbackSourceData `json:"source_data"`
}

// VerifyTransaction fetches the current gateway-side state of a transaction.
func (c *PaymobClient) VerifyTransaction(ctx context.Context, transactionID int64) (*TransactionDetails, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var resp TransactionDetails
	path := fmt.Sprintf("/acceptance/transactions/%d", transactionID)
	err = withRetry(ctx, "verify-transaction", c.attempts, c.retryBase, func() error {
		return c.doJSON(ctx, "verify-transaction", http.MethodGet, path, token, nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

type refundRequest struct {
	AuthToken     string `json:"auth_token"`
	TransactionID int64  `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

type refundResponse struct {
	ID int64 `json:"id"`
}

// Refund reverses amountCents of a captured transaction and returns the
// gateway id of the refund transaction.
func (c *PaymobClient) Refund(ctx context.Context, transactionID, amountCents int64) (int64, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return 0, err
	}

	req := refundRequest{AuthToken: token, TransactionID: transactionID, AmountCents: amountCents}

	var resp refundResponse
	err = withRetry(ctx, "refund", c.attempts, c.retryBase, func() error {
		return c.doJSON(ctx, "refund", http.MethodPost, "/acceptance/refund", "", req, &resp)
	})
	if err != nil {
		return 0, err
	}

	return resp.ID, nil
}

// doJSON performs one HTTP round trip against the gateway and decodes the
// JSON response into out. Failures map onto the gateway error taxonomy.
func (c *PaymobClient) doJSON(ctx context.Context, op, method, path, bearer string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &GatewayError{Kind: ErrKindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Kind: ErrKindNetwork, Op: op, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return &GatewayError{Kind: ErrKindUnavailable, Op: op, Status: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &GatewayError{Kind: ErrKindAuthentication, Op: op, Status: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode >= 400:
		return &GatewayError{Kind: ErrKindRejected, Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal %s response: %w", op, err)
		}
	}

	return nil
}
