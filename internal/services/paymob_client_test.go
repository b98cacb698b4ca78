package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/skyfare/internal/config"
)

func testClient(t *testing.T, handler http.Handler) (*PaymobClient, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewPaymobClient(&config.Config{
		PaymobBaseURL:       srv.URL,
		PaymobAPIKey:        "test-api-key",
		PaymobIntegrationID: "12345",
		PaymobIframeID:      "777",
		PaymobTimeout:       5 * time.Second,
		PaymobRetryAttempts: 3,
	})
	client.retryBase = time.Millisecond

	return client, srv
}

func TestAuthenticateCachesToken(t *testing.T) {
	var authCalls int32

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/tokens" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		atomic.AddInt32(&authCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "T", "expires_in": 3600})
	}))

	ctx := context.Background()

	first, err := client.Authenticate(ctx)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	second, err := client.Authenticate(ctx)
	if err != nil {
		t.Fatalf("authenticate (cached): %v", err)
	}

	if first != "T" || second != "T" {
		t.Fatalf("unexpected tokens %q, %q", first, second)
	}
	if n := atomic.LoadInt32(&authCalls); n != 1 {
		t.Fatalf("expected exactly 1 auth network call, got %d", n)
	}
}

func TestAuthenticateRefreshesExpiredToken(t *testing.T) {
	var authCalls int32

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "T", "expires_in": 3600})
	}))

	ctx := context.Background()
	if _, err := client.Authenticate(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	// Force expiry.
	client.mu.Lock()
	client.session.ExpiresAt = time.Now().Add(-time.Second)
	client.mu.Unlock()

	if _, err := client.Authenticate(ctx); err != nil {
		t.Fatalf("re-authenticate: %v", err)
	}

	if n := atomic.LoadInt32(&authCalls); n != 2 {
		t.Fatalf("expected 2 auth calls after expiry, got %d", n)
	}
}

func TestRegisterOrderSendsWireFields(t *testing.T) {
	var captured map[string]any

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ecommerce/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 555, "created_at": "2024-05-01T10:00:00"})
	}))

	order, err := client.RegisterOrder(context.Background(), "T", 16700, "EGP", "B1-deadbeef", nil)
	if err != nil {
		t.Fatalf("register order: %v", err)
	}

	if order.GatewayOrderID != 555 {
		t.Fatalf("expected gateway order id 555, got %d", order.GatewayOrderID)
	}
	if captured["auth_token"] != "T" {
		t.Errorf("auth_token = %v", captured["auth_token"])
	}
	if captured["delivery_needed"] != false {
		t.Errorf("delivery_needed = %v", captured["delivery_needed"])
	}
	if captured["amount_cents"] != float64(16700) {
		t.Errorf("amount_cents = %v", captured["amount_cents"])
	}
	if captured["merchant_order_id"] != "B1-deadbeef" {
		t.Errorf("merchant_order_id = %v", captured["merchant_order_id"])
	}
	if _, ok := captured["items"].([]any); !ok {
		t.Errorf("items must always be present, got %v", captured["items"])
	}
}

func TestMerchantOrderIDUnique(t *testing.T) {
	first := MerchantOrderID("B1")
	second := MerchantOrderID("B1")

	if first == second {
		t.Fatalf("merchant order ids must differ for the same booking, both were %q", first)
	}
	if !strings.HasPrefix(first, "B1-") || !strings.HasPrefix(second, "B1-") {
		t.Fatalf("merchant order ids should carry the booking reference: %q, %q", first, second)
	}
}

func TestRequestPaymentKeyFillsBillingDefaults(t *testing.T) {
	var captured struct {
		BillingData BillingData `json:"billing_data"`
		Expiration  int         `json:"expiration"`
	}

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acceptance/payment_keys" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "PK"})
	}))

	key, err := client.RequestPaymentKey(context.Background(), "T", 555, 16700, "EGP", BillingData{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("payment key: %v", err)
	}

	if key != "PK" {
		t.Fatalf("expected payment key PK, got %q", key)
	}
	if captured.BillingData.Email != "a@b.com" {
		t.Errorf("provided email must be preserved, got %q", captured.BillingData.Email)
	}
	if captured.BillingData.FirstName != "NA" || captured.BillingData.City != "Cairo" || captured.BillingData.Country != "EG" {
		t.Errorf("absent billing fields must get gateway defaults, got %+v", captured.BillingData)
	}
	if captured.Expiration != paymentKeyExpirySeconds {
		t.Errorf("expiration = %d", captured.Expiration)
	}
}

func TestBuildCheckoutURL(t *testing.T) {
	client := NewPaymobClient(&config.Config{
		PaymobBaseURL:  "https://accept.paymob.com/api",
		PaymobIframeID: "777",
		PaymobTimeout:  time.Second,
	})

	got := client.BuildCheckoutURL("PK")
	want := "https://accept.paymob.com/api/acceptance/iframes/777?payment_token=PK"
	if got != want {
		t.Fatalf("checkout url = %q, want %q", got, want)
	}
}

func TestRetryExhaustionOnServerErrors(t *testing.T) {
	var calls int32

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"detail":"down"}`, http.StatusServiceUnavailable)
	}))

	_, err := client.RegisterOrder(context.Background(), "T", 100, "EGP", "B1-x", nil)

	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != ErrKindUnavailable {
		t.Fatalf("expected gateway_unavailable, got %v", err)
	}
}

func TestRejectedErrorsAreNotRetried(t *testing.T) {
	var calls int32

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"message":"invalid amount"}`, http.StatusBadRequest)
	}))

	_, err := client.RegisterOrder(context.Background(), "T", -1, "EGP", "B1-x", nil)

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("4xx business rejections must not be retried, got %d attempts", n)
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != ErrKindRejected {
		t.Fatalf("expected gateway_rejected, got %v", err)
	}
	if !strings.Contains(gwErr.Body, "invalid amount") {
		t.Fatalf("business error body should surface, got %q", gwErr.Body)
	}
}

func TestUnauthorizedMapsToAuthenticationFailure(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))

	_, err := client.Authenticate(context.Background())

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != ErrKindAuthentication {
		t.Fatalf("expected authentication_failure, got %v", err)
	}
}

func TestVerifyTransactionUsesBearerAuth(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/tokens":
			_ = json.NewEncoder(w).Encode(map[string]any{"token": "T", "expires_in": 3600})
		case "/acceptance/transactions/999":
			if got := r.Header.Get("Authorization"); got != "Bearer T" {
				t.Errorf("Authorization = %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": 999, "amount_cents": 16700, "success": true, "pending": false,
				"order": map[string]any{"id": 555},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	details, err := client.VerifyTransaction(context.Background(), 999)
	if err != nil {
		t.Fatalf("verify transaction: %v", err)
	}
	if details.ID != 999 || !details.Success || details.Order.ID != 555 {
		t.Fatalf("unexpected details %+v", details)
	}
}
