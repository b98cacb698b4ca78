package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/skyfare/internal/models"
)

// PaymentStore abstracts payment persistence so the orchestration and
// callback logic stay testable without a real database.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID int64) (*models.Payment, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error)
	// UpdateStatus applies fields to the payment only when its current
	// status equals expectedPrior, and reports whether a row changed.
	// The conditional write is what keeps two near-simultaneous callback
	// deliveries from both transitioning the same record.
	UpdateStatus(ctx context.Context, paymentID uuid.UUID, expectedPrior, next string, fields map[string]any) (bool, error)
	AppendEvent(ctx context.Context, event *models.PaymentEvent) error
	FindStalePending(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
	// LatestEventTransactionID returns the most recent non-zero gateway
	// transaction id seen for a payment, or zero when none was ever
	// reported. Used by reconciliation for records the callback path
	// only ever saw in a pending state.
	LatestEventTransactionID(ctx context.Context, paymentID uuid.UUID) (int64, error)
}

// Gateway is the slice of the Paymob client the payment service drives.
type Gateway interface {
	Authenticate(ctx context.Context) (string, error)
	RegisterOrder(ctx context.Context, authToken string, amountCents int64, currency, merchantOrderID string, items []OrderItem) (*RegisteredOrder, error)
	RequestPaymentKey(ctx context.Context, authToken string, gatewayOrderID, amountCents int64, currency string, billing BillingData) (string, error)
	BuildCheckoutURL(paymentKeyToken string) string
	VerifyTransaction(ctx context.Context, transactionID int64) (*TransactionDetails, error)
	Refund(ctx context.Context, transactionID, amountCents int64) (int64, error)
}

// PaymentNotifier receives exactly one notification per applied status
// transition; duplicate callback deliveries must never re-notify.
type PaymentNotifier interface {
	NotifyPaymentResult(payment *models.Payment, succeeded bool)
}

// PaymentService orchestrates the create-intent handshake and consumes
// gateway callbacks, advancing the persisted payment state machine.
type PaymentService struct {
	gateway    Gateway
	store      PaymentStore
	notifier   PaymentNotifier
	hmacSecret string
}

func NewPaymentService(gateway Gateway, store PaymentStore, notifier PaymentNotifier, hmacSecret string) *PaymentService {
	return &PaymentService{
		gateway:    gateway,
		store:      store,
		notifier:   notifier,
		hmacSecret: hmacSecret,
	}
}

// PaymentIntent is the input to creating one checkout attempt. It is never
// persisted itself; a successful order registration produces the durable
// Payment record.
type PaymentIntent struct {
	BookingID   uuid.UUID
	AmountCents int64
	Currency    string
	Billing     BillingData
	Description string
}

// PaymentIntentResult is what the frontend needs to hand the user over to
// the hosted checkout page.
type PaymentIntentResult struct {
	CheckoutURL    string `json:"iframe_url"`
	PaymentKey     string `json:"payment_key"`
	GatewayOrderID int64  `json:"order_id"`
	AmountCents    int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// CreatePaymentIntent runs the authenticate -> register-order ->
// payment-key handshake. The Payment record is created in `pending` the
// moment order registration succeeds; a later step failing leaves that
// record in place (the gateway-side order exists too) and the caller
// retries the whole flow with a fresh merchant order id.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, intent PaymentIntent) (*PaymentIntentResult, error) {
	if intent.AmountCents <= 0 {
		return nil, &ValidationError{Message: "amount must be greater than zero"}
	}
	if intent.BookingID == uuid.Nil {
		return nil, &ValidationError{Message: "booking id is required"}
	}

	currency := strings.ToUpper(strings.TrimSpace(intent.Currency))
	if currency == "" {
		currency = "EGP"
	}

	token, err := s.gateway.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("payment intent for booking %s: %w", intent.BookingID, err)
	}

	description := intent.Description
	if description == "" {
		description = "Flight booking"
	}

	merchantOrderID := MerchantOrderID(intent.BookingID.String())
	order, err := s.gateway.RegisterOrder(ctx, token, intent.AmountCents, currency, merchantOrderID, []OrderItem{
		{Name: description, AmountCents: intent.AmountCents, Quantity: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("payment intent for booking %s: %w", intent.BookingID, err)
	}

	payment := &models.Payment{
		BookingID:       intent.BookingID,
		GatewayOrderID:  order.GatewayOrderID,
		MerchantOrderID: order.MerchantOrderID,
		AmountCents:     intent.AmountCents,
		Currency:        currency,
		Status:          models.PaymentStatusPending,
		PaymentMethod:   "card",
	}
	if err := s.store.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist payment for booking %s: %w", intent.BookingID, err)
	}

	paymentKey, err := s.gateway.RequestPaymentKey(ctx, token, order.GatewayOrderID, intent.AmountCents, currency, intent.Billing)
	if err != nil {
		// The pending record stays; the reconciler or a later callback
		// settles it.
		return nil, fmt.Errorf("payment intent for booking %s: %w", intent.BookingID, err)
	}

	return &PaymentIntentResult{
		CheckoutURL:    s.gateway.BuildCheckoutURL(paymentKey),
		PaymentKey:     paymentKey,
		GatewayOrderID: order.GatewayOrderID,
		AmountCents:    intent.AmountCents,
		Currency:       currency,
	}, nil
}

// CallbackEnvelope is the body Paymob POSTs to the webhook endpoint.
type CallbackEnvelope struct {
	Type string               `json:"type"`
	Obj  *CallbackTransaction `json:"obj"`
}

// ProcessCallback consumes one inbound webhook delivery. Whatever the
// outcome, the HTTP layer acknowledges with 200; the returned
// classification drives logging and the audit trail only.
func (s *PaymentService) ProcessCallback(ctx context.Context, envelope CallbackEnvelope, receivedHMAC string) CallbackOutcome {
	if envelope.Obj == nil {
		log.Printf("[Paymob] malformed callback: missing obj payload")
		s.appendEvent(ctx, nil, 0, 0, models.PaymentEventMalformed, nil)
		return CallbackMalformed
	}

	txn := envelope.Obj
	rawPayload, _ := json.Marshal(txn)

	if !VerifyCallbackHMAC(txn, receivedHMAC, s.hmacSecret) {
		log.Printf("[Paymob] SECURITY: invalid HMAC on callback for order %d, transaction %d — event dropped", txn.Order.ID, txn.ID)
		s.appendEvent(ctx, nil, txn.Order.ID, txn.ID, models.PaymentEventInvalidSignature, rawPayload)
		return CallbackInvalidSignature
	}

	payment, err := s.store.FindByGatewayOrderID(ctx, txn.Order.ID)
	if err != nil {
		log.Printf("[Paymob] callback for unknown order %d (transaction %d): %v", txn.Order.ID, txn.ID, err)
		s.appendEvent(ctx, nil, txn.Order.ID, txn.ID, models.PaymentEventUnknownOrder, rawPayload)
		return CallbackUnknownOrder
	}

	if payment.GatewayTransactionID != 0 && payment.GatewayTransactionID == txn.ID {
		log.Printf("[Paymob] duplicate callback for order %d, transaction %d — acknowledged without side effects", txn.Order.ID, txn.ID)
		s.appendEvent(ctx, &payment.ID, txn.Order.ID, txn.ID, models.PaymentEventDuplicate, rawPayload)
		return CallbackDuplicate
	}

	outcome, _ := s.applyTransaction(ctx, payment, txn.ID, txn.Success, txn.Pending, txn.ErrorOccured, txn.SourceData.Type, rawPayload)
	return outcome
}

// applyTransaction classifies a transaction result and applies the state
// transition. Shared between the callback path and reconciliation.
func (s *PaymentService) applyTransaction(ctx context.Context, payment *models.Payment, txnID int64, success, pending, errorOccured bool, sourceType string, rawPayload []byte) (CallbackOutcome, error) {
	if pending && !errorOccured {
		log.Printf("[Paymob] order %d transaction %d still pending", payment.GatewayOrderID, txnID)
		s.appendEvent(ctx, &payment.ID, payment.GatewayOrderID, txnID, models.PaymentEventPendingNoop, rawPayload)
		return CallbackPendingNoop, nil
	}

	next := models.PaymentStatusFailed
	if success && !errorOccured {
		next = models.PaymentStatusPaid
	}

	method := sourceType
	if method == "" {
		method = "card"
	}

	applied, err := s.store.UpdateStatus(ctx, payment.ID, models.PaymentStatusPending, next, map[string]any{
		"gateway_transaction_id": txnID,
		"payment_method":         method,
		"gateway_response":       rawPayload,
	})
	if err != nil {
		log.Printf("[Paymob] failed to transition order %d to %s: %v", payment.GatewayOrderID, next, err)
		return CallbackApplied, err
	}

	if !applied {
		// Another delivery won the race or the record already left
		// pending; the idempotency contract says ack and move on.
		log.Printf("[Paymob] order %d already settled, transaction %d not applied", payment.GatewayOrderID, txnID)
		s.appendEvent(ctx, &payment.ID, payment.GatewayOrderID, txnID, models.PaymentEventDuplicate, rawPayload)
		return CallbackDuplicate, nil
	}

	log.Printf("[Paymob] order %d transitioned %s -> %s (transaction %d)", payment.GatewayOrderID, models.PaymentStatusPending, next, txnID)
	s.appendEvent(ctx, &payment.ID, payment.GatewayOrderID, txnID, models.PaymentEventApplied, rawPayload)

	if s.notifier != nil {
		settled := *payment
		settled.Status = next
		settled.GatewayTransactionID = txnID
		settled.PaymentMethod = method
		go s.notifier.NotifyPaymentResult(&settled, next == models.PaymentStatusPaid)
	}

	return CallbackApplied, nil
}

// ReconcilePayment settles a stale pending payment by asking the gateway
// for the transaction's current state out of band.
func (s *PaymentService) ReconcilePayment(ctx context.Context, payment *models.Payment) (CallbackOutcome, error) {
	if payment.Status != models.PaymentStatusPending {
		return CallbackPendingNoop, nil
	}
	txnID := payment.GatewayTransactionID
	if txnID == 0 {
		txnID, _ = s.store.LatestEventTransactionID(ctx, payment.ID)
	}
	if txnID == 0 {
		// No transaction has ever been reported for this order; nothing
		// to verify against yet.
		return CallbackPendingNoop, nil
	}

	details, err := s.gateway.VerifyTransaction(ctx, txnID)
	if err != nil {
		return CallbackPendingNoop, err
	}

	raw, _ := json.Marshal(details)
	return s.applyTransaction(ctx, payment, details.ID, details.Success, details.Pending, details.ErrorOccured, details.SourceData.Type, raw)
}

// Refund reverses a paid payment and moves it to refunded.
func (s *PaymentService) Refund(ctx context.Context, gatewayOrderID, amountCents int64) (*models.Payment, error) {
	payment, err := s.store.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("payment for gateway order %d not found", gatewayOrderID)}
	}

	if payment.Status != models.PaymentStatusPaid {
		return nil, &ValidationError{Message: fmt.Sprintf("cannot refund payment in status %q", payment.Status)}
	}

	if amountCents <= 0 || amountCents > payment.AmountCents {
		return nil, &ValidationError{Message: "invalid refund amount"}
	}

	refundID, err := s.gateway.Refund(ctx, payment.GatewayTransactionID, amountCents)
	if err != nil {
		return nil, fmt.Errorf("refund order %d: %w", gatewayOrderID, err)
	}

	applied, err := s.store.UpdateStatus(ctx, payment.ID, models.PaymentStatusPaid, models.PaymentStatusRefunded, nil)
	if err != nil {
		return nil, fmt.Errorf("persist refund for order %d: %w", gatewayOrderID, err)
	}
	if !applied {
		return nil, &ValidationError{Message: "payment left paid status during refund"}
	}

	log.Printf("[Paymob] order %d refunded (refund transaction %d)", gatewayOrderID, refundID)

	payment.Status = models.PaymentStatusRefunded
	return payment, nil
}

// Status returns the current payment record for a gateway order.
func (s *PaymentService) Status(ctx context.Context, gatewayOrderID int64) (*models.Payment, error) {
	payment, err := s.store.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("payment for gateway order %d not found", gatewayOrderID)}
	}
	return payment, nil
}

func (s *PaymentService) appendEvent(ctx context.Context, paymentID *uuid.UUID, gatewayOrderID, txnID int64, kind string, payload []byte) {
	event := &models.PaymentEvent{
		PaymentID:      paymentID,
		GatewayOrderID: gatewayOrderID,
		TransactionID:  txnID,
		Kind:           kind,
		Payload:        payload,
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		log.Printf("[Paymob] failed to append %s payment event for order %d: %v", kind, gatewayOrderID, err)
	}
}
