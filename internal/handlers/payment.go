package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/skyfare/internal/config"
	"github.com/example/skyfare/internal/middleware"
	"github.com/example/skyfare/internal/models"
	"github.com/example/skyfare/internal/services"
)

// PaymentHandler exposes the payment-intent and callback endpoints.
type PaymentHandler struct {
	db       *gorm.DB
	payments *services.PaymentService
	cfg      *config.Config
}

func NewPaymentHandler(db *gorm.DB, payments *services.PaymentService, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{db: db, payments: payments, cfg: cfg}
}

type createIntentRequest struct {
	Amount    int64                `json:"amount"`
	Currency  string               `json:"currency"`
	BookingID string               `json:"bookingId"`
	Billing   services.BillingData `json:"billingData"`
}

// CreateIntent starts the gateway handshake and returns the hosted
// checkout URL for the caller's booking.
func (h *PaymentHandler) CreateIntent(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var req createIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid booking id")
	}

	var booking models.Booking
	if err := h.db.Where("id = ? AND user_id = ?", bookingID, userID).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "booking not found")
		}
		return err
	}

	amount := req.Amount
	if amount == 0 {
		amount = booking.TotalAmount
	}

	currency := req.Currency
	if currency == "" {
		currency = booking.Currency
	}

	result, err := h.payments.CreatePaymentIntent(c.Context(), services.PaymentIntent{
		BookingID:   bookingID,
		AmountCents: amount,
		Currency:    currency,
		Billing:     req.Billing,
		Description: fmt.Sprintf("Flight %s %s-%s (booking %s)", booking.FlightNumber, booking.Origin, booking.Destination, booking.Reference),
	})
	if err != nil {
		return writePaymentError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"paymentKey": result.PaymentKey,
		"orderId":    result.GatewayOrderID,
		"iframeUrl":  result.CheckoutURL,
		"amount":     result.AmountCents,
		"currency":   result.Currency,
	})
}

// Status returns the payment record for a gateway order id.
func (h *PaymentHandler) Status(c *fiber.Ctx) error {
	orderID, err := strconv.ParseInt(c.Params("orderId"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	payment, err := h.payments.Status(c.Context(), orderID)
	if err != nil {
		return writePaymentError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"payment": payment,
	})
}

// Callback receives Paymob's asynchronous transaction notification. The
// wire contract requires HTTP 200 regardless of how the event was
// classified; anything else triggers the gateway's own retry storm.
func (h *PaymentHandler) Callback(c *fiber.Ctx) error {
	var envelope services.CallbackEnvelope
	if err := c.BodyParser(&envelope); err != nil {
		log.Printf("[Paymob] unparseable callback body: %v", err)
		return c.JSON(fiber.Map{"success": false, "received": true})
	}

	receivedHMAC := c.Query("hmac")
	if receivedHMAC == "" {
		var carrier struct {
			HMAC string `json:"hmac"`
		}
		_ = c.BodyParser(&carrier)
		receivedHMAC = carrier.HMAC
	}

	outcome := h.payments.ProcessCallback(c.Context(), envelope, receivedHMAC)

	return c.JSON(fiber.Map{
		"success":  outcome == services.CallbackApplied || outcome == services.CallbackDuplicate || outcome == services.CallbackPendingNoop,
		"received": true,
	})
}

// CallbackRedirect is the browser's landing target after hosted checkout.
// It forwards the user to the frontend confirmation page.
func (h *PaymentHandler) CallbackRedirect(c *fiber.Ctx) error {
	success := c.Query("success") == "true" && c.Query("txn_response_code") == "APPROVED"

	status := "failed"
	if success {
		status = "success"
	}

	target := fmt.Sprintf("%s?status=%s&order_id=%s&amount_cents=%s",
		h.cfg.PaymentRedirectURL,
		status,
		url.QueryEscape(c.Query("order_id")),
		url.QueryEscape(c.Query("amount_cents")),
	)

	return c.Redirect(target, fiber.StatusSeeOther)
}

type refundRequest struct {
	OrderID     int64 `json:"order_id"`
	AmountCents int64 `json:"amount_cents"`
}

// Refund reverses a paid payment. Administrative endpoint.
func (h *PaymentHandler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	payment, err := h.payments.Refund(c.Context(), req.OrderID, req.AmountCents)
	if err != nil {
		return writePaymentError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"payment": payment,
	})
}

// writePaymentError maps payment-module errors onto HTTP responses for the
// booking backend's own clients. Gateway failures surface as a generic
// service-unavailable message; details stay in the logs.
func writePaymentError(c *fiber.Ctx, err error) error {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return fiber.NewError(fiber.StatusBadRequest, validationErr.Message)
	}

	var notFoundErr *services.NotFoundError
	if errors.As(err, &notFoundErr) {
		return fiber.NewError(fiber.StatusNotFound, notFoundErr.Message)
	}

	var gwErr *services.GatewayError
	if errors.As(err, &gwErr) {
		log.Printf("[Paymob] gateway error surfaced to client: %v", gwErr)
		if gwErr.Kind == services.ErrKindRejected {
			return fiber.NewError(fiber.StatusBadRequest, "payment request rejected by the payment service")
		}
		return fiber.NewError(fiber.StatusBadGateway, "payment service unavailable, try again")
	}

	return err
}
