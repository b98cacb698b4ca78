package models

import (
	"github.com/google/uuid"
)

// Payment statuses. Transitions are one-way: pending can move to paid or
// failed via a verified gateway callback, and paid can move to refunded
// through an administrative refund. failed and refunded are terminal.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Payment is the durable record of one payment attempt against a booking.
// A row is created the moment an order is registered with the gateway and
// is never deleted.
type Payment struct {
	BaseModel
	BookingID            uuid.UUID `gorm:"type:uuid;index" json:"booking_id"`
	Booking              *Booking  `json:"booking,omitempty"`
	GatewayOrderID       int64     `gorm:"uniqueIndex" json:"gateway_order_id"`
	GatewayTransactionID int64     `json:"gateway_transaction_id"`
	MerchantOrderID      string    `json:"merchant_order_id"`
	AmountCents          int64     `json:"amount_cents"`
	Currency             string    `json:"currency"`
	Status               string    `gorm:"index" json:"status"`
	PaymentMethod        string    `json:"payment_method"`
	GatewayResponse      []byte    `gorm:"type:jsonb" json:"gateway_response,omitempty"`
}

// PaymentEvent is an append-only audit log entry for every callback the
// gateway delivers, including duplicates and rejected deliveries.
type PaymentEvent struct {
	BaseModel
	PaymentID      *uuid.UUID `gorm:"type:uuid;index" json:"payment_id"`
	GatewayOrderID int64      `gorm:"index" json:"gateway_order_id"`
	TransactionID  int64      `json:"transaction_id"`
	Kind           string     `json:"kind"`
	Payload        []byte     `gorm:"type:jsonb" json:"payload,omitempty"`
}

// PaymentEvent kinds.
const (
	PaymentEventApplied          = "applied"
	PaymentEventPendingNoop      = "pending_noop"
	PaymentEventDuplicate        = "duplicate"
	PaymentEventInvalidSignature = "invalid_signature"
	PaymentEventUnknownOrder     = "unknown_order"
	PaymentEventMalformed        = "malformed"
)
