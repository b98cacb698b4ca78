package services

import "fmt"

// GatewayErrorKind classifies failures of outbound gateway calls.
type GatewayErrorKind string

const (
	// ErrKindAuthentication means the gateway rejected our API key.
	ErrKindAuthentication GatewayErrorKind = "authentication_failure"
	// ErrKindNetwork covers timeouts and connection-level failures.
	ErrKindNetwork GatewayErrorKind = "network_failure"
	// ErrKindRejected is a 4xx with a business error body; retrying cannot help.
	ErrKindRejected GatewayErrorKind = "gateway_rejected"
	// ErrKindUnavailable is a 5xx from the gateway.
	ErrKindUnavailable GatewayErrorKind = "gateway_unavailable"
)

// GatewayError is a typed failure from a Paymob API call.
type GatewayError struct {
	Kind   GatewayErrorKind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("paymob %s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("paymob %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("paymob %s: %s", e.Op, e.Kind)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Retryable reports whether the retry policy should attempt the call again.
// Authentication failures stay retryable: a transient auth-service hiccup is
// indistinguishable from a bad key without trusting the response body.
func (e *GatewayError) Retryable() bool {
	return e.Kind != ErrKindRejected
}

// CallbackOutcome classifies how one inbound gateway callback was handled.
// Every outcome is acknowledged with HTTP 200; the classification drives
// logging and the audit trail, never the wire response.
type CallbackOutcome string

const (
	CallbackApplied          CallbackOutcome = "applied"
	CallbackPendingNoop      CallbackOutcome = "pending_noop"
	CallbackDuplicate        CallbackOutcome = "duplicate"
	CallbackInvalidSignature CallbackOutcome = "invalid_signature"
	CallbackUnknownOrder     CallbackOutcome = "unknown_order"
	CallbackMalformed        CallbackOutcome = "malformed"
)

// NotFoundError signals a missing local record.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError signals rejected caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
