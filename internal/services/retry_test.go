package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := &GatewayError{Kind: ErrKindUnavailable, Op: "register-order", Status: 503}

	err := withRetry(context.Background(), "register-order", 3, time.Millisecond, func() error {
		calls++
		return wantErr
	})

	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != ErrKindUnavailable {
		t.Fatalf("expected last unavailable error to propagate, got %v", err)
	}
}

func TestWithRetryExponentialDelays(t *testing.T) {
	base := 10 * time.Millisecond
	var stamps []time.Time

	_ = withRetry(context.Background(), "authenticate", 3, base, func() error {
		stamps = append(stamps, time.Now())
		return &GatewayError{Kind: ErrKindNetwork, Op: "authenticate", Err: errors.New("timeout")}
	})

	if len(stamps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(stamps))
	}

	// Delays are 2^1*base then 2^2*base; allow scheduling slack but
	// require the configured floor and a monotonic increase.
	gap1 := stamps[1].Sub(stamps[0])
	gap2 := stamps[2].Sub(stamps[1])

	if gap1 < 2*base {
		t.Errorf("first delay %v below expected %v", gap1, 2*base)
	}
	if gap2 < 4*base {
		t.Errorf("second delay %v below expected %v", gap2, 4*base)
	}
	if gap2 <= gap1 {
		t.Errorf("delays should increase, got %v then %v", gap1, gap2)
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), "payment-key", 3, time.Millisecond, func() error {
		calls++
		return &GatewayError{Kind: ErrKindRejected, Op: "payment-key", Status: 400, Body: "invalid amount"}
	})

	if calls != 1 {
		t.Fatalf("rejected gateway errors must not be retried, got %d attempts", calls)
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != ErrKindRejected {
		t.Fatalf("expected rejected error, got %v", err)
	}
}

func TestWithRetrySucceedsMidway(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), "refund", 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return &GatewayError{Kind: ErrKindNetwork, Op: "refund", Err: errors.New("reset")}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success after one retry, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, "authenticate", 3, time.Second, func() error {
		calls++
		return &GatewayError{Kind: ErrKindNetwork, Op: "authenticate", Err: errors.New("timeout")}
	})

	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
