package services

import (
	"context"
	"errors"
	"log"
	"time"
)

// withRetry runs fn up to attempts times, sleeping 2^n * base between
// attempts (2s then 4s with a 1s base and three attempts). A *GatewayError that reports
// itself non-retryable short-circuits immediately. The last error is
// returned once the budget is exhausted.
//
// This applies only to outbound gateway calls; callback processing is
// receive-only and must never be retried from our side.
func withRetry(ctx context.Context, op string, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var gwErr *GatewayError
		if errors.As(lastErr, &gwErr) && !gwErr.Retryable() {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		delay := base << attempt // 2^attempt * base
		log.Printf("[Paymob] %s attempt %d/%d failed: %v (retrying in %v)", op, attempt, attempts, lastErr, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
