package worker

import (
	"context"
	"log"
	"time"

	"github.com/example/skyfare/internal/services"
)

const reconcileBatchSize = 50

// Reconciler periodically settles stale pending payments by querying the
// gateway out of band. It covers the gap where an orchestration failure or
// a lost callback leaves a payment stuck in pending.
type Reconciler struct {
	payments *services.PaymentService
	store    services.PaymentStore
	interval time.Duration
	staleAge time.Duration
	logger   *log.Logger
	stopChan chan struct{}
}

func NewReconciler(payments *services.PaymentService, store services.PaymentStore, interval, staleAge time.Duration) *Reconciler {
	return &Reconciler{
		payments: payments,
		store:    store,
		interval: interval,
		staleAge: staleAge,
		logger:   log.New(log.Writer(), "[RECONCILER] ", log.LstdFlags),
		stopChan: make(chan struct{}),
	}
}

// Start runs reconciliation cycles until the context is cancelled or Stop
// is called.
func (r *Reconciler) Start(ctx context.Context) error {
	r.logger.Println("Starting payment reconciler...")

	// Run immediately on startup.
	r.runCycle(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Stopping reconciler due to context cancellation")
			return ctx.Err()

		case <-r.stopChan:
			r.logger.Println("Stopping reconciler on request")
			return nil

		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// Stop gracefully stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopChan)
}

func (r *Reconciler) runCycle(ctx context.Context) {
	cutoff := time.Now().Add(-r.staleAge)

	stale, err := r.store.FindStalePending(ctx, cutoff, reconcileBatchSize)
	if err != nil {
		r.logger.Printf("Failed to list stale pending payments: %v", err)
		return
	}

	if len(stale) == 0 {
		return
	}

	r.logger.Printf("Reconciling %d stale pending payments", len(stale))

	settled := 0
	for i := range stale {
		payment := &stale[i]
		outcome, err := r.payments.ReconcilePayment(ctx, payment)
		if err != nil {
			r.logger.Printf("Order %d: reconciliation failed: %v", payment.GatewayOrderID, err)
			continue
		}
		if outcome == services.CallbackApplied {
			settled++
		}
	}

	r.logger.Printf("Reconciliation cycle done: %d of %d settled", settled, len(stale))
}
