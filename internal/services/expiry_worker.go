package services

import (
	"context"
	"log"
	"time"

	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/models"
)

// ExpiryWorker sweeps pending attempts whose window elapsed without a
// callback or successful poll and expires them. Push payments get a short
// window; payouts a longer one. A sweep losing to a late callback is
// harmless: the callback's transition wins the CAS and the sweep logs and
// moves on.
type ExpiryWorker struct {
	ledger     *LedgerService
	reconciler *Reconciler

	chargeWindow time.Duration
	payoutWindow time.Duration
	interval     time.Duration
}

func NewExpiryWorker(ledger *LedgerService, reconciler *Reconciler, cfg *config.Config) *ExpiryWorker {
	return &ExpiryWorker{
		ledger:       ledger,
		reconciler:   reconciler,
		chargeWindow: cfg.ChargeExpiry,
		payoutWindow: cfg.PayoutExpiry,
		interval:     cfg.ExpirySweepInterval,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.Sweep(ctx); err != nil {
				log.Printf("[Expiry] sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[Expiry] expired %d stale attempts", n)
			}
		}
	}
}

// Sweep expires stale pending attempts for both directions and returns how
// many were expired.
func (w *ExpiryWorker) Sweep(ctx context.Context) (int, error) {
	expired := 0

	windows := []struct {
		direction models.PaymentDirection
		window    time.Duration
	}{
		{models.DirectionCharge, w.chargeWindow},
		{models.DirectionPayout, w.payoutWindow},
	}

	for _, wnd := range windows {
		stale, err := w.ledger.StalePending(ctx, wnd.direction, wnd.window)
		if err != nil {
			return expired, err
		}

		for _, attempt := range stale {
			updated, err := w.ledger.Expire(ctx, attempt.ID)
			if err != nil {
				// Lost to a late callback or poll; nothing to do.
				continue
			}
			w.reconciler.Reconcile(ctx, updated)
			expired++
		}
	}

	return expired, nil
}
