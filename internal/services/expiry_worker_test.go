package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/models"
)

func TestExpirySweepReleasesReservationWithoutPaidMarking(t *testing.T) {
	db := newServiceTestDB(t)
	ledger := NewLedgerService(db)
	reconciler := NewReconciler(db, NewOrderService(db), NewTelegramService("", ""))
	ctx := context.Background()

	order := createTestOrder(t, db)
	attempt := createPendingAttempt(t, ledger, &order.ID, models.DirectionCharge, "ws_CO_stale_1")

	// Age the attempt past the charge window.
	require.NoError(t, db.Exec(
		"UPDATE payment_attempts SET updated_at = ? WHERE id = ?",
		time.Now().Add(-5*time.Minute), attempt.ID,
	).Error)

	worker := NewExpiryWorker(ledger, reconciler, &config.Config{
		ChargeExpiry:        time.Minute,
		PayoutExpiry:        10 * time.Minute,
		ExpirySweepInterval: time.Second,
	})

	expired, err := worker.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	reloaded, err := ledger.Get(ctx, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusExpired, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)

	var reloadedOrder models.Order
	require.NoError(t, db.First(&reloadedOrder, "id = ?", order.ID).Error)
	require.False(t, reloadedOrder.IsPaid, "expiry must never mark the order paid")
	require.Nil(t, reloadedOrder.PaidAt)
	require.False(t, reloadedOrder.ReservationHeld, "expiry must release the held reservation")
}

func TestExpirySweepIgnoresFreshAndTerminalAttempts(t *testing.T) {
	db := newServiceTestDB(t)
	ledger := NewLedgerService(db)
	reconciler := NewReconciler(db, NewOrderService(db), NewTelegramService("", ""))
	ctx := context.Background()

	// Fresh pending attempt: inside the window.
	fresh := createPendingAttempt(t, ledger, nil, models.DirectionCharge, "ws_CO_fresh_1")

	// Stale but already settled.
	settled := createPendingAttempt(t, ledger, nil, models.DirectionCharge, "ws_CO_settled_1")
	_, err := ledger.Transition(ctx, settled.ID, models.StatusSucceeded, nil)
	require.NoError(t, err)
	require.NoError(t, db.Exec(
		"UPDATE payment_attempts SET updated_at = ? WHERE id = ?",
		time.Now().Add(-time.Hour), settled.ID,
	).Error)

	worker := NewExpiryWorker(ledger, reconciler, &config.Config{
		ChargeExpiry:        time.Minute,
		PayoutExpiry:        10 * time.Minute,
		ExpirySweepInterval: time.Second,
	})

	expired, err := worker.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, expired)

	reloaded, err := ledger.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, reloaded.Status)

	reloaded, err = ledger.Get(ctx, settled.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSucceeded, reloaded.Status)
}
