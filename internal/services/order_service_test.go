package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seludoto/dolesecommerce/internal/models"
)

func TestMarkOrderPaidFirstWins(t *testing.T) {
	db := newServiceTestDB(t)
	orders := NewOrderService(db)
	ctx := context.Background()

	order := createTestOrder(t, db)

	first, err := orders.MarkOrderPaid(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, first)

	second, err := orders.MarkOrderPaid(ctx, order.ID)
	require.NoError(t, err)
	require.False(t, second, "a second reconciliation run must not report the first win again")

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	require.True(t, reloaded.IsPaid)
	require.NotNil(t, reloaded.PaidAt)
	require.False(t, reloaded.ReservationHeld)
}

func TestReleaseReservationIdempotent(t *testing.T) {
	db := newServiceTestDB(t)
	orders := NewOrderService(db)
	ctx := context.Background()

	order := createTestOrder(t, db)

	require.NoError(t, orders.ReleaseReservation(ctx, order.ID))
	require.NoError(t, orders.ReleaseReservation(ctx, order.ID))

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	require.False(t, reloaded.ReservationHeld)
	require.False(t, reloaded.IsPaid)
}
