package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/seludoto/dolesecommerce/internal/models"
)

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.PaymentAttempt{}, &models.CallbackEvent{}))
	return db
}

func createTestOrder(t *testing.T, db *gorm.DB) *models.Order {
	t.Helper()

	order := &models.Order{
		UserID:          uuid.New(),
		OrderNumber:     "#" + uuid.NewString()[:8],
		TotalAmount:     decimal.RequireFromString("150.00"),
		Currency:        "KES",
		ReservationHeld: true,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func createPendingAttempt(t *testing.T, ledger *LedgerService, orderID *uuid.UUID, direction models.PaymentDirection, externalID string) *models.PaymentAttempt {
	t.Helper()
	ctx := context.Background()

	attempt := &models.PaymentAttempt{
		OrderID:   orderID,
		Provider:  models.ProviderMpesa,
		Direction: direction,
		Amount:    decimal.RequireFromString("150.00"),
		Currency:  "KES",
		Phone:     "254712345678",
	}
	require.NoError(t, ledger.CreateAttempt(ctx, attempt))

	accepted, err := ledger.AcceptByProvider(ctx, attempt.ID, externalID, "0", "accepted")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, accepted.Status)
	return accepted
}

func TestLedgerTransitionEnforcesSingleWinner(t *testing.T) {
	db := newServiceTestDB(t)
	ledger := NewLedgerService(db)
	ctx := context.Background()

	attempt := createPendingAttempt(t, ledger, nil, models.DirectionCharge, "ws_CO_cas_1")

	settled, err := ledger.Transition(ctx, attempt.ID, models.StatusSucceeded, map[string]any{
		"receipt_number": "QK12ABCD",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusSucceeded, settled.Status)
	require.Equal(t, "QK12ABCD", settled.ReceiptNumber)
	require.NotNil(t, settled.CompletedAt)

	// A losing writer must get InvalidTransitionError and change nothing.
	_, err = ledger.Transition(ctx, attempt.ID, models.StatusFailed, nil)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	reloaded, err := ledger.Get(ctx, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSucceeded, reloaded.Status)
	require.Equal(t, "QK12ABCD", reloaded.ReceiptNumber)
}

func TestAcceptByProviderRejectsEmptyExternalID(t *testing.T) {
	db := newServiceTestDB(t)
	ledger := NewLedgerService(db)
	ctx := context.Background()

	attempt := &models.PaymentAttempt{
		Provider:  models.ProviderMpesa,
		Direction: models.DirectionCharge,
		Amount:    decimal.RequireFromString("10.00"),
		Currency:  "KES",
	}
	require.NoError(t, ledger.CreateAttempt(ctx, attempt))

	_, err := ledger.AcceptByProvider(ctx, attempt.ID, "", "0", "accepted")
	var reqErr *ProviderRequestError
	require.ErrorAs(t, err, &reqErr)

	reloaded, err := ledger.Get(ctx, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCreated, reloaded.Status)
	require.Nil(t, reloaded.ExternalID)
}

func TestFindByExternalIDUnknown(t *testing.T) {
	db := newServiceTestDB(t)
	ledger := NewLedgerService(db)

	_, err := ledger.FindByExternalID(context.Background(), "ws_CO_never_created")
	var unknown *UnknownTransactionError
	require.ErrorAs(t, err, &unknown)
}
