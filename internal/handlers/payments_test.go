package handlers

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/seludoto/dolesecommerce/internal/models"
	"github.com/seludoto/dolesecommerce/internal/services"
)

func newHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.PaymentAttempt{}, &models.CallbackEvent{}))
	return db
}

func TestQueryRejectsPayoutAttempts(t *testing.T) {
	db := newHandlerTestDB(t)
	ledger := services.NewLedgerService(db)
	ctx := context.Background()

	attempt := &models.PaymentAttempt{
		Provider:  models.ProviderMpesa,
		Direction: models.DirectionPayout,
		Amount:    decimal.RequireFromString("500.00"),
		Currency:  "KES",
		Phone:     "254712345678",
	}
	require.NoError(t, ledger.CreateAttempt(ctx, attempt))
	_, err := ledger.AcceptByProvider(ctx, attempt.ID, "AG_conversation_1", "0", "accepted")
	require.NoError(t, err)

	handler := NewPaymentHandler(nil, services.Registry{}, ledger, services.NewOrderService(db), nil)

	app := fiber.New()
	app.Post("/payments/:id/query", handler.Query)

	req := httptest.NewRequest(fiber.MethodPost, "/payments/"+attempt.ID.String()+"/query", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode, "B2C outcomes cannot be polled through the STK query endpoint")
}

func TestQueryShortCircuitsTerminalAttempts(t *testing.T) {
	db := newHandlerTestDB(t)
	ledger := services.NewLedgerService(db)
	ctx := context.Background()

	attempt := &models.PaymentAttempt{
		Provider:  models.ProviderMpesa,
		Direction: models.DirectionCharge,
		Amount:    decimal.RequireFromString("150.00"),
		Currency:  "KES",
		Phone:     "254712345678",
	}
	require.NoError(t, ledger.CreateAttempt(ctx, attempt))
	_, err := ledger.AcceptByProvider(ctx, attempt.ID, "ws_CO_done_1", "0", "accepted")
	require.NoError(t, err)
	_, err = ledger.Transition(ctx, attempt.ID, models.StatusSucceeded, nil)
	require.NoError(t, err)

	// An empty registry would 400 on a provider lookup; a terminal attempt
	// must answer before any provider is consulted.
	handler := NewPaymentHandler(nil, services.Registry{}, ledger, services.NewOrderService(db), nil)

	app := fiber.New()
	app.Post("/payments/:id/query", handler.Query)

	req := httptest.NewRequest(fiber.MethodPost, "/payments/"+attempt.ID.String()+"/query", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
