package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/seludoto/dolesecommerce/internal/models"
	"github.com/seludoto/dolesecommerce/internal/services"
)

func newCallbackApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db := newHandlerTestDB(t)
	ledger := services.NewLedgerService(db)
	reconciler := services.NewReconciler(db, services.NewOrderService(db), services.NewTelegramService("", ""))
	handler := NewCallbackHandler(services.NewCallbackService(ledger, reconciler, nil))

	app := fiber.New()
	app.Post("/callbacks/mpesa/stk", handler.MpesaStk)
	app.Post("/callbacks/pi", handler.Pi)
	return app, db
}

func createPendingPiAttempt(t *testing.T, db *gorm.DB, externalID string) *models.PaymentAttempt {
	t.Helper()
	ctx := context.Background()
	ledger := services.NewLedgerService(db)

	attempt := &models.PaymentAttempt{
		Provider:  models.ProviderPi,
		Direction: models.DirectionCharge,
		Amount:    decimal.RequireFromString("31.83"),
		Currency:  "PI",
	}
	require.NoError(t, ledger.CreateAttempt(ctx, attempt))

	accepted, err := ledger.AcceptByProvider(ctx, attempt.ID, externalID, "0", "accepted")
	require.NoError(t, err)
	return accepted
}

func decodeAck(t *testing.T, body io.Reader) (int, string) {
	t.Helper()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	var ack struct {
		ResultCode int    `json:"ResultCode"`
		ResultDesc string `json:"ResultDesc"`
	}
	require.NoError(t, json.Unmarshal(raw, &ack))
	return ack.ResultCode, ack.ResultDesc
}

func TestCallbackHandlerRejectsMalformedStkPayload(t *testing.T) {
	app, _ := newCallbackApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/callbacks/mpesa/stk", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCallbackHandlerAcknowledgesPendingPiNotification(t *testing.T) {
	app, db := newCallbackApp(t)
	attempt := createPendingPiAttempt(t, db, "pay_1")

	req := httptest.NewRequest(fiber.MethodPost, "/callbacks/pi", strings.NewReader(`{"identifier":"pay_1","status":"pending"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	code, desc := decodeAck(t, resp.Body)
	require.Equal(t, 0, code)
	require.Equal(t, "Accepted", desc)

	// The notification is kept as evidence but changes nothing.
	var reloaded models.PaymentAttempt
	require.NoError(t, db.First(&reloaded, "id = ?", attempt.ID).Error)
	require.Equal(t, models.StatusPending, reloaded.Status)

	var events []models.CallbackEvent
	require.NoError(t, db.Where("external_id = ?", "pay_1").Find(&events).Error)
	require.Len(t, events, 1)
	require.False(t, events[0].Processed)
}

func TestCallbackHandlerAcknowledgesUnknownTransaction(t *testing.T) {
	app, _ := newCallbackApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/callbacks/pi", strings.NewReader(`{"identifier":"pay_never_created","status":"completed"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "unknown transactions are logged, never bounced back to the provider")

	code, _ := decodeAck(t, resp.Body)
	require.Equal(t, 0, code)
}
