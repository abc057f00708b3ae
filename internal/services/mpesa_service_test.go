package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/models"
)

func TestMapStkResultCode(t *testing.T) {
	var tests = []struct {
		code     string
		expected models.PaymentStatus
	}{
		{code: "0", expected: models.StatusSucceeded},
		{code: "", expected: models.StatusPending},
		{code: "1032", expected: models.StatusFailed},
		{code: "1037", expected: models.StatusFailed},
		{code: "2001", expected: models.StatusFailed},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, mapStkResultCode(tt.code), "code %q", tt.code)
	}
}

func TestMpesaCallbackURLEmbedsSecret(t *testing.T) {
	svc := NewMpesaService(nil, nil, &config.Config{
		CallbackBaseURL: "https://pay.example.com",
		WebhookSecret:   "s3cret",
	})

	require.Equal(t, "https://pay.example.com/api/callbacks/s3cret/mpesa/stk", svc.callbackURL("mpesa/stk"))
	require.Equal(t, "https://pay.example.com/api/callbacks/s3cret/mpesa/b2c-result", svc.callbackURL("mpesa/b2c-result"))
}

func TestMpesaRequestPaymentRejectsBadInputBeforeAnySideEffect(t *testing.T) {
	// ledger and client are nil: a panic would mean validation leaked past
	// the input checks.
	svc := NewMpesaService(nil, nil, &config.Config{})
	ctx := context.Background()

	_, err := svc.RequestPayment(ctx, ChargeRequest{Amount: decimal.Zero, Phone: "0712345678"})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = svc.RequestPayment(ctx, ChargeRequest{Amount: decimal.RequireFromString("10"), Phone: "12345"})
	require.ErrorAs(t, err, &validation)

	_, err = svc.SendPayout(ctx, PayoutRequest{Amount: decimal.RequireFromString("10"), Phone: "not-a-phone"})
	require.ErrorAs(t, err, &validation)
}
