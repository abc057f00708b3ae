package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seludoto/dolesecommerce/internal/models"
)

// ChargeRequest is a provider-agnostic request to collect money from a
// counterparty (STK push for mobile money, payment creation for crypto).
type ChargeRequest struct {
	OrderID     *uuid.UUID
	Amount      decimal.Decimal
	Phone       string
	Reference   string
	Description string
}

// PayoutRequest is a provider-agnostic request to send money out.
type PayoutRequest struct {
	OrderID  *uuid.UUID
	Amount   decimal.Decimal
	Phone    string
	Remarks  string
	Occasion string
}

// ProviderStatus is the result of a synchronous status poll, used as a
// fallback when no callback has arrived within the expected window.
type ProviderStatus struct {
	ExternalID string
	ResultCode string
	ResultDesc string
	Settled    bool
	Status     models.PaymentStatus
}

// Provider is the capability every payment provider variant implements, so
// the ledger and callback receiver stay provider-agnostic. Variants that do
// not support an operation return a ValidationError.
type Provider interface {
	RequestPayment(ctx context.Context, req ChargeRequest) (*models.PaymentAttempt, error)
	SendPayout(ctx context.Context, req PayoutRequest) (*models.PaymentAttempt, error)
	QueryStatus(ctx context.Context, externalID string) (*ProviderStatus, error)
}

// Registry maps provider names to their implementations.
type Registry map[models.PaymentProvider]Provider

// For returns the provider registered under the given name.
func (r Registry) For(name models.PaymentProvider) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}
