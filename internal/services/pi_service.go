package services

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/models"
)

// PiService is the crypto Provider variant. Amounts come in as fiat (USD)
// and are converted through the versioned exchange-rate set at quote time;
// the quoted rate is pinned on the attempt and never re-read mid-flight.
type PiService struct {
	client        *PiClient
	rates         *RatesService
	ledger        *LedgerService
	reconciler    *Reconciler
	walletAddress string
}

func NewPiService(client *PiClient, rates *RatesService, ledger *LedgerService, reconciler *Reconciler, cfg *config.Config) *PiService {
	return &PiService{
		client:        client,
		rates:         rates,
		ledger:        ledger,
		reconciler:    reconciler,
		walletAddress: cfg.PiWalletAddress,
	}
}

// Quote converts a fiat amount to Pi at the latest rate.
func (s *PiService) Quote(ctx context.Context, fiat decimal.Decimal) (decimal.Decimal, *models.ExchangeRate, error) {
	return s.rates.Quote(ctx, fiat)
}

// RequestPayment creates a Pi payment for a fiat amount. The attempt is
// recorded in Pi with the rate it was quoted at.
func (s *PiService) RequestPayment(ctx context.Context, req ChargeRequest) (*models.PaymentAttempt, error) {
	piAmount, rate, err := s.rates.Quote(ctx, req.Amount)
	if err != nil {
		return nil, err
	}

	attempt := &models.PaymentAttempt{
		OrderID:       req.OrderID,
		Provider:      models.ProviderPi,
		Direction:     models.DirectionCharge,
		Amount:        piAmount,
		Currency:      "PI",
		WalletAddress: s.walletAddress,
		Reference:     req.Reference,
		Description:   req.Description,
		QuotedRate:    &rate.Rate,
	}
	if err := s.ledger.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	metadata := map[string]any{"reference": req.Reference}
	if req.OrderID != nil {
		metadata["order_id"] = req.OrderID.String()
	}

	payment, err := s.client.CreatePayment(ctx, piAmount, req.Description, metadata)
	if err != nil {
		s.rejectAttempt(ctx, attempt, err.Error())
		return attempt, err
	}

	return s.ledger.AcceptByProvider(ctx, attempt.ID, payment.Identifier, "", "payment created")
}

// SendPayout is not supported by the Pi variant.
func (s *PiService) SendPayout(ctx context.Context, req PayoutRequest) (*models.PaymentAttempt, error) {
	return nil, &ValidationError{Reason: "pi payouts are not supported"}
}

// QueryStatus maps the provider-side payment state onto the ledger
// vocabulary.
func (s *PiService) QueryStatus(ctx context.Context, externalID string) (*ProviderStatus, error) {
	payment, err := s.client.GetPayment(ctx, externalID)
	if err != nil {
		return nil, err
	}

	status := mapPiPayment(payment)
	ps := &ProviderStatus{
		ExternalID: externalID,
		Settled:    status == models.StatusSucceeded,
		Status:     status,
	}
	if payment.Status.Cancelled || payment.Status.UserCancelled {
		ps.ResultDesc = "payment cancelled"
	}
	return ps, nil
}

// Approve is the first server-side phase of the two-phase protocol. It must
// run on a pending attempt whose provider payment has not been approved or
// cancelled yet.
func (s *PiService) Approve(ctx context.Context, attemptID uuid.UUID) (*models.PaymentAttempt, error) {
	attempt, err := s.pendingAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	payment, err := s.client.GetPayment(ctx, *attempt.ExternalID)
	if err != nil {
		return nil, err
	}
	if payment.Status.Cancelled || payment.Status.UserCancelled {
		return nil, &PaymentNotReadyError{PaymentID: payment.Identifier, State: "cancelled at provider"}
	}
	if payment.Status.DeveloperApproved {
		return nil, &PaymentNotReadyError{PaymentID: payment.Identifier, State: "already approved"}
	}

	if _, err := s.client.ApprovePayment(ctx, payment.Identifier); err != nil {
		return nil, err
	}

	return attempt, nil
}

// Complete is the second server-side phase: it runs after the payer has
// signed the blockchain transaction and settles the attempt.
func (s *PiService) Complete(ctx context.Context, attemptID uuid.UUID, txid string) (*models.PaymentAttempt, error) {
	if txid == "" {
		return nil, &ValidationError{Reason: "txid is required"}
	}

	attempt, err := s.pendingAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	payment, err := s.client.GetPayment(ctx, *attempt.ExternalID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.DeveloperApproved {
		return nil, &PaymentNotReadyError{PaymentID: payment.Identifier, State: "not approved yet"}
	}
	if payment.Status.DeveloperCompleted {
		return nil, &PaymentNotReadyError{PaymentID: payment.Identifier, State: "already completed"}
	}

	if _, err := s.client.CompletePayment(ctx, payment.Identifier, txid); err != nil {
		return nil, err
	}

	settled, err := s.ledger.Transition(ctx, attempt.ID, models.StatusSucceeded, map[string]any{
		"receipt_number": txid,
		"result_desc":    "payment completed",
	})
	if err != nil {
		return nil, err
	}

	s.reconciler.Reconcile(ctx, settled)
	return settled, nil
}

// Cancel voids a pending payment at the provider and fails the attempt.
func (s *PiService) Cancel(ctx context.Context, attemptID uuid.UUID) (*models.PaymentAttempt, error) {
	attempt, err := s.pendingAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	if _, err := s.client.CancelPayment(ctx, *attempt.ExternalID); err != nil {
		return nil, err
	}

	failed, err := s.ledger.Transition(ctx, attempt.ID, models.StatusFailed, map[string]any{
		"result_desc": "cancelled by merchant",
	})
	if err != nil {
		return nil, err
	}

	s.reconciler.Reconcile(ctx, failed)
	return failed, nil
}

// IncompletePayments surfaces the provider's open server payments for
// manual reconciliation.
func (s *PiService) IncompletePayments(ctx context.Context) ([]PiPayment, error) {
	return s.client.IncompletePayments(ctx)
}

func (s *PiService) pendingAttempt(ctx context.Context, attemptID uuid.UUID) (*models.PaymentAttempt, error) {
	attempt, err := s.ledger.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Provider != models.ProviderPi {
		return nil, &ValidationError{Reason: "not a pi payment"}
	}
	if attempt.Status != models.StatusPending || attempt.ExternalID == nil {
		return nil, &PaymentNotReadyError{PaymentID: attempt.ID.String(), State: string(attempt.Status)}
	}
	return attempt, nil
}

func (s *PiService) rejectAttempt(ctx context.Context, attempt *models.PaymentAttempt, desc string) {
	if _, err := s.ledger.Transition(ctx, attempt.ID, models.StatusFailed, map[string]any{
		"result_desc": desc,
	}); err != nil {
		log.Printf("[Pi] failed to record rejection for attempt %s: %v", attempt.ID, err)
	}
}

// mapPiPayment maps the provider payment flags onto the internal status
// vocabulary.
func mapPiPayment(p *PiPayment) models.PaymentStatus {
	switch {
	case p.Status.DeveloperCompleted:
		return models.StatusSucceeded
	case p.Status.Cancelled || p.Status.UserCancelled:
		return models.StatusFailed
	default:
		return models.StatusPending
	}
}
