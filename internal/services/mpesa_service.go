package services

import (
	"context"
	"fmt"
	"log"

	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/models"
	"github.com/seludoto/dolesecommerce/internal/utils"
)

// MpesaService is the mobile-money Provider variant. It normalizes input,
// drives the Daraja client and keeps the ledger in step with provider
// acknowledgments. Final settlement arrives later via callback.
type MpesaService struct {
	client          *DarajaClient
	ledger          *LedgerService
	callbackBaseURL string
	webhookSecret   string
}

func NewMpesaService(client *DarajaClient, ledger *LedgerService, cfg *config.Config) *MpesaService {
	return &MpesaService{
		client:          client,
		ledger:          ledger,
		callbackBaseURL: cfg.CallbackBaseURL,
		webhookSecret:   cfg.WebhookSecret,
	}
}

// RequestPayment initiates an STK push charge. Validation happens before
// any network call or ledger row: a malformed phone number never leaves a
// trace.
func (s *MpesaService) RequestPayment(ctx context.Context, req ChargeRequest) (*models.PaymentAttempt, error) {
	if !req.Amount.IsPositive() {
		return nil, &ValidationError{Reason: "amount must be greater than zero"}
	}

	phone, err := utils.NormalizeMSISDN(req.Phone)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	attempt := &models.PaymentAttempt{
		OrderID:     req.OrderID,
		Provider:    models.ProviderMpesa,
		Direction:   models.DirectionCharge,
		Amount:      req.Amount,
		Currency:    "KES",
		Phone:       phone,
		Reference:   req.Reference,
		Description: req.Description,
	}
	if err := s.ledger.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	resp, err := s.client.StkPush(ctx, phone, req.Amount, req.Reference, req.Description, s.callbackURL("mpesa/stk"))
	if err != nil {
		s.rejectAttempt(ctx, attempt, "", err.Error())
		return attempt, err
	}

	if resp.ResponseCode != "0" {
		s.rejectAttempt(ctx, attempt, resp.ResponseCode, resp.ResponseDescription)
		return attempt, &ProviderRequestError{
			Provider:  models.ProviderMpesa,
			Operation: "stk_push",
			Err:       fmt.Errorf("provider rejected request: %s %s", resp.ResponseCode, resp.ResponseDescription),
		}
	}

	return s.ledger.AcceptByProvider(ctx, attempt.ID, resp.CheckoutRequestID, resp.ResponseCode, resp.CustomerMessage)
}

// SendPayout initiates a B2C payment to the counterparty's phone.
func (s *MpesaService) SendPayout(ctx context.Context, req PayoutRequest) (*models.PaymentAttempt, error) {
	if !req.Amount.IsPositive() {
		return nil, &ValidationError{Reason: "amount must be greater than zero"}
	}

	phone, err := utils.NormalizeMSISDN(req.Phone)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	remarks := req.Remarks
	if remarks == "" {
		remarks = "payout"
	}

	attempt := &models.PaymentAttempt{
		OrderID:     req.OrderID,
		Provider:    models.ProviderMpesa,
		Direction:   models.DirectionPayout,
		Amount:      req.Amount,
		Currency:    "KES",
		Phone:       phone,
		Description: remarks,
	}
	if err := s.ledger.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	resp, err := s.client.B2CPayment(ctx, phone, req.Amount, remarks, req.Occasion,
		s.callbackURL("mpesa/b2c-result"), s.callbackURL("mpesa/b2c-timeout"))
	if err != nil {
		s.rejectAttempt(ctx, attempt, "", err.Error())
		return attempt, err
	}

	if resp.ResponseCode != "0" {
		s.rejectAttempt(ctx, attempt, resp.ResponseCode, resp.ResponseDescription)
		return attempt, &ProviderRequestError{
			Provider:  models.ProviderMpesa,
			Operation: "b2c",
			Err:       fmt.Errorf("provider rejected request: %s %s", resp.ResponseCode, resp.ResponseDescription),
		}
	}

	return s.ledger.AcceptByProvider(ctx, attempt.ID, resp.ConversationID, resp.ResponseCode, resp.ResponseDescription)
}

// QueryStatus polls Daraja for the state of an STK push. Used as a
// fallback when no callback has arrived within the expected window.
func (s *MpesaService) QueryStatus(ctx context.Context, externalID string) (*ProviderStatus, error) {
	resp, err := s.client.QueryStkStatus(ctx, externalID)
	if err != nil {
		return nil, err
	}

	status := mapStkResultCode(resp.ResultCode)
	return &ProviderStatus{
		ExternalID: externalID,
		ResultCode: resp.ResultCode,
		ResultDesc: resp.ResultDesc,
		Settled:    status == models.StatusSucceeded,
		Status:     status,
	}, nil
}

func (s *MpesaService) rejectAttempt(ctx context.Context, attempt *models.PaymentAttempt, code, desc string) {
	if _, err := s.ledger.Transition(ctx, attempt.ID, models.StatusFailed, map[string]any{
		"result_code": code,
		"result_desc": desc,
	}); err != nil {
		log.Printf("[Mpesa] failed to record rejection for attempt %s: %v", attempt.ID, err)
	}
}

func (s *MpesaService) callbackURL(suffix string) string {
	return fmt.Sprintf("%s/api/callbacks/%s/%s", s.callbackBaseURL, s.webhookSecret, suffix)
}

// mapStkResultCode maps Daraja result codes onto the internal status
// vocabulary. 0 is success; an empty code means the request is still in
// flight; every other code is a failure (1032 is the common user-cancel).
func mapStkResultCode(code string) models.PaymentStatus {
	switch code {
	case "0":
		return models.StatusSucceeded
	case "":
		return models.StatusPending
	default:
		return models.StatusFailed
	}
}
