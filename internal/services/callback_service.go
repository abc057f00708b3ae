package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/seludoto/dolesecommerce/internal/cache"
	"github.com/seludoto/dolesecommerce/internal/metrics"
	"github.com/seludoto/dolesecommerce/internal/models"
)

const callbackLockTTL = 30 * time.Second

// CallbackService processes asynchronous provider notifications. Delivery
// is at-least-once, so every path here must be idempotent: duplicates and
// late arrivals for terminal attempts are recorded as evidence and dropped
// without side effects. The database CAS on status is the authority; the
// Redis lock only narrows the duplicate window.
type CallbackService struct {
	ledger     *LedgerService
	reconciler *Reconciler
	cache      *cache.Cache
}

func NewCallbackService(ledger *LedgerService, reconciler *Reconciler, c *cache.Cache) *CallbackService {
	return &CallbackService{ledger: ledger, reconciler: reconciler, cache: c}
}

type stkCallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []stkCallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type b2cResultParameter struct {
	Key   string `json:"Key"`
	Value any    `json:"Value"`
}

type b2cResultEnvelope struct {
	Result struct {
		ResultType               int    `json:"ResultType"`
		ResultCode               int    `json:"ResultCode"`
		ResultDesc               string `json:"ResultDesc"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ConversationID           string `json:"ConversationID"`
		TransactionID            string `json:"TransactionID"`
		ResultParameters         struct {
			ResultParameter []b2cResultParameter `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

type piCallbackPayload struct {
	Identifier  string `json:"identifier"`
	Status      string `json:"status"`
	Transaction *struct {
		TxID string `json:"txid"`
	} `json:"transaction"`
}

// ProcessStkCallback handles the Daraja STK push result notification.
func (s *CallbackService) ProcessStkCallback(ctx context.Context, payload []byte) error {
	metrics.CallbacksReceived.WithLabelValues("mpesa", string(models.CallbackKindStk)).Inc()

	var envelope stkCallbackEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return &ValidationError{Reason: "malformed stk callback payload"}
	}

	cb := envelope.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return &ValidationError{Reason: "stk callback missing CheckoutRequestID"}
	}

	updates := map[string]any{
		"result_code": fmt.Sprint(cb.ResultCode),
		"result_desc": cb.ResultDesc,
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" && item.Value != nil {
			updates["receipt_number"] = fmt.Sprint(item.Value)
		}
	}

	to := models.StatusFailed
	if cb.ResultCode == 0 {
		to = models.StatusSucceeded
	}

	return s.apply(ctx, models.ProviderMpesa, models.CallbackKindStk, cb.CheckoutRequestID, payload, to, updates)
}

// ProcessB2CResult handles the Daraja B2C result notification.
func (s *CallbackService) ProcessB2CResult(ctx context.Context, payload []byte) error {
	metrics.CallbacksReceived.WithLabelValues("mpesa", string(models.CallbackKindB2CResult)).Inc()

	var envelope b2cResultEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return &ValidationError{Reason: "malformed b2c result payload"}
	}

	result := envelope.Result
	if result.ConversationID == "" {
		return &ValidationError{Reason: "b2c result missing ConversationID"}
	}

	updates := map[string]any{
		"result_code": fmt.Sprint(result.ResultCode),
		"result_desc": result.ResultDesc,
	}
	if result.TransactionID != "" {
		updates["receipt_number"] = result.TransactionID
	}
	for _, param := range result.ResultParameters.ResultParameter {
		if param.Key == "TransactionReceipt" && param.Value != nil {
			updates["receipt_number"] = fmt.Sprint(param.Value)
		}
	}

	to := models.StatusFailed
	if result.ResultCode == 0 {
		to = models.StatusSucceeded
	}

	return s.apply(ctx, models.ProviderMpesa, models.CallbackKindB2CResult, result.ConversationID, payload, to, updates)
}

// ProcessB2CTimeout handles the Daraja queue-timeout notification: the
// request never reached the payer, so the attempt expires.
func (s *CallbackService) ProcessB2CTimeout(ctx context.Context, payload []byte) error {
	metrics.CallbacksReceived.WithLabelValues("mpesa", string(models.CallbackKindB2CTimeout)).Inc()

	var envelope b2cResultEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return &ValidationError{Reason: "malformed b2c timeout payload"}
	}

	conversationID := envelope.Result.ConversationID
	if conversationID == "" {
		return &ValidationError{Reason: "b2c timeout missing ConversationID"}
	}

	updates := map[string]any{
		"result_desc": "provider queue timeout",
	}

	return s.apply(ctx, models.ProviderMpesa, models.CallbackKindB2CTimeout, conversationID, payload, models.StatusExpired, updates)
}

// ProcessPiCallback handles Pi platform payment notifications.
func (s *CallbackService) ProcessPiCallback(ctx context.Context, payload []byte) error {
	metrics.CallbacksReceived.WithLabelValues("pi", string(models.CallbackKindPi)).Inc()

	var cb piCallbackPayload
	if err := json.Unmarshal(payload, &cb); err != nil {
		return &ValidationError{Reason: "malformed pi callback payload"}
	}
	if cb.Identifier == "" {
		return &ValidationError{Reason: "pi callback missing identifier"}
	}

	var to models.PaymentStatus
	updates := map[string]any{}
	switch cb.Status {
	case "completed":
		to = models.StatusSucceeded
		updates["result_desc"] = "payment completed"
		if cb.Transaction != nil {
			updates["receipt_number"] = cb.Transaction.TxID
		}
	case "cancelled":
		to = models.StatusFailed
		updates["result_desc"] = "payment cancelled"
	case "pending":
		// The payment is still in flight: no transition, but the
		// notification is still evidence and gets recorded.
		return s.recordOnly(ctx, models.ProviderPi, models.CallbackKindPi, cb.Identifier, payload)
	default:
		return &ValidationError{Reason: "unknown pi payment status " + cb.Status}
	}

	return s.apply(ctx, models.ProviderPi, models.CallbackKindPi, cb.Identifier, payload, to, updates)
}

// ApplyProviderStatus folds a synchronous poll result into the ledger the
// same way a callback would, so a poll racing a callback still has a single
// winner.
func (s *CallbackService) ApplyProviderStatus(ctx context.Context, attempt *models.PaymentAttempt, ps *ProviderStatus) (*models.PaymentAttempt, error) {
	if attempt.Status.Terminal() || !ps.Status.Terminal() {
		return attempt, nil
	}

	updated, err := s.ledger.Transition(ctx, attempt.ID, ps.Status, map[string]any{
		"result_code": ps.ResultCode,
		"result_desc": ps.ResultDesc,
	})
	if err != nil {
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			log.Printf("[Callback] poll lost race for attempt %s: %v", attempt.ID, err)
			return s.ledger.Get(ctx, attempt.ID)
		}
		return nil, err
	}

	s.reconciler.Reconcile(ctx, updated)
	return updated, nil
}

// recordOnly appends an unprocessed event for a notification that carries
// no state change.
func (s *CallbackService) recordOnly(ctx context.Context, provider models.PaymentProvider, kind models.CallbackKind, externalID string, payload []byte) error {
	attempt, err := s.ledger.FindByExternalID(ctx, externalID)
	if err != nil {
		return err
	}

	event := &models.CallbackEvent{
		AttemptID:  attempt.ID,
		Provider:   provider,
		Kind:       kind,
		ExternalID: externalID,
		Payload:    payload,
	}
	if err := s.ledger.RecordCallback(ctx, event); err != nil {
		log.Printf("[Callback] failed to record event for %s: %v", externalID, err)
	}
	return nil
}

// apply is the shared callback path: resolve the attempt, drop duplicates,
// transition, record the event, reconcile.
func (s *CallbackService) apply(ctx context.Context, provider models.PaymentProvider, kind models.CallbackKind, externalID string, payload []byte, to models.PaymentStatus, updates map[string]any) error {
	lockKey := fmt.Sprintf("callback:%s:%s", kind, externalID)
	if !s.cache.AcquireLock(ctx, lockKey, callbackLockTTL) {
		log.Printf("[Callback] %s for %s already being processed", kind, externalID)
		return nil
	}
	defer s.cache.ReleaseLock(ctx, lockKey)

	attempt, err := s.ledger.FindByExternalID(ctx, externalID)
	if err != nil {
		return err
	}

	event := &models.CallbackEvent{
		AttemptID:  attempt.ID,
		Provider:   provider,
		Kind:       kind,
		ExternalID: externalID,
		Payload:    payload,
	}

	if attempt.Status.Terminal() {
		// Duplicate delivery; record the evidence, apply nothing.
		if err := s.ledger.RecordCallback(ctx, event); err != nil {
			log.Printf("[Callback] failed to record duplicate event for %s: %v", externalID, err)
		}
		return nil
	}

	updated, err := s.ledger.Transition(ctx, attempt.ID, to, updates)
	if err != nil {
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			log.Printf("[Callback] transition rejected for %s: %v", externalID, err)
			if recErr := s.ledger.RecordCallback(ctx, event); recErr != nil {
				log.Printf("[Callback] failed to record event for %s: %v", externalID, recErr)
			}
			return nil
		}
		return err
	}

	event.Processed = true
	if err := s.ledger.RecordCallback(ctx, event); err != nil {
		log.Printf("[Callback] failed to record event for %s: %v", externalID, err)
	}

	s.reconciler.Reconcile(ctx, updated)
	return nil
}
