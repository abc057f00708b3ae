package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seludoto/dolesecommerce/internal/metrics"
	"github.com/seludoto/dolesecommerce/internal/models"
)

// LedgerService owns PaymentAttempt rows and their lifecycle. Every status
// change goes through Transition, which applies an atomic compare-and-set on
// the current status so that a callback racing a poll (or a duplicate
// callback delivery) resolves to a single winner.
type LedgerService struct {
	db *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db}
}

// CreateAttempt inserts a new attempt in status created. Amount must be
// positive; nothing is written otherwise.
func (s *LedgerService) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	if !attempt.Amount.IsPositive() {
		return &ValidationError{Reason: "amount must be greater than zero"}
	}

	attempt.Status = models.StatusCreated
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return err
	}

	metrics.PaymentsInitiated.WithLabelValues(string(attempt.Provider), string(attempt.Direction)).Inc()
	return nil
}

// AcceptByProvider moves created -> pending once the provider has
// acknowledged the request, recording the external transaction id it
// assigned. An empty id is refused: external_id is unique, and a row
// persisted without its correlation id could never match a callback.
func (s *LedgerService) AcceptByProvider(ctx context.Context, attemptID uuid.UUID, externalID, responseCode, responseDesc string) (*models.PaymentAttempt, error) {
	if externalID == "" {
		return nil, &ProviderRequestError{
			Operation: "accept",
			Err:       errors.New("provider returned an empty transaction id"),
		}
	}
	return s.Transition(ctx, attemptID, models.StatusPending, map[string]any{
		"external_id": externalID,
		"result_code": responseCode,
		"result_desc": responseDesc,
	})
}

// Transition applies one state-machine step. The update only matches rows
// still in the status we read, so a lost race surfaces as RowsAffected == 0
// and becomes an InvalidTransitionError for the caller to log.
func (s *LedgerService) Transition(ctx context.Context, attemptID uuid.UUID, to models.PaymentStatus, extra map[string]any) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	if err := s.db.WithContext(ctx).First(&attempt, "id = ?", attemptID).Error; err != nil {
		return nil, err
	}

	if !attempt.Status.CanTransitionTo(to) {
		return nil, &InvalidTransitionError{AttemptID: attemptID, From: attempt.Status, To: to}
	}

	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	if to.Terminal() {
		now := time.Now()
		updates["completed_at"] = &now
	}

	res := s.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND status = ?", attemptID, attempt.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &InvalidTransitionError{AttemptID: attemptID, From: attempt.Status, To: to}
	}

	metrics.Transitions.WithLabelValues(string(to)).Inc()

	if err := s.db.WithContext(ctx).First(&attempt, "id = ?", attemptID).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Get returns an attempt by primary key.
func (s *LedgerService) Get(ctx context.Context, attemptID uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	if err := s.db.WithContext(ctx).First(&attempt, "id = ?", attemptID).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FindByExternalID resolves a provider-assigned transaction id to its
// attempt. Callbacks for ids the ledger never created get an
// UnknownTransactionError.
func (s *LedgerService) FindByExternalID(ctx context.Context, externalID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &UnknownTransactionError{ExternalID: externalID}
		}
		return nil, err
	}
	return &attempt, nil
}

// ListFilter narrows attempt history queries.
type ListFilter struct {
	Provider  string
	Status    string
	Direction string
	OrderID   *uuid.UUID
	Limit     int
	Offset    int
}

// List returns attempt history, newest first.
func (s *LedgerService) List(ctx context.Context, filter ListFilter) ([]models.PaymentAttempt, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PaymentAttempt{})

	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var attempts []models.PaymentAttempt
	if err := query.
		Order("created_at desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

// RecordCallback appends a callback event row. Events are evidence; they are
// never updated after insertion.
func (s *LedgerService) RecordCallback(ctx context.Context, event *models.CallbackEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

// StalePending returns pending attempts whose expiry window has elapsed
// without a callback or successful poll.
func (s *LedgerService) StalePending(ctx context.Context, direction models.PaymentDirection, window time.Duration) ([]models.PaymentAttempt, error) {
	cutoff := time.Now().Add(-window)
	var attempts []models.PaymentAttempt
	err := s.db.WithContext(ctx).
		Where("status = ? AND direction = ? AND updated_at < ?", models.StatusPending, direction, cutoff).
		Find(&attempts).Error
	return attempts, err
}

// Expire moves a pending attempt to expired. Losing the race to a late
// callback is fine; the callback's transition wins and this is a no-op.
func (s *LedgerService) Expire(ctx context.Context, attemptID uuid.UUID) (*models.PaymentAttempt, error) {
	attempt, err := s.Transition(ctx, attemptID, models.StatusExpired, map[string]any{
		"result_desc": "no provider confirmation within expiry window",
	})
	if err != nil {
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			log.Printf("[Ledger] expire skipped for %s: %v", attemptID, err)
			return nil, err
		}
		return nil, err
	}
	return attempt, nil
}
