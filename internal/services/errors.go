package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/seludoto/dolesecommerce/internal/models"
)

// ErrStaleRate is returned when a crypto quote is requested and no exchange
// rate record exists for the pair. There is deliberately no fallback rate.
var ErrStaleRate = errors.New("no exchange rate available")

// ValidationError reports bad input detected before any network call. It is
// surfaced to the caller verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// AuthenticationError signals a credential or token failure against a
// provider. Fatal for the attempt; retried a bounded number of times.
type AuthenticationError struct {
	Provider models.PaymentProvider
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ProviderRequestError covers transport and HTTP-level failures of outbound
// provider calls. Whether to retry is the caller's decision.
type ProviderRequestError struct {
	Provider   models.PaymentProvider
	Operation  string
	StatusCode int
	Err        error
}

func (e *ProviderRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s request failed with status %d", e.Provider, e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s %s request failed: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderRequestError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError is an internal consistency violation: an attempt to
// move a ledger entry out of a terminal state, or a transition that lost a
// race. Logged, never surfaced to end users.
type InvalidTransitionError struct {
	AttemptID uuid.UUID
	From      models.PaymentStatus
	To        models.PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("attempt %s: invalid transition %s -> %s", e.AttemptID, e.From, e.To)
}

// UnknownTransactionError marks a callback whose external transaction id the
// ledger never created. Logged and acknowledged, no state change.
type UnknownTransactionError struct {
	ExternalID string
}

func (e *UnknownTransactionError) Error() string {
	return fmt.Sprintf("no payment attempt for external transaction %q", e.ExternalID)
}

// PaymentNotReadyError reports a crypto two-phase sequencing violation:
// approve or complete called out of order. Retryable precondition failure.
type PaymentNotReadyError struct {
	PaymentID string
	State     string
}

func (e *PaymentNotReadyError) Error() string {
	return fmt.Sprintf("pi payment %s is not ready: %s", e.PaymentID, e.State)
}
