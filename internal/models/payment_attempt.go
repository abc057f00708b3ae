package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentProvider identifies which external provider an attempt ran through.
type PaymentProvider string

const (
	ProviderMpesa PaymentProvider = "mpesa"
	ProviderPi    PaymentProvider = "pi"
)

// PaymentDirection distinguishes customer charges from outbound payouts.
type PaymentDirection string

const (
	DirectionCharge PaymentDirection = "charge"
	DirectionPayout PaymentDirection = "payout"
)

// PaymentStatus is the ledger's internal status vocabulary, shared by all
// providers. Provider result codes are mapped onto it by the callback
// receiver.
type PaymentStatus string

const (
	StatusCreated   PaymentStatus = "created"
	StatusPending   PaymentStatus = "pending"
	StatusSucceeded PaymentStatus = "succeeded"
	StatusFailed    PaymentStatus = "failed"
	StatusExpired   PaymentStatus = "expired"
)

// Terminal reports whether no further transitions are permitted.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// CanTransitionTo validates a status transition against the ledger state
// machine: created -> pending -> {succeeded, failed, expired}, with
// created -> failed for synchronous provider rejections.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusPending || next == StatusFailed
	case StatusPending:
		return next == StatusSucceeded || next == StatusFailed || next == StatusExpired
	}
	return false
}

// NonTerminalStatuses is used in conditional updates so that a racing
// callback and poll resolve to a single winner.
func NonTerminalStatuses() []PaymentStatus {
	return []PaymentStatus{StatusCreated, StatusPending}
}

// PaymentAttempt records one payment attempt and its lifecycle state,
// independent of provider. ExternalID is the provider-assigned correlation
// id (CheckoutRequestID, ConversationID or Pi payment identifier) and is
// unique once assigned.
type PaymentAttempt struct {
	BaseModel
	OrderID       *uuid.UUID       `gorm:"type:uuid;index" json:"order_id"`
	Provider      PaymentProvider  `gorm:"type:varchar(20);index:idx_attempt_provider_status" json:"provider"`
	Direction     PaymentDirection `gorm:"type:varchar(20)" json:"direction"`
	Amount        decimal.Decimal  `gorm:"type:numeric(12,2)" json:"amount"`
	Currency      string           `gorm:"type:varchar(8)" json:"currency"`
	Phone         string           `gorm:"type:varchar(15)" json:"phone,omitempty"`
	WalletAddress string           `json:"wallet_address,omitempty"`
	ExternalID    *string          `gorm:"uniqueIndex" json:"external_id"`
	Status        PaymentStatus    `gorm:"type:varchar(20);index:idx_attempt_provider_status" json:"status"`
	Reference     string           `json:"reference"`
	Description   string           `json:"description"`
	ResultCode    string           `gorm:"type:varchar(10)" json:"result_code"`
	ResultDesc    string           `json:"result_desc"`
	ReceiptNumber string           `json:"receipt_number"`
	QuotedRate    *decimal.Decimal `gorm:"type:numeric(18,8)" json:"quoted_rate,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at"`
}
