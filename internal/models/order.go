package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the collaborator surface consumed from the catalog/checkout
// system. The payment core only reads the amount and flips paid/reservation
// state; everything else about orders lives outside this service.
type Order struct {
	BaseModel
	UserID          uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	OrderNumber     string          `gorm:"uniqueIndex" json:"order_number"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_amount"`
	Currency        string          `gorm:"type:varchar(8)" json:"currency"`
	IsPaid          bool            `json:"is_paid"`
	PaidAt          *time.Time      `json:"paid_at"`
	ReservationHeld bool            `json:"reservation_held"`
}
