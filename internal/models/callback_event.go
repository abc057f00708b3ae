package models

import "github.com/google/uuid"

// CallbackKind names the inbound notification endpoint a payload arrived on.
type CallbackKind string

const (
	CallbackKindStk        CallbackKind = "stk"
	CallbackKindB2CResult  CallbackKind = "b2c_result"
	CallbackKindB2CTimeout CallbackKind = "b2c_timeout"
	CallbackKindPi         CallbackKind = "pi"
)

// CallbackEvent is append-only evidence of a provider notification,
// correlated to a PaymentAttempt. Duplicates are recorded but marked
// unprocessed so replays never double-apply side effects.
type CallbackEvent struct {
	BaseModel
	AttemptID  uuid.UUID       `gorm:"type:uuid;index" json:"attempt_id"`
	Provider   PaymentProvider `gorm:"type:varchar(20)" json:"provider"`
	Kind       CallbackKind    `gorm:"type:varchar(20)" json:"kind"`
	ExternalID string          `gorm:"index" json:"external_id"`
	Payload    []byte          `gorm:"type:jsonb" json:"payload"`
	Processed  bool            `json:"processed"`
}
