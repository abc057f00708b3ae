package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is one versioned rate record for a currency pair. Records are
// never updated or deleted, only superseded; the latest EffectiveAt wins.
type ExchangeRate struct {
	BaseModel
	Base        string          `gorm:"type:varchar(8);index:idx_rate_pair" json:"base"`
	Quote       string          `gorm:"type:varchar(8);index:idx_rate_pair" json:"quote"`
	Rate        decimal.Decimal `gorm:"type:numeric(18,8)" json:"rate"`
	Source      string          `json:"source"`
	EffectiveAt time.Time       `gorm:"index" json:"effective_at"`
}
