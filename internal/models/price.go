package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Price is valid over [ValidFrom, ValidTo). At most one row per menu type has a nil ValidTo:
// the vigente price. ValidTo is set exactly once, when the row is superseded.
type Price struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MenuType  string          `gorm:"size:50;not null;index" json:"menu_type"`
	Amount    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	ValidFrom time.Time       `gorm:"type:date;not null" json:"valid_from"`
	ValidTo   *time.Time      `gorm:"type:date;index" json:"valid_to"`
	CreatedAt time.Time       `json:"created_at"`
}

func (p Price) Open() bool {
	return p.ValidTo == nil
}
