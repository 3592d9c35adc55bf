package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Consumption is a debit against one student on one date. Rows are append-only.
type Consumption struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID uuid.UUID       `gorm:"type:uuid;not null;index:idx_consumptions_student_date,priority:1" json:"student_id"`
	Student   *Student        `gorm:"foreignKey:StudentID;constraint:OnDelete:RESTRICT" json:"student,omitempty"`
	ProductID *uuid.UUID      `gorm:"type:uuid;index" json:"product_id"`
	MenuType  string          `gorm:"size:50" json:"menu_type"`
	Concept   string          `gorm:"size:100;not null" json:"concept"` // product name or menu type at posting time
	Amount    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Absent    bool            `gorm:"not null;default:false" json:"absent"`
	Date      time.Time       `gorm:"type:date;not null;index:idx_consumptions_student_date,priority:2" json:"date"`
	CreatedAt time.Time       `json:"created_at"`
}

// Charged is the amount debited from the balance; absences debit nothing.
func (c Consumption) Charged() decimal.Decimal {
	if c.Absent {
		return decimal.Zero
	}
	return c.Amount
}
