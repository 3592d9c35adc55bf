package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"     // efectivo
	PaymentMethodTransfer PaymentMethod = "transfer" // transferencia
)

// Payment is a credit against one student. Rows are append-only.
type Payment struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_payments_student_date,priority:1" json:"student_id"`
	Student       *Student        `gorm:"foreignKey:StudentID;constraint:OnDelete:RESTRICT" json:"student,omitempty"`
	Amount        decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Method        PaymentMethod   `gorm:"size:20;not null" json:"method"`
	ReceiptNumber *string         `gorm:"size:50" json:"receipt_number"`
	ReceiptURL    *string         `gorm:"size:500" json:"receipt_url"`
	Notes         *string         `gorm:"size:255" json:"notes"`
	Date          time.Time       `gorm:"type:date;not null;index:idx_payments_student_date,priority:2" json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
}
