package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentPlan string

const (
	PaymentPlanDaily    PaymentPlan = "daily"
	PaymentPlanBiweekly PaymentPlan = "biweekly"
	PaymentPlanMonthly  PaymentPlan = "monthly"
)

// Student is never physically deleted once it has financial history; Active is the soft toggle.
type Student struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName       string      `gorm:"size:100;not null;index" json:"first_name"`
	LastName        string      `gorm:"size:100;index" json:"last_name"`
	Level           string      `gorm:"size:30;not null;index" json:"level"`   // grado / nivel, ej: "9"
	Section         string      `gorm:"size:10" json:"section"`                // paralelo, ej: "B"
	Code            *string     `gorm:"size:30;uniqueIndex" json:"code"`       // código interno opcional
	Allergies       *string     `gorm:"size:255" json:"allergies"`
	RequiresInvoice bool        `gorm:"not null;default:false" json:"requires_invoice"`
	GuardianName    *string     `gorm:"size:150" json:"guardian_name"`
	GuardianPhone   *string     `gorm:"size:30" json:"guardian_phone"`
	PaymentPlan     PaymentPlan `gorm:"size:20;not null;default:monthly" json:"payment_plan"`
	Active          bool        `gorm:"not null;default:true;index" json:"active"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Group is the class grouping shown next to the name, ej: "9B".
func (s Student) Group() string {
	return s.Level + s.Section
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// StudentBalance is a row of the student_balances view: lifetime credits minus lifetime debits.
type StudentBalance struct {
	Student       `gorm:"embedded"`
	TotalPaid     decimal.Decimal `gorm:"column:total_paid" json:"total_paid"`
	TotalConsumed decimal.Decimal `gorm:"column:total_consumed" json:"total_consumed"`
	Balance       decimal.Decimal `gorm:"column:balance" json:"balance"`
}

func (StudentBalance) TableName() string {
	return "student_balances"
}
