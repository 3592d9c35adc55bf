// Package ledger merges a student's consumptions and payments into a dated
// statement with a running balance. Everything here is pure computation.
package ledger

import (
	"sort"
	"time"

	"comedor-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	Debit  Kind = "debit"
	Credit Kind = "credit"
)

// Movement is one ledger line. Amount is always the unsigned magnitude; Kind
// says which side it hits. Balance is filled by Run.
type Movement struct {
	Kind      Kind            `json:"kind"`
	Date      time.Time       `json:"date"`
	CreatedAt time.Time       `json:"created_at"`
	Amount    decimal.Decimal `json:"amount"`
	Concept   string          `json:"concept"`
	Absent    bool            `json:"absent,omitempty"`
	SourceID  uuid.UUID       `json:"source_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// Signed is +Amount for credits and -Amount for debits.
func (m Movement) Signed() decimal.Decimal {
	if m.Kind == Debit {
		return m.Amount.Neg()
	}
	return m.Amount
}

func FromConsumption(c models.Consumption) Movement {
	concept := c.Concept
	if c.Absent {
		concept = "Ausente: " + concept
	}
	return Movement{
		Kind:      Debit,
		Date:      c.Date,
		CreatedAt: c.CreatedAt,
		Amount:    c.Charged(),
		Concept:   concept,
		Absent:    c.Absent,
		SourceID:  c.ID,
	}
}

func FromPayment(p models.Payment) Movement {
	concept := "Pago en efectivo"
	if p.Method == models.PaymentMethodTransfer {
		concept = "Pago por transferencia"
	}
	if p.ReceiptNumber != nil && *p.ReceiptNumber != "" {
		concept += " #" + *p.ReceiptNumber
	}
	return Movement{
		Kind:      Credit,
		Date:      p.Date,
		CreatedAt: p.CreatedAt,
		Amount:    p.Amount,
		Concept:   concept,
		SourceID:  p.ID,
	}
}

// Less is the ledger order: calendar day, then creation time, then credits
// before debits, then source id. It is total, so merging is deterministic.
func Less(a, b Movement) bool {
	if ka, kb := models.DayKey(a.Date), models.DayKey(b.Date); ka != kb {
		return ka < kb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Kind != b.Kind {
		return a.Kind == Credit
	}
	return a.SourceID.String() < b.SourceID.String()
}

// Merge returns a new slice with every consumption and payment in ledger order.
func Merge(consumptions []models.Consumption, payments []models.Payment) []Movement {
	out := make([]Movement, 0, len(consumptions)+len(payments))
	for _, c := range consumptions {
		out = append(out, FromConsumption(c))
	}
	for _, p := range payments {
		out = append(out, FromPayment(p))
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Run fills each movement's running balance, starting from zero, and returns the final value.
func Run(ms []Movement) decimal.Decimal {
	acc := decimal.Zero
	for i := range ms {
		acc = acc.Add(ms[i].Signed())
		ms[i].Balance = acc
	}
	return acc
}

// Recent returns the newest limit movements, newest first. Each Balance is the
// all-time balance right after that movement, derived back from current.
// The inputs must hold at least the newest limit rows of each kind.
func Recent(consumptions []models.Consumption, payments []models.Payment, current decimal.Decimal, limit int) []Movement {
	ms := Merge(consumptions, payments)
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
	if limit > 0 && len(ms) > limit {
		ms = ms[:limit]
	}
	bal := current
	for i := range ms {
		ms[i].Balance = bal
		bal = bal.Sub(ms[i].Signed())
	}
	return ms
}
