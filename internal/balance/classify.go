// Package balance classifies student balances into alert tiers relative to the
// vigente unit price.
package balance

import (
	"sort"

	"comedor-backend/internal/models"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierOK    Tier = "OK"
	TierLow   Tier = "LOW"
	TierEmpty Tier = "EMPTY"
)

// LowUnits is how many reference-priced meals a balance must cover to be OK.
const LowUnits = 3

var lowUnits = decimal.NewFromInt(LowUnits)

// Classify is total over all balances. A non-positive balance is always EMPTY;
// with a zero reference price every positive balance is LOW.
func Classify(bal, ref decimal.Decimal) Tier {
	if !bal.IsPositive() {
		return TierEmpty
	}
	if ref.IsNegative() {
		ref = decimal.Zero
	}
	if ref.IsZero() {
		return TierLow
	}
	if bal.LessThan(ref.Mul(lowUnits)) {
		return TierLow
	}
	return TierOK
}

// ReferencePrice returns the vigente amount when there is one, otherwise fallback.
func ReferencePrice(p models.Price, ok bool, fallback decimal.Decimal) decimal.Decimal {
	if ok {
		return p.Amount
	}
	return fallback
}

// Sufficient reports whether charging would keep the balance at or above zero.
func Sufficient(bal, charge decimal.Decimal) bool {
	return !bal.Sub(charge).IsNegative()
}

type Summary struct {
	Total      int      `json:"total"`
	OK         int      `json:"ok"`
	Low        int      `json:"low"`
	Empty      int      `json:"empty"`
	EmptyNames []string `json:"empty_names"`
	LowNames   []string `json:"low_names"`
}

func Summarize(rows []models.StudentBalance, ref decimal.Decimal) Summary {
	s := Summary{Total: len(rows), EmptyNames: []string{}, LowNames: []string{}}
	for _, r := range rows {
		switch Classify(r.Balance, ref) {
		case TierEmpty:
			s.Empty++
			s.EmptyNames = append(s.EmptyNames, r.FullName())
		case TierLow:
			s.Low++
			s.LowNames = append(s.LowNames, r.FullName())
		default:
			s.OK++
		}
	}
	sort.Strings(s.EmptyNames)
	sort.Strings(s.LowNames)
	return s
}
