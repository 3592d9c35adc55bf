package ledger

import (
	"time"

	"comedor-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Statement covers [From, To] by calendar day. Its running balance starts at
// zero on From, so the last Balance is the period net, not the all-time balance.
type Statement struct {
	Student      models.Student  `json:"student"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Movements    []Movement      `json:"movements"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
}

func (s Statement) Net() decimal.Decimal {
	return s.TotalCredits.Sub(s.TotalDebits)
}

func (s Statement) Empty() bool {
	return len(s.Movements) == 0
}

// Build keeps the rows dated inside [from, to] and assembles the statement.
// An inverted range yields no movements.
func Build(st models.Student, from, to time.Time, consumptions []models.Consumption, payments []models.Payment) Statement {
	s := Statement{
		Student:      st,
		From:         models.Day(from),
		To:           models.Day(to),
		Movements:    []Movement{},
		TotalCredits: decimal.Zero,
		TotalDebits:  decimal.Zero,
	}

	lo, hi := models.DayKey(from), models.DayKey(to)
	if hi < lo {
		return s
	}
	inRange := func(t time.Time) bool {
		k := models.DayKey(t)
		return k >= lo && k <= hi
	}

	var cs []models.Consumption
	for _, c := range consumptions {
		if c.StudentID == st.ID && inRange(c.Date) {
			cs = append(cs, c)
		}
	}
	var ps []models.Payment
	for _, p := range payments {
		if p.StudentID == st.ID && inRange(p.Date) {
			ps = append(ps, p)
		}
	}

	s.Movements = Merge(cs, ps)
	Run(s.Movements)
	for _, m := range s.Movements {
		if m.Kind == Credit {
			s.TotalCredits = s.TotalCredits.Add(m.Amount)
		} else {
			s.TotalDebits = s.TotalDebits.Add(m.Amount)
		}
	}
	return s
}
