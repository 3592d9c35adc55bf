// Package rollcall builds the daily attendance sheet and turns it into one
// batch of consumption rows.
package rollcall

import (
	"errors"
	"time"

	"comedor-backend/internal/balance"
	"comedor-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Mark string

const (
	Present  Mark = "PRESENT"
	Absent   Mark = "ABSENT"
	Unmarked Mark = "UNMARKED"
)

func (m Mark) Valid() bool {
	return m == Present || m == Absent || m == Unmarked
}

var (
	ErrConfirmed      = errors.New("rollcall: already confirmed for the day")
	ErrUnknownStudent = errors.New("rollcall: student not on the sheet")
	ErrInvalidMark    = errors.New("rollcall: invalid mark")
)

type Row struct {
	StudentID uuid.UUID       `json:"student_id"`
	Name      string          `json:"name"`
	Group     string          `json:"group"`
	Allergies *string         `json:"allergies,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	Tier      balance.Tier    `json:"tier"`
	Mark      Mark            `json:"mark"`
}

// Sheet is one session; it is never persisted.
type Sheet struct {
	Date      time.Time       `json:"date"`
	MenuType  string          `json:"menu_type"`
	Price     decimal.Decimal `json:"price"`
	Confirmed bool            `json:"confirmed"`
	Rows      []Row           `json:"rows"`

	index map[uuid.UUID]int
}

// Posted maps the day's existing consumption rows to the marks they record.
func Posted(rows []models.Consumption) map[uuid.UUID]Mark {
	out := make(map[uuid.UUID]Mark, len(rows))
	for _, c := range rows {
		if c.Absent {
			if _, seen := out[c.StudentID]; !seen {
				out[c.StudentID] = Absent
			}
			continue
		}
		out[c.StudentID] = Present
	}
	return out
}

// New starts every student PRESENT. If anyone already has a consumption on
// day the sheet is confirmed and read-only, showing what was posted.
func New(day time.Time, menuType string, price, ref decimal.Decimal, students []models.StudentBalance, posted map[uuid.UUID]Mark) *Sheet {
	s := &Sheet{
		Date:      models.Day(day),
		MenuType:  menuType,
		Price:     price,
		Confirmed: len(posted) > 0,
		Rows:      make([]Row, 0, len(students)),
		index:     make(map[uuid.UUID]int, len(students)),
	}
	for _, st := range students {
		mark := Present
		if s.Confirmed {
			mark = Unmarked
			if m, ok := posted[st.ID]; ok {
				mark = m
			}
		}
		s.index[st.ID] = len(s.Rows)
		s.Rows = append(s.Rows, Row{
			StudentID: st.ID,
			Name:      st.FullName(),
			Group:     st.Group(),
			Allergies: st.Allergies,
			Balance:   st.Balance,
			Tier:      balance.Classify(st.Balance, ref),
			Mark:      mark,
		})
	}
	return s
}

// Mark sets one student; PRESENT and ABSENT replace each other.
func (s *Sheet) Mark(id uuid.UUID, m Mark) error {
	if s.Confirmed {
		return ErrConfirmed
	}
	if !m.Valid() {
		return ErrInvalidMark
	}
	i, ok := s.index[id]
	if !ok {
		return ErrUnknownStudent
	}
	s.Rows[i].Mark = m
	return nil
}

func (s *Sheet) MarkAll(m Mark) error {
	if s.Confirmed {
		return ErrConfirmed
	}
	if !m.Valid() {
		return ErrInvalidMark
	}
	for i := range s.Rows {
		s.Rows[i].Mark = m
	}
	return nil
}

func (s *Sheet) ClearAll() error {
	return s.MarkAll(Unmarked)
}

type Totals struct {
	Present  int             `json:"present"`
	Absent   int             `json:"absent"`
	Unmarked int             `json:"unmarked"`
	Charge   decimal.Decimal `json:"charge"`
}

func (s *Sheet) Totals() Totals {
	t := Totals{Charge: decimal.Zero}
	for _, r := range s.Rows {
		switch r.Mark {
		case Present:
			t.Present++
			t.Charge = t.Charge.Add(s.Price)
		case Absent:
			t.Absent++
		default:
			t.Unmarked++
		}
	}
	return t
}

// Records is the batch to post: the vigente price per PRESENT student and a
// zero, absence-flagged row per ABSENT student. UNMARKED students get nothing.
func (s *Sheet) Records() []models.Consumption {
	var out []models.Consumption
	for _, r := range s.Rows {
		c := models.Consumption{
			StudentID: r.StudentID,
			MenuType:  s.MenuType,
			Concept:   s.MenuType,
			Date:      s.Date,
		}
		switch r.Mark {
		case Present:
			c.Amount = s.Price
		case Absent:
			c.Amount = decimal.Zero
			c.Absent = true
		default:
			continue
		}
		out = append(out, c)
	}
	return out
}

// Shortfalls lists PRESENT students whose balance does not cover the price.
func (s *Sheet) Shortfalls() []Row {
	out := []Row{}
	for _, r := range s.Rows {
		if r.Mark == Present && !balance.Sufficient(r.Balance, s.Price) {
			out = append(out, r)
		}
	}
	return out
}
