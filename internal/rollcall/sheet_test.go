package rollcall

import (
	"testing"
	"time"

	"comedor-backend/internal/balance"
	"comedor-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func student(name, bal string) models.StudentBalance {
	return models.StudentBalance{
		Student: models.Student{ID: uuid.New(), FirstName: name, Level: "5", Section: "A", Active: true},
		Balance: decimal.RequireFromString(bal),
	}
}

func five() decimal.Decimal { return decimal.NewFromInt(5) }

func TestNewSheetStartsPresent(t *testing.T) {
	rows := []models.StudentBalance{student("Ana", "20"), student("Luis", "10"), student("Eva", "0")}
	s := New(today, "Almuerzo", five(), five(), rows, nil)

	assert.False(t, s.Confirmed)
	assert.True(t, s.Date.Equal(models.Day(today)))
	require.Len(t, s.Rows, 3)
	for _, r := range s.Rows {
		assert.Equal(t, Present, r.Mark)
	}
	assert.Equal(t, balance.TierOK, s.Rows[0].Tier)
	assert.Equal(t, balance.TierLow, s.Rows[1].Tier)
	assert.Equal(t, balance.TierEmpty, s.Rows[2].Tier)
	assert.Equal(t, "5A", s.Rows[0].Group)
}

func TestPostingExample(t *testing.T) {
	a, b, c := student("Ana", "20"), student("Luis", "20"), student("Eva", "20")
	s := New(today, "Almuerzo", five(), five(), []models.StudentBalance{a, b, c}, nil)
	require.NoError(t, s.Mark(c.ID, Absent))

	recs := s.Records()
	require.Len(t, recs, 3)

	charged := decimal.Zero
	var present, absent int
	for _, r := range recs {
		charged = charged.Add(r.Charged())
		assert.Equal(t, "Almuerzo", r.Concept)
		assert.True(t, r.Date.Equal(models.Day(today)))
		if r.Absent {
			absent++
			assert.True(t, r.Amount.IsZero())
			assert.Equal(t, c.ID, r.StudentID)
		} else {
			present++
			assert.True(t, r.Amount.Equal(five()))
		}
	}
	assert.Equal(t, 2, present)
	assert.Equal(t, 1, absent)
	assert.Equal(t, "10", charged.String())

	tot := s.Totals()
	assert.Equal(t, Totals{Present: 2, Absent: 1, Unmarked: 0, Charge: tot.Charge}, tot)
	assert.Equal(t, "10", tot.Charge.String())
}

func TestUnmarkedGetsNoRow(t *testing.T) {
	a, b := student("Ana", "20"), student("Luis", "20")
	s := New(today, "Almuerzo", five(), five(), []models.StudentBalance{a, b}, nil)
	require.NoError(t, s.Mark(b.ID, Unmarked))

	recs := s.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, a.ID, recs[0].StudentID)
}

func TestMarksAreExclusive(t *testing.T) {
	a := student("Ana", "20")
	s := New(today, "Almuerzo", five(), five(), []models.StudentBalance{a}, nil)

	require.NoError(t, s.Mark(a.ID, Absent))
	require.NoError(t, s.Mark(a.ID, Present))
	assert.Equal(t, Present, s.Rows[0].Mark)
	assert.Equal(t, 1, s.Totals().Present)
	assert.Equal(t, 0, s.Totals().Absent)
}

func TestMarkErrors(t *testing.T) {
	a := student("Ana", "20")
	s := New(today, "Almuerzo", five(), five(), []models.StudentBalance{a}, nil)

	assert.ErrorIs(t, s.Mark(uuid.New(), Present), ErrUnknownStudent)
	assert.ErrorIs(t, s.Mark(a.ID, Mark("LATE")), ErrInvalidMark)
	assert.ErrorIs(t, s.MarkAll(Mark("")), ErrInvalidMark)
}

func TestMarkAllAndClear(t *testing.T) {
	rows := []models.StudentBalance{student("Ana", "20"), student("Luis", "20")}
	s := New(today, "Almuerzo", five(), five(), rows, nil)

	require.NoError(t, s.MarkAll(Absent))
	assert.Equal(t, 2, s.Totals().Absent)
	assert.True(t, s.Totals().Charge.IsZero())

	require.NoError(t, s.ClearAll())
	assert.Empty(t, s.Records())
	assert.Equal(t, 2, s.Totals().Unmarked)
}

func TestConfirmedSheetIsReadOnly(t *testing.T) {
	a, b, c := student("Ana", "20"), student("Luis", "20"), student("Eva", "20")
	posted := Posted([]models.Consumption{
		{StudentID: a.ID, Amount: five()},
		{StudentID: b.ID, Absent: true},
	})
	s := New(today, "Almuerzo", five(), five(), []models.StudentBalance{a, b, c}, posted)

	assert.True(t, s.Confirmed)
	assert.Equal(t, Present, s.Rows[0].Mark)
	assert.Equal(t, Absent, s.Rows[1].Mark)
	assert.Equal(t, Unmarked, s.Rows[2].Mark)

	assert.ErrorIs(t, s.Mark(c.ID, Present), ErrConfirmed)
	assert.ErrorIs(t, s.MarkAll(Present), ErrConfirmed)
	assert.ErrorIs(t, s.ClearAll(), ErrConfirmed)
}

func TestPostedPrefersCharge(t *testing.T) {
	id := uuid.New()
	got := Posted([]models.Consumption{
		{StudentID: id, Absent: true},
		{StudentID: id, Amount: five()},
	})
	assert.Equal(t, Present, got[id])
}

func TestShortfalls(t *testing.T) {
	rich, poor, broke := student("Ana", "20"), student("Luis", "4.99"), student("Eva", "-1")
	s := New(today, "Almuerzo", five(), five(), []models.StudentBalance{rich, poor, broke}, nil)

	short := s.Shortfalls()
	require.Len(t, short, 2)
	assert.Equal(t, poor.ID, short[0].StudentID)
	assert.Equal(t, broke.ID, short[1].StudentID)

	require.NoError(t, s.Mark(broke.ID, Absent))
	assert.Len(t, s.Shortfalls(), 1)
}
