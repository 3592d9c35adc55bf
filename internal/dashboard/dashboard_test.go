package dashboard_test

import (
	"context"
	"testing"

	"comedor-backend/internal/dashboard"
	"comedor-backend/internal/httpx/httpxtest"
	"comedor-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*httpxtest.Env, *fiber.App) {
	env := httpxtest.New(t)
	app := env.App(func(r fiber.Router) {
		r.Get("/api/dashboard", dashboard.OverviewHandler(env.Deps))
		r.Get("/api/dashboard/cash-chart", dashboard.CashChartHandler(env.Deps))
	})
	return env, app
}

func TestOverview(t *testing.T) {
	env, app := setup(t)
	env.Price(t, "Almuerzo", "5")

	ok := env.Student(t, "Ana", "Paz", "9", "A")
	low := env.Student(t, "Luis", "Mora", "8", "B")
	empty := env.Student(t, "Eva", "Ruiz", "7", "A")
	off := env.Student(t, "Olga", "Vera", "7", "B")
	off.Active = false
	require.NoError(t, env.Store.UpdateStudent(context.Background(), &off))

	env.Payment(t, ok.ID, "30", httpxtest.Day(-1))
	env.Payment(t, low.ID, "15", httpxtest.Day(-1))
	env.Consumption(t, ok.ID, "5", httpxtest.Day(0))
	env.Consumption(t, low.ID, "5", httpxtest.Day(0))
	absent := models.Consumption{StudentID: empty.ID, Concept: "Almuerzo", Absent: true, Amount: decimal.Zero, Date: httpxtest.Day(0)}
	require.NoError(t, env.Store.CreateConsumption(context.Background(), &absent))

	status, raw := httpxtest.Do(t, app, "GET", "/api/dashboard", nil)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	body := httpxtest.JSON(t, raw)

	assert.Equal(t, float64(3), body["active_students"])
	assert.Equal(t, "5", body["reference_price"])
	assert.NotNil(t, body["current_price"])

	b := body["balances"].(map[string]any)
	assert.Equal(t, float64(1), b["ok"], "25 >= 15")
	assert.Equal(t, float64(1), b["low"], "10 < 15")
	assert.Equal(t, float64(1), b["empty"])
	assert.Equal(t, []any{"Eva Ruiz"}, b["empty_names"])
	assert.Equal(t, []any{"Luis Mora"}, b["low_names"])

	today := body["today"].(map[string]any)
	assert.Equal(t, "2025-03-10", today["date"])
	assert.Equal(t, float64(2), today["consumptions"])
	assert.Equal(t, float64(1), today["absences"])
	assert.Equal(t, float64(3), today["served"])
	assert.Equal(t, "10", today["total"])
}

func TestOverviewWithoutPrice(t *testing.T) {
	_, app := setup(t)

	_, raw := httpxtest.Do(t, app, "GET", "/api/dashboard", nil)
	body := httpxtest.JSON(t, raw)
	assert.Nil(t, body["current_price"])
	assert.Equal(t, "5", body["reference_price"], "fallback")
	assert.Equal(t, float64(0), body["active_students"])
}

func TestCashChartDaily(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")
	env.Payment(t, st.ID, "20", httpxtest.Day(-1))
	tr := models.Payment{StudentID: st.ID, Amount: decimal.NewFromInt(7), Method: models.PaymentMethodTransfer, Date: httpxtest.Day(0)}
	require.NoError(t, env.Store.CreatePayment(context.Background(), &tr))
	env.Consumption(t, st.ID, "5", httpxtest.Day(0))
	env.Payment(t, st.ID, "100", httpxtest.Day(-30))

	status, raw := httpxtest.Do(t, app, "GET", "/api/dashboard/cash-chart?count=3", nil)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	body := httpxtest.JSON(t, raw)
	assert.Equal(t, "daily", body["period"])
	assert.Equal(t, "2025-03-08", body["from"])
	assert.Equal(t, "2025-03-10", body["to"])

	points := body["points"].([]any)
	require.Len(t, points, 3)
	last := points[2].(map[string]any)
	assert.Equal(t, "2025-03-10", last["label"])
	assert.Equal(t, "7", last["transfer"])
	assert.Equal(t, "5", last["consumed"])

	totals := body["totals"].(map[string]any)
	assert.Equal(t, "27", totals["paid"])
	assert.Equal(t, "20", totals["cash"])
}

func TestCashChartWeeklyAndMonthly(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")
	env.Payment(t, st.ID, "10", httpxtest.Day(-3)) // Fri 2025-03-07
	env.Payment(t, st.ID, "5", httpxtest.Day(0))   // Mon 2025-03-10

	_, raw := httpxtest.Do(t, app, "GET", "/api/dashboard/cash-chart?period=weekly&count=2", nil)
	body := httpxtest.JSON(t, raw)
	points := body["points"].([]any)
	require.Len(t, points, 2)
	assert.Equal(t, "2025-03-03", points[0].(map[string]any)["label"])
	assert.Equal(t, "10", points[0].(map[string]any)["paid"])
	assert.Equal(t, "2025-03-10", points[1].(map[string]any)["label"])

	_, raw = httpxtest.Do(t, app, "GET", "/api/dashboard/cash-chart?period=monthly&count=2", nil)
	body = httpxtest.JSON(t, raw)
	assert.Equal(t, "2025-02-01", body["from"])
	points = body["points"].([]any)
	require.Len(t, points, 2)
	assert.Equal(t, "15", points[1].(map[string]any)["paid"])

	status, _ := httpxtest.Do(t, app, "GET", "/api/dashboard/cash-chart?count=-1", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
