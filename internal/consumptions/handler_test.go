package consumptions_test

import (
	"context"
	"testing"

	"comedor-backend/internal/consumptions"
	"comedor-backend/internal/events"
	"comedor-backend/internal/httpx/httpxtest"
	"comedor-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*httpxtest.Env, *fiber.App) {
	env := httpxtest.New(t)
	app := env.App(func(r fiber.Router) {
		r.Get("/api/consumptions", consumptions.ListHandler(env.Deps))
		r.Post("/api/consumptions", consumptions.CreateHandler(env.Deps))
	})
	return env, app
}

func TestRegisterConsumption(t *testing.T) {
	env, app := setup(t)
	env.Price(t, "Almuerzo", "2.00")
	allergy := "maní"
	st := env.Student(t, "Ana", "Paz", "9", "A")
	st.Allergies = &allergy
	require.NoError(t, env.Store.UpdateStudent(context.Background(), &st))
	env.Payment(t, st.ID, "10", httpxtest.Day(-1))
	jugo := env.Product(t, "Jugo", "1.50")

	status, raw := httpxtest.Do(t, app, "POST", "/api/consumptions", fiber.Map{
		"student_id": st.ID.String(),
		"product_id": jugo.ID.String(),
	})
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	body := httpxtest.JSON(t, raw)
	assert.Equal(t, "maní", body["allergies"])
	assert.Equal(t, "Ana Paz", body["student"])
	assert.Equal(t, "8.5", body["balance"])
	assert.Equal(t, "OK", body["tier"])
	assert.Equal(t, "Jugo", body["consumption"].(map[string]any)["concept"])

	assert.Equal(t, "8.5", env.Balance(t, st.ID))
	assert.Equal(t, []string{events.ConsumptionRegistered}, env.Events.Types())
}

func TestAmountOverride(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")
	env.Payment(t, st.ID, "10", httpxtest.Day(0))
	p := env.Product(t, "Combo", "3")

	status, raw := httpxtest.Do(t, app, "POST", "/api/consumptions", fiber.Map{
		"student_id": st.ID.String(),
		"product_id": p.ID.String(),
		"amount":     "2.25",
	})
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	assert.Equal(t, "7.75", env.Balance(t, st.ID))
}

func TestInsufficientBalanceNeedsConfirm(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Luis", "Mora", "8", "B")
	env.Payment(t, st.ID, "1", httpxtest.Day(0))
	p := env.Product(t, "Almuerzo", "2.50")
	req := fiber.Map{"student_id": st.ID.String(), "product_id": p.ID.String()}

	status, raw := httpxtest.Do(t, app, "POST", "/api/consumptions", req)
	require.Equal(t, fiber.StatusConflict, status)
	body := httpxtest.JSON(t, raw)
	assert.Equal(t, "insufficient_balance", body["warning"])
	assert.Equal(t, "-1.5", body["balance_after"])
	assert.Equal(t, "1", env.Balance(t, st.ID), "nothing posted without confirm")
	assert.Empty(t, env.Events.Types())

	req["confirm"] = true
	status, raw = httpxtest.Do(t, app, "POST", "/api/consumptions", req)
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	assert.Equal(t, "EMPTY", httpxtest.JSON(t, raw)["tier"])
	assert.Equal(t, "-1.5", env.Balance(t, st.ID))
}

func TestRegisterConsumptionRejects(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")
	p := env.Product(t, "Jugo", "1")
	free := env.Product(t, "Agua", "0")
	off := env.Product(t, "Viejo", "1")
	off.Active = false
	require.NoError(t, env.Store.UpdateProduct(context.Background(), &off))

	tests := []struct {
		name   string
		body   fiber.Map
		status int
	}{
		{"missing student", fiber.Map{"product_id": p.ID.String()}, fiber.StatusBadRequest},
		{"bad product id", fiber.Map{"student_id": st.ID.String(), "product_id": "x"}, fiber.StatusBadRequest},
		{"unknown student", fiber.Map{"student_id": uuid.NewString(), "product_id": p.ID.String()}, fiber.StatusNotFound},
		{"unknown product", fiber.Map{"student_id": st.ID.String(), "product_id": uuid.NewString()}, fiber.StatusNotFound},
		{"inactive product", fiber.Map{"student_id": st.ID.String(), "product_id": off.ID.String()}, fiber.StatusBadRequest},
		{"zero price", fiber.Map{"student_id": st.ID.String(), "product_id": free.ID.String()}, fiber.StatusBadRequest},
		{"negative override", fiber.Map{"student_id": st.ID.String(), "product_id": p.ID.String(), "amount": "-2"}, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := httpxtest.Do(t, app, "POST", "/api/consumptions", tt.body)
			assert.Equal(t, tt.status, status, string(raw))
		})
	}
	assert.Equal(t, "0", env.Balance(t, st.ID))
}

func TestListDay(t *testing.T) {
	env, app := setup(t)
	ana := env.Student(t, "Ana", "Paz", "9", "A")
	luis := env.Student(t, "Luis", "Mora", "8", "B")
	env.Consumption(t, ana.ID, "2", httpxtest.Day(0))
	env.Consumption(t, luis.ID, "3", httpxtest.Day(0))
	env.Consumption(t, luis.ID, "3", httpxtest.Day(-1))
	absent := models.Consumption{StudentID: ana.ID, Concept: "Almuerzo", Absent: true, Date: httpxtest.Day(0)}
	require.NoError(t, env.Store.CreateConsumption(context.Background(), &absent))

	status, raw := httpxtest.Do(t, app, "GET", "/api/consumptions", nil)
	require.Equal(t, fiber.StatusOK, status)
	body := httpxtest.JSON(t, raw)
	assert.Equal(t, float64(3), body["count"])
	assert.Equal(t, "5", body["total"])
	items := body["items"].([]any)
	newest := items[0].(map[string]any)
	assert.Equal(t, true, newest["absent"])
	assert.Equal(t, "Ana", newest["student"].(map[string]any)["first_name"])

	_, raw = httpxtest.Do(t, app, "GET", "/api/consumptions?date="+httpxtest.Day(-1).Format("2006-01-02"), nil)
	assert.Equal(t, float64(1), httpxtest.JSON(t, raw)["count"])

	status, _ = httpxtest.Do(t, app, "GET", "/api/consumptions?date=ayer", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
