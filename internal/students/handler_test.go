package students_test

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"comedor-backend/internal/httpx/httpxtest"
	"comedor-backend/internal/students"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func setup(t *testing.T) (*httpxtest.Env, *fiber.App) {
	env := httpxtest.New(t)
	app := env.App(func(r fiber.Router) {
		r.Get("/api/students", students.ListHandler(env.Deps))
		r.Get("/api/students/search", students.SearchHandler(env.Deps))
		r.Post("/api/students/import", students.ImportHandler(env.Deps))
		r.Post("/api/students", students.CreateHandler(env.Deps))
		r.Get("/api/students/:id", students.DetailHandler(env.Deps))
		r.Put("/api/students/:id", students.UpdateHandler(env.Deps))
		r.Patch("/api/students/:id/toggle", students.ToggleHandler(env.Deps))
	})
	return env, app
}

func TestCreateStudent(t *testing.T) {
	_, app := setup(t)

	status, raw := httpxtest.Do(t, app, "POST", "/api/students", fiber.Map{
		"first_name": "  Ana ",
		"last_name":  "Paz",
		"level":      "9",
		"section":    "b",
		"allergies":  "maní",
	})
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	body := httpxtest.JSON(t, raw)
	assert.Equal(t, "Ana", body["first_name"])
	assert.Equal(t, "B", body["section"])
	assert.Equal(t, "monthly", body["payment_plan"])
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "maní", body["allergies"])
	assert.NotEmpty(t, body["id"])
}

func TestCreateStudentValidation(t *testing.T) {
	_, app := setup(t)

	tests := []struct {
		name  string
		body  fiber.Map
		field string
	}{
		{"missing first name", fiber.Map{"level": "9"}, "FirstName"},
		{"blank first name", fiber.Map{"first_name": "   ", "level": "9"}, "FirstName"},
		{"missing level", fiber.Map{"first_name": "Ana"}, "Level"},
		{"bad plan", fiber.Map{"first_name": "Ana", "level": "9", "payment_plan": "yearly"}, "PaymentPlan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := httpxtest.Do(t, app, "POST", "/api/students", tt.body)
			require.Equal(t, fiber.StatusBadRequest, status)
			fields := httpxtest.JSON(t, raw)["fields"].(map[string]any)
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestDuplicateCode(t *testing.T) {
	_, app := setup(t)
	body := fiber.Map{"first_name": "Ana", "level": "9", "code": "A-1"}

	status, _ := httpxtest.Do(t, app, "POST", "/api/students", body)
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = httpxtest.Do(t, app, "POST", "/api/students", body)
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestListWithTiers(t *testing.T) {
	env, app := setup(t)
	env.Price(t, "Almuerzo", "2.50")
	a := env.Student(t, "Ana", "Paz", "9", "B")
	l := env.Student(t, "Luis", "Mora", "9", "B")
	e := env.Student(t, "Eva", "Ruiz", "10", "A")
	env.Payment(t, a.ID, "7.50", httpxtest.Day(0))
	env.Payment(t, l.ID, "7.49", httpxtest.Day(0))
	env.Consumption(t, e.ID, "2.50", httpxtest.Day(0))

	status, raw := httpxtest.Do(t, app, "GET", "/api/students", nil)
	require.Equal(t, fiber.StatusOK, status)
	rows := httpxtest.List(t, raw)
	require.Len(t, rows, 3)

	tiers := map[string]string{}
	for _, r := range rows {
		tiers[r["first_name"].(string)] = r["tier"].(string)
	}
	assert.Equal(t, map[string]string{"Ana": "OK", "Luis": "LOW", "Eva": "EMPTY"}, tiers)

	status, raw = httpxtest.Do(t, app, "GET", "/api/students?level=9", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, httpxtest.List(t, raw), 2)
}

func TestListUsesFallbackPrice(t *testing.T) {
	env, app := setup(t)
	a := env.Student(t, "Ana", "Paz", "9", "B")
	env.Payment(t, a.ID, "14", httpxtest.Day(0))

	_, raw := httpxtest.Do(t, app, "GET", "/api/students", nil)
	rows := httpxtest.List(t, raw)
	require.Len(t, rows, 1)
	assert.Equal(t, "LOW", rows[0]["tier"], "14 < 3 x fallback 5")
}

func TestSearch(t *testing.T) {
	env, app := setup(t)
	env.Student(t, "Ana", "Paz", "9", "B")
	env.Student(t, "Mariana", "López", "7", "A")
	env.Student(t, "Luis", "Mora", "9", "A")
	for i := 0; i < 10; i++ {
		env.Student(t, "Sebastián", "Ana", "3", "C")
	}

	_, raw := httpxtest.Do(t, app, "GET", "/api/students/search?q=a", nil)
	assert.Empty(t, httpxtest.List(t, raw), "one character is not enough")

	_, raw = httpxtest.Do(t, app, "GET", "/api/students/search?q=9b", nil)
	rows := httpxtest.List(t, raw)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ana", rows[0]["first_name"])

	_, raw = httpxtest.Do(t, app, "GET", "/api/students/search?q=ana", nil)
	assert.Len(t, httpxtest.List(t, raw), 8)

	_, raw = httpxtest.Do(t, app, "GET", "/api/students/search?q=MORA", nil)
	assert.Len(t, httpxtest.List(t, raw), 1)
}

func TestSearchSkipsInactive(t *testing.T) {
	env, app := setup(t)
	s := env.Student(t, "Ana", "Paz", "9", "B")

	status, _ := httpxtest.Do(t, app, "PATCH", "/api/students/"+s.ID.String()+"/toggle", nil)
	require.Equal(t, fiber.StatusOK, status)

	_, raw := httpxtest.Do(t, app, "GET", "/api/students/search?q=ana", nil)
	assert.Empty(t, httpxtest.List(t, raw))

	_, raw = httpxtest.Do(t, app, "GET", "/api/students?active=false", nil)
	assert.Len(t, httpxtest.List(t, raw), 1)
}

func TestDetail(t *testing.T) {
	env, app := setup(t)
	s := env.Student(t, "Ana", "Paz", "9", "B")
	env.Payment(t, s.ID, "50", httpxtest.Day(-3))
	env.Consumption(t, s.ID, "5", httpxtest.Day(-2))
	env.Consumption(t, s.ID, "5", httpxtest.Day(-1))

	status, raw := httpxtest.Do(t, app, "GET", "/api/students/"+s.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, status, string(raw))

	body := httpxtest.JSON(t, raw)
	assert.Equal(t, "40", body["balance"])
	assert.Equal(t, "OK", body["tier"])
	assert.Equal(t, "9B", body["group"])
	assert.Len(t, body["consumptions"].([]any), 2)
	assert.Len(t, body["payments"].([]any), 1)

	history := body["history"].([]any)
	require.Len(t, history, 3)
	first := history[0].(map[string]any)
	last := history[2].(map[string]any)
	assert.Equal(t, "debit", first["kind"])
	assert.Equal(t, "40", first["balance"])
	assert.Equal(t, "credit", last["kind"])
	assert.Equal(t, "50", last["balance"])
}

func TestDetailNotFound(t *testing.T) {
	_, app := setup(t)

	status, _ := httpxtest.Do(t, app, "GET", "/api/students/6f1c2b0e-3f38-4a55-8f0e-7b1f3a9d2c44", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = httpxtest.Do(t, app, "GET", "/api/students/not-a-uuid", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestUpdateKeepsActive(t *testing.T) {
	env, app := setup(t)
	s := env.Student(t, "Ana", "Paz", "9", "B")

	status, raw := httpxtest.Do(t, app, "PUT", "/api/students/"+s.ID.String(), fiber.Map{
		"first_name":     "Ana María",
		"level":          "10",
		"section":        "A",
		"guardian_phone": "0991234567",
		"payment_plan":   "biweekly",
	})
	require.Equal(t, fiber.StatusOK, status, string(raw))

	body := httpxtest.JSON(t, raw)
	assert.Equal(t, "Ana María", body["first_name"])
	assert.Equal(t, "10", body["level"])
	assert.Equal(t, "biweekly", body["payment_plan"])
	assert.Equal(t, true, body["active"])
}

func postRoster(t *testing.T, app *fiber.App, rows [][]any) (int, []byte) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	xlsx, err := f.WriteToBuffer()
	require.NoError(t, err)

	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "nomina.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/students/import", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return httpxtest.Send(t, app, req)
}

func TestImportRoster(t *testing.T) {
	_, app := setup(t)

	status, raw := postRoster(t, app, [][]any{
		{"Nombres", "Apellidos", "Nivel", "Paralelo", "Alergias", "Plan"},
		{"Ana", "Paz", "9", "b", "", "Quincenal"},
		{"Luis", "Mora", "9", "A", "lactosa", ""},
		{},
	})
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	assert.EqualValues(t, 2, httpxtest.JSON(t, raw)["imported"])

	_, raw = httpxtest.Do(t, app, "GET", "/api/students", nil)
	rows := httpxtest.List(t, raw)
	require.Len(t, rows, 2)
	assert.Equal(t, "Luis", rows[0]["first_name"])
	assert.Equal(t, "lactosa", rows[0]["allergies"])
	assert.Equal(t, "B", rows[1]["section"])
	assert.Equal(t, "biweekly", rows[1]["payment_plan"])
}

func TestImportRosterIsAtomic(t *testing.T) {
	_, app := setup(t)

	status, raw := postRoster(t, app, [][]any{
		{"Nombres", "Apellidos", "Nivel"},
		{"Ana", "Paz", "9"},
		{"", "Mora", "9"},
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	errs := httpxtest.JSON(t, raw)["errors"].([]any)
	require.Len(t, errs, 1)
	assert.EqualValues(t, 3, errs[0].(map[string]any)["row"])

	_, raw = httpxtest.Do(t, app, "GET", "/api/students", nil)
	assert.Empty(t, httpxtest.List(t, raw))
}
