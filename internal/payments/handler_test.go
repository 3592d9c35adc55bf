package payments_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"comedor-backend/internal/events"
	"comedor-backend/internal/httpx/httpxtest"
	"comedor-backend/internal/models"
	"comedor-backend/internal/payments"
	"comedor-backend/internal/storage/memory"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*httpxtest.Env, *fiber.App) {
	env := httpxtest.New(t)
	app := env.App(func(r fiber.Router) {
		r.Get("/api/payments", payments.ListHandler(env.Deps))
		r.Post("/api/payments", payments.CreateHandler(env.Deps))
	})
	return env, app
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func postForm(t *testing.T, app *fiber.App, fields map[string]string, file []byte) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		fw, err := w.CreateFormFile("receipt", "comprobante.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/payments", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return httpxtest.Send(t, app, req)
}

func TestRegisterPaymentJSON(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")
	env.Consumption(t, st.ID, "5", httpxtest.Day(-1))

	status, raw := httpxtest.Do(t, app, "POST", "/api/payments", fiber.Map{
		"student_id":     st.ID.String(),
		"amount":         "20",
		"method":         "transfer",
		"receipt_number": "TR-99",
	})
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	body := httpxtest.JSON(t, raw)
	assert.Equal(t, "15", body["balance"])
	payment := body["payment"].(map[string]any)
	assert.Equal(t, "transfer", payment["method"])
	assert.Equal(t, "TR-99", payment["receipt_number"])
	assert.Nil(t, payment["receipt_url"])

	assert.Equal(t, []string{events.PaymentRegistered}, env.Events.Types())
	assert.Equal(t, 0, env.Receipts.Len())
}

func TestRegisterPaymentWithReceipt(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")

	status, raw := postForm(t, app, map[string]string{
		"student_id": st.ID.String(),
		"amount":     "12.50",
		"method":     "cash",
		"date":       httpxtest.Day(-3).Format("2006-01-02"),
	}, pngBytes(t))
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	payment := httpxtest.JSON(t, raw)["payment"].(map[string]any)
	url, ok := payment["receipt_url"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(url, "memory://receipts/"+st.ID.String()+"/"), url)
	assert.True(t, strings.HasSuffix(url, ".webp"), url)

	require.Equal(t, 1, env.Receipts.Len())
	for _, f := range env.Receipts.Objects {
		assert.Equal(t, "image/webp", f.ContentType)
	}
	assert.Equal(t, "12.5", env.Balance(t, st.ID))
}

func TestRegisterPaymentRejects(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")

	tests := []struct {
		name   string
		body   fiber.Map
		status int
	}{
		{"zero amount", fiber.Map{"student_id": st.ID.String(), "amount": "0", "method": "cash"}, fiber.StatusBadRequest},
		{"negative amount", fiber.Map{"student_id": st.ID.String(), "amount": "-5", "method": "cash"}, fiber.StatusBadRequest},
		{"bad method", fiber.Map{"student_id": st.ID.String(), "amount": "5", "method": "card"}, fiber.StatusBadRequest},
		{"missing student", fiber.Map{"amount": "5", "method": "cash"}, fiber.StatusBadRequest},
		{"unknown student", fiber.Map{"student_id": uuid.NewString(), "amount": "5", "method": "cash"}, fiber.StatusNotFound},
		{"bad date", fiber.Map{"student_id": st.ID.String(), "amount": "5", "method": "cash", "date": "10/03/2025"}, fiber.StatusBadRequest},
		{"future date", fiber.Map{"student_id": st.ID.String(), "amount": "5", "method": "cash", "date": httpxtest.Day(1).Format("2006-01-02")}, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := httpxtest.Do(t, app, "POST", "/api/payments", tt.body)
			assert.Equal(t, tt.status, status, string(raw))
		})
	}
	assert.Equal(t, "0", env.Balance(t, st.ID))
}

func TestUnsupportedReceipt(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")

	status, _ := postForm(t, app, map[string]string{
		"student_id": st.ID.String(), "amount": "5", "method": "cash",
	}, []byte("just some text, not an image"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, 0, env.Receipts.Len())
	assert.Equal(t, "0", env.Balance(t, st.ID))
}

func TestUploadFailureKeepsNothing(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")
	env.Receipts.FailPut = errors.New("bucket down")

	status, _ := postForm(t, app, map[string]string{
		"student_id": st.ID.String(), "amount": "5", "method": "cash",
	}, pngBytes(t))
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, "0", env.Balance(t, st.ID))
}

type failingPayments struct {
	*memory.Store
}

func TestInsertFailureDeletesReceipt(t *testing.T) {
	env, app := setup(t)
	st := env.Student(t, "Ana", "Paz", "9", "A")
	env.Deps.Store = failingPayments{env.Store}

	status, _ := postForm(t, app, map[string]string{
		"student_id": st.ID.String(), "amount": "5", "method": "cash",
	}, pngBytes(t))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, 0, env.Receipts.Len(), "uploaded receipt removed")
}

func (failingPayments) CreatePayment(context.Context, *models.Payment) error {
	return errors.New("connection reset")
}

func TestListPayments(t *testing.T) {
	env, app := setup(t)
	ana := env.Student(t, "Ana", "Paz", "9", "A")
	luis := env.Student(t, "Luis", "Mora", "8", "B")
	env.Payment(t, ana.ID, "10", httpxtest.Day(-40))
	env.Payment(t, ana.ID, "20", httpxtest.Day(-2))
	env.Payment(t, luis.ID, "5", httpxtest.Day(0))

	status, raw := httpxtest.Do(t, app, "GET", "/api/payments", nil)
	require.Equal(t, fiber.StatusOK, status)
	body := httpxtest.JSON(t, raw)
	assert.Equal(t, "25", body["month_total"])
	assert.Equal(t, "2025-03-01", body["month_from"])
	assert.Equal(t, "2025-03-31", body["month_to"])

	items := body["items"].([]any)
	require.Len(t, items, 3)
	first := items[0].(map[string]any)
	assert.Equal(t, "Luis", first["student"].(map[string]any)["first_name"])

	_, raw = httpxtest.Do(t, app, "GET", "/api/payments?limit=1", nil)
	assert.Len(t, httpxtest.JSON(t, raw)["items"].([]any), 1)

	status, _ = httpxtest.Do(t, app, "GET", "/api/payments?limit=abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
