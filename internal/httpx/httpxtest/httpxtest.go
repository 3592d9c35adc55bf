// Package httpxtest wires handlers to the in-memory store for HTTP tests.
package httpxtest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"comedor-backend/internal/auth"
	"comedor-backend/internal/config"
	"comedor-backend/internal/events"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/models"
	"comedor-backend/internal/receipts"
	"comedor-backend/internal/storage/memory"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Base is the test "now": a school day morning. The clock ticks one second per read.
var Base = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

type Env struct {
	Deps     *httpx.Deps
	Store    *memory.Store
	Events   *events.Recorder
	Receipts *receipts.MemoryStore
	Admin    models.User
}

func New(t *testing.T) *Env {
	t.Helper()

	var ticks int64
	clock := func() time.Time {
		n := atomic.AddInt64(&ticks, 1)
		return Base.Add(time.Duration(n) * time.Second)
	}

	cfg := &config.Config{
		JWTSecret:         strings.Repeat("s", 32),
		Location:          time.UTC,
		DefaultMenuType:   "Almuerzo",
		FallbackUnitPrice: decimal.NewFromInt(5),
	}

	store := memory.New()
	store.SetClock(clock)
	rec := &events.Recorder{}
	rs := receipts.NewMemoryStore()

	d := httpx.NewDeps(cfg, store, rs, rec)
	d.Now = clock

	admin := models.User{Name: "Admin", Email: "admin@colegio.ec", Role: models.RoleAdmin}
	require.NoError(t, store.CreateUser(context.Background(), &admin))

	return &Env{Deps: d, Store: store, Events: rec, Receipts: rs, Admin: admin}
}

// App returns a fiber app that authenticates every request as the seeded admin.
func (e *Env) App(register func(r fiber.Router)) *fiber.App {
	return e.AppAs(e.Admin.ID, models.RoleAdmin, register)
}

func (e *Env) AppAs(userID uint, role models.UserRole, register func(r fiber.Router)) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: httpx.ErrorHandler,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
	})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, userID)
		c.Locals(auth.CtxUserRoleKey, role)
		return c.Next()
	})
	register(app)
	return app
}

// Do sends body as JSON (when non-nil) and returns the status and raw response body.
func Do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := sonic.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return Send(t, app, req)
}

func Send(t *testing.T, app *fiber.App, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// JSON decodes raw into a generic map.
func JSON(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &out), string(raw))
	return out
}

func List(t *testing.T, raw []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &out), string(raw))
	return out
}

// -------------------------------------------------
// Seed helpers
// -------------------------------------------------

func (e *Env) Student(t *testing.T, first, last, level, section string) models.Student {
	t.Helper()
	s := models.Student{FirstName: first, LastName: last, Level: level, Section: section, Active: true}
	require.NoError(t, e.Store.CreateStudent(context.Background(), &s))
	return s
}

func (e *Env) Price(t *testing.T, menuType, amount string) models.Price {
	t.Helper()
	p, _, err := e.Store.ReplacePrice(context.Background(), menuType, decimal.RequireFromString(amount), e.Deps.Today())
	require.NoError(t, err)
	return p
}

func (e *Env) Product(t *testing.T, name, price string) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: decimal.RequireFromString(price), Active: true}
	require.NoError(t, e.Store.CreateProduct(context.Background(), &p))
	return p
}

func (e *Env) Payment(t *testing.T, studentID uuid.UUID, amount string, day time.Time) models.Payment {
	t.Helper()
	p := models.Payment{StudentID: studentID, Amount: decimal.RequireFromString(amount), Method: models.PaymentMethodCash, Date: day}
	require.NoError(t, e.Store.CreatePayment(context.Background(), &p))
	return p
}

func (e *Env) Consumption(t *testing.T, studentID uuid.UUID, amount string, day time.Time) models.Consumption {
	t.Helper()
	c := models.Consumption{StudentID: studentID, Concept: "Almuerzo", MenuType: "Almuerzo", Amount: decimal.RequireFromString(amount), Date: day}
	require.NoError(t, e.Store.CreateConsumption(context.Background(), &c))
	return c
}

// Balance reads the student's all-time balance as a string, ej: "35".
func (e *Env) Balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	b, err := e.Store.GetStudentBalance(context.Background(), id)
	require.NoError(t, err)
	return b.Balance.String()
}

// Day is Base shifted by n calendar days.
func Day(n int) time.Time {
	return models.Day(Base).AddDate(0, 0, n)
}
