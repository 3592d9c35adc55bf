package statements

import (
	"context"
	"fmt"
	"time"

	"comedor-backend/internal/balance"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/ledger"
	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Header is the student block printed above the movements. Balance is the
// all-time figure, independent of the requested period.
type Header struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Group     string          `json:"group"`
	Allergies *string         `json:"allergies"`
	Balance   decimal.Decimal `json:"balance"`
	Tier      balance.Tier    `json:"tier"`
}

type StatementResponse struct {
	Student      Header            `json:"student"`
	From         string            `json:"from"`
	To           string            `json:"to"`
	Movements    []ledger.Movement `json:"movements"`
	TotalCredits decimal.Decimal   `json:"total_credits"`
	TotalDebits  decimal.Decimal   `json:"total_debits"`
	Net          decimal.Decimal   `json:"net"`
}

// period reads ?from=&to=, defaulting to the first of the month through today.
func period(c *fiber.Ctx, d *httpx.Deps) (from, to time.Time, err error) {
	today := d.Today()
	from, to = models.MonthStart(today), today

	if s := c.Query("from"); s != "" {
		if from, err = d.ParseDay(s); err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "Fecha 'from' inválida (YYYY-MM-DD)")
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = d.ParseDay(s); err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "Fecha 'to' inválida (YYYY-MM-DD)")
		}
	}
	return from, to, nil
}

func load(ctx context.Context, d *httpx.Deps, c *fiber.Ctx) (StatementResponse, error) {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return StatementResponse{}, err
	}
	from, to, err := period(c, d)
	if err != nil {
		return StatementResponse{}, err
	}

	st, err := d.Store.GetStudentBalance(ctx, id)
	if err != nil {
		return StatementResponse{}, httpx.StoreError(err, "No se pudo obtener el estudiante")
	}
	ref, err := d.ReferencePrice(ctx)
	if err != nil {
		return StatementResponse{}, httpx.StoreError(err, "No se pudo obtener el precio de referencia")
	}

	var cs []models.Consumption
	var ps []models.Payment
	if !to.Before(from) {
		cs, err = d.Store.ListConsumptions(ctx, storage.ConsumptionFilter{StudentID: &id, From: &from, To: &to})
		if err != nil {
			return StatementResponse{}, httpx.StoreError(err, "No se pudieron leer los consumos")
		}
		ps, err = d.Store.ListPayments(ctx, storage.PaymentFilter{StudentID: &id, From: &from, To: &to})
		if err != nil {
			return StatementResponse{}, httpx.StoreError(err, "No se pudieron leer los pagos")
		}
	}

	s := ledger.Build(st.Student, from, to, cs, ps)
	return StatementResponse{
		Student: Header{
			ID:        st.ID.String(),
			Name:      st.FullName(),
			Group:     st.Group(),
			Allergies: st.Allergies,
			Balance:   st.Balance,
			Tier:      balance.Classify(st.Balance, ref),
		},
		From:         from.Format(httpx.DateLayout),
		To:           to.Format(httpx.DateLayout),
		Movements:    s.Movements,
		TotalCredits: s.TotalCredits,
		TotalDebits:  s.TotalDebits,
		Net:          s.Net(),
	}, nil
}

// GET /api/students/:id/statement?from=2025-03-01&to=2025-03-31
func GetHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		resp, err := load(c.UserContext(), d, c)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}

// GET /api/students/:id/statement.xlsx
func ExportHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		resp, err := load(c.UserContext(), d, c)
		if err != nil {
			return err
		}

		buf, err := Workbook(resp)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar el Excel")
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName(resp)))
		return c.Send(buf)
	}
}
