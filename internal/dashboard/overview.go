package dashboard

import (
	"comedor-backend/internal/balance"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type TodaySummary struct {
	Date         string          `json:"date"`
	Consumptions int             `json:"consumptions"`
	Absences     int             `json:"absences"`
	Served       int             `json:"served"` // distinct students with a row today
	Total        decimal.Decimal `json:"total"`
}

type OverviewResponse struct {
	ActiveStudents int             `json:"active_students"`
	Balances       balance.Summary `json:"balances"`
	MenuType       string          `json:"menu_type"`
	CurrentPrice   *models.Price   `json:"current_price"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	Today          TodaySummary    `json:"today"`
}

// GET /api/dashboard
func OverviewHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		active := true
		rows, err := d.Store.ListStudentBalances(ctx, storage.StudentFilter{Active: &active})
		if err != nil {
			return httpx.StoreError(err, "No se pudieron leer los saldos")
		}

		price, ok, err := d.CurrentPrice(ctx, d.Cfg.DefaultMenuType)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el precio vigente")
		}
		ref := balance.ReferencePrice(price, ok, d.Cfg.FallbackUnitPrice)

		today := d.Today()
		consumed, err := d.Store.ListConsumptions(ctx, storage.ConsumptionFilter{From: &today, To: &today})
		if err != nil {
			return httpx.StoreError(err, "No se pudieron leer los consumos de hoy")
		}
		served, err := d.Store.StudentsWithConsumptionOn(ctx, today)
		if err != nil {
			return httpx.StoreError(err, "No se pudieron leer los consumos de hoy")
		}

		day := TodaySummary{Date: today.Format(httpx.DateLayout), Served: len(served), Total: decimal.Zero}
		for _, r := range consumed {
			if r.Absent {
				day.Absences++
				continue
			}
			day.Consumptions++
			day.Total = day.Total.Add(r.Amount)
		}

		resp := OverviewResponse{
			ActiveStudents: len(rows),
			Balances:       balance.Summarize(rows, ref),
			MenuType:       d.Cfg.DefaultMenuType,
			ReferencePrice: ref,
			Today:          day,
		}
		if ok {
			resp.CurrentPrice = &price
		}
		return c.JSON(resp)
	}
}
