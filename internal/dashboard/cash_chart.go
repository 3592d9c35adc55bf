package dashboard

import (
	"sort"
	"time"

	"comedor-backend/internal/httpx"
	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type CashChartPoint struct {
	Label    string          `json:"label"` // day / week start / month start
	Cash     decimal.Decimal `json:"cash"`
	Transfer decimal.Decimal `json:"transfer"`
	Paid     decimal.Decimal `json:"paid"`
	Consumed decimal.Decimal `json:"consumed"`
}

type CashChartResponse struct {
	Period string           `json:"period"` // daily | weekly | monthly
	From   string           `json:"from"`
	To     string           `json:"to"`
	Points []CashChartPoint `json:"points"`
	Totals CashChartPoint   `json:"totals"`
}

// bucketStart maps a day to the first day of its bucket. Weeks start on Monday.
func bucketStart(period string, day time.Time) time.Time {
	day = models.Day(day)
	switch period {
	case "weekly":
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case "monthly":
		return models.MonthStart(day)
	}
	return day
}

// chartRange returns the first and last day covered by count buckets ending today.
func chartRange(period string, count int, today time.Time) (time.Time, time.Time) {
	switch period {
	case "weekly":
		start := bucketStart(period, today).AddDate(0, 0, -7*(count-1))
		return start, today
	case "monthly":
		start := models.MonthStart(today).AddDate(0, -(count - 1), 0)
		return start, today
	}
	return today.AddDate(0, 0, -(count - 1)), today
}

func newPoint(label string) *CashChartPoint {
	return &CashChartPoint{Label: label, Cash: decimal.Zero, Transfer: decimal.Zero, Paid: decimal.Zero, Consumed: decimal.Zero}
}

// GET /api/dashboard/cash-chart?period=daily&count=7
func CashChartHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		period := c.Query("period", "daily")
		count := c.QueryInt("count", 0)
		switch period {
		case "weekly":
			if count == 0 {
				count = 8
			}
		case "monthly":
			if count == 0 {
				count = 12
			}
		default:
			period = "daily"
			if count == 0 {
				count = 7
			}
		}
		if count < 0 || count > 366 {
			return fiber.NewError(fiber.StatusBadRequest, "count inválido")
		}

		start, end := chartRange(period, count, d.Today())

		payments, err := d.Store.ListPayments(ctx, storage.PaymentFilter{From: &start, To: &end})
		if err != nil {
			return httpx.StoreError(err, "No se pudieron leer los pagos")
		}
		consumptions, err := d.Store.ListConsumptions(ctx, storage.ConsumptionFilter{From: &start, To: &end})
		if err != nil {
			return httpx.StoreError(err, "No se pudieron leer los consumos")
		}

		buckets := make(map[string]*CashChartPoint, count)
		for b := bucketStart(period, start); !b.After(end); {
			label := b.Format(httpx.DateLayout)
			buckets[label] = newPoint(label)
			switch period {
			case "weekly":
				b = b.AddDate(0, 0, 7)
			case "monthly":
				b = b.AddDate(0, 1, 0)
			default:
				b = b.AddDate(0, 0, 1)
			}
		}
		at := func(day time.Time) *CashChartPoint {
			label := bucketStart(period, day).Format(httpx.DateLayout)
			p, ok := buckets[label]
			if !ok {
				p = newPoint(label)
				buckets[label] = p
			}
			return p
		}

		for _, p := range payments {
			pt := at(p.Date)
			if p.Method == models.PaymentMethodTransfer {
				pt.Transfer = pt.Transfer.Add(p.Amount)
			} else {
				pt.Cash = pt.Cash.Add(p.Amount)
			}
			pt.Paid = pt.Paid.Add(p.Amount)
		}
		for _, r := range consumptions {
			pt := at(r.Date)
			pt.Consumed = pt.Consumed.Add(r.Charged())
		}

		points := make([]CashChartPoint, 0, len(buckets))
		totals := newPoint("total")
		for _, p := range buckets {
			points = append(points, *p)
			totals.Cash = totals.Cash.Add(p.Cash)
			totals.Transfer = totals.Transfer.Add(p.Transfer)
			totals.Paid = totals.Paid.Add(p.Paid)
			totals.Consumed = totals.Consumed.Add(p.Consumed)
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Label < points[j].Label })

		return c.JSON(CashChartResponse{
			Period: period,
			From:   start.Format(httpx.DateLayout),
			To:     end.Format(httpx.DateLayout),
			Points: points,
			Totals: *totals,
		})
	}
}
