package consumptions

import (
	"fmt"

	"comedor-backend/internal/audit"
	"comedor-backend/internal/balance"
	"comedor-backend/internal/events"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateConsumptionRequest struct {
	StudentID string           `json:"student_id" validate:"required,uuid"`
	ProductID string           `json:"product_id" validate:"required,uuid"`
	Amount    *decimal.Decimal `json:"amount"` // overrides the product price
	Confirm   bool             `json:"confirm"`
}

type ConsumptionResponse struct {
	Consumption models.Consumption `json:"consumption"`
	Student     string             `json:"student"`
	Allergies   *string            `json:"allergies"`
	Balance     decimal.Decimal    `json:"balance"`
	Tier        balance.Tier       `json:"tier"`
}

// POST /api/consumptions
func CreateHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		var body CreateConsumptionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		if err := d.Validate.Struct(body); err != nil {
			return httpx.ValidationError(err)
		}
		studentID := uuid.MustParse(body.StudentID)
		productID := uuid.MustParse(body.ProductID)

		st, err := d.Store.GetStudentBalance(ctx, studentID)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el estudiante")
		}
		if !st.Active {
			return fiber.NewError(fiber.StatusBadRequest, "El estudiante está inactivo")
		}

		product, err := d.Store.GetProduct(ctx, productID)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el producto")
		}
		if !product.Active {
			return fiber.NewError(fiber.StatusBadRequest, "El producto está inactivo")
		}

		amount := product.Price
		if body.Amount != nil {
			amount = *body.Amount
		}
		amount = amount.Round(2)
		if !amount.IsPositive() {
			return fiber.NewError(fiber.StatusBadRequest, "El monto debe ser mayor a 0")
		}

		after := st.Balance.Sub(amount)
		if !balance.Sufficient(st.Balance, amount) && !body.Confirm {
			return httpx.Warning(c, "insufficient_balance",
				fmt.Sprintf("%s no tiene saldo suficiente (saldo %s, consumo %s)", st.FullName(), st.Balance.StringFixed(2), amount.StringFixed(2)),
				fiber.Map{
					"balance":       st.Balance,
					"amount":        amount,
					"balance_after": after,
					"allergies":     st.Allergies,
				})
		}

		row := models.Consumption{
			StudentID: st.ID,
			ProductID: &product.ID,
			Concept:   product.Name,
			Amount:    amount,
			Date:      d.Today(),
		}
		if err := d.Store.CreateConsumption(ctx, &row); err != nil {
			return httpx.StoreError(err, "No se pudo registrar el consumo")
		}

		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "consumption",
			EntityID:    row.ID.String(),
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Consumo %s: %s %s", st.FullName(), product.Name, amount.StringFixed(2)),
			After:       row,
		})
		events.Emit(ctx, d.Events, events.Event{
			Type:      events.ConsumptionRegistered,
			StudentID: &row.StudentID,
			EntityID:  row.ID.String(),
			Amount:    amount,
			Data:      fiber.Map{"concept": row.Concept, "balance": after},
		})

		ref, err := d.ReferencePrice(ctx)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el precio de referencia")
		}

		return c.Status(fiber.StatusCreated).JSON(ConsumptionResponse{
			Consumption: row,
			Student:     st.FullName(),
			Allergies:   st.Allergies,
			Balance:     after,
			Tier:        balance.Classify(after, ref),
		})
	}
}

// GET /api/consumptions?date=YYYY-MM-DD (default today)
func ListHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		day := d.Today()
		if s := c.Query("date"); s != "" {
			parsed, err := d.ParseDay(s)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Fecha inválida (YYYY-MM-DD)")
			}
			day = parsed
		}

		rows, err := d.Store.ListConsumptions(c.UserContext(), storage.ConsumptionFilter{
			From:        &day,
			To:          &day,
			Newest:      true,
			WithStudent: true,
		})
		if err != nil {
			return httpx.StoreError(err, "No se pudieron listar los consumos")
		}

		total := decimal.Zero
		for _, r := range rows {
			total = total.Add(r.Charged())
		}

		return c.JSON(fiber.Map{
			"date":  day.Format(httpx.DateLayout),
			"items": rows,
			"count": len(rows),
			"total": total,
		})
	}
}
