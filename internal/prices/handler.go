package prices

import (
	"fmt"
	"strings"

	"comedor-backend/internal/audit"
	"comedor-backend/internal/events"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const historyLimit = 20

type ChangePriceRequest struct {
	MenuType string          `json:"menu_type"`
	Amount   decimal.Decimal `json:"amount"`
}

type PricesResponse struct {
	Current []models.Price `json:"current"`
	History []models.Price `json:"history"`
}

// GET /api/prices
func ListHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		current, err := d.Store.ListCurrentPrices(c.UserContext())
		if err != nil {
			return httpx.StoreError(err, "No se pudieron listar los precios")
		}
		history, err := d.Store.ListPriceHistory(c.UserContext(), historyLimit)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el historial de precios")
		}
		return c.JSON(PricesResponse{Current: current, History: history})
	}
}

// POST /api/prices (admin). Closes the vigente row today and opens a new one.
func ChangeHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ChangePriceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}

		menuType := strings.TrimSpace(body.MenuType)
		if menuType == "" {
			menuType = d.Cfg.DefaultMenuType
		}
		amount := body.Amount.Round(2)
		if !amount.IsPositive() {
			return fiber.NewError(fiber.StatusBadRequest, "El precio debe ser mayor a 0")
		}

		created, closed, err := d.Store.ReplacePrice(c.UserContext(), menuType, amount, d.Today())
		if err != nil {
			return httpx.StoreError(err, "No se pudo actualizar el precio")
		}

		desc := fmt.Sprintf("Precio %s: %s", menuType, amount.StringFixed(2))
		if closed != nil {
			desc = fmt.Sprintf("Precio %s: %s -> %s", menuType, closed.Amount.StringFixed(2), amount.StringFixed(2))
		}
		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "price",
			EntityID:    created.ID.String(),
			Action:      models.AuditActionCreate,
			Description: desc,
			Before:      closed,
			After:       created,
		})

		data := fiber.Map{"menu_type": menuType}
		if closed != nil {
			data["previous"] = closed.Amount
		}
		events.Emit(c.UserContext(), d.Events, events.Event{
			Type:     events.PriceChanged,
			EntityID: created.ID.String(),
			Amount:   amount,
			Data:     data,
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"price":  created,
			"closed": closed,
		})
	}
}
