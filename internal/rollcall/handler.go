package rollcall

import (
	"context"
	"errors"
	"fmt"

	"comedor-backend/internal/audit"
	"comedor-backend/internal/events"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PostRequest struct {
	MenuType string          `json:"menu_type"`
	All      Mark            `json:"all"` // optional bulk mark applied before Marks
	Marks    map[string]Mark `json:"marks"`
	Confirm  bool            `json:"confirm"`
}

type SheetResponse struct {
	*Sheet
	Totals     Totals `json:"totals"`
	Shortfalls []Row  `json:"shortfalls"`
}

func loadSheet(ctx context.Context, d *httpx.Deps, menuType string) (*Sheet, error) {
	price, ok, err := d.CurrentPrice(ctx, menuType)
	if err != nil {
		return nil, httpx.StoreError(err, "No se pudo obtener el precio vigente")
	}
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, fmt.Sprintf("No hay precio vigente para %s", menuType))
	}

	ref, err := d.ReferencePrice(ctx)
	if err != nil {
		return nil, httpx.StoreError(err, "No se pudo obtener el precio de referencia")
	}

	active := true
	students, err := d.Store.ListStudentBalances(ctx, storage.StudentFilter{Active: &active})
	if err != nil {
		return nil, httpx.StoreError(err, "No se pudieron listar los estudiantes")
	}

	today := d.Today()
	posted, err := d.Store.ListConsumptions(ctx, storage.ConsumptionFilter{From: &today, To: &today})
	if err != nil {
		return nil, httpx.StoreError(err, "No se pudieron leer los consumos de hoy")
	}

	return New(today, menuType, price.Amount, ref, students, Posted(posted)), nil
}

func menuTypeOf(d *httpx.Deps, v string) string {
	if v == "" {
		return d.Cfg.DefaultMenuType
	}
	return v
}

// GET /api/roll-call?menu_type=Almuerzo
func GetSheetHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sheet, err := loadSheet(c.UserContext(), d, menuTypeOf(d, c.Query("menu_type")))
		if err != nil {
			return err
		}
		return c.JSON(SheetResponse{Sheet: sheet, Totals: sheet.Totals(), Shortfalls: sheet.Shortfalls()})
	}
}

// POST /api/roll-call
func PostHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body PostRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		menuType := menuTypeOf(d, body.MenuType)

		sheet, err := loadSheet(c.UserContext(), d, menuType)
		if err != nil {
			return err
		}
		if sheet.Confirmed {
			return fiber.NewError(fiber.StatusConflict, "La lista de hoy ya fue confirmada")
		}

		if body.All != "" {
			if err := sheet.MarkAll(body.All); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Marca inválida (PRESENT|ABSENT|UNMARKED)")
			}
		}
		for key, mark := range body.Marks {
			id, err := uuid.Parse(key)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "ID de estudiante inválido: "+key)
			}
			switch err := sheet.Mark(id, mark); {
			case errors.Is(err, ErrUnknownStudent):
				return fiber.NewError(fiber.StatusBadRequest, "El estudiante no está en la lista: "+key)
			case errors.Is(err, ErrInvalidMark):
				return fiber.NewError(fiber.StatusBadRequest, "Marca inválida (PRESENT|ABSENT|UNMARKED)")
			case err != nil:
				return err
			}
		}

		records := sheet.Records()
		if len(records) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "No hay estudiantes marcados")
		}

		totals := sheet.Totals()
		if short := sheet.Shortfalls(); len(short) > 0 && !body.Confirm {
			return httpx.Warning(c, "insufficient_balance",
				fmt.Sprintf("%d estudiante(s) sin saldo suficiente", len(short)),
				fiber.Map{"shortfalls": short, "totals": totals})
		}

		// one multi-row insert: all students are charged or none is
		if err := d.Store.CreateConsumptions(c.UserContext(), records); err != nil {
			return httpx.StoreError(err, "No se pudo registrar la lista; no se guardó ningún consumo")
		}

		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "roll_call",
			EntityID:    sheet.Date.Format(httpx.DateLayout),
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Lista %s: %d presentes, %d ausentes, total %s", menuType, totals.Present, totals.Absent, totals.Charge.StringFixed(2)),
			After:       totals,
		})
		events.Emit(c.UserContext(), d.Events, events.Event{
			Type:     events.RollCallPosted,
			EntityID: sheet.Date.Format(httpx.DateLayout),
			Amount:   totals.Charge,
			Data:     fiber.Map{"menu_type": menuType, "present": totals.Present, "absent": totals.Absent},
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"date":      sheet.Date.Format(httpx.DateLayout),
			"menu_type": menuType,
			"price":     sheet.Price,
			"totals":    totals,
			"posted":    len(records),
		})
	}
}
