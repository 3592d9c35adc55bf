package payments

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"comedor-backend/internal/audit"
	"comedor-backend/internal/events"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/models"
	"comedor-backend/internal/receipts"
	"comedor-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type CreatePaymentRequest struct {
	StudentID     string               `json:"student_id" validate:"required,uuid"`
	Amount        decimal.Decimal      `json:"amount"`
	Method        models.PaymentMethod `json:"method" validate:"required,oneof=cash transfer"`
	ReceiptNumber *string              `json:"receipt_number" validate:"omitempty,max=50"`
	Notes         *string              `json:"notes" validate:"omitempty,max=255"`
	Date          *string              `json:"date"` // YYYY-MM-DD, default today
}

type PaymentListResponse struct {
	Items      []models.Payment `json:"items"`
	MonthTotal decimal.Decimal  `json:"month_total"`
	MonthFrom  string           `json:"month_from"`
	MonthTo    string           `json:"month_to"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// parseRequest reads either a JSON body or a multipart form. The receipt file
// is only accepted in the multipart variant.
func parseRequest(c *fiber.Ctx) (CreatePaymentRequest, []byte, error) {
	var body CreatePaymentRequest

	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		if err := c.BodyParser(&body); err != nil {
			return body, nil, fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}
		return body, nil, nil
	}

	body.StudentID = c.FormValue("student_id")
	body.Method = models.PaymentMethod(strings.TrimSpace(c.FormValue("method")))
	body.ReceiptNumber = optional(c.FormValue("receipt_number"))
	body.Notes = optional(c.FormValue("notes"))
	body.Date = optional(c.FormValue("date"))
	if s := strings.TrimSpace(c.FormValue("amount")); s != "" {
		amount, err := decimal.NewFromString(s)
		if err != nil {
			return body, nil, fiber.NewError(fiber.StatusBadRequest, "Monto inválido")
		}
		body.Amount = amount
	}

	fh, err := c.FormFile("receipt")
	if err != nil {
		// no attachment
		return body, nil, nil
	}
	if fh.Size > receipts.MaxUploadSize {
		return body, nil, fiber.NewError(fiber.StatusRequestEntityTooLarge, "El comprobante supera los 5 MB")
	}
	f, err := fh.Open()
	if err != nil {
		return body, nil, fiber.NewError(fiber.StatusBadRequest, "No se pudo leer el comprobante")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return body, nil, fiber.NewError(fiber.StatusBadRequest, "No se pudo leer el comprobante")
	}
	return body, data, nil
}

func receiptError(err error) error {
	switch {
	case errors.Is(err, receipts.ErrTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "El comprobante supera los 5 MB")
	case errors.Is(err, receipts.ErrUnsupported), errors.Is(err, receipts.ErrEmpty):
		return fiber.NewError(fiber.StatusBadRequest, "Comprobante inválido (JPG, PNG, WebP o PDF)")
	}
	return fiber.NewError(fiber.StatusBadRequest, "No se pudo procesar el comprobante")
}

func methodLabel(m models.PaymentMethod) string {
	if m == models.PaymentMethodTransfer {
		return "transferencia"
	}
	return "efectivo"
}

// POST /api/payments (JSON or multipart/form-data with an optional "receipt" file)
func CreateHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		body, attachment, err := parseRequest(c)
		if err != nil {
			return err
		}
		if err := d.Validate.Struct(body); err != nil {
			return httpx.ValidationError(err)
		}
		amount := body.Amount.Round(2)
		if !amount.IsPositive() {
			return fiber.NewError(fiber.StatusBadRequest, "El monto debe ser mayor a 0")
		}

		date := d.Today()
		if body.Date != nil && *body.Date != "" {
			parsed, err := d.ParseDay(*body.Date)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Fecha inválida (YYYY-MM-DD)")
			}
			if parsed.After(date) {
				return fiber.NewError(fiber.StatusBadRequest, "La fecha del pago no puede ser futura")
			}
			date = parsed
		}

		st, err := d.Store.GetStudent(ctx, uuid.MustParse(body.StudentID))
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el estudiante")
		}

		p := models.Payment{
			StudentID:     st.ID,
			Amount:        amount,
			Method:        body.Method,
			ReceiptNumber: body.ReceiptNumber,
			Notes:         body.Notes,
			Date:          date,
		}

		var key string
		if attachment != nil {
			file, err := receipts.Normalize(attachment)
			if err != nil {
				return receiptError(err)
			}
			key = receipts.Key(st.ID, d.Clock(), file.Ext)
			url, err := d.Receipts.Put(ctx, key, file)
			if err != nil {
				log.Printf("[ERROR] receipt upload %s: %v", key, err)
				return fiber.NewError(fiber.StatusBadGateway, "No se pudo subir el comprobante")
			}
			p.ReceiptURL = &url
		}

		if err := d.Store.CreatePayment(ctx, &p); err != nil {
			if key != "" {
				if delErr := d.Receipts.Delete(ctx, key); delErr != nil {
					log.Printf("[WARN] orphan receipt %s: %v", key, delErr)
				}
			}
			return httpx.StoreError(err, "No se pudo registrar el pago")
		}

		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "payment",
			EntityID:    p.ID.String(),
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Pago %s: %s (%s)", st.FullName(), amount.StringFixed(2), methodLabel(p.Method)),
			After:       p,
		})
		events.Emit(ctx, d.Events, events.Event{
			Type:      events.PaymentRegistered,
			StudentID: &p.StudentID,
			EntityID:  p.ID.String(),
			Amount:    amount,
			Data:      fiber.Map{"method": p.Method, "receipt_url": p.ReceiptURL},
		})

		bal, err := d.Store.GetStudentBalance(ctx, st.ID)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el saldo")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"payment": p,
			"student": st.FullName(),
			"balance": bal.Balance,
		})
	}
}

// GET /api/payments?limit=50
func ListHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		limit := defaultListLimit
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "limit inválido")
			}
			limit = min(n, maxListLimit)
		}

		items, err := d.Store.ListPayments(ctx, storage.PaymentFilter{
			Newest:      true,
			Limit:       limit,
			WithStudent: true,
		})
		if err != nil {
			return httpx.StoreError(err, "No se pudieron listar los pagos")
		}

		today := d.Today()
		start := models.MonthStart(today)
		end := start.AddDate(0, 1, -1)
		total, err := d.Store.SumPayments(ctx, start, end)
		if err != nil {
			return httpx.StoreError(err, "No se pudo calcular el total del mes")
		}

		return c.JSON(PaymentListResponse{
			Items:      items,
			MonthTotal: total,
			MonthFrom:  start.Format(httpx.DateLayout),
			MonthTo:    end.Format(httpx.DateLayout),
		})
	}
}
