package students

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"comedor-backend/internal/audit"
	"comedor-backend/internal/balance"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/ledger"
	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const (
	searchMinChars = 2
	searchLimit    = 8
	historyLimit   = 30
)

type StudentRequest struct {
	FirstName       string             `json:"first_name" validate:"required,max=100"`
	LastName        string             `json:"last_name" validate:"max=100"`
	Level           string             `json:"level" validate:"required,max=30"`
	Section         string             `json:"section" validate:"max=10"`
	Code            *string            `json:"code" validate:"omitempty,max=30"`
	Allergies       *string            `json:"allergies" validate:"omitempty,max=255"`
	RequiresInvoice bool               `json:"requires_invoice"`
	GuardianName    *string            `json:"guardian_name" validate:"omitempty,max=150"`
	GuardianPhone   *string            `json:"guardian_phone" validate:"omitempty,max=30"`
	PaymentPlan     models.PaymentPlan `json:"payment_plan" validate:"omitempty,oneof=daily biweekly monthly"`
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	return optional(*p)
}

func (r *StudentRequest) normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Level = strings.TrimSpace(r.Level)
	r.Section = strings.ToUpper(strings.TrimSpace(r.Section))
	r.Code = trimPtr(r.Code)
	r.Allergies = trimPtr(r.Allergies)
	r.GuardianName = trimPtr(r.GuardianName)
	r.GuardianPhone = trimPtr(r.GuardianPhone)
	if r.PaymentPlan == "" {
		r.PaymentPlan = models.PaymentPlanMonthly
	}
}

func (r StudentRequest) apply(s *models.Student) {
	s.FirstName = r.FirstName
	s.LastName = r.LastName
	s.Level = r.Level
	s.Section = r.Section
	s.Code = r.Code
	s.Allergies = r.Allergies
	s.RequiresInvoice = r.RequiresInvoice
	s.GuardianName = r.GuardianName
	s.GuardianPhone = r.GuardianPhone
	s.PaymentPlan = r.PaymentPlan
}

type StudentRow struct {
	models.StudentBalance
	Group string       `json:"group"`
	Tier  balance.Tier `json:"tier"`
}

func rowOf(b models.StudentBalance, ref decimal.Decimal) StudentRow {
	return StudentRow{StudentBalance: b, Group: b.Group(), Tier: balance.Classify(b.Balance, ref)}
}

func parseBody(c *fiber.Ctx, d *httpx.Deps) (StudentRequest, error) {
	var body StudentRequest
	if err := c.BodyParser(&body); err != nil {
		return body, fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
	}
	body.normalize()
	if err := d.Validate.Struct(body); err != nil {
		return body, httpx.ValidationError(err)
	}
	return body, nil
}

// GET /api/students?level=9&q=ana&active=true
func ListHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := storage.StudentFilter{
			Level: c.Query("level"),
			Query: c.Query("q"),
		}
		switch c.Query("active") {
		case "true":
			v := true
			f.Active = &v
		case "false":
			v := false
			f.Active = &v
		}

		ref, err := d.ReferencePrice(c.UserContext())
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el precio de referencia")
		}
		rows, err := d.Store.ListStudentBalances(c.UserContext(), f)
		if err != nil {
			return httpx.StoreError(err, "No se pudieron listar los estudiantes")
		}

		resp := make([]StudentRow, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, rowOf(r, ref))
		}
		return c.JSON(resp)
	}
}

// GET /api/students/search?q=an
func SearchHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := strings.TrimSpace(c.Query("q"))
		if utf8.RuneCountInString(q) < searchMinChars {
			return c.JSON([]StudentRow{})
		}

		ref, err := d.ReferencePrice(c.UserContext())
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el precio de referencia")
		}
		active := true
		rows, err := d.Store.ListStudentBalances(c.UserContext(), storage.StudentFilter{
			Active: &active,
			Query:  q,
			Limit:  searchLimit,
		})
		if err != nil {
			return httpx.StoreError(err, "No se pudo buscar")
		}

		resp := make([]StudentRow, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, rowOf(r, ref))
		}
		return c.JSON(resp)
	}
}

// POST /api/students
func CreateHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, err := parseBody(c, d)
		if err != nil {
			return err
		}

		st := models.Student{Active: true}
		body.apply(&st)
		if err := d.Store.CreateStudent(c.UserContext(), &st); err != nil {
			return httpx.StoreError(err, "No se pudo crear el estudiante")
		}

		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "student",
			EntityID:    st.ID.String(),
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Estudiante creado: %s (%s)", st.FullName(), st.Group()),
			After:       st,
		})

		return c.Status(fiber.StatusCreated).JSON(st)
	}
}

type DetailResponse struct {
	StudentRow
	Consumptions []models.Consumption `json:"consumptions"`
	Payments     []models.Payment     `json:"payments"`
	History      []ledger.Movement    `json:"history"`
}

// GET /api/students/:id
func DetailHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		ctx := c.UserContext()

		b, err := d.Store.GetStudentBalance(ctx, id)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el estudiante")
		}
		ref, err := d.ReferencePrice(ctx)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el precio de referencia")
		}

		cs, err := d.Store.ListConsumptions(ctx, storage.ConsumptionFilter{StudentID: &id, Newest: true, Limit: historyLimit})
		if err != nil {
			return httpx.StoreError(err, "No se pudieron leer los consumos")
		}
		ps, err := d.Store.ListPayments(ctx, storage.PaymentFilter{StudentID: &id, Newest: true, Limit: historyLimit})
		if err != nil {
			return httpx.StoreError(err, "No se pudieron leer los pagos")
		}

		return c.JSON(DetailResponse{
			StudentRow:   rowOf(b, ref),
			Consumptions: cs,
			Payments:     ps,
			History:      ledger.Recent(cs, ps, b.Balance, historyLimit),
		})
	}
}

// PUT /api/students/:id
func UpdateHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		body, err := parseBody(c, d)
		if err != nil {
			return err
		}

		st, err := d.Store.GetStudent(c.UserContext(), id)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el estudiante")
		}
		before := st
		body.apply(&st)
		if err := d.Store.UpdateStudent(c.UserContext(), &st); err != nil {
			return httpx.StoreError(err, "No se pudo actualizar el estudiante")
		}

		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "student",
			EntityID:    st.ID.String(),
			Action:      models.AuditActionUpdate,
			Description: "Estudiante actualizado: " + st.FullName(),
			Before:      before,
			After:       st,
		})

		return c.JSON(st)
	}
}

// PATCH /api/students/:id/toggle
func ToggleHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		st, err := d.Store.GetStudent(c.UserContext(), id)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el estudiante")
		}

		st.Active = !st.Active
		if err := d.Store.UpdateStudent(c.UserContext(), &st); err != nil {
			return httpx.StoreError(err, "No se pudo actualizar el estudiante")
		}

		state := "desactivado"
		if st.Active {
			state = "activado"
		}
		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "student",
			EntityID:    st.ID.String(),
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Estudiante %s: %s", state, st.FullName()),
			After:       fiber.Map{"active": st.Active},
		})

		return c.JSON(st)
	}
}

// POST /api/students/import (multipart "file", .xlsx). All rows or none.
func ImportHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "No se recibió el archivo")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Solo se aceptan archivos .xlsx")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo abrir el archivo")
		}
		defer file.Close()

		rows, rowErrs, err := ParseRoster(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if len(rowErrs) > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "El archivo tiene errores; no se importó ningún estudiante",
				"errors": rowErrs,
			})
		}
		if len(rows) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "El archivo no tiene estudiantes")
		}

		if err := d.Store.CreateStudents(c.UserContext(), rows); err != nil {
			return httpx.StoreError(err, "No se pudo importar; no se guardó ningún estudiante")
		}

		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "student",
			EntityID:    "import",
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Importación de nómina: %d estudiantes", len(rows)),
			After:       fiber.Map{"count": len(rows), "file": fileHeader.Filename},
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"imported": len(rows),
			"students": rows,
		})
	}
}
