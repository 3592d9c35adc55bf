package students

import (
	"fmt"
	"io"
	"strings"

	"comedor-backend/internal/models"

	"github.com/xuri/excelize/v2"
)

type field int

const (
	colFirstName field = iota
	colLastName
	colLevel
	colSection
	colCode
	colAllergies
	colGuardianName
	colGuardianPhone
	colPaymentPlan
)

// positional layout used when the first row is not a header
var defaultColumns = []field{colFirstName, colLastName, colLevel, colSection, colCode, colAllergies, colGuardianName, colGuardianPhone, colPaymentPlan}

var headerAliases = map[string]field{
	"nombre":         colFirstName,
	"nombres":        colFirstName,
	"first_name":     colFirstName,
	"apellido":       colLastName,
	"apellidos":      colLastName,
	"last_name":      colLastName,
	"nivel":          colLevel,
	"grado":          colLevel,
	"curso":          colLevel,
	"level":          colLevel,
	"paralelo":       colSection,
	"seccion":        colSection,
	"section":        colSection,
	"codigo":         colCode,
	"code":           colCode,
	"alergias":       colAllergies,
	"allergies":      colAllergies,
	"representante":  colGuardianName,
	"guardian_name":  colGuardianName,
	"telefono":       colGuardianPhone,
	"guardian_phone": colGuardianPhone,
	"plan":           colPaymentPlan,
	"payment_plan":   colPaymentPlan,
}

var planAliases = map[string]models.PaymentPlan{
	"":          models.PaymentPlanMonthly,
	"mensual":   models.PaymentPlanMonthly,
	"monthly":   models.PaymentPlanMonthly,
	"quincenal": models.PaymentPlanBiweekly,
	"biweekly":  models.PaymentPlanBiweekly,
	"diario":    models.PaymentPlanDaily,
	"daily":     models.PaymentPlanDaily,
}

// RowError points at a spreadsheet row (1-based, as Excel shows it).
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// foldAccents lowercases and strips Spanish accents, ej: "Código" -> "codigo".
func foldAccents(s string) string {
	r := strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n")
	return r.Replace(strings.ToLower(strings.TrimSpace(s)))
}

func headerColumns(row []string) ([]field, bool) {
	cols := make([]field, len(row))
	matched := 0
	for i, cell := range row {
		key := strings.ReplaceAll(foldAccents(cell), " ", "_")
		f, ok := headerAliases[key]
		if !ok {
			cols[i] = -1
			continue
		}
		cols[i] = f
		matched++
	}
	return cols, matched > 0
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ParseRoster reads the first sheet of an .xlsx roster. Every row must be
// valid for the roster to be accepted; all problems are reported together.
func ParseRoster(r io.Reader) ([]models.Student, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("no se pudo leer el Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("el Excel no tiene hojas")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("no se pudo leer la hoja: %w", err)
	}

	cols := defaultColumns
	start := 0
	if len(rows) > 0 {
		if hc, ok := headerColumns(rows[0]); ok {
			cols, start = hc, 1
		}
	}

	var (
		out  []models.Student
		errs []RowError
	)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}

		st := models.Student{Active: true, PaymentPlan: models.PaymentPlanMonthly}
		for j, cell := range row {
			if j >= len(cols) {
				break
			}
			cell = strings.TrimSpace(cell)
			switch cols[j] {
			case colFirstName:
				st.FirstName = cell
			case colLastName:
				st.LastName = cell
			case colLevel:
				st.Level = cell
			case colSection:
				st.Section = strings.ToUpper(cell)
			case colCode:
				st.Code = optional(cell)
			case colAllergies:
				st.Allergies = optional(cell)
			case colGuardianName:
				st.GuardianName = optional(cell)
			case colGuardianPhone:
				st.GuardianPhone = optional(cell)
			case colPaymentPlan:
				plan, ok := planAliases[foldAccents(cell)]
				if !ok {
					errs = append(errs, RowError{Row: i + 1, Message: "plan de pago inválido: " + cell})
					continue
				}
				st.PaymentPlan = plan
			}
		}

		if st.FirstName == "" {
			errs = append(errs, RowError{Row: i + 1, Message: "falta el nombre"})
		}
		if st.Level == "" {
			errs = append(errs, RowError{Row: i + 1, Message: "falta el nivel"})
		}
		out = append(out, st)
	}

	seen := map[string]int{}
	for i, st := range out {
		if st.Code == nil {
			continue
		}
		if first, dup := seen[*st.Code]; dup {
			errs = append(errs, RowError{Row: 0, Message: fmt.Sprintf("código %s repetido (estudiantes %d y %d)", *st.Code, first+1, i+1)})
			continue
		}
		seen[*st.Code] = i
	}

	return out, errs, nil
}
