package statements

import (
	"fmt"
	"strings"

	"comedor-backend/internal/ledger"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Estado de cuenta"

var columns = []string{"Fecha", "Concepto", "Débito", "Crédito", "Saldo"}

func fileName(s StatementResponse) string {
	name := strings.Join(strings.Fields(s.Student.Name), "_")
	return fmt.Sprintf("estado_%s_%s_%s.xlsx", name, s.From, s.To)
}

// Workbook renders the statement as a single-sheet xlsx: header block,
// one row per movement with its running balance, then the period totals.
func Workbook(s StatementResponse) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, err
	}

	header := [][]any{
		{"Estudiante", s.Student.Name},
		{"Curso", s.Student.Group},
		{"Periodo", s.From + " a " + s.To},
		{"Saldo actual", s.Student.Balance.InexactFloat64()},
	}
	for i, row := range header {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, err
		}
	}
	_ = f.SetCellStyle(sheetName, "A1", "A4", bold)
	_ = f.SetCellStyle(sheetName, "B4", "B4", money)

	const first = 6
	titles := make([]any, len(columns))
	for i, c := range columns {
		titles[i] = c
	}
	if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", first), &titles); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", first), fmt.Sprintf("E%d", first), bold)

	r := first + 1
	for _, m := range s.Movements {
		row := []any{m.Date.Format("2006-01-02"), m.Concept, nil, nil, m.Balance.InexactFloat64()}
		if m.Kind == ledger.Credit {
			row[3] = m.Amount.InexactFloat64()
		} else {
			row[2] = m.Amount.InexactFloat64()
		}
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", r), &row); err != nil {
			return nil, err
		}
		r++
	}

	totals := []any{"", "Totales", s.TotalDebits.InexactFloat64(), s.TotalCredits.InexactFloat64(), s.Net.InexactFloat64()}
	if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", r), &totals); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(sheetName, fmt.Sprintf("B%d", r), fmt.Sprintf("B%d", r), bold)
	_ = f.SetCellStyle(sheetName, fmt.Sprintf("C%d", first+1), fmt.Sprintf("E%d", r), money)

	_ = f.SetColWidth(sheetName, "A", "A", 14)
	_ = f.SetColWidth(sheetName, "B", "B", 36)
	_ = f.SetColWidth(sheetName, "C", "E", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
