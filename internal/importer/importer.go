// Package importer reads and writes ledger spreadsheets. Column headers are
// matched loosely so bank exports and hand-made sheets both load.
package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"cajaclaro/internal/core"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// headerScanRows is how deep into a sheet the header row is searched for.
const headerScanRows = 10

var (
	ErrNoSheet  = &core.ValidationError{Field: "archivo", Reason: "workbook has no sheets"}
	ErrNoHeader = &core.ValidationError{Field: "archivo", Reason: "no column looks like an amount (monto)"}
)

type column int

const (
	colTipo column = iota
	colMonto
	colDescripcion
	colFecha
	colCategoria
)

var headerAliases = map[string]column{
	"tipo":        colTipo,
	"type":        colTipo,
	"movimiento":  colTipo,
	"monto":       colMonto,
	"amount":      colMonto,
	"valor":       colMonto,
	"importe":     colMonto,
	"total":       colMonto,
	"descripcion": colDescripcion,
	"description": colDescripcion,
	"detalle":     colDescripcion,
	"glosa":       colDescripcion,
	"concepto":    colDescripcion,
	"fecha":       colFecha,
	"date":        colFecha,
	"dia":         colFecha,
	"categoria":   colCategoria,
	"category":    colCategoria,
	"rubro":       colCategoria,
}

var tipoAliases = map[string]core.Tipo{
	"ingreso": core.Ingreso,
	"income":  core.Ingreso,
	"abono":   core.Ingreso,
	"entrada": core.Ingreso,
	"venta":   core.Ingreso,
	"gasto":   core.Gasto,
	"egreso":  core.Gasto,
	"expense": core.Gasto,
	"cargo":   core.Gasto,
	"salida":  core.Gasto,
	"compra":  core.Gasto,
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2/1/2006",
	"02-01-06",
	"02/01/06",
}

var accents = strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n")

func normalize(s string) string {
	return accents.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// RowError points at the sheet row (1-based, as shown by spreadsheet apps)
// that could not be read.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Parse reads the first sheet of an xlsx workbook into transactions. Rows
// without a date are dated today. Dates land at noon in loc. When there is no
// tipo column the sign of the amount decides: negative is a gasto.
func Parse(r io.Reader, loc *time.Location, today core.Date) ([]core.Transaction, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &core.ValidationError{Field: "archivo", Reason: "not a readable xlsx file"}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	headerRow, cols := findHeader(rows)
	if headerRow < 0 {
		return nil, ErrNoHeader
	}

	var out []core.Transaction
	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		tx, err := parseRow(f, sheet, i+1, row, cols, loc, today)
		if err != nil {
			return nil, &RowError{Row: i + 1, Err: err}
		}
		out = append(out, tx)
	}
	return out, nil
}

func findHeader(rows [][]string) (int, map[column]int) {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		cols := make(map[column]int)
		for j, cell := range rows[i] {
			c, ok := headerAliases[normalize(cell)]
			if !ok {
				continue
			}
			if _, dup := cols[c]; !dup {
				cols[c] = j
			}
		}
		if _, ok := cols[colMonto]; ok {
			return i, cols
		}
	}
	return -1, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, cols map[column]int, c column) string {
	j, ok := cols[c]
	if !ok || j >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[j])
}

func parseRow(f *excelize.File, sheet string, rowNum int, row []string, cols map[column]int, loc *time.Location, today core.Date) (core.Transaction, error) {
	amount, err := parseAmount(f, sheet, rowNum, cols[colMonto], cell(row, cols, colMonto))
	if err != nil {
		return core.Transaction{}, err
	}

	tipo := amountTipo(amount)
	if raw := cell(row, cols, colTipo); raw != "" {
		t, ok := tipoAliases[normalize(raw)]
		if !ok {
			return core.Transaction{}, core.ErrInvalidTipo
		}
		tipo = t
	}

	date := today
	if raw := cell(row, cols, colFecha); raw != "" {
		date, err = parseDate(raw)
		if err != nil {
			return core.Transaction{}, err
		}
	}

	return core.Transaction{
		Tipo:        tipo,
		Monto:       amount.Abs(),
		Descripcion: cell(row, cols, colDescripcion),
		Categoria:   cell(row, cols, colCategoria),
		CreatedAt:   date.At(loc),
	}, nil
}

func amountTipo(d decimal.Decimal) core.Tipo {
	if d.IsNegative() {
		return core.Gasto
	}
	return core.Ingreso
}

// parseAmount reads numeric cells verbatim and runs text cells through the
// locale-aware money parser.
func parseAmount(f *excelize.File, sheet string, rowNum, colIdx int, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, core.ErrInvalidAmount
	}
	name, err := excelize.CoordinatesToCellName(colIdx+1, rowNum)
	if err != nil {
		return decimal.Zero, err
	}
	typ, err := f.GetCellType(sheet, name)
	if err == nil && (typ == excelize.CellTypeNumber || typ == excelize.CellTypeUnset) {
		if d, err := decimal.NewFromString(raw); err == nil {
			if d.IsZero() {
				return decimal.Zero, core.ErrInvalidAmount
			}
			return d.Round(core.MoneyScale), nil
		}
	}
	d, err := core.ParseSignedMonto(raw)
	if err != nil || d.IsZero() {
		return decimal.Zero, core.ErrInvalidAmount
	}
	return d, nil
}

func parseDate(raw string) (core.Date, error) {
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return core.Date{}, &core.ValidationError{Field: "fecha", Reason: "invalid date serial"}
		}
		return core.NewDate(t.Year(), int(t.Month()), t.Day()), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return core.NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return core.Date{}, &core.ValidationError{Field: "fecha", Reason: fmt.Sprintf("unrecognised date %q", raw)}
}
