package importer

import (
	"fmt"
	"io"
	"time"

	"cajaclaro/internal/core"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Movimientos"

var exportHeaders = []any{"Fecha", "Tipo", "Descripcion", "Categoria", "Monto"}

// Export writes txs as a single-sheet workbook that Parse reads back.
func Export(w io.Writer, txs []core.Transaction, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, tx := range txs {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			core.DateOf(tx.CreatedAt, loc).String(),
			string(tx.Tipo),
			tx.Descripcion,
			tx.Categoria,
			tx.Monto.InexactFloat64(),
		}
		if err := f.SetSheetRow(exportSheet, cellName, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	f.SetColWidth(exportSheet, "A", "A", 12)
	f.SetColWidth(exportSheet, "B", "B", 10)
	f.SetColWidth(exportSheet, "C", "C", 40)
	f.SetColWidth(exportSheet, "D", "D", 18)
	f.SetColWidth(exportSheet, "E", "E", 14)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
