package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"expenses/internal/core"
)

const sheetName = "Expenses"

// XLSXHeaders are the column titles of the XLSX export.
var XLSXHeaders = []string{"Date", "Category", "Description", "Amount", "Formatted"}

// WriteXLSX writes es as a single-sheet workbook. Amounts are numeric cells;
// the Formatted column shows them in cur.
func WriteXLSX(w io.Writer, es []core.Expense, cur core.Currency) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range XLSXHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for idx, e := range es {
		row := idx + 2
		values := []any{
			e.Date.String(),
			e.Category.Label(),
			e.Description,
			e.Amount,
			core.FormatAmount(e.Amount, cur),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 12)
	_ = f.SetColWidth(sheetName, "B", "B", 18)
	_ = f.SetColWidth(sheetName, "C", "C", 40)
	_ = f.SetColWidth(sheetName, "D", "E", 14)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
