package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet written by ExportXLSX.
const SheetName = "Activity"

// ExportXLSX writes rows to a single-sheet workbook with a totals row at the bottom.
func ExportXLSX(w io.Writer, rows []ActivityRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &[]any{"Date", "Report ID", "Hours", "Status"}); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &[]any{r.Date, r.ReportID, r.Hours, r.Status}); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	totalCell, err := excelize.CoordinatesToCellName(1, len(rows)+2)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, totalCell, &[]any{"Total", len(rows), TotalHours(rows)}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
