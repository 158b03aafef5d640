package export

import (
	"fmt"
	"io"

	"healthatlas/internal/models"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes one sheet named after the category: a header row, then
// one row per record.
func WriteXLSX(w io.Writer, category models.Category, records []models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := string(category)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"Country", "Year", "Value"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{r.CountryCode, r.Year, r.Value}); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
