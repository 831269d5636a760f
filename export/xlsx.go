// Package export writes workbooks to xlsx. Export is one-way: unit
// semantics do not survive in the xlsx formula model, so each cell's
// unit metadata goes to a companion sheet instead.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/jacksodj/unicel/engine"
)

// UnitsSheetName is the metadata sheet mapping cell addresses to their
// units and formulas.
const UnitsSheetName = "_units"

// ToXlsx writes the workbook as an xlsx file. Numeric cells carry their
// magnitude in the storage unit; formulas, storage units, and display
// units are recorded on the metadata sheet.
func ToXlsx(wb *engine.Workbook, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for _, sheetName := range wb.SheetNames() {
		if first {
			if err := f.SetSheetName("Sheet1", sheetName); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
			first = false
		} else {
			if _, err := f.NewSheet(sheetName); err != nil {
				return fmt.Errorf("create sheet %s: %w", sheetName, err)
			}
		}
		if err := exportSheet(wb, f, sheetName); err != nil {
			return err
		}
	}

	if err := writeUnitsSheet(wb, f); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// ToXlsxFile writes the workbook to a file path.
func ToXlsxFile(wb *engine.Workbook, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ToXlsx(wb, f)
}

func exportSheet(wb *engine.Workbook, f *excelize.File, sheetName string) error {
	sheet, err := wb.Sheet(sheetName)
	if err != nil {
		return err
	}
	for _, addr := range sheet.Addresses() {
		cellName, err := excelize.CoordinatesToCellName(addr.Col+1, addr.Row+1)
		if err != nil {
			return fmt.Errorf("address %s: %w", addr, err)
		}
		cv, err := wb.GetCell(addr)
		if err != nil {
			return err
		}

		var value any
		switch v := cv.Value.(type) {
		case engine.Quantity:
			value = v.Value
		case string:
			value = v
		case bool:
			value = v
		case *engine.CellError:
			value = v.Display()
		default:
			continue
		}
		if err := f.SetCellValue(sheetName, cellName, value); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheetName, cellName, err)
		}
	}
	return nil
}

// writeUnitsSheet emits one row per cell that carries a unit, formula,
// or warning.
func writeUnitsSheet(wb *engine.Workbook, f *excelize.File) error {
	if _, err := f.NewSheet(UnitsSheetName); err != nil {
		return fmt.Errorf("create %s sheet: %w", UnitsSheetName, err)
	}

	header := []any{"cell", "storage_unit", "display_unit", "formula", "warning"}
	for col, title := range header {
		cellName, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(UnitsSheetName, cellName, title); err != nil {
			return err
		}
	}

	row := 2
	for _, sheetName := range wb.SheetNames() {
		sheet, err := wb.Sheet(sheetName)
		if err != nil {
			return err
		}
		for _, addr := range sheet.Addresses() {
			cv, err := wb.GetCell(addr)
			if err != nil {
				return err
			}
			if cv.Unit == "" && cv.DisplayUnit == "" && cv.Formula == "" && cv.Warning == "" {
				continue
			}
			values := []any{addr.String(), cv.Unit, cv.DisplayUnit, cv.Formula, cv.Warning}
			for col, v := range values {
				cellName, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(UnitsSheetName, cellName, v); err != nil {
					return err
				}
			}
			row++
		}
	}
	return nil
}
