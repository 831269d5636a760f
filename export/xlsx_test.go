package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/jacksodj/unicel/engine"
)

func TestToXlsx(t *testing.T) {
	wb := engine.NewWorkbook("export-test")
	sets := []struct{ ref, input string }{
		{"A1", "100 mi"},
		{"A2", "50 km"},
		{"A3", "=A1+A2"},
		{"B1", "hello"},
		{"B2", "TRUE"},
	}
	for _, s := range sets {
		if err := wb.SetCellA1(s.ref, s.input); err != nil {
			t.Fatalf("set %s: %v", s.ref, err)
		}
	}

	var buf bytes.Buffer
	if err := ToXlsx(wb, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open exported file: %v", err)
	}
	defer f.Close()

	value, err := f.GetCellValue("Sheet1", "A1")
	if err != nil || value != "100" {
		t.Errorf("A1 = %q, %v; want 100", value, err)
	}
	value, _ = f.GetCellValue("Sheet1", "B1")
	if value != "hello" {
		t.Errorf("B1 = %q, want hello", value)
	}

	// unit metadata lands on the companion sheet
	rows, err := f.GetRows(UnitsSheetName)
	if err != nil {
		t.Fatalf("read %s: %v", UnitsSheetName, err)
	}
	if len(rows) < 2 {
		t.Fatalf("%s rows = %d, want header plus entries", UnitsSheetName, len(rows))
	}
	if rows[0][0] != "cell" || rows[0][1] != "storage_unit" {
		t.Errorf("header = %v", rows[0])
	}

	found := false
	for _, row := range rows[1:] {
		if len(row) >= 2 && row[0] == "Sheet1!A1" && row[1] == "mi" {
			found = true
		}
	}
	if !found {
		t.Errorf("no metadata row for Sheet1!A1 with unit mi: %v", rows)
	}
}
