package engine

import (
	"math"
	"strings"
	"testing"
)

type WorkbookTestCase struct {
	t        *testing.T
	name     string
	workbook *Workbook
	err      error
}

func NewWorkbookTestCase(t *testing.T, name string) *WorkbookTestCase {
	return &WorkbookTestCase{
		t:        t,
		name:     name,
		workbook: NewWorkbook(name),
	}
}

func (tc *WorkbookTestCase) AddSheet(name string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.AddSheet(name)
	return tc
}

func (tc *WorkbookTestCase) Set(address, input string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.SetCellA1(address, input)
	if tc.err != nil {
		tc.t.Errorf("%s: Set(%s) failed: %v", tc.name, address, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) DefineName(name, rangeText string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	bounds, err := ParseRangeAddress(rangeText, "Sheet1")
	if err != nil {
		tc.t.Errorf("%s: bad range %s: %v", tc.name, rangeText, err)
		tc.err = err
		return tc
	}
	tc.err = tc.workbook.DefineNamedRange(name, bounds)
	if tc.err != nil {
		tc.t.Errorf("%s: DefineNamedRange(%s) failed: %v", tc.name, name, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) DeleteRows(sheet string, start, count int) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.DeleteRows(sheet, start, count)
	if tc.err != nil {
		tc.t.Errorf("%s: DeleteRows failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) InsertRows(sheet string, start, count int) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.InsertRows(sheet, start, count)
	if tc.err != nil {
		tc.t.Errorf("%s: InsertRows failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) DeleteColumns(sheet string, start, count int) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.DeleteColumns(sheet, start, count)
	if tc.err != nil {
		tc.t.Errorf("%s: DeleteColumns failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) UpdateRate(code string, rate float64) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.UpdateCurrencyRate(code, rate, RateManual)
	if tc.err != nil {
		tc.t.Errorf("%s: UpdateCurrencyRate(%s) failed: %v", tc.name, code, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) ExpectAppError(expectedCode AppErrorCode) *WorkbookTestCase {
	if tc.err == nil {
		tc.t.Errorf("%s: expected error with code %v, got none", tc.name, expectedCode)
		return tc
	}
	if appErr, ok := tc.err.(*AppError); ok {
		if appErr.Code != expectedCode {
			tc.t.Errorf("%s: got error code %v, want %v", tc.name, appErr.Code, expectedCode)
		}
	} else {
		tc.t.Errorf("%s: got error %v, want AppError with code %v", tc.name, tc.err, expectedCode)
	}
	tc.err = nil
	return tc
}

func (tc *WorkbookTestCase) value(address string) Primitive {
	cv, err := tc.workbook.GetCellA1(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return nil
	}
	return cv.Value
}

// AssertNumber checks magnitude (within epsilon) and unit symbol. Pass
// "" for a dimensionless result.
func (tc *WorkbookTestCase) AssertNumber(address string, magnitude float64, unit string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	actual := tc.value(address)
	q, ok := actual.(Quantity)
	if !ok {
		tc.t.Errorf("%s: cell %s = %v (%T), want quantity", tc.name, address, actual, actual)
		return tc
	}
	if math.Abs(q.Value-magnitude) > 1e-6 {
		tc.t.Errorf("%s: cell %s = %v, want %v", tc.name, address, q.Value, magnitude)
	}
	if q.Unit.Symbol() != unit {
		tc.t.Errorf("%s: cell %s unit = %q, want %q", tc.name, address, q.Unit.Symbol(), unit)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellEq(address string, expected Primitive) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	actual := tc.value(address)
	if actual != expected {
		tc.t.Errorf("%s: cell %s = %v (%T), want %v (%T)", tc.name, address, actual, actual, expected, expected)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellErr(address string, errorCode ErrorCode) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	actual := tc.value(address)
	if cellErr, ok := actual.(*CellError); ok {
		if cellErr.ErrorCode != errorCode {
			tc.t.Errorf("%s: cell %s has error %v, want %v", tc.name, address, cellErr.ErrorCode, errorCode)
		}
	} else {
		tc.t.Errorf("%s: cell %s = %v, want error %v", tc.name, address, actual, ErrorMapper[errorCode])
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellEmpty(address string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	if actual := tc.value(address); actual != nil {
		tc.t.Errorf("%s: cell %s = %v, want empty", tc.name, address, actual)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertWarning(address, substring string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	cv, err := tc.workbook.GetCellA1(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}
	if !strings.Contains(cv.Warning, substring) {
		tc.t.Errorf("%s: cell %s warning = %q, want substring %q", tc.name, address, cv.Warning, substring)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertNoWarning(address string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	cv, err := tc.workbook.GetCellA1(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}
	if cv.Warning != "" {
		tc.t.Errorf("%s: cell %s warning = %q, want none", tc.name, address, cv.Warning)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertFormula(address, formula string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	cv, err := tc.workbook.GetCellA1(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}
	if cv.Formula != formula {
		tc.t.Errorf("%s: cell %s formula = %q, want %q", tc.name, address, cv.Formula, formula)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertDisplay(address, expected string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	addr, err := ParseCellAddress(address, "Sheet1")
	if err != nil {
		tc.t.Errorf("%s: bad address %s: %v", tc.name, address, err)
		return tc
	}
	if got := tc.workbook.DisplayString(addr); got != expected {
		tc.t.Errorf("%s: display %s = %q, want %q", tc.name, address, got, expected)
	}
	return tc
}

func (tc *WorkbookTestCase) End() {
}

func TestCellClassification(t *testing.T) {
	NewWorkbookTestCase(t, "Plain number").
		Set("A1", "42").
		AssertNumber("A1", 42, "").
		End()

	NewWorkbookTestCase(t, "Negative decimal").
		Set("A1", "-3.5").
		AssertNumber("A1", -3.5, "").
		End()

	NewWorkbookTestCase(t, "Number with unit").
		Set("A1", "100 mi").
		AssertNumber("A1", 100, "mi").
		End()

	NewWorkbookTestCase(t, "Compound unit literal").
		Set("A1", "75 USD/hr").
		AssertNumber("A1", 75, "USD/hr").
		End()

	NewWorkbookTestCase(t, "Booleans").
		Set("A1", "TRUE").
		Set("A2", "false").
		AssertCellEq("A1", true).
		AssertCellEq("A2", false).
		End()

	NewWorkbookTestCase(t, "Unknown unit falls back to text").
		Set("A1", "100 florps").
		AssertCellEq("A1", "100 florps").
		End()

	NewWorkbookTestCase(t, "Text").
		Set("A1", "hello world").
		AssertCellEq("A1", "hello world").
		End()

	NewWorkbookTestCase(t, "Clearing a cell").
		Set("A1", "42").
		Set("A1", "").
		AssertCellEmpty("A1").
		End()
}

func TestFormulaEvaluation(t *testing.T) {
	NewWorkbookTestCase(t, "Basic arithmetic").
		Set("A1", "=1+2*3").
		AssertNumber("A1", 7, "").
		End()

	NewWorkbookTestCase(t, "Power is right associative").
		Set("A1", "=2^3^2").
		AssertNumber("A1", 512, "").
		End()

	NewWorkbookTestCase(t, "Cell reference chain").
		Set("A1", "10").
		Set("A2", "=A1*2").
		Set("A3", "=A2+5").
		AssertNumber("A3", 25, "").
		End()

	NewWorkbookTestCase(t, "Percent postfix").
		Set("A1", "=50%").
		AssertNumber("A1", 0.5, "").
		End()

	NewWorkbookTestCase(t, "String concatenation").
		Set("A1", "\"a\"").
		Set("B1", `="x"&"y"`).
		AssertCellEq("B1", "xy").
		End()

	NewWorkbookTestCase(t, "Parse error stores syntax error").
		Set("A1", "=1+").
		AssertCellErr("A1", ErrorCodeSyntax).
		End()

	NewWorkbookTestCase(t, "Division by zero").
		Set("A1", "=1/0").
		AssertCellErr("A1", ErrorCodeDiv0).
		End()

	NewWorkbookTestCase(t, "Error propagates through references").
		Set("A1", "=1/0").
		Set("A2", "=A1+1").
		AssertCellErr("A2", ErrorCodeDiv0).
		End()
}

func TestUnitArithmetic(t *testing.T) {
	NewWorkbookTestCase(t, "Same-dimension addition converts to left unit").
		Set("A1", "100 mi").
		Set("A2", "50 km").
		Set("A3", "=A1+A2").
		AssertNumber("A3", 131.06856, "mi").
		AssertNoWarning("A3").
		End()

	NewWorkbookTestCase(t, "Rate times time cancels exactly").
		Set("A1", "75 USD/hr").
		Set("A2", "40 hr").
		Set("A3", "=A1*A2").
		AssertNumber("A3", 3000, "USD").
		End()

	NewWorkbookTestCase(t, "Rate times minutes rescales before cancelling").
		Set("A1", "60 USD/hr").
		Set("A2", "30 min").
		Set("A3", "=A1*A2").
		AssertNumber("A3", 30, "USD").
		End()

	NewWorkbookTestCase(t, "Incompatible addition degrades with warning").
		Set("A1", "5 m").
		Set("A2", "10 s").
		Set("A3", "=A1+A2").
		AssertNumber("A3", 15, "").
		AssertWarning("A3", "incompatible units").
		End()

	NewWorkbookTestCase(t, "Division composes units").
		Set("A1", "120 km").
		Set("A2", "2 hr").
		Set("A3", "=A1/A2").
		AssertNumber("A3", 60, "km/hr").
		End()

	NewWorkbookTestCase(t, "Dimensionless scaling keeps the unit").
		Set("A1", "100 USD").
		Set("A2", "=A1*2").
		AssertNumber("A2", 200, "USD").
		End()

	NewWorkbookTestCase(t, "Unit literal inside a formula").
		Set("A1", "=2 mi+2 mi").
		AssertNumber("A1", 4, "mi").
		End()

	NewWorkbookTestCase(t, "Comparison converts units").
		Set("A1", "1 mi").
		Set("A2", "1 km").
		Set("A3", "=A1>A2").
		AssertCellEq("A3", true).
		End()

	NewWorkbookTestCase(t, "Currency conversion through reference").
		Set("A1", "100 USD").
		UpdateRate("EUR", 0.5).
		Set("A2", "=A1+0 EUR").
		AssertNumber("A2", 100, "USD").
		End()
}

func TestRecalculation(t *testing.T) {
	NewWorkbookTestCase(t, "Edit ripples downstream").
		Set("A1", "10").
		Set("A2", "=A1*2").
		Set("A3", "=A2*2").
		Set("A1", "20").
		AssertNumber("A2", 40, "").
		AssertNumber("A3", 80, "").
		End()

	NewWorkbookTestCase(t, "Range observer recalculates on write inside range").
		Set("A1", "1").
		Set("A2", "2").
		Set("B1", "=SUM(A1:A10)").
		Set("A5", "10").
		AssertNumber("B1", 13, "").
		End()

	NewWorkbookTestCase(t, "Direct cycle").
		Set("A1", "=B1").
		Set("B1", "=A1").
		AssertCellErr("A1", ErrorCodeCirc).
		AssertCellErr("B1", ErrorCodeCirc).
		End()

	NewWorkbookTestCase(t, "Self reference").
		Set("A1", "=A1+1").
		AssertCellErr("A1", ErrorCodeCirc).
		End()

	NewWorkbookTestCase(t, "Downstream of a cycle propagates the error").
		Set("A1", "=B1").
		Set("B1", "=A1").
		Set("C1", "=A1+1").
		AssertCellErr("C1", ErrorCodeCirc).
		End()

	NewWorkbookTestCase(t, "Breaking a cycle recovers").
		Set("A1", "=B1").
		Set("B1", "=A1").
		Set("B1", "5").
		AssertNumber("A1", 5, "").
		End()

	NewWorkbookTestCase(t, "Cells outside the cycle still evaluate").
		Set("A1", "=B1").
		Set("B1", "=A1").
		Set("D1", "=1+1").
		AssertNumber("D1", 2, "").
		End()
}

func TestReadingEvaluatingCellSignalsCycle(t *testing.T) {
	wb := NewWorkbook("t")
	if err := wb.SetCellA1("A1", "5"); err != nil {
		t.Fatal(err)
	}
	sheet, err := wb.Sheet("Sheet1")
	if err != nil {
		t.Fatal(err)
	}
	sheet.Get(0, 0).State = CellStateEvaluating

	// B1 reads A1 while A1 is mid-evaluation
	if err := wb.SetCellA1("B1", "=A1+1"); err != nil {
		t.Fatal(err)
	}
	cv, err := wb.GetCellA1("B1")
	if err != nil {
		t.Fatal(err)
	}
	if cv.Error == nil || *cv.Error != ErrorCodeCirc {
		t.Errorf("B1 = %v, want circular reference error", cv.Value)
	}
}

func TestCrossSheetReferences(t *testing.T) {
	NewWorkbookTestCase(t, "Cross-sheet reference").
		AddSheet("Data").
		Set("Data!A1", "5 kg").
		Set("Sheet1!A1", "=Data!A1*2").
		AssertNumber("Sheet1!A1", 10, "kg").
		End()

	NewWorkbookTestCase(t, "Unknown sheet yields ref error").
		Set("A1", "=Nope!A1").
		AssertCellErr("A1", ErrorCodeRef).
		End()

	NewWorkbookTestCase(t, "Duplicate sheet name rejected").
		AddSheet("Sheet1").
		ExpectAppError(AlreadyExists).
		End()
}

func TestNamedRanges(t *testing.T) {
	NewWorkbookTestCase(t, "Named range in aggregate").
		Set("A1", "1").
		Set("A2", "2").
		Set("A3", "3").
		DefineName("Costs", "Sheet1!A1:A3").
		Set("B1", "=SUM(Costs)").
		AssertNumber("B1", 6, "").
		End()

	NewWorkbookTestCase(t, "Single-cell name acts as scalar").
		Set("A1", "21").
		DefineName("Base", "Sheet1!A1:A1").
		Set("B1", "=Base*2").
		AssertNumber("B1", 42, "").
		End()

	NewWorkbookTestCase(t, "Undefined name yields name error").
		Set("A1", "=Missing+1").
		AssertCellErr("A1", ErrorCodeName).
		End()

	NewWorkbookTestCase(t, "Name defined after its user starts tracking writes").
		Set("A1", "1").
		Set("A2", "2").
		Set("B1", "=SUM(Costs)").
		DefineName("Costs", "Sheet1!A1:A2").
		AssertNumber("B1", 3, "").
		Set("A1", "10").
		AssertNumber("B1", 12, "").
		End()

	NewWorkbookTestCase(t, "Redefining a name rebinds its users").
		Set("A1", "1").
		Set("A2", "2").
		DefineName("Costs", "Sheet1!A1:A2").
		Set("B1", "=SUM(Costs)").
		AssertNumber("B1", 3, "").
		DefineName("Costs", "Sheet1!C1:C1").
		Set("C1", "100").
		AssertNumber("B1", 100, "").
		Set("C1", "200").
		AssertNumber("B1", 200, "").
		Set("A1", "50").
		AssertNumber("B1", 200, "").
		End()

	tc := NewWorkbookTestCase(t, "Deleting a name breaks its users")
	tc.Set("A1", "21").
		DefineName("Base", "Sheet1!A1:A1").
		Set("B1", "=Base*2").
		AssertNumber("B1", 42, "")
	if err := tc.workbook.DeleteNamedRange("Base"); err != nil {
		t.Fatalf("delete name: %v", err)
	}
	tc.AssertCellErr("B1", ErrorCodeName).End()
}

func TestStructuralEdits(t *testing.T) {
	NewWorkbookTestCase(t, "Row deletion shifts references").
		Set("A1", "1").
		Set("A2", "2").
		Set("A3", "3").
		Set("B1", "=A3").
		DeleteRows("Sheet1", 1, 1).
		AssertFormula("B1", "=A2").
		AssertNumber("B1", 3, "").
		End()

	NewWorkbookTestCase(t, "Reference into deleted row becomes ref error").
		Set("A2", "7").
		Set("B1", "=A2*2").
		DeleteRows("Sheet1", 1, 1).
		AssertCellErr("B1", ErrorCodeRef).
		AssertFormula("B1", "=(#REF!*2)").
		End()

	NewWorkbookTestCase(t, "Range clips on partial delete").
		Set("A1", "1").
		Set("A2", "2").
		Set("A3", "3").
		Set("B1", "=SUM(A1:A3)").
		DeleteRows("Sheet1", 2, 1).
		AssertFormula("B1", "=SUM(A1:A2)").
		AssertNumber("B1", 3, "").
		End()

	NewWorkbookTestCase(t, "Insert shifts references down").
		Set("A1", "1").
		Set("A2", "2").
		Set("B1", "=A2").
		InsertRows("Sheet1", 1, 2).
		AssertFormula("B1", "=A4").
		AssertNumber("B1", 2, "").
		End()

	NewWorkbookTestCase(t, "Column deletion").
		Set("A1", "1").
		Set("B1", "2").
		Set("C1", "=B1*10").
		DeleteColumns("Sheet1", 0, 1).
		AssertFormula("B1", "=(A1*10)").
		AssertNumber("B1", 20, "").
		End()

	NewWorkbookTestCase(t, "Rewritten ref-error formula round-trips").
		Set("A2", "5").
		Set("B1", "=A2+1").
		DeleteRows("Sheet1", 1, 1).
		Set("C1", "=1").
		AssertCellErr("B1", ErrorCodeRef).
		End()
}

func TestDisplayPreferences(t *testing.T) {
	tc := NewWorkbookTestCase(t, "Display preference is a view").
		Set("A1", "100 mi")
	tc.workbook.SetDisplayPreference(DisplayMetric)
	tc.AssertDisplay("A1", "160.9344 km").
		AssertNumber("A1", 100, "mi"). // storage untouched
		End()

	tc = NewWorkbookTestCase(t, "Per-cell display unit override").
		Set("A1", "1 km")
	unit, err := tc.workbook.Registry().ParseUnit("m")
	if err != nil {
		t.Fatalf("parse unit: %v", err)
	}
	addr := CellAddress{Sheet: "Sheet1", Row: 0, Col: 0}
	if err := tc.workbook.SetDisplayUnit(addr, &unit); err != nil {
		t.Fatalf("set display unit: %v", err)
	}
	tc.AssertDisplay("A1", "1000 m").End()

	tc = NewWorkbookTestCase(t, "Incompatible display unit rejected").
		Set("A1", "10 s")
	unit, err = tc.workbook.Registry().ParseUnit("kg")
	if err != nil {
		t.Fatalf("parse unit: %v", err)
	}
	addr = CellAddress{Sheet: "Sheet1", Row: 0, Col: 0}
	if err := tc.workbook.SetDisplayUnit(addr, &unit); err == nil {
		t.Errorf("expected dimension mismatch error")
	}
}

func TestCurrencyRates(t *testing.T) {
	NewWorkbookTestCase(t, "Rate update recalculates conversions").
		UpdateRate("EUR", 2).
		Set("A1", "100 USD").
		Set("A2", "=A1+100 EUR").
		AssertNumber("A2", 150, "USD").
		UpdateRate("EUR", 4).
		AssertNumber("A2", 125, "USD").
		End()

	tc := NewWorkbookTestCase(t, "Reference currency cannot be updated")
	if err := tc.workbook.UpdateCurrencyRate(tc.workbook.Rates().Reference(), 2, RateManual); err == nil {
		t.Errorf("expected rejection of reference currency update")
	}

	tc = NewWorkbookTestCase(t, "Rate provenance tracked")
	if err := tc.workbook.UpdateCurrencyRate("EUR", 0.9, RateManual); err != nil {
		t.Fatalf("update rate: %v", err)
	}
	_, provenance, ok := tc.workbook.Rates().Rate("EUR")
	if !ok || provenance != RateManual {
		t.Errorf("EUR provenance = %v, want manual", provenance)
	}
}
