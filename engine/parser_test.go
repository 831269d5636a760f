package engine

import "testing"

func parseTestContext() *ParserContext {
	return &ParserContext{CurrentSheet: "Sheet1", Registry: NewUnitRegistry()}
}

func TestParseValidFormulas(t *testing.T) {
	valid := []string{
		"=1+2",
		"=1+2*3",
		"=(1+2)*3",
		"=2^3^2",
		"=-A1",
		"=50%",
		"=A1",
		"=$A$1",
		"=A$1+$B2",
		"=A1:B10",
		"=Sheet2!A1",
		"='My Sheet'!A1:B2",
		"=SUM(A1:A10)",
		"=IF(A1>3, \"yes\", \"no\")",
		"=SUM(A1:A2, B1, 5)",
		"=100 mi",
		"=2 mi+2 km",
		"=75 USD/hr*40 hr",
		"=9 m^2",
		"=1 s^-1",
		"=\"a\"&\"b\"",
		"=TRUE",
		"=NOT(FALSE)",
		"=TaxRate*A1",
		"=#REF!+1",
	}
	for _, formula := range valid {
		if _, err := ParseFormula(formula, parseTestContext()); err != nil {
			t.Errorf("ParseFormula(%q) failed: %v", formula, err)
		}
	}
}

func TestParseInvalidFormulas(t *testing.T) {
	invalid := []string{
		"1+2", // missing =
		"=1+",
		"=(1+2",
		"=1+2)",
		"=SUM(",
		"=SUM(1,)",
		"=+",
		"=\"unclosed",
		"=100 florps", // unknown unit
		"=A1:",
	}
	for _, formula := range invalid {
		if _, err := ParseFormula(formula, parseTestContext()); err == nil {
			t.Errorf("ParseFormula(%q) should have failed", formula)
		}
	}
}

func TestToStringRoundTrip(t *testing.T) {
	// regenerated text must re-parse to an identical tree rendering
	formulas := []string{
		"=(1+(2*3))",
		"=SUM(A1:A10)",
		"=Sheet2!$A$1",
		"=100 mi",
		"=(#REF!*2)",
		"=IF((A1>3),\"yes\",\"no\")",
	}
	for _, formula := range formulas {
		node, err := ParseFormula(formula, parseTestContext())
		if err != nil {
			t.Fatalf("ParseFormula(%q) failed: %v", formula, err)
		}
		regenerated := "=" + node.ToString()
		reparsed, err := ParseFormula(regenerated, parseTestContext())
		if err != nil {
			t.Fatalf("reparse of %q (from %q) failed: %v", regenerated, formula, err)
		}
		if reparsed.ToString() != node.ToString() {
			t.Errorf("round trip of %q: %q != %q", formula, reparsed.ToString(), node.ToString())
		}
	}
}

func TestCollectRefs(t *testing.T) {
	node, err := ParseFormula("=A1+Sheet2!B2+SUM(C1:C10)+TaxRate", parseTestContext())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	cells, ranges, names := CollectRefs(node, "Sheet1")

	if len(cells) != 2 {
		t.Fatalf("got %d cell refs, want 2", len(cells))
	}
	if cells[0] != (CellAddress{Sheet: "Sheet1", Row: 0, Col: 0}) {
		t.Errorf("first cell ref = %v", cells[0])
	}
	if cells[1] != (CellAddress{Sheet: "Sheet2", Row: 1, Col: 1}) {
		t.Errorf("second cell ref = %v", cells[1])
	}
	if len(ranges) != 1 || ranges[0].End.Row != 9 || ranges[0].Start.Col != 2 {
		t.Errorf("ranges = %v", ranges)
	}
	if len(names) != 1 || names[0] != "TaxRate" {
		t.Errorf("names = %v", names)
	}
}

func TestTransformRefs(t *testing.T) {
	node, err := ParseFormula("=A5+SUM(A1:A10)", parseTestContext())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	shifted := TransformRefs(node,
		func(n *CellRefNode) ASTNode {
			out := *n
			out.Row += 2
			return &out
		},
		func(n *RangeNode) ASTNode {
			out := *n
			out.StartRow += 2
			out.EndRow += 2
			return &out
		})

	if got := "=" + shifted.ToString(); got != "=(A7+SUM(A3:A12))" {
		t.Errorf("transformed formula = %q", got)
	}
	// original tree untouched
	if got := "=" + node.ToString(); got != "=(A5+SUM(A1:A10))" {
		t.Errorf("original formula mutated: %q", got)
	}
}

func TestParseAddresses(t *testing.T) {
	addr, err := ParseCellAddress("B3", "Sheet1")
	if err != nil {
		t.Fatalf("ParseCellAddress: %v", err)
	}
	if addr != (CellAddress{Sheet: "Sheet1", Row: 2, Col: 1}) {
		t.Errorf("B3 = %v", addr)
	}

	addr, err = ParseCellAddress("Data!$AA$10", "Sheet1")
	if err != nil {
		t.Fatalf("ParseCellAddress: %v", err)
	}
	if addr != (CellAddress{Sheet: "Data", Row: 9, Col: 26}) {
		t.Errorf("Data!$AA$10 = %v", addr)
	}

	if _, err := ParseCellAddress("5B", "Sheet1"); err == nil {
		t.Errorf("expected error for 5B")
	}

	bounds, err := ParseRangeAddress("Sheet1!B2:A1", "Sheet1")
	if err != nil {
		t.Fatalf("ParseRangeAddress: %v", err)
	}
	if bounds.Start != (CellAddress{Sheet: "Sheet1", Row: 0, Col: 0}) {
		t.Errorf("range not normalized: %v", bounds)
	}
}
