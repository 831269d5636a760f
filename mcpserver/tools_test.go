package mcpserver

import (
	"context"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{WorkbookName: "test"})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func TestCellWriteAndRead(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	write := s.cellWriteHandler()
	if _, _, err := write(ctx, nil, CellWriteInput{Ref: "A1", Input: "100 mi"}); err != nil {
		t.Fatalf("write A1: %v", err)
	}
	_, result, err := write(ctx, nil, CellWriteInput{Ref: "A2", Input: "=A1*2"})
	if err != nil {
		t.Fatalf("write A2: %v", err)
	}
	if result.Kind != "formula" || result.Magnitude != 200 || result.Unit != "mi" {
		t.Errorf("A2 = %+v", result)
	}
	if result.Formula != "=A1*2" {
		t.Errorf("A2 formula = %q", result.Formula)
	}

	read := s.cellReadHandler()
	_, got, err := read(ctx, nil, CellReadInput{Ref: "A1"})
	if err != nil {
		t.Fatalf("read A1: %v", err)
	}
	if got.Ref != "Sheet1!A1" || got.Kind != "number" || got.Magnitude != 100 {
		t.Errorf("A1 = %+v", got)
	}

	_, got, err = read(ctx, nil, CellReadInput{Ref: "Z99"})
	if err != nil {
		t.Fatalf("read empty: %v", err)
	}
	if got.Kind != "empty" {
		t.Errorf("Z99 kind = %q", got.Kind)
	}

	if _, _, err := read(ctx, nil, CellReadInput{Ref: "not-a-ref"}); err == nil {
		t.Errorf("bad reference should fail")
	}
}

func TestCellWriteReportsErrors(t *testing.T) {
	s := newTestServer(t)
	write := s.cellWriteHandler()

	_, result, err := write(context.Background(), nil, CellWriteInput{Ref: "A1", Input: "=1/0"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if result.Kind != "error" || result.Error != "#DIV/0!" {
		t.Errorf("result = %+v", result)
	}
}

func TestUnitConvert(t *testing.T) {
	s := newTestServer(t)
	convert := s.unitConvertHandler()
	ctx := context.Background()

	_, result, err := convert(ctx, nil, UnitConvertInput{Value: 100, From: "mi", To: "km"})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if result.Unit != "km" || result.Value < 160.9 || result.Value > 161.0 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Rates) != 0 {
		t.Errorf("no currencies involved, rates = %v", result.Rates)
	}

	_, result, err = convert(ctx, nil, UnitConvertInput{Value: 100, From: "USD", To: "EUR"})
	if err != nil {
		t.Fatalf("currency convert: %v", err)
	}
	if len(result.Rates) == 0 {
		t.Errorf("currency conversion should report rates")
	}

	if _, _, err := convert(ctx, nil, UnitConvertInput{Value: 1, From: "mi", To: "kg"}); err == nil {
		t.Errorf("cross-dimension conversion should fail")
	}
}

func TestUnitListCompatible(t *testing.T) {
	s := newTestServer(t)
	list := s.unitListCompatibleHandler()

	_, result, err := list(context.Background(), nil, UnitListCompatibleInput{Unit: "km"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, sym := range result.Units {
		if sym == "mi" {
			found = true
		}
	}
	if !found {
		t.Errorf("mi missing from length units: %v", result.Units)
	}
}

func TestWorkbookDescribe(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	write := s.cellWriteHandler()
	if _, _, err := write(ctx, nil, CellWriteInput{Ref: "A1", Input: "5"}); err != nil {
		t.Fatal(err)
	}

	describe := s.workbookDescribeHandler()
	_, result, err := describe(ctx, nil, WorkbookDescribeInput{})
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if result.Name != "test" || result.ReferenceCurrency != "USD" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Sheets) != 1 || result.Sheets[0].CellCount != 1 {
		t.Errorf("sheets = %v", result.Sheets)
	}
	if len(result.Currencies) == 0 {
		t.Errorf("currency table should not be empty")
	}
}

func TestCurrencyRateUpdate(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	write := s.cellWriteHandler()
	if _, _, err := write(ctx, nil, CellWriteInput{Ref: "A1", Input: "=100 USD+100 EUR"}); err != nil {
		t.Fatal(err)
	}

	update := s.currencyRateUpdateHandler()
	_, info, err := update(ctx, nil, CurrencyRateUpdateInput{Code: "EUR", Rate: 0.5})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if info.Provenance != "manual" {
		t.Errorf("provenance = %q", info.Provenance)
	}

	// 100 EUR at 0.5 EUR per USD is 200 USD
	read := s.cellReadHandler()
	_, got, err := read(ctx, nil, CellReadInput{Ref: "A1"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Magnitude != 300 || got.Unit != "USD" {
		t.Errorf("A1 after rate update = %+v", got)
	}

	if _, _, err := update(ctx, nil, CurrencyRateUpdateInput{Code: "USD", Rate: 2}); err == nil {
		t.Errorf("reference currency rate must be rejected")
	}
}
