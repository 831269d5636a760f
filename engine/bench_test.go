package engine

import (
	"fmt"
	"testing"
)

func BenchmarkParseFormula(b *testing.B) {
	context := &ParserContext{CurrentSheet: "Sheet1", Registry: NewUnitRegistry()}
	for i := 0; i < b.N; i++ {
		if _, err := ParseFormula("=SUM(A1:A100)*2 mi+B1^2", context); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRecalcChain(b *testing.B) {
	// a linear chain of 100 formulas; editing the head recalculates all
	wb := NewWorkbook("bench")
	if err := wb.SetCellA1("A1", "1"); err != nil {
		b.Fatal(err)
	}
	for row := 2; row <= 100; row++ {
		ref := fmt.Sprintf("A%d", row)
		formula := fmt.Sprintf("=A%d+1", row-1)
		if err := wb.SetCellA1(ref, formula); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := wb.SetCellA1("A1", fmt.Sprintf("%d", i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAggregateOverRange(b *testing.B) {
	wb := NewWorkbook("bench")
	for row := 1; row <= 200; row++ {
		if err := wb.SetCellA1(fmt.Sprintf("A%d", row), "2 km"); err != nil {
			b.Fatal(err)
		}
	}
	if err := wb.SetCellA1("B1", "=SUM(A1:A200)"); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := wb.SetCellA1("A100", "3 km"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConvert(b *testing.B) {
	registry := NewUnitRegistry()
	converter := NewConverter(registry, NewRateTable())
	from, _ := registry.ParseUnit("km/hr")
	to, _ := registry.ParseUnit("m/s")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := converter.Convert(100, from, to); err != nil {
			b.Fatal(err)
		}
	}
}
