package engine

import "testing"

func addrAt(row, col int) CellAddress {
	return CellAddress{Sheet: "Sheet1", Row: row, Col: col}
}

func TestCalculationOrder(t *testing.T) {
	// A1 -> A2 -> A3, plus independent B1
	dg := NewDependencyGraph()
	a1, a2, a3, b1 := addrAt(0, 0), addrAt(1, 0), addrAt(2, 0), addrAt(0, 1)
	dg.SetFormula(a2, true)
	dg.SetFormula(a3, true)
	dg.SetFormula(b1, true)
	dg.AddCellDependency(a2, a1)
	dg.AddCellDependency(a3, a2)

	order, blocked := dg.CalculationOrder([]CellAddress{a3, b1, a2})
	if len(blocked) != 0 {
		t.Fatalf("blocked = %v, want none", blocked)
	}
	pos := make(map[CellAddress]int)
	for i, addr := range order {
		pos[addr] = i
	}
	if pos[a2] > pos[a3] {
		t.Errorf("a2 must come before a3: %v", order)
	}
}

func TestCalculationOrderCycle(t *testing.T) {
	dg := NewDependencyGraph()
	a1, b1, c1 := addrAt(0, 0), addrAt(0, 1), addrAt(0, 2)
	for _, addr := range []CellAddress{a1, b1, c1} {
		dg.SetFormula(addr, true)
	}
	dg.AddCellDependency(a1, b1)
	dg.AddCellDependency(b1, a1)
	dg.AddCellDependency(c1, a1) // downstream of the cycle

	order, blocked := dg.CalculationOrder([]CellAddress{a1, b1, c1})
	if len(order) != 0 {
		t.Errorf("order = %v, want none", order)
	}
	if len(blocked) != 3 {
		t.Fatalf("blocked = %v, want all three", blocked)
	}

	members := dg.CycleMembers(blocked)
	if len(members) != 2 {
		t.Fatalf("cycle members = %v, want a1 and b1", members)
	}
	if _, ok := members[c1]; ok {
		t.Errorf("c1 is downstream, not a cycle member")
	}
}

func TestRangeDependencyDirtiesObserver(t *testing.T) {
	dg := NewDependencyGraph()
	observer := addrAt(0, 1)
	dg.SetFormula(observer, true)
	dg.AddRangeDependency(observer, RangeAddress{
		Start: addrAt(0, 0),
		End:   addrAt(9, 0),
	})

	dg.MarkDirty(addrAt(4, 0))
	dirty := dg.DirtyCells()
	if len(dirty) != 1 || dirty[0] != observer {
		t.Errorf("dirty = %v, want observer", dirty)
	}

	dg.ClearAllDirty()
	dg.MarkDirty(addrAt(0, 5)) // outside the range
	if dirty := dg.DirtyCells(); len(dirty) != 0 {
		t.Errorf("dirty = %v, want none", dirty)
	}
}

func TestClearDependenciesKeepsDependents(t *testing.T) {
	dg := NewDependencyGraph()
	a1, a2, a3 := addrAt(0, 0), addrAt(1, 0), addrAt(2, 0)
	dg.SetFormula(a2, true)
	dg.SetFormula(a3, true)
	dg.AddCellDependency(a2, a1)
	dg.AddCellDependency(a3, a2)

	dg.ClearDependencies(a2)
	if got := dg.GetDirectPrecedents(a2); len(got) != 0 {
		t.Errorf("precedents after clear = %v", got)
	}
	if got := dg.GetDirectDependents(a2); len(got) != 1 || got[0] != a3 {
		t.Errorf("dependents after clear = %v, want a3", got)
	}
	// a1 had no formula and no remaining edges, so it is gone
	if _, exists := dg.GetNode(a1); exists {
		t.Errorf("a1 should have been cleaned up")
	}
}

func TestRangeEdgeCountsInOrdering(t *testing.T) {
	// B1 reads A1:A10; a write to A5 must order A5 before B1
	dg := NewDependencyGraph()
	a5, b1 := addrAt(4, 0), addrAt(0, 1)
	dg.SetFormula(a5, true)
	dg.SetFormula(b1, true)
	dg.AddRangeDependency(b1, RangeAddress{Start: addrAt(0, 0), End: addrAt(9, 0)})

	order, blocked := dg.CalculationOrder([]CellAddress{b1, a5})
	if len(blocked) != 0 {
		t.Fatalf("blocked = %v", blocked)
	}
	if len(order) != 2 || order[0] != a5 || order[1] != b1 {
		t.Errorf("order = %v, want [a5 b1]", order)
	}
}
