package engine

// Structural edits: inserting and deleting rows and columns. Cell
// contents move, formulas are rewritten so references follow the cells
// they pointed at, and references into a deleted span become reference
// errors. Formula text is regenerated from the rewritten AST, so saved
// documents round-trip.

type axis int

const (
	axisRow axis = iota
	axisCol
)

// InsertRows inserts count empty rows before row start (0-based).
func (wb *Workbook) InsertRows(sheetName string, start, count int) error {
	return wb.applyStructural(sheetName, axisRow, start, count)
}

// DeleteRows deletes count rows starting at row start (0-based).
func (wb *Workbook) DeleteRows(sheetName string, start, count int) error {
	return wb.applyStructural(sheetName, axisRow, start, -count)
}

// InsertColumns inserts count empty columns before column start.
func (wb *Workbook) InsertColumns(sheetName string, start, count int) error {
	return wb.applyStructural(sheetName, axisCol, start, count)
}

// DeleteColumns deletes count columns starting at column start.
func (wb *Workbook) DeleteColumns(sheetName string, start, count int) error {
	return wb.applyStructural(sheetName, axisCol, start, -count)
}

func (wb *Workbook) applyStructural(sheetName string, ax axis, start, delta int) error {
	sheet, ok := wb.sheets[sheetName]
	if !ok {
		return NewApplicationError(NotFound, "sheet '"+sheetName+"' not found")
	}
	if start < 0 || delta == 0 {
		return NewApplicationError(InvalidArgument, "invalid edit position or count")
	}

	if ax == axisRow {
		sheet.ShiftRows(start, delta)
	} else {
		sheet.ShiftCols(start, delta)
	}

	wb.rewriteFormulas(sheetName, ax, start, delta)
	wb.shiftNamedRanges(sheetName, ax, start, delta)
	wb.rebuildGraph()
	wb.recalculate()
	return nil
}

// mapIndex shifts one coordinate. The second result reports that the
// coordinate fell inside a deleted span.
func mapIndex(idx, start, delta int) (int, bool) {
	if idx < start {
		return idx, false
	}
	if delta < 0 && idx < start-delta {
		return 0, true
	}
	return idx + delta, false
}

// mapSpan shifts a range coordinate pair, clipping a partial overlap
// with a deleted span. The second result reports that the whole span
// was deleted.
func mapSpan(lo, hi, start, delta int) (int, int, bool) {
	if delta > 0 {
		newLo, _ := mapIndex(lo, start, delta)
		newHi, _ := mapIndex(hi, start, delta)
		return newLo, newHi, false
	}

	newLo := lo
	if lo >= start {
		newLo = lo + delta
		if newLo < start {
			newLo = start
		}
	}
	newHi := hi
	if hi >= start {
		newHi = hi + delta
		if newHi < start {
			newHi = start - 1
		}
	}
	if newLo > newHi {
		return 0, 0, true
	}
	return newLo, newHi, false
}

// rewriteFormulas rewrites every formula in the workbook whose
// references touch the edited sheet.
func (wb *Workbook) rewriteFormulas(sheetName string, ax axis, start, delta int) {
	refError := func() ASTNode {
		return &ErrorNode{Code: ErrorCodeRef}
	}

	for _, owner := range wb.sheetOrder {
		ownerSheet := wb.sheets[owner]
		for _, addr := range ownerSheet.Addresses() {
			cell := ownerSheet.Get(addr.Row, addr.Col)
			if cell == nil || !cell.IsFormula() {
				continue
			}

			cell.AST = TransformRefs(cell.AST,
				func(n *CellRefNode) ASTNode {
					if n.Row < 0 || n.Col < 0 {
						return n
					}
					if effectiveSheet(n.Sheet, owner) != sheetName {
						return n
					}
					out := *n
					var deleted bool
					if ax == axisRow {
						out.Row, deleted = mapIndex(n.Row, start, delta)
					} else {
						out.Col, deleted = mapIndex(n.Col, start, delta)
					}
					if deleted {
						return refError()
					}
					return &out
				},
				func(n *RangeNode) ASTNode {
					if effectiveSheet(n.Sheet, owner) != sheetName {
						return n
					}
					out := *n
					var deleted bool
					if ax == axisRow {
						out.StartRow, out.EndRow, deleted = mapSpan(n.StartRow, n.EndRow, start, delta)
					} else {
						out.StartCol, out.EndCol, deleted = mapSpan(n.StartCol, n.EndCol, start, delta)
					}
					if deleted {
						return refError()
					}
					return &out
				})
			cell.Source = "=" + cell.AST.ToString()
		}
	}
}

func effectiveSheet(refSheet, ownerSheet string) string {
	if refSheet == "" {
		return ownerSheet
	}
	return refSheet
}

// shiftNamedRanges moves defined names on the edited sheet. A name
// whose range is fully deleted is removed.
func (wb *Workbook) shiftNamedRanges(sheetName string, ax axis, start, delta int) {
	for name, bounds := range wb.names {
		if bounds.Start.Sheet != sheetName {
			continue
		}
		var lo, hi int
		if ax == axisRow {
			lo, hi = bounds.Start.Row, bounds.End.Row
		} else {
			lo, hi = bounds.Start.Col, bounds.End.Col
		}
		newLo, newHi, deleted := mapSpan(lo, hi, start, delta)
		if deleted {
			delete(wb.names, name)
			continue
		}
		if ax == axisRow {
			bounds.Start.Row, bounds.End.Row = newLo, newHi
		} else {
			bounds.Start.Col, bounds.End.Col = newLo, newHi
		}
		wb.names[name] = bounds
	}
}

// rebuildGraph re-derives all dependency edges from the rewritten
// formulas and marks every formula cell for recalculation.
func (wb *Workbook) rebuildGraph() {
	wb.graph.Clear()
	for _, name := range wb.sheetOrder {
		sheet := wb.sheets[name]
		for _, addr := range sheet.Addresses() {
			cell := sheet.Get(addr.Row, addr.Col)
			if cell == nil || !cell.IsFormula() {
				continue
			}
			wb.graph.SetFormula(addr, true)
			wb.registerDependencies(addr, cell.AST)
			wb.graph.MarkDirty(addr)
		}
	}
}
