package engine

import "iter"

// Range represents a lazy range type for memory-efficient formula evaluation
type Range interface {
	GetBounds() RangeAddress
	Iterate() iter.Seq[*Cell]
	IterateValues() iter.Seq[Primitive]
}

// CellRange implements Range for lazy cell iteration over one sheet.
type CellRange struct {
	sheet  *Sheet
	bounds RangeAddress
}

// NewCellRange creates a range over a sheet with normalized bounds.
func NewCellRange(sheet *Sheet, bounds RangeAddress) *CellRange {
	return &CellRange{sheet: sheet, bounds: bounds.Normalize()}
}

// GetBounds returns the range boundaries
func (r *CellRange) GetBounds() RangeAddress {
	return r.bounds
}

// Iterate returns an iterator over all cells in the range. Empty cells
// yield nil.
func (r *CellRange) Iterate() iter.Seq[*Cell] {
	return func(yield func(*Cell) bool) {
		if r.sheet == nil {
			return
		}
		for row := r.bounds.Start.Row; row <= r.bounds.End.Row; row++ {
			for col := r.bounds.Start.Col; col <= r.bounds.End.Col; col++ {
				if !yield(r.sheet.Get(row, col)) {
					return
				}
			}
		}
	}
}

// IterateValues returns an iterator over cell values in the range
func (r *CellRange) IterateValues() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		for cell := range r.Iterate() {
			var value Primitive
			if cell != nil {
				value = cell.Value
			}
			if !yield(value) {
				return
			}
		}
	}
}

// Quantities collects the numeric values in the range, skipping empty,
// text, and boolean cells. An error cell short-circuits: the aggregate
// propagates it.
func (r *CellRange) Quantities() ([]Quantity, *CellError) {
	var out []Quantity
	for value := range r.IterateValues() {
		switch v := value.(type) {
		case Quantity:
			out = append(out, v)
		case *CellError:
			return nil, v
		}
	}
	return out, nil
}
