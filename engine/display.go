package engine

import "strconv"

// DisplayString renders a cell's value for presentation, applying the
// cell's display unit override or the workbook display preference.
// Rendering never mutates the stored value or unit.
func (wb *Workbook) DisplayString(addr CellAddress) string {
	sheet, ok := wb.sheets[addr.Sheet]
	if !ok {
		return ""
	}
	cell := sheet.Get(addr.Row, addr.Col)
	if cell == nil {
		return ""
	}

	switch v := cell.Value.(type) {
	case *CellError:
		return v.Display()
	case string:
		return v
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case Quantity:
		return wb.displayQuantity(cell, v)
	default:
		return ""
	}
}

func (wb *Workbook) displayQuantity(cell *Cell, q Quantity) string {
	target := q.Unit
	switch {
	case cell.DisplayUnit != nil:
		target = *cell.DisplayUnit
	case wb.display == DisplayMetric:
		target = wb.converter.CounterpartUnit(q.Unit, "metric")
	case wb.display == DisplayImperial:
		target = wb.converter.CounterpartUnit(q.Unit, "imperial")
	}

	value := q.Value
	if !target.Equal(q.Unit) {
		converted, err := wb.converter.Convert(q.Value, q.Unit, target)
		if err != nil {
			// conversion unavailable, fall back to the stored unit
			target = q.Unit
		} else {
			value = converted
		}
	}

	out := strconv.FormatFloat(value, 'g', -1, 64)
	if target.IsDimensionless() {
		return out
	}
	return out + " " + target.Symbol()
}
