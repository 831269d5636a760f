package engine

import (
	"fmt"
	"math"
	"strconv"
)

// EvalContext carries everything an AST needs during evaluation: the
// workbook, the address of the cell being evaluated (for resolving
// sheet-relative references), and a sink for unit warnings raised by
// fail-soft dimensional mismatches.
type EvalContext struct {
	wb       *Workbook
	addr     CellAddress
	warnings []string
}

// NewEvalContext creates an evaluation context for one cell.
func NewEvalContext(wb *Workbook, addr CellAddress) *EvalContext {
	return &EvalContext{wb: wb, addr: addr}
}

// Warnf records a non-fatal warning. The first warning wins the cell's
// warning field; later ones are kept for completeness.
func (ctx *EvalContext) Warnf(format string, args ...any) {
	ctx.warnings = append(ctx.warnings, fmt.Sprintf(format, args...))
}

// Warning returns the first recorded warning, if any.
func (ctx *EvalContext) Warning() string {
	if len(ctx.warnings) == 0 {
		return ""
	}
	return ctx.warnings[0]
}

// cellValue reads the computed value of another cell. Errors stored in
// cells come back as values so they propagate through expressions.
// Reading a cell that is mid-evaluation signals a reference cycle the
// scheduler did not resolve first.
func (ctx *EvalContext) cellValue(addr CellAddress) (Primitive, error) {
	sheet, ok := ctx.wb.sheet(addr.Sheet)
	if !ok {
		return nil, NewCellError(ErrorCodeRef, fmt.Sprintf("unknown sheet: %s", addr.Sheet))
	}
	cell := sheet.Get(addr.Row, addr.Col)
	if cell == nil {
		return nil, nil // empty cell
	}
	if cell.State == CellStateEvaluating {
		return nil, NewCellError(ErrorCodeCirc, fmt.Sprintf("circular reference involving %s", addr))
	}
	return cell.Value, nil
}

// rangeValue builds a lazy range over a sheet.
func (ctx *EvalContext) rangeValue(bounds RangeAddress) (Primitive, error) {
	sheet, ok := ctx.wb.sheet(bounds.Start.Sheet)
	if !ok {
		return nil, NewCellError(ErrorCodeRef, fmt.Sprintf("unknown sheet: %s", bounds.Start.Sheet))
	}
	return NewCellRange(sheet, bounds), nil
}

// namedValue resolves a named reference. A 1x1 named range evaluates to
// the cell's value so names work in scalar arithmetic.
func (ctx *EvalContext) namedValue(name string) (Primitive, error) {
	bounds, ok := ctx.wb.namedRange(name)
	if !ok {
		return nil, NewCellError(ErrorCodeName, fmt.Sprintf("named range '%s' not found", name))
	}
	if bounds.Start == bounds.End {
		return ctx.cellValue(bounds.Start)
	}
	return ctx.rangeValue(bounds)
}

// callFunction dispatches to the built-in function library.
func (ctx *EvalContext) callFunction(name string, args ...any) (Primitive, error) {
	return ctx.wb.functions.Call(ctx, name, args...)
}

// toQuantity coerces a primitive to a quantity. Empty cells coerce to a
// dimensionless zero; text and booleans do not coerce.
func toQuantity(v Primitive) (Quantity, bool) {
	switch q := v.(type) {
	case Quantity:
		return q, true
	case nil:
		return Quantity{}, true
	default:
		return Quantity{}, false
	}
}

// toText renders a primitive for concatenation and text functions.
func toText(v Primitive) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case Quantity:
		num := strconv.FormatFloat(t.Value, 'g', -1, 64)
		if t.Unit.IsDimensionless() {
			return num
		}
		return num + " " + t.Unit.Symbol()
	case *CellError:
		return t.Display()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// compare orders two primitives: -1, 0, 1, or -2 when the values cannot
// be compared. Quantities of equal dimension are converted to the left
// operand's unit before comparing; quantities of different dimensions
// are incomparable.
func (ctx *EvalContext) compare(a, b Primitive) int {
	aq, aok := toQuantity(a)
	bq, bok := toQuantity(b)
	if aok && bok {
		bVal := bq.Value
		if !aq.Unit.Equal(bq.Unit) {
			if aq.Unit.IsDimensionless() || bq.Unit.IsDimensionless() {
				// compare raw magnitudes
			} else if aq.Unit.Dimension().Equal(bq.Unit.Dimension()) {
				converted, err := ctx.wb.converter.Convert(bq.Value, bq.Unit, aq.Unit)
				if err != nil {
					return -2
				}
				bVal = converted
			} else {
				return -2
			}
		}
		switch {
		case aq.Value < bVal:
			return -1
		case aq.Value > bVal:
			return 1
		default:
			return 0
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}

	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	}

	return -2
}

// applyBinary evaluates one binary operation with dimensional-analysis
// rules applied to the operand units.
func (ctx *EvalContext) applyBinary(op BinaryOp, leftVal, rightVal Primitive) (Primitive, error) {
	switch op {
	case BinOpConcat:
		return toText(leftVal) + toText(rightVal), nil

	case BinOpEqual:
		return ctx.compare(leftVal, rightVal) == 0, nil
	case BinOpNotEqual:
		return ctx.compare(leftVal, rightVal) != 0, nil
	case BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		cmp := ctx.compare(leftVal, rightVal)
		if cmp == -2 {
			return nil, NewCellError(ErrorCodeValue, "cannot compare these values")
		}
		switch op {
		case BinOpLess:
			return cmp < 0, nil
		case BinOpLessEqual:
			return cmp <= 0, nil
		case BinOpGreater:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	}

	left, leftOk := toQuantity(leftVal)
	right, rightOk := toQuantity(rightVal)
	if !leftOk || !rightOk {
		return nil, NewCellError(ErrorCodeValue, "operation requires numeric values")
	}

	switch op {
	case BinOpAdd, BinOpSubtract:
		return ctx.addSubtract(op, left, right)
	case BinOpMultiply, BinOpDivide:
		return ctx.multiplyDivide(op, left, right)
	case BinOpPower:
		return ctx.power(left, right)
	default:
		return nil, NewCellError(ErrorCodeValue, "unknown operator")
	}
}

// addSubtract applies the compatibility rule: equal dimensions convert
// the right operand into the left operand's unit; a dimensionless
// operand adopts the other unit; anything else degrades to a
// dimensionless result with a warning, never an error.
func (ctx *EvalContext) addSubtract(op BinaryOp, left, right Quantity) (Primitive, error) {
	unit, warn := Combine(op, left.Unit, right.Unit)
	if warn {
		ctx.Warnf("incompatible units %s and %s; result is dimensionless", left.Unit, right.Unit)
	}

	rightVal := right.Value
	if !warn && !right.Unit.Equal(unit) && !right.Unit.IsDimensionless() {
		converted, err := ctx.wb.converter.Convert(right.Value, right.Unit, unit)
		if err != nil {
			return nil, NewCellError(ErrorCodeConvert, err.Error())
		}
		rightVal = converted
	}

	value := left.Value + rightVal
	if op == BinOpSubtract {
		value = left.Value - rightVal
	}
	return Quantity{Value: value, Unit: unit}, nil
}

// multiplyDivide composes or cancels units. When both operands carry a
// unit over the same base under different symbols (USD/hr times min),
// the right operand is rescaled to the left symbol first so
// cancellation is exact.
func (ctx *EvalContext) multiplyDivide(op BinaryOp, left, right Quantity) (Primitive, error) {
	right = ctx.alignShared(left, right)

	if op == BinOpDivide {
		if right.Value == 0 {
			return nil, NewCellError(ErrorCodeDiv0, "division by zero")
		}
		unit, _ := Combine(BinOpDivide, left.Unit, right.Unit)
		return Quantity{Value: left.Value / right.Value, Unit: unit}, nil
	}

	unit, _ := Combine(BinOpMultiply, left.Unit, right.Unit)
	return Quantity{Value: left.Value * right.Value, Unit: unit}, nil
}

// alignShared rewrites the right operand's terms to the left operand's
// symbols wherever both units carry the same base dimension.
func (ctx *EvalContext) alignShared(left, right Quantity) Quantity {
	for _, rt := range right.Unit.Terms() {
		lt, ok := left.Unit.term(rt.Base)
		if !ok || lt.Symbol == rt.Symbol {
			continue
		}
		value, unit, err := ctx.wb.converter.ConvertTerm(right.Value, right.Unit, rt.Symbol, lt.Symbol)
		if err != nil {
			ctx.Warnf("cannot align %s with %s: %v", rt.Symbol, lt.Symbol, err)
			continue
		}
		right = Quantity{Value: value, Unit: unit}
	}
	return right
}

// power requires a dimensionless exponent. A united base raised to an
// integer power multiplies the unit exponents; a non-integer power on a
// united base has no unit meaning and degrades to dimensionless with a
// warning.
func (ctx *EvalContext) power(left, right Quantity) (Primitive, error) {
	if !right.Unit.IsDimensionless() {
		ctx.Warnf("exponent has unit %s; result is dimensionless", right.Unit)
		return Quantity{Value: math.Pow(left.Value, right.Value)}, nil
	}

	value := math.Pow(left.Value, right.Value)
	if left.Unit.IsDimensionless() {
		return Quantity{Value: value}, nil
	}

	exp := int(right.Value)
	if float64(exp) != right.Value {
		ctx.Warnf("non-integer exponent on unit %s; result is dimensionless", left.Unit)
		return Quantity{Value: value}, nil
	}
	return Quantity{Value: value, Unit: left.Unit.Pow(exp)}, nil
}
