package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// BuiltInFunctions contains all built-in formula functions. Every
// function declares an arity rule and a unit-transform rule; the
// evaluation context supplies unit conversion and the warning sink.
type BuiltInFunctions struct{}

// NewBuiltInFunctions creates the default function library
func NewBuiltInFunctions() *BuiltInFunctions {
	return &BuiltInFunctions{}
}

// checkForError returns the error if value is a *CellError, nil otherwise
func checkForError(value Primitive) *CellError {
	if err, ok := value.(*CellError); ok {
		return err
	}
	return nil
}

// Call invokes a built-in function by name with the given arguments
func (bf *BuiltInFunctions) Call(ctx *EvalContext, name string, args ...any) (Primitive, error) {
	switch strings.ToUpper(name) {
	case "SUM":
		return bf.SUM(ctx, args...)
	case "AVERAGE":
		return bf.AVERAGE(ctx, args...)
	case "COUNT":
		return bf.COUNT(ctx, args...)
	case "MAX":
		return bf.MAX(ctx, args...)
	case "MIN":
		return bf.MIN(ctx, args...)
	case "MEDIAN":
		return bf.MEDIAN(ctx, args...)
	case "STDEV":
		return bf.STDEV(ctx, args...)
	case "VAR":
		return bf.VAR(ctx, args...)
	case "ABS":
		return bf.ABS(ctx, args...)
	case "ROUND":
		return bf.ROUND(ctx, args...)
	case "FLOOR":
		return bf.FLOOR(ctx, args...)
	case "CEIL", "CEILING":
		return bf.CEIL(ctx, args...)
	case "TRUNC":
		return bf.TRUNC(ctx, args...)
	case "SIGN":
		return bf.SIGN(ctx, args...)
	case "MOD":
		return bf.MOD(ctx, args...)
	case "SQRT":
		return bf.SQRT(ctx, args...)
	case "POWER":
		return bf.POWER(ctx, args...)
	case "GT":
		return bf.comparison(ctx, "GT", args...)
	case "LT":
		return bf.comparison(ctx, "LT", args...)
	case "GTE":
		return bf.comparison(ctx, "GTE", args...)
	case "LTE":
		return bf.comparison(ctx, "LTE", args...)
	case "EQ":
		return bf.comparison(ctx, "EQ", args...)
	case "NE":
		return bf.comparison(ctx, "NE", args...)
	case "IF":
		return bf.IF(ctx, args...)
	case "AND":
		return bf.AND(ctx, args...)
	case "OR":
		return bf.OR(ctx, args...)
	case "NOT":
		return bf.NOT(ctx, args...)
	default:
		return nil, NewCellError(ErrorCodeName, fmt.Sprintf("unknown function: %s", name))
	}
}

// gather flattens arguments into quantities expressed in one common
// unit: the unit of the first numeric operand. Operands of the same
// dimension are converted into it; operands of a different dimension
// raise a warning and are excluded from the aggregate. Text, booleans,
// and empty cells are skipped; errors propagate.
func (bf *BuiltInFunctions) gather(ctx *EvalContext, args []any) ([]float64, Unit, *CellError) {
	var values []float64
	var unit Unit
	first := true

	take := func(value Primitive) *CellError {
		if err := checkForError(value); err != nil {
			return err
		}
		q, ok := value.(Quantity)
		if !ok {
			return nil // skip text, booleans, empty
		}
		if first {
			unit = q.Unit
			first = false
			values = append(values, q.Value)
			return nil
		}
		if q.Unit.Equal(unit) {
			values = append(values, q.Value)
			return nil
		}
		if q.Unit.Dimension().Equal(unit.Dimension()) {
			converted, err := ctx.wb.converter.Convert(q.Value, q.Unit, unit)
			if err != nil {
				return NewCellError(ErrorCodeConvert, err.Error())
			}
			values = append(values, converted)
			return nil
		}
		ctx.Warnf("operand unit %s incompatible with %s; excluded from aggregate", q.Unit, unit)
		return nil
	}

	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, Unit{}, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := take(value); err != nil {
					return nil, Unit{}, err
				}
			}
		} else {
			if err := take(arg); err != nil {
				return nil, Unit{}, err
			}
		}
	}
	return values, unit, nil
}

func (bf *BuiltInFunctions) SUM(ctx *EvalContext, args ...any) (Primitive, error) {
	values, unit, cellErr := bf.gather(ctx, args)
	if cellErr != nil {
		return nil, cellErr
	}
	sum := 0.0
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.15f", sum), 64)
	return Quantity{Value: rounded, Unit: unit}, nil
}

func (bf *BuiltInFunctions) AVERAGE(ctx *EvalContext, args ...any) (Primitive, error) {
	values, unit, cellErr := bf.gather(ctx, args)
	if cellErr != nil {
		return nil, cellErr
	}
	if len(values) == 0 {
		return nil, NewCellError(ErrorCodeDiv0, "AVERAGE has no numeric values")
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return Quantity{Value: sum / float64(len(values)), Unit: unit}, nil
}

func (bf *BuiltInFunctions) COUNT(ctx *EvalContext, args ...any) (Primitive, error) {
	count := 0

	// COUNT only counts numeric values; errors inside ranges are skipped,
	// not propagated
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if _, ok := value.(Quantity); ok {
					count++
				}
			}
		} else {
			if _, ok := arg.(Quantity); ok {
				count++
			}
		}
	}

	// COUNT is always dimensionless regardless of operand units
	return Quantity{Value: float64(count)}, nil
}

func (bf *BuiltInFunctions) MAX(ctx *EvalContext, args ...any) (Primitive, error) {
	values, unit, cellErr := bf.gather(ctx, args)
	if cellErr != nil {
		return nil, cellErr
	}
	if len(values) == 0 {
		return Quantity{}, nil
	}
	max := math.Inf(-1)
	for _, v := range values {
		if !math.IsNaN(v) && v > max {
			max = v
		}
	}
	return Quantity{Value: max, Unit: unit}, nil
}

func (bf *BuiltInFunctions) MIN(ctx *EvalContext, args ...any) (Primitive, error) {
	values, unit, cellErr := bf.gather(ctx, args)
	if cellErr != nil {
		return nil, cellErr
	}
	if len(values) == 0 {
		return Quantity{}, nil
	}
	min := math.Inf(1)
	for _, v := range values {
		if !math.IsNaN(v) && v < min {
			min = v
		}
	}
	return Quantity{Value: min, Unit: unit}, nil
}

func (bf *BuiltInFunctions) MEDIAN(ctx *EvalContext, args ...any) (Primitive, error) {
	values, unit, cellErr := bf.gather(ctx, args)
	if cellErr != nil {
		return nil, cellErr
	}
	if len(values) == 0 {
		return nil, NewCellError(ErrorCodeNum, "MEDIAN has no numeric values")
	}

	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		// even count: average of two middle values
		return Quantity{Value: (values[mid-1] + values[mid]) / 2, Unit: unit}, nil
	}
	return Quantity{Value: values[mid], Unit: unit}, nil
}

func (bf *BuiltInFunctions) STDEV(ctx *EvalContext, args ...any) (Primitive, error) {
	values, unit, cellErr := bf.gather(ctx, args)
	if cellErr != nil {
		return nil, cellErr
	}
	if len(values) < 2 {
		return nil, NewCellError(ErrorCodeDiv0, "STDEV requires at least 2 numeric values")
	}
	// sample standard deviation preserves the input unit
	return Quantity{Value: math.Sqrt(sampleVariance(values)), Unit: unit}, nil
}

func (bf *BuiltInFunctions) VAR(ctx *EvalContext, args ...any) (Primitive, error) {
	values, unit, cellErr := bf.gather(ctx, args)
	if cellErr != nil {
		return nil, cellErr
	}
	if len(values) < 2 {
		return nil, NewCellError(ErrorCodeDiv0, "VAR requires at least 2 numeric values")
	}
	// variance squares the unit: VAR of meters is square meters
	return Quantity{Value: sampleVariance(values), Unit: unit.Pow(2)}, nil
}

func sampleVariance(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(values)-1)
}

// numericArg coerces one required argument to a quantity.
func numericArg(name string, value any) (Quantity, *CellError) {
	if err := checkForError(value); err != nil {
		return Quantity{}, err
	}
	q, ok := toQuantity(value)
	if !ok {
		return Quantity{}, NewCellError(ErrorCodeValue, name+" requires a numeric argument")
	}
	return q, nil
}

func (bf *BuiltInFunctions) ABS(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewCellError(ErrorCodeNA, "ABS requires exactly 1 argument")
	}
	q, cellErr := numericArg("ABS", args[0])
	if cellErr != nil {
		return nil, cellErr
	}
	return Quantity{Value: math.Abs(q.Value), Unit: q.Unit}, nil
}

func (bf *BuiltInFunctions) ROUND(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewCellError(ErrorCodeNA, "ROUND requires 1 or 2 arguments")
	}
	q, cellErr := numericArg("ROUND", args[0])
	if cellErr != nil {
		return nil, cellErr
	}

	places := 0.0
	if len(args) == 2 {
		p, cellErr := numericArg("ROUND", args[1])
		if cellErr != nil {
			return nil, cellErr
		}
		places = p.Value
	}

	multiplier := math.Pow(10, places)
	return Quantity{Value: math.Round(q.Value*multiplier) / multiplier, Unit: q.Unit}, nil
}

func (bf *BuiltInFunctions) FLOOR(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewCellError(ErrorCodeNA, "FLOOR requires exactly 1 argument")
	}
	q, cellErr := numericArg("FLOOR", args[0])
	if cellErr != nil {
		return nil, cellErr
	}
	return Quantity{Value: math.Floor(q.Value), Unit: q.Unit}, nil
}

func (bf *BuiltInFunctions) CEIL(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewCellError(ErrorCodeNA, "CEIL requires exactly 1 argument")
	}
	q, cellErr := numericArg("CEIL", args[0])
	if cellErr != nil {
		return nil, cellErr
	}
	return Quantity{Value: math.Ceil(q.Value), Unit: q.Unit}, nil
}

func (bf *BuiltInFunctions) TRUNC(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewCellError(ErrorCodeNA, "TRUNC requires exactly 1 argument")
	}
	q, cellErr := numericArg("TRUNC", args[0])
	if cellErr != nil {
		return nil, cellErr
	}
	return Quantity{Value: math.Trunc(q.Value), Unit: q.Unit}, nil
}

func (bf *BuiltInFunctions) SIGN(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewCellError(ErrorCodeNA, "SIGN requires exactly 1 argument")
	}
	q, cellErr := numericArg("SIGN", args[0])
	if cellErr != nil {
		return nil, cellErr
	}
	sign := 0.0
	switch {
	case q.Value > 0:
		sign = 1
	case q.Value < 0:
		sign = -1
	}
	return Quantity{Value: sign, Unit: q.Unit}, nil
}

func (bf *BuiltInFunctions) MOD(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewCellError(ErrorCodeNA, "MOD requires exactly 2 arguments")
	}
	dividend, cellErr := numericArg("MOD", args[0])
	if cellErr != nil {
		return nil, cellErr
	}
	divisor, cellErr := numericArg("MOD", args[1])
	if cellErr != nil {
		return nil, cellErr
	}

	// the result keeps the dividend's unit; a same-dimension divisor is
	// converted first so MOD(90 min, 1 hr) is 30 min
	divisorVal := divisor.Value
	if !divisor.Unit.Equal(dividend.Unit) && !divisor.Unit.IsDimensionless() {
		if divisor.Unit.Dimension().Equal(dividend.Unit.Dimension()) {
			converted, err := ctx.wb.converter.Convert(divisor.Value, divisor.Unit, dividend.Unit)
			if err != nil {
				return nil, NewCellError(ErrorCodeConvert, err.Error())
			}
			divisorVal = converted
		} else {
			ctx.Warnf("MOD divisor unit %s incompatible with %s", divisor.Unit, dividend.Unit)
		}
	}

	if divisorVal == 0 {
		return nil, NewCellError(ErrorCodeDiv0, "division by zero")
	}
	return Quantity{Value: math.Mod(dividend.Value, divisorVal), Unit: dividend.Unit}, nil
}

func (bf *BuiltInFunctions) SQRT(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewCellError(ErrorCodeNA, "SQRT requires exactly 1 argument")
	}
	q, cellErr := numericArg("SQRT", args[0])
	if cellErr != nil {
		return nil, cellErr
	}
	if q.Value < 0 {
		return nil, NewCellError(ErrorCodeNum, "SQRT requires a non-negative argument")
	}

	unit, err := q.Unit.Sqrt()
	if err != nil {
		// odd exponent: no integral half exists. fail-soft to dimensionless
		ctx.Warnf("SQRT of %s has no integral unit; result is dimensionless", q.Unit)
		unit = Unit{}
	}
	return Quantity{Value: math.Sqrt(q.Value), Unit: unit}, nil
}

func (bf *BuiltInFunctions) POWER(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewCellError(ErrorCodeNA, "POWER requires exactly 2 arguments")
	}
	base, cellErr := numericArg("POWER", args[0])
	if cellErr != nil {
		return nil, cellErr
	}
	exp, cellErr := numericArg("POWER", args[1])
	if cellErr != nil {
		return nil, cellErr
	}
	return ctx.power(base, exp)
}

// comparison converts both operands to a common unit, then yields a
// dimensionless boolean.
func (bf *BuiltInFunctions) comparison(ctx *EvalContext, name string, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewCellError(ErrorCodeNA, name+" requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}

	cmp := ctx.compare(args[0], args[1])
	if cmp == -2 {
		return nil, NewCellError(ErrorCodeValue, "cannot compare these values")
	}

	switch name {
	case "GT":
		return cmp > 0, nil
	case "LT":
		return cmp < 0, nil
	case "GTE":
		return cmp >= 0, nil
	case "LTE":
		return cmp <= 0, nil
	case "EQ":
		return cmp == 0, nil
	default: // NE
		return cmp != 0, nil
	}
}

func (bf *BuiltInFunctions) IF(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewCellError(ErrorCodeNA, "IF requires 2 or 3 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}

	if isTruthy(args[0]) {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return false, nil
}

func (bf *BuiltInFunctions) AND(ctx *EvalContext, args ...any) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if !isTruthy(arg) {
			return false, nil
		}
	}
	return true, nil
}

func (bf *BuiltInFunctions) OR(ctx *EvalContext, args ...any) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if isTruthy(arg) {
			return true, nil
		}
	}
	return false, nil
}

func (bf *BuiltInFunctions) NOT(ctx *EvalContext, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewCellError(ErrorCodeNA, "NOT requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return !isTruthy(args[0]), nil
}

// isTruthy checks if value is truthy
func isTruthy(value Primitive) bool {
	switch v := value.(type) {
	case bool:
		return v
	case Quantity:
		return v.Value != 0
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}
