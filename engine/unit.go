package engine

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Errors raised by the unit system. Dimensional mismatches in addition are
// deliberately not errors (see Combine); these cover the hard failures.
var (
	ErrInvalidUnitOperation = errors.New("invalid unit operation")
	ErrIncompatibleUnits    = errors.New("incompatible units")
)

// UnitTerm is one symbol raised to an integer exponent, e.g. hr^-1 inside
// the compound unit USD/hr.
type UnitTerm struct {
	Symbol string
	Base   BaseDimension
	Exp    int
}

// Unit is a canonical unit: an ordered product of terms. The zero value is
// the dimensionless unit. Units are immutable; algebra returns new values.
type Unit struct {
	terms []UnitTerm
}

// NewUnit creates a simple unit from a single symbol and base dimension.
func NewUnit(symbol string, base BaseDimension) Unit {
	return Unit{terms: []UnitTerm{{Symbol: symbol, Base: base, Exp: 1}}}
}

// Dimensionless is the unit of plain numbers.
var Dimensionless = Unit{}

// normalize drops zero-exponent terms and orders terms canonically:
// positive exponents before negative, keeping first-seen order inside
// each group so "kg*m/s^2" renders the way it was written.
func normalize(terms []UnitTerm) Unit {
	kept := make([]UnitTerm, 0, len(terms))
	for _, t := range terms {
		if t.Exp != 0 {
			kept = append(kept, t)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Exp > 0 && kept[j].Exp < 0
	})
	if len(kept) == 0 {
		return Unit{}
	}
	return Unit{terms: kept}
}

// Terms returns a copy of the unit's terms.
func (u Unit) Terms() []UnitTerm {
	out := make([]UnitTerm, len(u.terms))
	copy(out, u.terms)
	return out
}

// IsDimensionless reports whether the unit carries no dimension.
func (u Unit) IsDimensionless() bool {
	return len(u.terms) == 0
}

// Dimension returns the exponent vector of the unit.
func (u Unit) Dimension() Dimension {
	d := Dimension{}
	for _, t := range u.terms {
		d = d.with(t.Base, d.Exponent(t.Base)+t.Exp)
	}
	return d
}

// term returns the term for a base dimension, if present.
func (u Unit) term(base BaseDimension) (UnitTerm, bool) {
	for _, t := range u.terms {
		if t.Base == base {
			return t, true
		}
	}
	return UnitTerm{}, false
}

// Equal reports whether two units have identical terms.
func (u Unit) Equal(other Unit) bool {
	if len(u.terms) != len(other.terms) {
		return false
	}
	for i, t := range u.terms {
		if other.terms[i] != t {
			return false
		}
	}
	return true
}

// Symbol renders the canonical textual form: "mi", "ft^2", "USD/hr",
// "kg*m/s^2", "1/hr". Dimensionless renders as the empty string.
func (u Unit) Symbol() string {
	if len(u.terms) == 0 {
		return ""
	}
	var num, den []string
	for _, t := range u.terms {
		exp := t.Exp
		if exp < 0 {
			exp = -exp
		}
		part := t.Symbol
		if exp > 1 {
			part += "^" + strconv.Itoa(exp)
		}
		if t.Exp > 0 {
			num = append(num, part)
		} else {
			den = append(den, part)
		}
	}
	result := strings.Join(num, "*")
	if result == "" {
		result = "1"
	}
	for _, d := range den {
		result += "/" + d
	}
	return result
}

func (u Unit) String() string {
	if u.IsDimensionless() {
		return "(dimensionless)"
	}
	return u.Symbol()
}

// merge combines term lists, adding exponents for identical symbols.
func merge(a, b []UnitTerm) Unit {
	combined := make([]UnitTerm, len(a))
	copy(combined, a)
	for _, t := range b {
		found := false
		for i := range combined {
			if combined[i].Symbol == t.Symbol && combined[i].Base == t.Base {
				combined[i].Exp += t.Exp
				found = true
				break
			}
		}
		if !found {
			combined = append(combined, t)
		}
	}
	return normalize(combined)
}

// Mul returns the algebraic product of two units, canceling terms whose
// net exponent reaches zero.
func (u Unit) Mul(other Unit) Unit {
	return merge(u.terms, other.terms)
}

// Div returns the algebraic quotient of two units.
func (u Unit) Div(other Unit) Unit {
	inverted := make([]UnitTerm, len(other.terms))
	for i, t := range other.terms {
		t.Exp = -t.Exp
		inverted[i] = t
	}
	return merge(u.terms, inverted)
}

// Pow multiplies every exponent by n. Pow(0) is dimensionless.
func (u Unit) Pow(n int) Unit {
	if n == 0 {
		return Unit{}
	}
	terms := make([]UnitTerm, len(u.terms))
	for i, t := range u.terms {
		t.Exp *= n
		terms[i] = t
	}
	return normalize(terms)
}

// Sqrt halves every exponent. A term with an odd exponent cannot be halved
// and fails with ErrInvalidUnitOperation (e.g. SQRT of "m").
func (u Unit) Sqrt() (Unit, error) {
	terms := make([]UnitTerm, len(u.terms))
	for i, t := range u.terms {
		if t.Exp%2 != 0 {
			return Unit{}, ErrInvalidUnitOperation
		}
		t.Exp /= 2
		terms[i] = t
	}
	return normalize(terms), nil
}

// BinaryOp is declared in lexer.go; Combine maps the four arithmetic
// operators onto unit algebra.

// Combine applies dimensional-analysis rules for a binary arithmetic
// operation. Addition and subtraction require structurally equal
// dimensions; a mismatch degrades to a dimensionless result with warn set,
// and the operation still completes. Multiplication and division always
// succeed.
func Combine(op BinaryOp, a, b Unit) (result Unit, warn bool) {
	switch op {
	case BinOpAdd, BinOpSubtract:
		switch {
		case a.IsDimensionless():
			return b, false
		case b.IsDimensionless():
			return a, false
		case a.Dimension().Equal(b.Dimension()):
			return a, false
		default:
			return Unit{}, true
		}
	case BinOpMultiply:
		return a.Mul(b), false
	case BinOpDivide:
		return a.Div(b), false
	default:
		return Unit{}, false
	}
}
