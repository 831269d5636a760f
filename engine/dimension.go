package engine

import (
	"sort"
	"strconv"
	"strings"
)

// BaseDimension identifies the physical or financial kind of a quantity.
type BaseDimension uint8

const (
	DimNone BaseDimension = iota // dimensionless
	DimLength
	DimMass
	DimTime
	DimTemperature
	DimCurrency
	DimStorage
	DimVolume
)

var baseDimensionNames = map[BaseDimension]string{
	DimNone:        "dimensionless",
	DimLength:      "length",
	DimMass:        "mass",
	DimTime:        "time",
	DimTemperature: "temperature",
	DimCurrency:    "currency",
	DimStorage:     "storage",
	DimVolume:      "volume",
}

func (b BaseDimension) String() string {
	if name, ok := baseDimensionNames[b]; ok {
		return name
	}
	return "unknown"
}

// ParseBaseDimension resolves a domain name from configuration data.
func ParseBaseDimension(name string) (BaseDimension, bool) {
	for dim, n := range baseDimensionNames {
		if n == name {
			return dim, true
		}
	}
	return DimNone, false
}

// Dimension is an exponent vector over base dimensions. A single base
// dimension is the vector with one exponent of 1; a compound dimension
// (e.g. length/time) has several nonzero entries. The zero value is
// dimensionless.
type Dimension struct {
	exps map[BaseDimension]int
}

// NewDimension creates a dimension with a single base raised to 1.
func NewDimension(base BaseDimension) Dimension {
	if base == DimNone {
		return Dimension{}
	}
	return Dimension{exps: map[BaseDimension]int{base: 1}}
}

// Exponent returns the exponent for a base dimension (0 if absent).
func (d Dimension) Exponent(base BaseDimension) int {
	return d.exps[base]
}

// Bases returns the base dimensions with nonzero exponents, sorted.
func (d Dimension) Bases() []BaseDimension {
	bases := make([]BaseDimension, 0, len(d.exps))
	for base := range d.exps {
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	return bases
}

// IsDimensionless reports whether every exponent is zero.
func (d Dimension) IsDimensionless() bool {
	return len(d.exps) == 0
}

// Equal reports structural equality including exponents. This is the
// compatibility test for addition and subtraction.
func (d Dimension) Equal(other Dimension) bool {
	if len(d.exps) != len(other.exps) {
		return false
	}
	for base, exp := range d.exps {
		if other.exps[base] != exp {
			return false
		}
	}
	return true
}

// with returns a copy of d with the exponent for base replaced, dropping
// zero exponents so dimensionless collapses to the empty vector.
func (d Dimension) with(base BaseDimension, exp int) Dimension {
	result := make(map[BaseDimension]int, len(d.exps)+1)
	for b, e := range d.exps {
		result[b] = e
	}
	if exp == 0 {
		delete(result, base)
	} else {
		result[base] = exp
	}
	if len(result) == 0 {
		return Dimension{}
	}
	return Dimension{exps: result}
}

// Mul returns the dimension whose exponents are the pairwise sum.
func (d Dimension) Mul(other Dimension) Dimension {
	result := d
	for base, exp := range other.exps {
		result = result.with(base, result.Exponent(base)+exp)
	}
	return result
}

// Div returns the dimension whose exponents are the pairwise difference.
func (d Dimension) Div(other Dimension) Dimension {
	result := d
	for base, exp := range other.exps {
		result = result.with(base, result.Exponent(base)-exp)
	}
	return result
}

// Pow multiplies every exponent by n.
func (d Dimension) Pow(n int) Dimension {
	result := Dimension{}
	for base, exp := range d.exps {
		result = result.with(base, exp*n)
	}
	return result
}

// Sqrt halves every exponent. An odd exponent has no integral half, so the
// operation fails with ErrInvalidUnitOperation.
func (d Dimension) Sqrt() (Dimension, error) {
	result := Dimension{}
	for base, exp := range d.exps {
		if exp%2 != 0 {
			return Dimension{}, ErrInvalidUnitOperation
		}
		result = result.with(base, exp/2)
	}
	return result, nil
}

// Key returns a canonical string form usable as a map key, e.g.
// "length^1*time^-1". Dimensionless is the empty string.
func (d Dimension) Key() string {
	if d.IsDimensionless() {
		return ""
	}
	parts := make([]string, 0, len(d.exps))
	for _, base := range d.Bases() {
		parts = append(parts, base.String()+"^"+strconv.Itoa(d.exps[base]))
	}
	return strings.Join(parts, "*")
}

func (d Dimension) String() string {
	if d.IsDimensionless() {
		return "dimensionless"
	}
	return d.Key()
}
