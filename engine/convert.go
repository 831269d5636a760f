package engine

import (
	"fmt"
	"math"
)

// ConversionError reports a conversion that cannot be performed, either
// because the dimensions differ or a scale could not be resolved.
type ConversionError struct {
	From   string
	To     string
	Reason string
}

func (e *ConversionError) Error() string {
	from, to := e.From, e.To
	if from == "" {
		from = "(dimensionless)"
	}
	if to == "" {
		to = "(dimensionless)"
	}
	return fmt.Sprintf("cannot convert %s to %s: %s", from, to, e.Reason)
}

// Converter turns values between units of equal dimension. Static scales
// come from the registry; currency scales are resolved against the live
// rate table at conversion time, so a rate update changes every later
// conversion without touching stored values.
type Converter struct {
	registry *UnitRegistry
	rates    *RateTable
}

// NewConverter builds a converter over a registry and rate table.
func NewConverter(registry *UnitRegistry, rates *RateTable) *Converter {
	return &Converter{registry: registry, rates: rates}
}

// Convert transforms a value from one unit to another of the same
// dimension. Linear units compose per-base scale factors raised to the
// shared exponent. Affine temperature units (C, F) convert through the
// scale-then-offset form and only as simple units: an offset unit inside a
// compound unit or at an exponent other than 1 has no meaningful affine
// conversion and is rejected.
func (c *Converter) Convert(value float64, from, to Unit) (float64, error) {
	if from.Equal(to) {
		return value, nil
	}
	if !from.Dimension().Equal(to.Dimension()) {
		return 0, &ConversionError{From: from.Symbol(), To: to.Symbol(), Reason: "dimensions differ"}
	}

	fromAffine := c.hasAffineTerm(from)
	toAffine := c.hasAffineTerm(to)
	if fromAffine || toAffine {
		if !isSimple(from) || !isSimple(to) {
			return 0, &ConversionError{
				From:   from.Symbol(),
				To:     to.Symbol(),
				Reason: "temperature units convert only as simple units",
			}
		}
		return c.convertAffine(value, from.terms[0], to.terms[0])
	}

	factor := 1.0
	for _, base := range from.Dimension().Bases() {
		fromTerm, _ := from.term(base)
		toTerm, _ := to.term(base)

		var ratio float64
		if base == DimCurrency {
			f, err := c.rates.factor(fromTerm.Symbol, toTerm.Symbol)
			if err != nil {
				return 0, err
			}
			ratio = f
		} else {
			fromScale, err := c.scale(fromTerm, toTerm)
			if err != nil {
				return 0, err
			}
			toScale, err := c.scale(toTerm, fromTerm)
			if err != nil {
				return 0, err
			}
			ratio = fromScale / toScale
		}
		factor *= math.Pow(ratio, float64(fromTerm.Exp))
	}
	return value * factor, nil
}

// ConvertTerm rescales a single term of a compound unit, e.g. rewriting
// USD/hr as USD/min. Offset units are rejected the same way Convert
// rejects them inside compounds.
func (c *Converter) ConvertTerm(value float64, u Unit, fromSym, toSym string) (float64, Unit, error) {
	rewritten := make([]UnitTerm, 0, len(u.terms))
	factor := 1.0
	for _, t := range u.terms {
		if t.Symbol != fromSym {
			rewritten = append(rewritten, t)
			continue
		}
		def, ok := c.registry.lookup(toSym)
		if !ok || def.Base != t.Base {
			return 0, Unit{}, &ConversionError{From: fromSym, To: toSym, Reason: "no common dimension"}
		}
		single := Unit{terms: []UnitTerm{{Symbol: t.Symbol, Base: t.Base, Exp: 1}}}
		target := Unit{terms: []UnitTerm{{Symbol: def.Symbol, Base: def.Base, Exp: 1}}}
		s, err := c.Convert(1, single, target)
		if err != nil {
			return 0, Unit{}, err
		}
		factor *= math.Pow(s, float64(t.Exp))
		rewritten = append(rewritten, UnitTerm{Symbol: def.Symbol, Base: def.Base, Exp: t.Exp})
	}
	return value * factor, normalize(rewritten), nil
}

// scale resolves a term's linear scale to its domain reference unit.
// Currency terms never come here; Convert routes them through the rate
// table. The second term only shapes the error message.
func (c *Converter) scale(term, other UnitTerm) (float64, error) {
	def, ok := c.registry.lookup(term.Symbol)
	if !ok {
		return 0, &ConversionError{From: term.Symbol, To: other.Symbol, Reason: "unknown unit"}
	}
	return def.Scale, nil
}

func (c *Converter) hasAffineTerm(u Unit) bool {
	for _, t := range u.terms {
		if def, ok := c.registry.lookup(t.Symbol); ok && def.Offset != 0 {
			return true
		}
	}
	return false
}

// isSimple reports whether the unit is a single symbol at exponent 1.
func isSimple(u Unit) bool {
	return len(u.terms) == 1 && u.terms[0].Exp == 1
}

// convertAffine converts between simple units through the reference scale:
// reference = value*scale + offset, then invert for the target.
func (c *Converter) convertAffine(value float64, from, to UnitTerm) (float64, error) {
	fromDef, ok := c.registry.lookup(from.Symbol)
	if !ok {
		return 0, &ConversionError{From: from.Symbol, To: to.Symbol, Reason: "unknown unit"}
	}
	toDef, ok := c.registry.lookup(to.Symbol)
	if !ok {
		return 0, &ConversionError{From: from.Symbol, To: to.Symbol, Reason: "unknown unit"}
	}
	inReference := value*fromDef.Scale + fromDef.Offset
	return (inReference - toDef.Offset) / toDef.Scale, nil
}

// CounterpartUnit maps each simple term of a unit to its opposite-system
// counterpart (mi to km, kg to lb). Terms without a counterpart keep
// their symbol. Used by display modes, not by evaluation.
func (c *Converter) CounterpartUnit(u Unit, system string) Unit {
	terms := make([]UnitTerm, 0, len(u.terms))
	for _, t := range u.terms {
		def, ok := c.registry.lookup(t.Symbol)
		if ok && def.System != "" && def.System != system && def.Counterpart != "" {
			if target, ok := c.registry.lookup(def.Counterpart); ok {
				terms = append(terms, UnitTerm{Symbol: target.Symbol, Base: target.Base, Exp: t.Exp})
				continue
			}
		}
		terms = append(terms, t)
	}
	return normalize(terms)
}
