package engine

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed units.yaml
var defaultUnitsYAML []byte

// UnitParseError reports a unit string that could not be resolved against
// the registry.
type UnitParseError struct {
	Input  string
	Symbol string
}

func (e *UnitParseError) Error() string {
	if e.Symbol != "" && e.Symbol != e.Input {
		return fmt.Sprintf("unknown unit symbol %q in %q", e.Symbol, e.Input)
	}
	return fmt.Sprintf("unknown unit %q", e.Input)
}

// unitDef is one registered symbol: its domain, the linear scale to the
// domain's reference unit, and the affine offset (temperature only).
type unitDef struct {
	Symbol      string
	Base        BaseDimension
	Scale       float64
	Offset      float64
	System      string // "metric", "imperial", or ""
	Counterpart string
}

// unitsFile mirrors units.yaml.
type unitsFile struct {
	Domains []string `yaml:"domains"`
	Units   []struct {
		Symbol      string  `yaml:"symbol"`
		Domain      string  `yaml:"domain"`
		Scale       float64 `yaml:"scale"`
		Offset      float64 `yaml:"offset"`
		System      string  `yaml:"system"`
		Counterpart string  `yaml:"counterpart"`
	} `yaml:"units"`
	Currencies struct {
		Reference string             `yaml:"reference"`
		Rates     map[string]float64 `yaml:"rates"`
	} `yaml:"currencies"`
}

// UnitRegistry resolves unit symbols to canonical units. Symbol collisions
// across domains are settled by the domain priority order from the
// configuration data, never by parser logic.
type UnitRegistry struct {
	priority []BaseDimension
	bySymbol map[string][]*unitDef // defs in priority order
}

// NewUnitRegistry loads the embedded default unit table.
func NewUnitRegistry() *UnitRegistry {
	reg, err := LoadUnitRegistry(defaultUnitsYAML)
	if err != nil {
		// the embedded table is part of the build; failing to parse it is
		// a programming error, not a runtime condition
		panic(fmt.Sprintf("embedded units.yaml: %v", err))
	}
	return reg
}

// LoadUnitRegistry parses a YAML unit table.
func LoadUnitRegistry(data []byte) (*UnitRegistry, error) {
	var file unitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse unit table: %w", err)
	}

	reg := &UnitRegistry{bySymbol: make(map[string][]*unitDef)}
	for _, name := range file.Domains {
		base, ok := ParseBaseDimension(name)
		if !ok {
			return nil, fmt.Errorf("unit table: unknown domain %q", name)
		}
		reg.priority = append(reg.priority, base)
	}

	for _, u := range file.Units {
		base, ok := ParseBaseDimension(u.Domain)
		if !ok {
			return nil, fmt.Errorf("unit table: unknown domain %q for %q", u.Domain, u.Symbol)
		}
		if u.Scale == 0 {
			return nil, fmt.Errorf("unit table: zero scale for %q", u.Symbol)
		}
		reg.add(&unitDef{
			Symbol:      u.Symbol,
			Base:        base,
			Scale:       u.Scale,
			Offset:      u.Offset,
			System:      u.System,
			Counterpart: u.Counterpart,
		})
	}

	// currency symbols come from the rate table section; their scales are
	// resolved against the live rate table at conversion time
	reg.add(&unitDef{Symbol: file.Currencies.Reference, Base: DimCurrency, Scale: 1})
	for code := range file.Currencies.Rates {
		reg.add(&unitDef{Symbol: code, Base: DimCurrency, Scale: 1})
	}

	return reg, nil
}

// DefaultCurrencyTable returns the reference currency and default rates
// from the embedded table.
func DefaultCurrencyTable() (reference string, rates map[string]float64) {
	var file unitsFile
	if err := yaml.Unmarshal(defaultUnitsYAML, &file); err != nil {
		panic(fmt.Sprintf("embedded units.yaml: %v", err))
	}
	rates = make(map[string]float64, len(file.Currencies.Rates))
	for code, rate := range file.Currencies.Rates {
		rates[code] = rate
	}
	return file.Currencies.Reference, rates
}

func (r *UnitRegistry) add(def *unitDef) {
	r.bySymbol[def.Symbol] = append(r.bySymbol[def.Symbol], def)
	if len(r.bySymbol[def.Symbol]) > 1 {
		r.sortByPriority(def.Symbol)
	}
}

func (r *UnitRegistry) sortByPriority(symbol string) {
	defs := r.bySymbol[symbol]
	rank := func(base BaseDimension) int {
		for i, b := range r.priority {
			if b == base {
				return i
			}
		}
		return len(r.priority)
	}
	for i := 1; i < len(defs); i++ {
		for j := i; j > 0 && rank(defs[j].Base) < rank(defs[j-1].Base); j-- {
			defs[j], defs[j-1] = defs[j-1], defs[j]
		}
	}
}

// lookup resolves a symbol to its highest-priority definition.
func (r *UnitRegistry) lookup(symbol string) (*unitDef, bool) {
	defs, ok := r.bySymbol[symbol]
	if !ok || len(defs) == 0 {
		return nil, false
	}
	return defs[0], true
}

// IsKnownSymbol reports whether a bare symbol is registered. Used by the
// parser to decide whether a trailing token after a number is a unit.
func (r *UnitRegistry) IsKnownSymbol(symbol string) bool {
	_, ok := r.lookup(symbol)
	return ok
}

// RegisterCurrency adds a currency code so freshly updated rate tables can
// introduce symbols not present in the defaults.
func (r *UnitRegistry) RegisterCurrency(code string) {
	if _, ok := r.lookup(code); ok {
		return
	}
	r.add(&unitDef{Symbol: code, Base: DimCurrency, Scale: 1})
}

// Symbols returns every registered symbol whose dimension structurally
// equals dim. Compound dimensions yield no matches; callers list the
// compatible set per base instead.
func (r *UnitRegistry) Symbols(dim Dimension) []string {
	var out []string
	for symbol, defs := range r.bySymbol {
		for _, def := range defs {
			if NewDimension(def.Base).Equal(dim) {
				out = append(out, symbol)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// ParseUnit resolves a unit string, optionally compound: "mi", "ft^2",
// "USD/hr", "kg*m/s^2", "1/hr". Each symbol is resolved through the domain
// priority order; an unknown symbol fails with *UnitParseError.
func (r *UnitRegistry) ParseUnit(text string) (Unit, error) {
	input := strings.TrimSpace(text)
	if input == "" {
		return Unit{}, nil
	}

	var terms []UnitTerm
	// split on '/': first segment is the numerator product, the rest divide
	segments := strings.Split(input, "/")
	for i, segment := range segments {
		sign := 1
		if i > 0 {
			sign = -1
		}
		if i == 0 && segment == "1" && len(segments) > 1 {
			continue // reciprocal form "1/hr"
		}
		for _, factor := range strings.Split(segment, "*") {
			term, err := r.parseTerm(input, factor, sign)
			if err != nil {
				return Unit{}, err
			}
			terms = append(terms, term)
		}
	}
	return normalize(terms), nil
}

// parseTerm parses one "symbol" or "symbol^exp" factor.
func (r *UnitRegistry) parseTerm(input, factor string, sign int) (UnitTerm, error) {
	symbol := strings.TrimSpace(factor)
	exp := 1
	if idx := strings.Index(symbol, "^"); idx != -1 {
		expStr := symbol[idx+1:]
		symbol = symbol[:idx]
		parsed, err := strconv.Atoi(expStr)
		if err != nil || parsed == 0 {
			return UnitTerm{}, &UnitParseError{Input: input, Symbol: factor}
		}
		exp = parsed
	}
	def, ok := r.lookup(symbol)
	if !ok {
		return UnitTerm{}, &UnitParseError{Input: input, Symbol: symbol}
	}
	return UnitTerm{Symbol: def.Symbol, Base: def.Base, Exp: exp * sign}, nil
}
