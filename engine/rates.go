package engine

import (
	"fmt"
	"sort"
)

// RateProvenance records where a currency rate came from, reported across
// the protocol boundary alongside every conversion.
type RateProvenance string

const (
	RateHardcoded RateProvenance = "hardcoded"
	RateManual    RateProvenance = "manual"
	RateLive      RateProvenance = "live"
)

type rateEntry struct {
	Rate       float64 // units of this currency per 1 reference unit
	Provenance RateProvenance
}

// RateTable is the mutable currency-rate table owned by a workbook. It is
// a star graph centered on one reference currency: conversions between two
// non-reference currencies compose the two rates, never search paths.
type RateTable struct {
	reference string
	rates     map[string]rateEntry
}

// NewRateTable builds a table from the embedded hardcoded defaults.
func NewRateTable() *RateTable {
	reference, defaults := DefaultCurrencyTable()
	table := &RateTable{
		reference: reference,
		rates:     make(map[string]rateEntry, len(defaults)),
	}
	for code, rate := range defaults {
		table.rates[code] = rateEntry{Rate: rate, Provenance: RateHardcoded}
	}
	return table
}

// Reference returns the pivot currency code.
func (t *RateTable) Reference() string {
	return t.reference
}

// Rate returns the per-reference rate and provenance for a currency code.
// The reference currency itself always has rate 1.
func (t *RateTable) Rate(code string) (float64, RateProvenance, bool) {
	if code == t.reference {
		return 1, RateHardcoded, true
	}
	entry, ok := t.rates[code]
	if !ok {
		return 0, "", false
	}
	return entry.Rate, entry.Provenance, true
}

// Update sets the rate for a currency code. Updating the reference
// currency is rejected: its rate is 1 by definition.
func (t *RateTable) Update(code string, rate float64, provenance RateProvenance) error {
	if code == t.reference {
		return fmt.Errorf("cannot update reference currency %s", t.reference)
	}
	if rate <= 0 {
		return fmt.Errorf("rate for %s must be positive, got %g", code, rate)
	}
	t.rates[code] = rateEntry{Rate: rate, Provenance: provenance}
	return nil
}

// Codes returns every known currency code including the reference,
// sorted for stable output.
func (t *RateTable) Codes() []string {
	codes := make([]string, 0, len(t.rates)+1)
	codes = append(codes, t.reference)
	for code := range t.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// factor returns the multiplier converting from one currency to another,
// pivoting through the reference currency.
func (t *RateTable) factor(from, to string) (float64, error) {
	fromRate, _, ok := t.Rate(from)
	if !ok {
		return 0, &ConversionError{From: from, To: to, Reason: "no rate for " + from}
	}
	toRate, _, ok := t.Rate(to)
	if !ok {
		return 0, &ConversionError{From: from, To: to, Reason: "no rate for " + to}
	}
	return toRate / fromRate, nil
}

// Snapshot exports the table for persistence.
func (t *RateTable) Snapshot() map[string]RateSnapshot {
	out := make(map[string]RateSnapshot, len(t.rates))
	for code, entry := range t.rates {
		out[code] = RateSnapshot{Rate: entry.Rate, Provenance: entry.Provenance}
	}
	return out
}

// Restore replaces the table contents from a persisted snapshot.
func (t *RateTable) Restore(snapshot map[string]RateSnapshot) {
	for code, s := range snapshot {
		t.rates[code] = rateEntry{Rate: s.Rate, Provenance: s.Provenance}
	}
}

// RateSnapshot is the persisted form of one rate.
type RateSnapshot struct {
	Rate       float64        `json:"rate"`
	Provenance RateProvenance `json:"provenance"`
}
