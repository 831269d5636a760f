package engine

import (
	"fmt"
	"strings"
)

// CellType represents numeric constants for cell value
// types (external API)
type CellType uint8

const (
	CellValueTypeEmpty   CellType = 0
	CellValueTypeNumber  CellType = 1
	CellValueTypeText    CellType = 2
	CellValueTypeBoolean CellType = 3
	CellValueTypeFormula CellType = 4
	CellValueTypeError   CellType = 5
)

// CellState tracks a cell's position in the recalculation lifecycle.
type CellState uint8

const (
	CellStateClean CellState = iota
	CellStateDirty
	CellStateEvaluating
)

func (s CellState) String() string {
	switch s {
	case CellStateClean:
		return "clean"
	case CellStateDirty:
		return "dirty"
	case CellStateEvaluating:
		return "evaluating"
	}
	return "unknown"
}

// CellAddress identifies a cell by sheet name and zero-based coordinates.
type CellAddress struct {
	Sheet string
	Row   int
	Col   int
}

// String renders the address in A1 form, qualified by sheet: "Sheet1!B3".
func (a CellAddress) String() string {
	return a.Sheet + "!" + a.Local()
}

// Local renders the address without the sheet qualifier.
func (a CellAddress) Local() string {
	return fmt.Sprintf("%s%d", ColumnLabel(a.Col), a.Row+1)
}

// RangeAddress is an inclusive rectangular region on one sheet.
type RangeAddress struct {
	Start CellAddress
	End   CellAddress
}

// Normalize orders the corners so Start is the top-left cell.
func (r RangeAddress) Normalize() RangeAddress {
	out := r
	if out.End.Row < out.Start.Row {
		out.Start.Row, out.End.Row = out.End.Row, out.Start.Row
	}
	if out.End.Col < out.Start.Col {
		out.Start.Col, out.End.Col = out.End.Col, out.Start.Col
	}
	out.End.Sheet = out.Start.Sheet
	return out
}

// Contains reports whether the address falls inside the range.
func (r RangeAddress) Contains(a CellAddress) bool {
	n := r.Normalize()
	return a.Sheet == n.Start.Sheet &&
		a.Row >= n.Start.Row && a.Row <= n.End.Row &&
		a.Col >= n.Start.Col && a.Col <= n.End.Col
}

func (r RangeAddress) String() string {
	n := r.Normalize()
	return n.Start.String() + ":" + n.End.Local()
}

// ColumnLabel converts a zero-based column index to its letter form:
// 0 is "A", 25 is "Z", 26 is "AA".
func ColumnLabel(col int) string {
	label := ""
	for col >= 0 {
		label = string(rune('A'+col%26)) + label
		col = col/26 - 1
	}
	return label
}

// ParseColumnLabel converts a letter column to its zero-based index.
func ParseColumnLabel(label string) (int, error) {
	if label == "" {
		return 0, fmt.Errorf("empty column label")
	}
	col := 0
	for _, r := range label {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column label %q", label)
		}
		col = col*26 + int(r-'A') + 1
	}
	return col - 1, nil
}

// ParseCellAddress parses "B3", "Sheet2!B3", or absolute forms like
// "$B$3" (absolute markers are accepted and discarded; they only matter
// inside formulas). An empty sheet falls back to defaultSheet.
func ParseCellAddress(text, defaultSheet string) (CellAddress, error) {
	sheet := defaultSheet
	local := strings.TrimSpace(text)
	if idx := strings.Index(local, "!"); idx != -1 {
		sheet = local[:idx]
		local = local[idx+1:]
	}
	local = strings.ReplaceAll(local, "$", "")

	split := 0
	for split < len(local) && local[split] >= 'A' && local[split] <= 'Z' {
		split++
	}
	if split == 0 || split == len(local) {
		return CellAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid cell address: %s", text))
	}
	col, err := ParseColumnLabel(local[:split])
	if err != nil {
		return CellAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid cell address: %s", text))
	}
	row := 0
	for _, r := range local[split:] {
		if r < '0' || r > '9' {
			return CellAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid cell address: %s", text))
		}
		row = row*10 + int(r-'0')
	}
	if row == 0 {
		return CellAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid cell address: %s", text))
	}
	return CellAddress{Sheet: sheet, Row: row - 1, Col: col}, nil
}

// ParseRangeAddress parses "A1:B10" or "Sheet2!A1:B10".
func ParseRangeAddress(text, defaultSheet string) (RangeAddress, error) {
	parts := strings.SplitN(text, ":", 2)
	if len(parts) != 2 {
		return RangeAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid range: %s", text))
	}
	start, err := ParseCellAddress(parts[0], defaultSheet)
	if err != nil {
		return RangeAddress{}, err
	}
	end, err := ParseCellAddress(parts[1], start.Sheet)
	if err != nil {
		return RangeAddress{}, err
	}
	return RangeAddress{Start: start, End: end}.Normalize(), nil
}

// Cell represents one populated cell: the text as entered, the parsed
// formula if any, and the computed value with its units.
type Cell struct {
	Type   CellType
	Source string  // raw text as entered
	AST    ASTNode // parsed formula body, formula cells only

	Value       Primitive // computed value: Quantity, string, bool, or *CellError
	StorageUnit Unit      // unit as entered; changed only by re-entry
	DisplayUnit *Unit     // presentational override, never feeds formulas
	Warning     string    // set when an operation silently degraded
	State       CellState
}

// IsFormula reports whether the cell holds a formula.
func (c *Cell) IsFormula() bool {
	return c.Type == CellValueTypeFormula
}

// ErrorValue returns the cell's error, if its value is one.
func (c *Cell) ErrorValue() (*CellError, bool) {
	if c == nil {
		return nil, false
	}
	cellErr, ok := c.Value.(*CellError)
	return cellErr, ok
}

// CellValue represents a calculated cell value with type information,
// the external read model for the protocol boundary.
type CellValue struct {
	Type        CellType
	Value       Primitive
	Unit        string
	DisplayUnit string
	Error       *ErrorCode
	Formula     string
	Warning     string
}
