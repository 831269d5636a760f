package engine

type cellKey struct {
	Row int
	Col int
}

// Sheet is a sparse grid of cells. Rows and columns are zero-based.
type Sheet struct {
	name  string
	cells map[cellKey]*Cell
}

// NewSheet creates an empty sheet.
func NewSheet(name string) *Sheet {
	return &Sheet{
		name:  name,
		cells: make(map[cellKey]*Cell),
	}
}

// Name returns the sheet name.
func (s *Sheet) Name() string {
	return s.name
}

// Get returns the cell at the given position, or nil when empty.
func (s *Sheet) Get(row, col int) *Cell {
	return s.cells[cellKey{Row: row, Col: col}]
}

// Set stores a cell at the given position. A nil cell clears it.
func (s *Sheet) Set(row, col int, cell *Cell) {
	key := cellKey{Row: row, Col: col}
	if cell == nil {
		delete(s.cells, key)
		return
	}
	s.cells[key] = cell
}

// Clear removes the cell at the given position.
func (s *Sheet) Clear(row, col int) {
	delete(s.cells, cellKey{Row: row, Col: col})
}

// CellCount returns the number of populated cells.
func (s *Sheet) CellCount() int {
	return len(s.cells)
}

// Addresses returns the populated positions in row-major order.
func (s *Sheet) Addresses() []CellAddress {
	addrs := make([]CellAddress, 0, len(s.cells))
	for key := range s.cells {
		addrs = append(addrs, CellAddress{Sheet: s.name, Row: key.Row, Col: key.Col})
	}
	sortAddresses(addrs)
	return addrs
}

// Bounds returns the maximum populated row and column, or zeros for an
// empty sheet.
func (s *Sheet) Bounds() (maxRow, maxCol int) {
	for key := range s.cells {
		if key.Row > maxRow {
			maxRow = key.Row
		}
		if key.Col > maxCol {
			maxCol = key.Col
		}
	}
	return maxRow, maxCol
}

// ShiftRows moves every cell at or below start by delta rows. A
// negative delta first drops the |delta| rows starting at start. The
// caller rewrites formulas and rebuilds the dependency graph.
func (s *Sheet) ShiftRows(start, delta int) {
	if delta == 0 {
		return
	}
	moved := make(map[cellKey]*Cell)
	for key, cell := range s.cells {
		switch {
		case key.Row < start:
			moved[key] = cell
		case delta < 0 && key.Row < start-delta:
			// row deleted, cell dropped
		default:
			moved[cellKey{Row: key.Row + delta, Col: key.Col}] = cell
		}
	}
	s.cells = moved
}

// ShiftCols moves every cell at or right of start by delta columns. A
// negative delta first drops the |delta| columns starting at start.
func (s *Sheet) ShiftCols(start, delta int) {
	if delta == 0 {
		return
	}
	moved := make(map[cellKey]*Cell)
	for key, cell := range s.cells {
		switch {
		case key.Col < start:
			moved[key] = cell
		case delta < 0 && key.Col < start-delta:
			// column deleted, cell dropped
		default:
			moved[cellKey{Row: key.Row, Col: key.Col + delta}] = cell
		}
	}
	s.cells = moved
}
