package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// DisplayPreference selects which unit system cell values are rendered
// in. Storage units never change; display is a view.
type DisplayPreference int

const (
	DisplayAsEntered DisplayPreference = iota
	DisplayMetric
	DisplayImperial
)

func (p DisplayPreference) String() string {
	switch p {
	case DisplayMetric:
		return "metric"
	case DisplayImperial:
		return "imperial"
	default:
		return "as-entered"
	}
}

// ParseDisplayPreference parses the wire form of a display preference.
func ParseDisplayPreference(s string) (DisplayPreference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "as-entered", "as_entered", "":
		return DisplayAsEntered, nil
	case "metric":
		return DisplayMetric, nil
	case "imperial":
		return DisplayImperial, nil
	}
	return DisplayAsEntered, NewApplicationError(InvalidArgument,
		fmt.Sprintf("unknown display preference: %s", s))
}

// Workbook combines sheets, the unit system, dependency tracking, and
// formula evaluation into a unified API. Writes recalculate affected
// cells synchronously before returning.
type Workbook struct {
	name       string
	sheets     map[string]*Sheet
	sheetOrder []string

	registry  *UnitRegistry
	rates     *RateTable
	converter *Converter
	functions *BuiltInFunctions
	graph     *DependencyGraph

	names   map[string]RangeAddress
	display DisplayPreference
}

// NewWorkbook creates a workbook with one empty sheet named Sheet1 and
// the embedded default unit table.
func NewWorkbook(name string) *Workbook {
	registry := NewUnitRegistry()
	rates := NewRateTable()
	wb := &Workbook{
		name:      name,
		sheets:    make(map[string]*Sheet),
		registry:  registry,
		rates:     rates,
		converter: NewConverter(registry, rates),
		functions: NewBuiltInFunctions(),
		graph:     NewDependencyGraph(),
		names:     make(map[string]RangeAddress),
	}
	wb.AddSheet("Sheet1")
	return wb
}

// Name returns the workbook name.
func (wb *Workbook) Name() string {
	return wb.name
}

// Registry returns the unit registry.
func (wb *Workbook) Registry() *UnitRegistry {
	return wb.registry
}

// Rates returns the currency rate table.
func (wb *Workbook) Rates() *RateTable {
	return wb.rates
}

// Converter returns the unit converter.
func (wb *Workbook) Converter() *Converter {
	return wb.converter
}

// DisplayPreference returns the active display preference.
func (wb *Workbook) DisplayPreference() DisplayPreference {
	return wb.display
}

// SetDisplayPreference changes how values render. No recalculation
// happens; stored values are untouched.
func (wb *Workbook) SetDisplayPreference(pref DisplayPreference) {
	wb.display = pref
}

// sheet is the internal accessor used during evaluation.
func (wb *Workbook) sheet(name string) (*Sheet, bool) {
	s, ok := wb.sheets[name]
	return s, ok
}

// namedRange resolves a defined name during evaluation.
func (wb *Workbook) namedRange(name string) (RangeAddress, bool) {
	bounds, ok := wb.names[name]
	return bounds, ok
}

// AddSheet creates a new empty sheet.
func (wb *Workbook) AddSheet(name string) error {
	if name == "" {
		return NewApplicationError(InvalidArgument, "sheet name cannot be empty")
	}
	if _, exists := wb.sheets[name]; exists {
		return NewApplicationError(AlreadyExists, fmt.Sprintf("sheet '%s' already exists", name))
	}
	wb.sheets[name] = NewSheet(name)
	wb.sheetOrder = append(wb.sheetOrder, name)
	return nil
}

// SheetNames returns sheet names in creation order.
func (wb *Workbook) SheetNames() []string {
	out := make([]string, len(wb.sheetOrder))
	copy(out, wb.sheetOrder)
	return out
}

// Sheet returns a sheet by name.
func (wb *Workbook) Sheet(name string) (*Sheet, error) {
	s, ok := wb.sheets[name]
	if !ok {
		return nil, NewApplicationError(NotFound, fmt.Sprintf("sheet '%s' not found", name))
	}
	return s, nil
}

// DefineNamedRange binds a name to a range. Names must not collide with
// A1-style cell references.
func (wb *Workbook) DefineNamedRange(name string, bounds RangeAddress) error {
	if !isValidRangeName(name) {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("invalid range name: %s", name))
	}
	if _, ok := wb.sheets[bounds.Start.Sheet]; !ok {
		return NewApplicationError(NotFound,
			fmt.Sprintf("sheet '%s' not found", bounds.Start.Sheet))
	}
	wb.names[name] = bounds.Normalize()
	wb.rebindNameUsers()
	wb.recalculate()
	return nil
}

// DeleteNamedRange removes a defined name. Formulas using it evaluate
// to a name error afterward.
func (wb *Workbook) DeleteNamedRange(name string) error {
	if _, ok := wb.names[name]; !ok {
		return NewApplicationError(NotFound, fmt.Sprintf("named range '%s' not found", name))
	}
	delete(wb.names, name)
	wb.rebindNameUsers()
	wb.recalculate()
	return nil
}

// NamedRanges returns a copy of the name table.
func (wb *Workbook) NamedRanges() map[string]RangeAddress {
	out := make(map[string]RangeAddress, len(wb.names))
	for name, bounds := range wb.names {
		out[name] = bounds
	}
	return out
}

// isValidRangeName accepts identifiers that cannot be read as an
// A1-style reference.
func isValidRangeName(name string) bool {
	if name == "" {
		return false
	}
	for i, ch := range name {
		alpha := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
		digit := ch >= '0' && ch <= '9'
		if !alpha && !(digit && i > 0) {
			return false
		}
	}
	if _, err := ParseCellAddress(name, "Sheet1"); err == nil {
		return false
	}
	return true
}

// markAllFormulasDirty queues every formula cell for recalculation,
// used when a workbook-wide input like a currency rate changes.
func (wb *Workbook) markAllFormulasDirty() {
	for addr, node := range wb.graph.nodes {
		if node.HasFormula {
			wb.graph.MarkDirty(addr)
		}
	}
}

// rebindNameUsers re-derives the dependency edges of every formula that
// references a defined name. Names resolve to concrete cell and range
// edges at registration time, so changing a binding must re-register
// its users or later writes inside the named range would not reach
// them.
func (wb *Workbook) rebindNameUsers() {
	for _, sheetName := range wb.sheetOrder {
		sheet := wb.sheets[sheetName]
		for _, addr := range sheet.Addresses() {
			cell := sheet.Get(addr.Row, addr.Col)
			if cell == nil || !cell.IsFormula() {
				continue
			}
			_, _, names := CollectRefs(cell.AST, addr.Sheet)
			if len(names) == 0 {
				continue
			}
			wb.graph.ClearDependencies(addr)
			wb.registerDependencies(addr, cell.AST)
			wb.graph.MarkDirty(addr)
		}
	}
}

// SetCell writes raw input to a cell and recalculates everything
// affected. Input is classified the way a spreadsheet entry bar does:
// leading = means formula, TRUE/FALSE mean boolean, a number with an
// optional unit suffix means a quantity, anything else is text.
func (wb *Workbook) SetCell(addr CellAddress, raw string) error {
	sheet, ok := wb.sheets[addr.Sheet]
	if !ok {
		return NewApplicationError(NotFound, fmt.Sprintf("sheet '%s' not found", addr.Sheet))
	}
	if addr.Row < 0 || addr.Col < 0 {
		return NewApplicationError(OutOfRange, "cell position out of range")
	}

	wb.graph.ClearDependencies(addr)
	wb.graph.SetFormula(addr, false)

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		sheet.Clear(addr.Row, addr.Col)
		wb.graph.MarkDirty(addr)
		wb.recalculate()
		return nil
	}

	cell := wb.classify(addr, trimmed)
	sheet.Set(addr.Row, addr.Col, cell)

	if cell.IsFormula() {
		wb.graph.SetFormula(addr, true)
		wb.registerDependencies(addr, cell.AST)
	}
	wb.graph.MarkDirty(addr)
	wb.recalculate()
	return nil
}

// SetCellA1 is SetCell with a textual address like "Sheet1!B3".
func (wb *Workbook) SetCellA1(ref, raw string) error {
	addr, err := ParseCellAddress(ref, wb.defaultSheet())
	if err != nil {
		return err
	}
	return wb.SetCell(addr, raw)
}

func (wb *Workbook) defaultSheet() string {
	if len(wb.sheetOrder) > 0 {
		return wb.sheetOrder[0]
	}
	return "Sheet1"
}

// classify turns raw input into a cell. Formula parse failures store an
// error cell carrying the raw source so the input is not lost.
func (wb *Workbook) classify(addr CellAddress, raw string) *Cell {
	if strings.HasPrefix(raw, "=") {
		ast, err := ParseFormula(raw, &ParserContext{
			CurrentSheet: addr.Sheet,
			Registry:     wb.registry,
		})
		if err != nil {
			cellErr := asCellError(err)
			if cellErr == nil {
				cellErr = NewCellError(ErrorCodeSyntax, err.Error())
			}
			return &Cell{
				Type:   CellValueTypeError,
				Source: raw,
				Value:  cellErr,
				State:  CellStateClean,
			}
		}
		return &Cell{
			Type:   CellValueTypeFormula,
			Source: raw,
			AST:    ast,
			State:  CellStateDirty,
		}
	}

	switch strings.ToUpper(raw) {
	case "TRUE":
		return &Cell{Type: CellValueTypeBoolean, Source: raw, Value: true, State: CellStateClean}
	case "FALSE":
		return &Cell{Type: CellValueTypeBoolean, Source: raw, Value: false, State: CellStateClean}
	}

	if q, ok := wb.parseQuantityLiteral(raw); ok {
		return &Cell{
			Type:        CellValueTypeNumber,
			Source:      raw,
			Value:       q,
			StorageUnit: q.Unit,
			State:       CellStateClean,
		}
	}

	return &Cell{Type: CellValueTypeText, Source: raw, Value: raw, State: CellStateClean}
}

// parseQuantityLiteral reads input like "42", "-3.5", or "100 mi". An
// unknown unit symbol makes the input text, not an error.
func (wb *Workbook) parseQuantityLiteral(raw string) (Quantity, bool) {
	tokens, errs := NewLexerForLiteral(raw).Tokenize()
	if len(errs) > 0 {
		return Quantity{}, false
	}

	sign := 1.0
	i := 0
	for i < len(tokens) && tokens[i].Type == TokenUnaryPrefixOp {
		if tokens[i].Value == "-" {
			sign = -sign
		}
		i++
	}
	if i >= len(tokens) || tokens[i].Type != TokenNumber {
		return Quantity{}, false
	}
	value, err := strconv.ParseFloat(tokens[i].Value, 64)
	if err != nil {
		return Quantity{}, false
	}
	i++

	unit := Unit{}
	if i < len(tokens) && tokens[i].Type == TokenUnit {
		parsed, err := wb.registry.ParseUnit(tokens[i].Value)
		if err != nil {
			return Quantity{}, false
		}
		unit = parsed
		i++
	}
	if i < len(tokens) && tokens[i].Type != TokenEOF {
		return Quantity{}, false
	}
	return Quantity{Value: sign * value, Unit: unit}, true
}

// registerDependencies walks a formula's references into the graph.
// Named ranges resolve to their current bounds at registration time.
func (wb *Workbook) registerDependencies(addr CellAddress, ast ASTNode) {
	cells, ranges, names := CollectRefs(ast, addr.Sheet)
	for _, precedent := range cells {
		wb.graph.AddCellDependency(addr, precedent)
	}
	for _, bounds := range ranges {
		wb.graph.AddRangeDependency(addr, bounds)
	}
	for _, name := range names {
		if bounds, ok := wb.names[name]; ok {
			if bounds.Start == bounds.End {
				wb.graph.AddCellDependency(addr, bounds.Start)
			} else {
				wb.graph.AddRangeDependency(addr, bounds)
			}
		}
	}
}

// recalculate evaluates all dirty formula cells in dependency order.
// Cells on a reference cycle become cycle errors; cells downstream of a
// cycle evaluate normally and see the error as a propagated value.
func (wb *Workbook) recalculate() {
	affected := wb.graph.DirtyCells()
	if len(affected) == 0 {
		wb.graph.ClearAllDirty()
		return
	}

	order, blocked := wb.graph.CalculationOrder(affected)
	for _, addr := range order {
		wb.evaluateCell(addr)
	}

	if len(blocked) > 0 {
		members := wb.graph.CycleMembers(blocked)
		var downstream []CellAddress
		for _, addr := range blocked {
			if _, onCycle := members[addr]; onCycle {
				wb.storeCycleError(addr)
			} else {
				downstream = append(downstream, addr)
			}
		}

		// with cycle members resolved to error values, the rest orders
		// cleanly
		rest, stuck := wb.graph.CalculationOrder(downstream)
		for _, addr := range rest {
			wb.evaluateCell(addr)
		}
		for _, addr := range stuck {
			wb.storeCycleError(addr)
		}
	}

	wb.graph.ClearAllDirty()
}

func (wb *Workbook) storeCycleError(addr CellAddress) {
	sheet, ok := wb.sheets[addr.Sheet]
	if !ok {
		return
	}
	cell := sheet.Get(addr.Row, addr.Col)
	if cell == nil {
		return
	}
	cell.Value = NewCellError(ErrorCodeCirc,
		fmt.Sprintf("circular reference involving %s", addr))
	cell.Warning = ""
	cell.State = CellStateClean
}

func (wb *Workbook) evaluateCell(addr CellAddress) {
	sheet, ok := wb.sheets[addr.Sheet]
	if !ok {
		return
	}
	cell := sheet.Get(addr.Row, addr.Col)
	if cell == nil || !cell.IsFormula() {
		return
	}

	cell.State = CellStateEvaluating
	ctx := NewEvalContext(wb, addr)
	value, err := cell.AST.Eval(ctx)
	if err != nil {
		if cellErr := asCellError(err); cellErr != nil {
			value = cellErr
		} else {
			value = NewCellError(ErrorCodeValue, err.Error())
		}
	}

	cell.Value = value
	cell.Warning = ctx.Warning()
	if q, ok := value.(Quantity); ok {
		cell.StorageUnit = q.Unit
	} else {
		cell.StorageUnit = Unit{}
	}
	cell.State = CellStateClean
}

// GetCell returns the external read model for a cell. Empty cells
// return an empty CellValue, not an error.
func (wb *Workbook) GetCell(addr CellAddress) (CellValue, error) {
	sheet, ok := wb.sheets[addr.Sheet]
	if !ok {
		return CellValue{}, NewApplicationError(NotFound,
			fmt.Sprintf("sheet '%s' not found", addr.Sheet))
	}
	cell := sheet.Get(addr.Row, addr.Col)
	if cell == nil {
		return CellValue{Type: CellValueTypeEmpty}, nil
	}

	out := CellValue{
		Type:    cell.Type,
		Value:   cell.Value,
		Warning: cell.Warning,
	}
	if cell.IsFormula() {
		out.Formula = cell.Source
	}
	if !cell.StorageUnit.IsDimensionless() {
		out.Unit = cell.StorageUnit.Symbol()
	}
	if cell.DisplayUnit != nil {
		out.DisplayUnit = cell.DisplayUnit.Symbol()
	}
	if cellErr, isErr := cell.ErrorValue(); isErr {
		code := cellErr.ErrorCode
		out.Error = &code
		out.Type = CellValueTypeError
	}
	return out, nil
}

// GetCellA1 is GetCell with a textual address.
func (wb *Workbook) GetCellA1(ref string) (CellValue, error) {
	addr, err := ParseCellAddress(ref, wb.defaultSheet())
	if err != nil {
		return CellValue{}, err
	}
	return wb.GetCell(addr)
}

// SetDisplayUnit overrides how one cell renders. The override must be
// dimension-compatible with the stored unit. Passing nil clears it.
func (wb *Workbook) SetDisplayUnit(addr CellAddress, unit *Unit) error {
	sheet, ok := wb.sheets[addr.Sheet]
	if !ok {
		return NewApplicationError(NotFound, fmt.Sprintf("sheet '%s' not found", addr.Sheet))
	}
	cell := sheet.Get(addr.Row, addr.Col)
	if cell == nil {
		return NewApplicationError(FailedPrecondition, "cannot set display unit on an empty cell")
	}
	if unit != nil && !unit.Dimension().Equal(cell.StorageUnit.Dimension()) {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("display unit %s does not match stored dimension", unit.Symbol()))
	}
	cell.DisplayUnit = unit
	return nil
}

// UpdateCurrencyRate updates one currency's rate against the reference
// currency and recalculates, since stored conversions may shift.
func (wb *Workbook) UpdateCurrencyRate(code string, rate float64, provenance RateProvenance) error {
	if err := wb.rates.Update(code, rate, provenance); err != nil {
		return err
	}
	wb.registry.RegisterCurrency(code)
	wb.markAllFormulasDirty()
	wb.recalculate()
	return nil
}

// Recalculate forces a full recalculation of every formula cell.
func (wb *Workbook) Recalculate() {
	wb.markAllFormulasDirty()
	wb.recalculate()
}
