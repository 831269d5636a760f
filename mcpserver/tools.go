package mcpserver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jacksodj/unicel/engine"
)

func registerTools(mcpServer *mcp.Server, s *Server) {
	mcp.AddTool(mcpServer, cellReadTool(), s.cellReadHandler())
	mcp.AddTool(mcpServer, cellWriteTool(), s.cellWriteHandler())
	mcp.AddTool(mcpServer, unitConvertTool(), s.unitConvertHandler())
	mcp.AddTool(mcpServer, unitListCompatibleTool(), s.unitListCompatibleHandler())
	mcp.AddTool(mcpServer, workbookDescribeTool(), s.workbookDescribeHandler())
	mcp.AddTool(mcpServer, currencyRateUpdateTool(), s.currencyRateUpdateHandler())
}

// CellReadInput addresses one cell, for example "A1" or "Sheet2!B3".
type CellReadInput struct {
	Ref string `json:"ref" jsonschema:"cell reference, optionally sheet-qualified"`
}

// CellReadResult is the full read model of one cell. Every numeric
// value carries its storage unit.
type CellReadResult struct {
	Ref         string  `json:"ref" jsonschema:"normalized cell reference"`
	Kind        string  `json:"kind" jsonschema:"empty, number, text, boolean, formula, or error"`
	Display     string  `json:"display" jsonschema:"value rendered under the display preference"`
	Magnitude   float64 `json:"magnitude,omitempty" jsonschema:"numeric magnitude in the storage unit"`
	Unit        string  `json:"unit,omitempty" jsonschema:"storage unit symbol"`
	DisplayUnit string  `json:"display_unit,omitempty" jsonschema:"per-cell display unit override"`
	Formula     string  `json:"formula,omitempty" jsonschema:"formula source for formula cells"`
	Warning     string  `json:"warning,omitempty" jsonschema:"unit warning from the last evaluation"`
	Error       string  `json:"error,omitempty" jsonschema:"cell error display string, like #CIRC!"`
}

func cellReadTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "cell_read",
		Description: "Reads a cell's value, unit, formula, warning, and error state",
	}
}

func (s *Server) cellReadHandler() mcp.ToolHandlerFor[CellReadInput, CellReadResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CellReadInput) (*mcp.CallToolResult, CellReadResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		result, err := s.readCell(input.Ref)
		return nil, result, err
	}
}

// readCell builds a CellReadResult. Callers hold the mutex.
func (s *Server) readCell(ref string) (CellReadResult, error) {
	addr, err := engine.ParseCellAddress(ref, s.wb.SheetNames()[0])
	if err != nil {
		return CellReadResult{}, fmt.Errorf("cell_read: %w", err)
	}
	cv, err := s.wb.GetCell(addr)
	if err != nil {
		return CellReadResult{}, fmt.Errorf("cell_read: %w", err)
	}

	result := CellReadResult{
		Ref:         addr.String(),
		Kind:        kindName(cv.Type),
		Display:     s.wb.DisplayString(addr),
		Unit:        cv.Unit,
		DisplayUnit: cv.DisplayUnit,
		Formula:     cv.Formula,
		Warning:     cv.Warning,
	}
	if q, ok := cv.Value.(engine.Quantity); ok {
		result.Magnitude = q.Value
	}
	if cv.Error != nil {
		result.Error = engine.ErrorMapper[*cv.Error]
	}
	return result, nil
}

func kindName(t engine.CellType) string {
	switch t {
	case engine.CellValueTypeNumber:
		return "number"
	case engine.CellValueTypeText:
		return "text"
	case engine.CellValueTypeBoolean:
		return "boolean"
	case engine.CellValueTypeFormula:
		return "formula"
	case engine.CellValueTypeError:
		return "error"
	default:
		return "empty"
	}
}

// CellWriteInput writes raw input to a cell, recalculating dependents
// before the call returns.
type CellWriteInput struct {
	Ref   string `json:"ref" jsonschema:"cell reference, optionally sheet-qualified"`
	Input string `json:"input" jsonschema:"raw cell input: formula (=...), number with optional unit, text, TRUE/FALSE, or empty to clear"`
}

func cellWriteTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "cell_write",
		Description: "Writes raw input to a cell and returns its recalculated state",
	}
}

func (s *Server) cellWriteHandler() mcp.ToolHandlerFor[CellWriteInput, CellReadResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CellWriteInput) (*mcp.CallToolResult, CellReadResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.wb.SetCellA1(input.Ref, input.Input); err != nil {
			return nil, CellReadResult{}, fmt.Errorf("cell_write: %w", err)
		}
		s.saveIfEnabled()
		result, err := s.readCell(input.Ref)
		return nil, result, err
	}
}

// UnitConvertInput is a one-shot conversion request.
type UnitConvertInput struct {
	Value float64 `json:"value" jsonschema:"magnitude to convert"`
	From  string  `json:"from" jsonschema:"source unit symbol"`
	To    string  `json:"to" jsonschema:"target unit symbol"`
}

// RateInfo reports one currency rate used by a conversion.
type RateInfo struct {
	Code       string  `json:"code"`
	Rate       float64 `json:"rate" jsonschema:"units of this currency per reference unit"`
	Provenance string  `json:"provenance" jsonschema:"hardcoded, manual, or live"`
}

// UnitConvertResult carries the converted magnitude with its unit and
// the provenance of any currency rates involved.
type UnitConvertResult struct {
	Value float64    `json:"value"`
	Unit  string     `json:"unit"`
	Rates []RateInfo `json:"rates,omitempty" jsonschema:"currency rates used, with provenance"`
}

func unitConvertTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "unit_convert",
		Description: "Converts a magnitude between compatible units, reporting currency rate provenance",
	}
}

func (s *Server) unitConvertHandler() mcp.ToolHandlerFor[UnitConvertInput, UnitConvertResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input UnitConvertInput) (*mcp.CallToolResult, UnitConvertResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		from, err := s.wb.Registry().ParseUnit(input.From)
		if err != nil {
			return nil, UnitConvertResult{}, fmt.Errorf("unit_convert: %w", err)
		}
		to, err := s.wb.Registry().ParseUnit(input.To)
		if err != nil {
			return nil, UnitConvertResult{}, fmt.Errorf("unit_convert: %w", err)
		}
		value, err := s.wb.Converter().Convert(input.Value, from, to)
		if err != nil {
			return nil, UnitConvertResult{}, fmt.Errorf("unit_convert: %w", err)
		}

		result := UnitConvertResult{Value: value, Unit: to.Symbol()}
		result.Rates = currencyRates(s.wb, from, to)
		return nil, result, nil
	}
}

// currencyRates collects rate provenance for every currency symbol
// appearing in either unit.
func currencyRates(wb *engine.Workbook, units ...engine.Unit) []RateInfo {
	seen := make(map[string]bool)
	var out []RateInfo
	for _, u := range units {
		for _, term := range u.Terms() {
			if term.Base != engine.DimCurrency || seen[term.Symbol] {
				continue
			}
			seen[term.Symbol] = true
			rate, provenance, ok := wb.Rates().Rate(term.Symbol)
			if !ok {
				continue
			}
			out = append(out, RateInfo{Code: term.Symbol, Rate: rate, Provenance: string(provenance)})
		}
	}
	return out
}

// UnitListCompatibleInput names a unit whose conversion targets are
// wanted.
type UnitListCompatibleInput struct {
	Unit string `json:"unit" jsonschema:"unit symbol to find compatible units for"`
}

// UnitListCompatibleResult lists units sharing the input's dimension.
type UnitListCompatibleResult struct {
	Dimension string   `json:"dimension"`
	Units     []string `json:"units"`
}

func unitListCompatibleTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "unit_list_compatible",
		Description: "Lists all units convertible to and from the given unit",
	}
}

func (s *Server) unitListCompatibleHandler() mcp.ToolHandlerFor[UnitListCompatibleInput, UnitListCompatibleResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input UnitListCompatibleInput) (*mcp.CallToolResult, UnitListCompatibleResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		unit, err := s.wb.Registry().ParseUnit(input.Unit)
		if err != nil {
			return nil, UnitListCompatibleResult{}, fmt.Errorf("unit_list_compatible: %w", err)
		}
		dim := unit.Dimension()
		return nil, UnitListCompatibleResult{
			Dimension: dim.String(),
			Units:     s.wb.Registry().Symbols(dim),
		}, nil
	}
}

// WorkbookDescribeInput has no parameters.
type WorkbookDescribeInput struct{}

// SheetInfo summarizes one sheet.
type SheetInfo struct {
	Name      string `json:"name"`
	CellCount int    `json:"cell_count"`
}

// WorkbookDescribeResult summarizes the workbook's sheets, settings,
// named ranges, and currency table.
type WorkbookDescribeResult struct {
	Name              string            `json:"name"`
	DisplayPreference string            `json:"display_preference"`
	Sheets            []SheetInfo       `json:"sheets"`
	NamedRanges       map[string]string `json:"named_ranges,omitempty"`
	ReferenceCurrency string            `json:"reference_currency"`
	Currencies        []RateInfo        `json:"currencies"`
}

func workbookDescribeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "workbook_describe",
		Description: "Describes the workbook: sheets, display preference, named ranges, currency rates",
	}
}

func (s *Server) workbookDescribeHandler() mcp.ToolHandlerFor[WorkbookDescribeInput, WorkbookDescribeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ WorkbookDescribeInput) (*mcp.CallToolResult, WorkbookDescribeResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		result := WorkbookDescribeResult{
			Name:              s.wb.Name(),
			DisplayPreference: s.wb.DisplayPreference().String(),
			ReferenceCurrency: s.wb.Rates().Reference(),
		}
		for _, name := range s.wb.SheetNames() {
			sheet, err := s.wb.Sheet(name)
			if err != nil {
				continue
			}
			result.Sheets = append(result.Sheets, SheetInfo{Name: name, CellCount: sheet.CellCount()})
		}
		names := s.wb.NamedRanges()
		if len(names) > 0 {
			result.NamedRanges = make(map[string]string, len(names))
			for name, bounds := range names {
				result.NamedRanges[name] = bounds.String()
			}
		}
		for _, code := range s.wb.Rates().Codes() {
			rate, provenance, ok := s.wb.Rates().Rate(code)
			if !ok {
				continue
			}
			result.Currencies = append(result.Currencies, RateInfo{
				Code: code, Rate: rate, Provenance: string(provenance),
			})
		}
		return nil, result, nil
	}
}

// CurrencyRateUpdateInput sets one currency's rate against the
// reference currency.
type CurrencyRateUpdateInput struct {
	Code string  `json:"code" jsonschema:"currency code, like EUR"`
	Rate float64 `json:"rate" jsonschema:"units of this currency per reference unit, must be positive"`
}

func currencyRateUpdateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "currency_rate_update",
		Description: "Updates a currency rate (marked manual) and recalculates the workbook",
	}
}

func (s *Server) currencyRateUpdateHandler() mcp.ToolHandlerFor[CurrencyRateUpdateInput, RateInfo] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CurrencyRateUpdateInput) (*mcp.CallToolResult, RateInfo, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.wb.UpdateCurrencyRate(input.Code, input.Rate, engine.RateManual); err != nil {
			return nil, RateInfo{}, fmt.Errorf("currency_rate_update %s=%s: %w",
				input.Code, strconv.FormatFloat(input.Rate, 'g', -1, 64), err)
		}
		s.saveIfEnabled()
		return nil, RateInfo{
			Code: input.Code, Rate: input.Rate, Provenance: string(engine.RateManual),
		}, nil
	}
}
