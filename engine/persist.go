package engine

import (
	"encoding/json"
	"fmt"
	"os"
)

// DocumentVersion is the on-disk format version. Readers reject
// versions they do not know.
const DocumentVersion = 1

type documentFile struct {
	Version     int                     `json:"version"`
	Name        string                  `json:"name"`
	Display     string                  `json:"display"`
	Sheets      []sheetFile             `json:"sheets"`
	NamedRanges map[string]string       `json:"named_ranges,omitempty"`
	Rates       map[string]RateSnapshot `json:"rates,omitempty"`
}

type sheetFile struct {
	Name  string     `json:"name"`
	Cells []cellFile `json:"cells"`
}

// cellFile stores the raw input, so formulas re-parse on load and the
// computed values are rebuilt by recalculation. Value and unit are
// written for human inspection only.
type cellFile struct {
	Ref         string `json:"ref"`
	Input       string `json:"input"`
	DisplayUnit string `json:"display_unit,omitempty"`
	Value       string `json:"value,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

// MarshalDocument serializes a workbook to the versioned JSON format.
func MarshalDocument(wb *Workbook) ([]byte, error) {
	doc := documentFile{
		Version: DocumentVersion,
		Name:    wb.Name(),
		Display: wb.DisplayPreference().String(),
		Rates:   wb.Rates().Snapshot(),
	}

	names := wb.NamedRanges()
	if len(names) > 0 {
		doc.NamedRanges = make(map[string]string, len(names))
		for name, bounds := range names {
			doc.NamedRanges[name] = bounds.String()
		}
	}

	for _, sheetName := range wb.SheetNames() {
		sheet := wb.sheets[sheetName]
		sf := sheetFile{Name: sheetName, Cells: []cellFile{}}
		for _, addr := range sheet.Addresses() {
			cell := sheet.Get(addr.Row, addr.Col)
			cf := cellFile{
				Ref:     addr.Local(),
				Input:   cell.Source,
				Value:   wb.DisplayString(addr),
				Warning: cell.Warning,
			}
			if !cell.StorageUnit.IsDimensionless() {
				cf.Unit = cell.StorageUnit.Symbol()
			}
			if cell.DisplayUnit != nil {
				cf.DisplayUnit = cell.DisplayUnit.Symbol()
			}
			sf.Cells = append(sf.Cells, cf)
		}
		doc.Sheets = append(doc.Sheets, sf)
	}

	return json.MarshalIndent(doc, "", "  ")
}

// LoadDocument rebuilds a workbook from its JSON form. All formulas
// re-parse and recalculate, so computed values never go stale across a
// format change.
func LoadDocument(data []byte) (*Workbook, error) {
	var doc documentFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("malformed document: %v", err))
	}
	if doc.Version != DocumentVersion {
		return nil, NewApplicationError(FailedPrecondition,
			fmt.Sprintf("unsupported document version %d", doc.Version))
	}

	wb := NewWorkbook(doc.Name)
	if pref, err := ParseDisplayPreference(doc.Display); err == nil {
		wb.SetDisplayPreference(pref)
	}

	wb.rates.Restore(doc.Rates)
	for code := range doc.Rates {
		wb.registry.RegisterCurrency(code)
	}

	for _, sf := range doc.Sheets {
		if _, exists := wb.sheets[sf.Name]; !exists {
			if err := wb.AddSheet(sf.Name); err != nil {
				return nil, err
			}
		}
	}

	for name, boundsText := range doc.NamedRanges {
		bounds, err := ParseRangeAddress(boundsText, wb.defaultSheet())
		if err != nil {
			return nil, err
		}
		if err := wb.DefineNamedRange(name, bounds); err != nil {
			return nil, err
		}
	}

	// two passes: literals first so formulas see their precedents
	for pass := 0; pass < 2; pass++ {
		for _, sf := range doc.Sheets {
			for _, cf := range sf.Cells {
				isFormula := len(cf.Input) > 0 && cf.Input[0] == '='
				if (pass == 0) == isFormula {
					continue
				}
				addr, err := ParseCellAddress(cf.Ref, sf.Name)
				if err != nil {
					return nil, err
				}
				addr.Sheet = sf.Name
				if err := wb.SetCell(addr, cf.Input); err != nil {
					return nil, err
				}
				if cf.DisplayUnit != "" {
					unit, perr := wb.registry.ParseUnit(cf.DisplayUnit)
					if perr == nil {
						cell := wb.sheets[sf.Name].Get(addr.Row, addr.Col)
						if cell != nil {
							cell.DisplayUnit = &unit
						}
					}
				}
			}
		}
	}

	wb.Recalculate()
	return wb, nil
}

// SaveFile writes the workbook to a file.
func SaveFile(wb *Workbook, path string) error {
	data, err := MarshalDocument(wb)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadFile reads a workbook from a file.
func LoadFile(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadDocument(data)
}
