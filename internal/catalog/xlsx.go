package catalog

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"oscheck/internal"
)

// ReadXLSX reads a workbook sheet as a reference table. An empty sheetName
// reads the first sheet. Numeric cells become float64.
func ReadXLSX(content []byte, sheetName string) (internal.ReferenceTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return internal.ReferenceTable{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	} else if idx, err := f.GetSheetIndex(sheetName); err != nil || idx < 0 {
		return internal.ReferenceTable{}, fmt.Errorf("sheet not found: %s", sheetName)
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return internal.ReferenceTable{}, fmt.Errorf("read sheet %s: %w", sheetName, err)
	}

	grid := make([][]any, len(rows))
	for r, row := range rows {
		cells := make([]any, len(row))
		for c, value := range row {
			if value == "" {
				continue
			}
			cells[c] = value
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			typ, err := f.GetCellType(sheetName, name)
			if err != nil {
				continue
			}
			if typ == excelize.CellTypeNumber || typ == excelize.CellTypeUnset {
				if n, err := strconv.ParseFloat(value, 64); err == nil {
					cells[c] = n
				}
			}
		}
		grid[r] = cells
	}
	return TableFromGrid(grid), nil
}
