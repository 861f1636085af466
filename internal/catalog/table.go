package catalog

import (
	"fmt"
	"strings"

	"oscheck/internal"
)

// TableFromGrid turns a grid of cells into a reference table. The first row
// with any content is the header; blank header cells drop their column and
// repeated names get a numeric suffix. Empty cells are left out of rows and
// rows without values are skipped.
func TableFromGrid(grid [][]any) internal.ReferenceTable {
	table := internal.ReferenceTable{Columns: []string{}, Rows: []internal.ReferenceRow{}}

	headerAt := -1
	for i, row := range grid {
		if !blankRow(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return table
	}

	headers := make([]string, len(grid[headerAt]))
	seen := map[string]int{}
	for i, cell := range grid[headerAt] {
		name := cellString(cell)
		if name == "" {
			continue
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			seen[name] = 1
		}
		headers[i] = name
		table.Columns = append(table.Columns, name)
	}

	for _, cells := range grid[headerAt+1:] {
		row := internal.ReferenceRow{}
		for i, cell := range cells {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			if v := cellValue(cell); v != nil {
				row[headers[i]] = v
			}
		}
		if len(row) > 0 {
			table.Rows = append(table.Rows, row)
		}
	}
	return table
}

func blankRow(row []any) bool {
	for _, cell := range row {
		if cellString(cell) != "" {
			return false
		}
	}
	return true
}

func cellString(cell any) string {
	if cell == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(cell))
}

// cellValue keeps numbers as float64 and everything else as text.
func cellValue(cell any) any {
	switch t := cell.(type) {
	case nil:
		return nil
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return t
	default:
		if s := cellString(t); s != "" {
			return s
		}
		return nil
	}
}
