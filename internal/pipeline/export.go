package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"oscheck/internal"
)

// ExportComparisonsToXLSX writes one row per comparison to the "comparisons"
// sheet and one row per reported difference to "differences".
func ExportComparisonsToXLSX(comparisons []internal.Comparison, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet, diffSheet = "comparisons", "differences"
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(diffSheet); err != nil {
		return err
	}

	headers := []any{"comparison_id", "created_at", "document", "sheet", "email_id", "best_row", "match_score", "max_score", "comparison_note"}
	for _, field := range internal.MatchFields {
		headers = append(headers, string(field)+"_matched")
	}
	if err := f.SetSheetRow(summarySheet, "A1", &headers); err != nil {
		return err
	}
	if err := f.SetSheetRow(diffSheet, "A1", &[]any{"comparison_id", "document", "field", "excel_value", "pdf_value"}); err != nil {
		return err
	}

	diffRow := 2
	for i, cmp := range comparisons {
		report := cmp.Report
		row := []any{cmp.ID, cmp.CreatedAt, cmp.DocumentName, cmp.SheetName, optionalInt(cmp.EmailID), bestRowNumber(report.BestRowIndex), report.MatchScore, MaxScore, report.ComparisonNote}
		for _, field := range internal.MatchFields {
			row = append(row, report.FieldScores[field].Matched)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}

		for _, d := range report.SampleDifferences {
			cell, _ := excelize.CoordinatesToCellName(1, diffRow)
			values := []any{cmp.ID, cmp.DocumentName, string(d.Field), cellText(d.ExcelValue), cellText(d.PDFValue)}
			if err := f.SetSheetRow(diffSheet, cell, &values); err != nil {
				return err
			}
			diffRow++
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func optionalInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

// bestRowNumber is 1-based for people reading the sheet.
func bestRowNumber(index *int) any {
	if index == nil {
		return ""
	}
	return *index + 1
}

func cellText(v any) any {
	if v == nil {
		return ""
	}
	if s, ok := normalizeValue(v).(string); ok {
		return s
	}
	return valueString(v)
}
