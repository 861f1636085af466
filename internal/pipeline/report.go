package pipeline

import (
	"fmt"

	"oscheck/internal"
)

const maxSampleDifferences = 10

const noMatchNote = "Nenhuma correspondência encontrada"

// AssembleReport summarizes ranked rows. The first entry of ranked is the best
// match; an empty ranking yields a report without a best row.
func AssembleReport(totalRows int, ranked []RowScore) internal.MatchReport {
	if len(ranked) == 0 {
		return internal.MatchReport{
			TotalRows:         totalRows,
			ComparisonNote:    noMatchNote,
			SampleDifferences: []internal.Difference{},
			FieldScores:       map[internal.Field]internal.FieldScore{},
		}
	}

	best := ranked[0]
	diffs := best.Mismatches
	if len(diffs) > maxSampleDifferences {
		diffs = diffs[:maxSampleDifferences]
	}
	index := best.RowIndex
	return internal.MatchReport{
		TotalRows:         totalRows,
		BestRowIndex:      &index,
		BestRowData:       best.Row,
		MatchScore:        best.Total,
		ComparisonNote:    fmt.Sprintf("Melhor correspondência na linha %d (score %d)", best.RowIndex+1, best.Total),
		SampleDifferences: append([]internal.Difference{}, diffs...),
		FieldScores:       best.FieldScores,
	}
}

// Compare matches an extracted record against a reference table.
func Compare(record internal.StructuredRecord, rows []internal.ReferenceRow, columns []string, mapping internal.ColumnMapping) internal.MatchReport {
	colMap := ResolveColumns(columns, mapping)
	return AssembleReport(len(rows), ScoreRows(record, rows, colMap))
}
