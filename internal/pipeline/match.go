package pipeline

import (
	"math"
	"sort"
	"strings"

	"oscheck/internal"
	"oscheck/internal/util"
)

// OdometerTolerance is the relative difference below which two odometer
// readings are considered the same vehicle visit.
const OdometerTolerance = 0.10

// fieldRule scores one match field. compare receives normalized, non-nil values
// with the reference cell first.
type fieldRule struct {
	field   internal.Field
	weight  int
	compare func(excel, pdf any) (matched, comparable bool)
}

var fieldRules = []fieldRule{
	{field: internal.FieldPlate, weight: 5, compare: equalFold},
	{field: internal.FieldModel, weight: 3, compare: containsEitherWay},
	{field: internal.FieldYear, weight: 2, compare: equalString},
	{field: internal.FieldOdometer, weight: 1, compare: withinTolerance},
	{field: internal.FieldChassis, weight: 2, compare: equalFold},
}

// MaxScore is the total of a row that agrees on every field.
var MaxScore = func() int {
	total := 0
	for _, r := range fieldRules {
		total += r.weight
	}
	return total
}()

func equalFold(excel, pdf any) (bool, bool) {
	return strings.EqualFold(valueString(excel), valueString(pdf)), true
}

func equalString(excel, pdf any) (bool, bool) {
	return valueString(excel) == valueString(pdf), true
}

func containsEitherWay(excel, pdf any) (bool, bool) {
	e := strings.ToLower(valueString(excel))
	p := strings.ToLower(valueString(pdf))
	return strings.Contains(p, e) || strings.Contains(e, p), true
}

// withinTolerance compares odometer readings relative to the reference value.
// Readings that do not parse are not comparable.
func withinTolerance(excel, pdf any) (bool, bool) {
	ev, ok := util.ParseLocaleNumber(excel)
	if !ok {
		return false, false
	}
	pv, ok := util.ParseLocaleNumber(pdf)
	if !ok {
		return false, false
	}
	return math.Abs(ev-pv)/math.Max(1, ev) < OdometerTolerance, true
}

// RowScore is the outcome of scoring one reference row.
type RowScore struct {
	RowIndex    int
	Row         internal.ReferenceRow
	Total       int
	FieldScores map[internal.Field]internal.FieldScore
	Mismatches  []internal.Difference
}

// ScoreRows scores every row against the record and returns them best first.
// Rows with equal totals keep their input order.
func ScoreRows(record internal.StructuredRecord, rows []internal.ReferenceRow, colMap internal.ColumnMap) []RowScore {
	scored := make([]RowScore, 0, len(rows))
	for i, row := range rows {
		scored = append(scored, scoreRow(record.Vehicle, i, row, colMap))
	}
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Total > scored[b].Total
	})
	return scored
}

func scoreRow(vehicle internal.Vehicle, index int, row internal.ReferenceRow, colMap internal.ColumnMap) RowScore {
	rs := RowScore{
		RowIndex:    index,
		Row:         row,
		FieldScores: make(map[internal.Field]internal.FieldScore, len(fieldRules)),
		Mismatches:  []internal.Difference{},
	}
	for _, rule := range fieldRules {
		fs := internal.FieldScore{Max: rule.weight}

		var excelRaw any
		if col, ok := colMap[rule.field]; ok {
			excelRaw = row[col]
		}
		pdfRaw := vehicle.Value(rule.field)

		ev := normalizeValue(excelRaw)
		pv := normalizeValue(pdfRaw)
		if ev != nil && pv != nil {
			matched, comparable := rule.compare(ev, pv)
			switch {
			case matched:
				fs.Score = rule.weight
				fs.Matched = true
			case comparable:
				rs.Mismatches = append(rs.Mismatches, internal.Difference{
					Field:      rule.field,
					ExcelValue: rawValue(excelRaw),
					PDFValue:   rawValue(pdfRaw),
				})
			}
		}
		rs.Total += fs.Score
		rs.FieldScores[rule.field] = fs
	}
	return rs
}
