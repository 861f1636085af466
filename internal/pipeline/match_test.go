package pipeline

import (
	"testing"

	"oscheck/internal"
)

func sp(v string) *string { return &v }

var vehicleColumns = []string{"Placa", "Modelo", "Ano", "KM", "Chassi"}

func unoRecord() internal.StructuredRecord {
	return internal.StructuredRecord{
		SourceType: internal.SourceBoschPreventive,
		Vehicle: internal.Vehicle{
			Plate:    sp("ABC1234"),
			Model:    sp("Fiat Uno"),
			Year:     sp("2018"),
			Odometer: sp("12000"),
			Chassis:  sp("CHASSI123"),
		},
	}
}

func unoRow() internal.ReferenceRow {
	return internal.ReferenceRow{"Placa": "ABC1234", "Modelo": "Fiat Uno", "Ano": "2018", "KM": "12000", "Chassi": "CHASSI123"}
}

func TestCompareExactMatch(t *testing.T) {
	report := Compare(unoRecord(), []internal.ReferenceRow{unoRow()}, vehicleColumns, nil)
	if report.MatchScore != 13 || report.MatchScore != MaxScore {
		t.Fatalf("score=%d", report.MatchScore)
	}
	if report.BestRowIndex == nil || *report.BestRowIndex != 0 {
		t.Fatalf("best row: %v", report.BestRowIndex)
	}
	for _, f := range internal.MatchFields {
		if !report.FieldScores[f].Matched {
			t.Fatalf("field %s not matched: %+v", f, report.FieldScores)
		}
	}
	if len(report.SampleDifferences) != 0 {
		t.Fatalf("unexpected differences: %+v", report.SampleDifferences)
	}
	if report.ComparisonNote != "Melhor correspondência na linha 1 (score 13)" {
		t.Fatalf("note: %q", report.ComparisonNote)
	}
}

func TestComparePlateMismatch(t *testing.T) {
	rec := unoRecord()
	rec.Vehicle.Plate = sp("ABC123X")
	report := Compare(rec, []internal.ReferenceRow{unoRow()}, vehicleColumns, nil)
	if report.MatchScore != 8 {
		t.Fatalf("score=%d", report.MatchScore)
	}
	if len(report.SampleDifferences) != 1 {
		t.Fatalf("differences: %+v", report.SampleDifferences)
	}
	d := report.SampleDifferences[0]
	if d.Field != "placa" || d.ExcelValue != "ABC1234" || d.PDFValue != "ABC123X" {
		t.Fatalf("difference: %+v", d)
	}
}

func TestCompareSingleMismatchCostsItsWeight(t *testing.T) {
	cases := []struct {
		field  internal.Field
		mutate func(*internal.Vehicle)
		weight int
	}{
		{internal.FieldPlate, func(v *internal.Vehicle) { v.Plate = sp("ZZZ0000") }, 5},
		{internal.FieldModel, func(v *internal.Vehicle) { v.Model = sp("Palio") }, 3},
		{internal.FieldYear, func(v *internal.Vehicle) { v.Year = sp("2019") }, 2},
		{internal.FieldOdometer, func(v *internal.Vehicle) { v.Odometer = sp("50000") }, 1},
		{internal.FieldChassis, func(v *internal.Vehicle) { v.Chassis = sp("OUTRO999") }, 2},
	}
	for _, tc := range cases {
		t.Run(string(tc.field), func(t *testing.T) {
			rec := unoRecord()
			tc.mutate(&rec.Vehicle)
			report := Compare(rec, []internal.ReferenceRow{unoRow()}, vehicleColumns, nil)
			if report.MatchScore != MaxScore-tc.weight {
				t.Fatalf("score=%d want %d", report.MatchScore, MaxScore-tc.weight)
			}
			if len(report.SampleDifferences) != 1 || report.SampleDifferences[0].Field != tc.field {
				t.Fatalf("differences: %+v", report.SampleDifferences)
			}
			fs := report.FieldScores[tc.field]
			if fs.Matched || fs.Score != 0 || fs.Max != tc.weight {
				t.Fatalf("field score: %+v", fs)
			}
		})
	}
}

func TestCompareModelSubstring(t *testing.T) {
	rec := unoRecord()
	rec.Vehicle.Model = sp("Uno")
	row := unoRow()
	row["Modelo"] = "Fiat Uno 1.0"
	report := Compare(rec, []internal.ReferenceRow{row}, vehicleColumns, nil)
	if !report.FieldScores[internal.FieldModel].Matched {
		t.Fatalf("model should match: %+v", report.FieldScores)
	}
	if report.MatchScore != 13 {
		t.Fatalf("score=%d", report.MatchScore)
	}

	rec.Vehicle.Model = sp("FIAT UNO 1.0 FIRE")
	report = Compare(rec, []internal.ReferenceRow{row}, vehicleColumns, nil)
	if !report.FieldScores[internal.FieldModel].Matched {
		t.Fatal("reference contained in extracted value should match")
	}
}

func TestCompareEmptyTable(t *testing.T) {
	report := Compare(unoRecord(), nil, vehicleColumns, nil)
	if report.BestRowIndex != nil || report.BestRowData != nil {
		t.Fatalf("unexpected best row: %+v", report)
	}
	if report.MatchScore != 0 || report.TotalRows != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.ComparisonNote != "Nenhuma correspondência encontrada" {
		t.Fatalf("note: %q", report.ComparisonNote)
	}
	if report.FieldScores == nil || len(report.FieldScores) != 0 {
		t.Fatalf("field scores: %+v", report.FieldScores)
	}
}

func TestCompareOdometerTolerance(t *testing.T) {
	cases := []struct {
		extracted string
		matched   bool
	}{
		{"13100", true},
		{"13300", false},
		{"13200", false},
		{"13199", true},
		{"11.000", true},
		{"10.800", false},
	}
	for _, tc := range cases {
		t.Run(tc.extracted, func(t *testing.T) {
			rec := unoRecord()
			rec.Vehicle.Odometer = sp(tc.extracted)
			report := Compare(rec, []internal.ReferenceRow{unoRow()}, vehicleColumns, nil)
			if got := report.FieldScores[internal.FieldOdometer].Matched; got != tc.matched {
				t.Fatalf("matched=%v want %v", got, tc.matched)
			}
		})
	}
}

func TestCompareOdometerUnparsableIsUnknown(t *testing.T) {
	row := unoRow()
	row["KM"] = "doze mil"
	report := Compare(unoRecord(), []internal.ReferenceRow{row}, vehicleColumns, nil)
	if report.MatchScore != 12 || len(report.SampleDifferences) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestCompareAbsentFieldsAreNeutral(t *testing.T) {
	rec := unoRecord()
	rec.Vehicle.Year = nil
	row := unoRow()
	delete(row, "Placa")
	row["Chassi"] = "   "
	report := Compare(rec, []internal.ReferenceRow{row}, vehicleColumns, nil)
	if report.MatchScore != 4 {
		t.Fatalf("score=%d", report.MatchScore)
	}
	if len(report.SampleDifferences) != 0 {
		t.Fatalf("absent values must not be reported: %+v", report.SampleDifferences)
	}
	for _, f := range []internal.Field{internal.FieldPlate, internal.FieldYear, internal.FieldChassis} {
		fs := report.FieldScores[f]
		if fs.Matched || fs.Score != 0 || fs.Max == 0 {
			t.Fatalf("field %s: %+v", f, fs)
		}
	}
}

func TestCompareNumericCells(t *testing.T) {
	row := unoRow()
	row["Ano"] = float64(2018)
	row["KM"] = 12500.0
	report := Compare(unoRecord(), []internal.ReferenceRow{row}, vehicleColumns, nil)
	if report.MatchScore != 13 {
		t.Fatalf("score=%d scores=%+v", report.MatchScore, report.FieldScores)
	}
}

func TestCompareRanking(t *testing.T) {
	other := internal.ReferenceRow{"Placa": "XYZ9999", "Modelo": "Gol", "Ano": "2010", "KM": "90000", "Chassi": "OUTRO"}
	report := Compare(unoRecord(), []internal.ReferenceRow{other, unoRow()}, vehicleColumns, nil)
	if report.BestRowIndex == nil || *report.BestRowIndex != 1 {
		t.Fatalf("best row: %v", report.BestRowIndex)
	}
	if report.TotalRows != 2 || report.ComparisonNote != "Melhor correspondência na linha 2 (score 13)" {
		t.Fatalf("unexpected report: %+v", report)
	}

	first := unoRow()
	second := unoRow()
	second["Chassi"] = "OUTRO"
	first["Chassi"] = "OUTRO"
	report = Compare(unoRecord(), []internal.ReferenceRow{first, second}, vehicleColumns, nil)
	if *report.BestRowIndex != 0 {
		t.Fatalf("ties must keep input order, got %d", *report.BestRowIndex)
	}
}

func TestScoreRowsOrder(t *testing.T) {
	weak := internal.ReferenceRow{"Placa": "ABC1234"}
	none := internal.ReferenceRow{}
	rows := []internal.ReferenceRow{none, weak, unoRow()}
	ranked := ScoreRows(unoRecord(), rows, ResolveColumns(vehicleColumns, nil))
	want := []int{2, 1, 0}
	for i, rs := range ranked {
		if rs.RowIndex != want[i] {
			t.Fatalf("rank %d: row %d want %d", i, rs.RowIndex, want[i])
		}
	}
	if ranked[1].Total != 5 || ranked[2].Total != 0 {
		t.Fatalf("totals: %d %d", ranked[1].Total, ranked[2].Total)
	}
}

func TestAssembleReportCapsDifferences(t *testing.T) {
	diffs := make([]internal.Difference, 0, 12)
	for i := 0; i < 12; i++ {
		diffs = append(diffs, internal.Difference{Field: internal.FieldPlate, ExcelValue: i, PDFValue: "x"})
	}
	report := AssembleReport(3, []RowScore{{RowIndex: 2, Total: 1, Mismatches: diffs, FieldScores: map[internal.Field]internal.FieldScore{}}})
	if len(report.SampleDifferences) != 10 {
		t.Fatalf("got %d differences", len(report.SampleDifferences))
	}
	if report.SampleDifferences[9].ExcelValue != 9 {
		t.Fatalf("differences must keep order: %+v", report.SampleDifferences[9])
	}
	if report.TotalRows != 3 || *report.BestRowIndex != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
