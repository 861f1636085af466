package pipeline

import (
	"maps"
	"testing"

	"oscheck/internal"
)

func TestResolveColumns(t *testing.T) {
	cases := []struct {
		name    string
		columns []string
		mapping internal.ColumnMapping
		want    internal.ColumnMap
	}{
		{
			name:    "keywords in column order",
			columns: []string{"Placa", "Carro", "Ano Fab", "Ano Modelo", "Km Atual", "Chassi"},
			want: internal.ColumnMap{
				internal.FieldPlate:    "Placa",
				internal.FieldModel:    "Carro",
				internal.FieldYear:     "Ano Fab",
				internal.FieldOdometer: "Km Atual",
				internal.FieldChassis:  "Chassi",
			},
		},
		{
			name:    "first year column wins",
			columns: []string{"Ano Fab", "Ano Modelo"},
			want: internal.ColumnMap{
				internal.FieldYear:  "Ano Fab",
				internal.FieldModel: "Ano Modelo",
			},
		},
		{
			name:    "explicit mapping overrides keyword pick",
			columns: []string{"Placa", "Placa Antiga", "Modelo"},
			mapping: internal.ColumnMapping{internal.FieldPlate: "Placa Antiga"},
			want: internal.ColumnMap{
				internal.FieldPlate: "Placa Antiga",
				internal.FieldModel: "Modelo",
			},
		},
		{
			name:    "explicit mapping ignores case and keeps the sheet spelling",
			columns: []string{"Placa", "KM Atual"},
			mapping: internal.ColumnMapping{internal.FieldOdometer: " km atual "},
			want: internal.ColumnMap{
				internal.FieldPlate:    "Placa",
				internal.FieldOdometer: "KM Atual",
			},
		},
		{
			name:    "unknown explicit column falls back to keywords",
			columns: []string{"Placa"},
			mapping: internal.ColumnMapping{internal.FieldPlate: "Licenca", internal.FieldChassis: "VIN"},
			want:    internal.ColumnMap{internal.FieldPlate: "Placa"},
		},
		{
			name:    "explicit column can also serve a keyword field",
			columns: []string{"Placa", "Descricao Ano"},
			mapping: internal.ColumnMapping{internal.FieldModel: "Descricao Ano"},
			want: internal.ColumnMap{
				internal.FieldPlate: "Placa",
				internal.FieldModel: "Descricao Ano",
				internal.FieldYear:  "Descricao Ano",
			},
		},
		{
			name:    "no columns",
			columns: nil,
			want:    internal.ColumnMap{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveColumns(tc.columns, tc.mapping)
			if !maps.Equal(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}
