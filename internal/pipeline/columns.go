package pipeline

import (
	"strings"

	"oscheck/internal"
)

var columnKeywords = map[internal.Field][]string{
	internal.FieldPlate:    {"placa"},
	internal.FieldModel:    {"modelo", "carro", "veiculo"},
	internal.FieldYear:     {"ano"},
	internal.FieldOdometer: {"km", "quilom", "hod", "hodomet"},
	internal.FieldChassis:  {"chassi"},
}

// ResolveColumns decides which column holds each match field. An explicit
// mapping wins when its column exists (compared case-insensitively); the
// remaining fields take the first column whose lower-cased name contains one
// of the field's keywords. A column may serve more than one field.
func ResolveColumns(columns []string, mapping internal.ColumnMapping) internal.ColumnMap {
	resolved := internal.ColumnMap{}

	for _, field := range internal.MatchFields {
		target := strings.TrimSpace(mapping[field])
		if target == "" {
			continue
		}
		for _, col := range columns {
			if strings.EqualFold(col, target) {
				resolved[field] = col
				break
			}
		}
	}

	for _, field := range internal.MatchFields {
		if _, ok := resolved[field]; ok {
			continue
		}
		for _, col := range columns {
			if containsAny(strings.ToLower(col), columnKeywords[field]) {
				resolved[field] = col
				break
			}
		}
	}
	return resolved
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
