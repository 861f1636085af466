package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"oscheck/internal"
)

var fieldAliases = map[string]internal.Field{
	"placa":    internal.FieldPlate,
	"plate":    internal.FieldPlate,
	"modelo":   internal.FieldModel,
	"model":    internal.FieldModel,
	"ano":      internal.FieldYear,
	"year":     internal.FieldYear,
	"km_atual": internal.FieldOdometer,
	"km":       internal.FieldOdometer,
	"odometer": internal.FieldOdometer,
	"chassi":   internal.FieldChassis,
	"chassis":  internal.FieldChassis,
}

// ParseField accepts a field key or its English alias.
func ParseField(name string) (internal.Field, bool) {
	f, ok := fieldAliases[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// mappingSchema constrains a mapping document to known field keys with
// string (or empty) column names.
var mappingSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	keys := make([]string, 0, len(fieldAliases))
	for k := range fieldAliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc, err := json.Marshal(map[string]any{
		"type":                 "object",
		"propertyNames":        map[string]any{"enum": keys},
		"additionalProperties": map[string]any{"type": []string{"string", "null"}},
	})
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mapping.json", bytes.NewReader(doc)); err != nil {
		return nil, err
	}
	return compiler.Compile("mapping.json")
})

// ParseColumnMapping reads a YAML (or JSON) object of field -> column name.
// Unknown keys are an error; blank column names are ignored. Keys are case
// insensitive and a field may be named once, so "placa" and "plate" with
// columns both set is an error.
func ParseColumnMapping(content []byte) (internal.ColumnMapping, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parse column mapping: %w", err)
	}
	doc := make(map[string]any, len(raw))
	for key, column := range raw {
		k := strings.ToLower(strings.TrimSpace(key))
		if _, dup := doc[k]; dup {
			return nil, fmt.Errorf("invalid column mapping: key %q repeated", k)
		}
		doc[k] = column
	}

	schema, err := mappingSchema()
	if err != nil {
		return nil, fmt.Errorf("compile mapping schema: %w", err)
	}
	// Round trip through JSON so the validator sees JSON value types.
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse column mapping: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parse column mapping: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("invalid column mapping: %w", err)
	}

	mapping := internal.ColumnMapping{}
	setBy := map[internal.Field]string{}
	for key, column := range doc {
		name, _ := column.(string)
		if strings.TrimSpace(name) == "" {
			continue
		}
		field, _ := ParseField(key)
		if other, dup := setBy[field]; dup {
			a, b := other, key
			if b < a {
				a, b = b, a
			}
			return nil, fmt.Errorf("invalid column mapping: %q and %q both set field %s", a, b, field)
		}
		setBy[field] = key
		mapping[field] = strings.TrimSpace(name)
	}
	return mapping, nil
}

// LoadColumnMapping reads a mapping file. An empty path is no mapping.
func LoadColumnMapping(path string) (internal.ColumnMapping, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseColumnMapping(content)
}
