package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"oscheck/internal/util"
)

// normalizeValue prepares a cell or extracted value for comparison. Numbers
// pass through; anything else is stringified and trimmed, and blank becomes nil.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *string:
		if t == nil {
			return nil
		}
		return normalizeValue(*t)
	case float64, float32, int, int64, int32:
		return t
	case json.Number:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		return s
	default:
		s := strings.TrimSpace(fmt.Sprint(t))
		if s == "" {
			return nil
		}
		return s
	}
}

// valueString renders a normalized value for string rules.
func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return util.FormatNumber(t)
	case float32:
		return util.FormatNumber(float64(t))
	default:
		return fmt.Sprint(t)
	}
}

// rawValue is the value as read from its source, for difference reports.
func rawValue(v any) any {
	if p, ok := v.(*string); ok {
		if p == nil {
			return nil
		}
		return *p
	}
	return v
}
