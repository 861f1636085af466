package util

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var reAmount = regexp.MustCompile(`^(?:\d{1,3}(?:[.,]\d{3})+|\d+)[.,]\d{2}$`)

// localeNumberString applies the pt-BR convention: '.' groups thousands and ','
// marks decimals.
func localeNumberString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, ",", ".")
}

// ParseLocaleNumber accepts numbers as-is and parses strings in pt-BR notation.
// The result is valid only when it is finite.
func ParseLocaleNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case int32:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		s := localeNumberString(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// ParseLocaleDecimal parses a pt-BR money string; unparsable input is nil, never zero.
// Order totals go through here, so "." always groups thousands and "1,234.56"
// reads as 1.23456. Line items use ParseAmount, which accepts either mark.
func ParseLocaleDecimal(s string) *decimal.Decimal {
	norm := localeNumberString(s)
	if norm == "" {
		return nil
	}
	d, err := decimal.NewFromString(norm)
	if err != nil {
		return nil
	}
	return &d
}

// ParseAmount parses a monetary amount with exactly two decimal digits. The
// separator before the cents is the decimal mark whichever it is; the others
// group thousands.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if !reAmount.MatchString(s) {
		return decimal.Decimal{}, false
	}
	intPart := s[:len(s)-3]
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	d, err := decimal.NewFromString(intPart + "." + s[len(s)-2:])
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// FormatNumber renders a number the way a spreadsheet cell shows it: no
// exponent, no trailing zeros.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
