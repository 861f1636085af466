package util

import (
	"math"
	"testing"
)

func TestParseLocaleNumber(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  float64
		ok    bool
	}{
		{name: "thousand dot", input: "12.000", want: 12000, ok: true},
		{name: "decimal comma", input: "1.234,5", want: 1234.5, ok: true},
		{name: "plain", input: "13100", want: 13100, ok: true},
		{name: "float passthrough", input: 13300.0, want: 13300, ok: true},
		{name: "int passthrough", input: 42, want: 42, ok: true},
		{name: "garbage", input: "doze mil", ok: false},
		{name: "blank", input: "  ", ok: false},
		{name: "nil", input: nil, ok: false},
		{name: "infinite", input: math.Inf(1), ok: false},
		{name: "inf string", input: "Inf", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLocaleNumber(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok=%v want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestParseLocaleDecimal(t *testing.T) {
	d := ParseLocaleDecimal("1.500,75")
	if d == nil || d.String() != "1500.75" {
		t.Fatalf("got %v", d)
	}
	if d := ParseLocaleDecimal("1,234.56"); d == nil || d.String() != "1.23456" {
		t.Fatalf("dot groups thousands in totals, got %v", d)
	}
	if ParseLocaleDecimal("R$") != nil {
		t.Fatal("unparsable must be nil")
	}
	if ParseLocaleDecimal("") != nil {
		t.Fatal("empty must be nil")
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		input string
		want  string
		ok    bool
	}{
		{input: "1.234,56", want: "1234.56", ok: true},
		{input: "123,45", want: "123.45", ok: true},
		{input: "1,234.56", want: "1234.56", ok: true},
		{input: "89.90", want: "89.9", ok: true},
		{input: "12,5", ok: false},
		{input: "abc", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, ok := ParseAmount(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok=%v want %v", ok, tc.ok)
			}
			if ok && got.String() != tc.want {
				t.Fatalf("got %s want %s", got.String(), tc.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(2018); got != "2018" {
		t.Fatalf("got %q", got)
	}
	if got := FormatNumber(12000.5); got != "12000.5" {
		t.Fatalf("got %q", got)
	}
}
