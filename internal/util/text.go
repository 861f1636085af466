package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces      = regexp.MustCompile(`\s+`)
	reMultiSpaces = regexp.MustCompile(`\s{2,}`)
	reLineBreaks  = regexp.MustCompile(`[\r\n]+`)
)

// NormalizeText turns page text into a single line: non-breaking spaces become
// spaces, line breaks and whitespace runs collapse to one space.
func NormalizeText(input string) string {
	s := strings.ReplaceAll(input, "\u00a0", " ")
	s = reLineBreaks.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CollapseSpaces squeezes runs of two or more whitespace characters.
func CollapseSpaces(input string) string {
	return strings.TrimSpace(reMultiSpaces.ReplaceAllString(input, " "))
}

// FoldAccents lower-cases and strips combining marks ("Situação" -> "situacao").
func FoldAccents(input string) string {
	// transform chains carry state, so each call builds its own.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(stripMarks, strings.ToLower(input))
	if err != nil {
		return strings.ToLower(input)
	}
	return out
}

func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TrimmedPtr returns nil for blank input, so absent values never look like "".
func TrimmedPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func StringPtr(v string) *string { return &v }

func IntPtr(v int) *int { return &v }

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
