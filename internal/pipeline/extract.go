package pipeline

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"oscheck/internal"
	"oscheck/internal/util"
)

var lineItemPattern = regexp.MustCompile(`^(.+?)\s+(?:R\$\s*)?((?:\d{1,3}(?:[.,]\d{3})+|\d+)[.,]\d{2})\s*$`)

// Extractor turns page text into a StructuredRecord using the first template
// whose signature appears in the document.
type Extractor struct {
	templates []Template
}

// NewExtractor builds an extractor over templates, tried in order. With no
// templates it uses DefaultTemplates. A catch-all template is appended when
// none of the given ones is.
func NewExtractor(templates ...Template) *Extractor {
	if len(templates) == 0 {
		templates = DefaultTemplates()
	}
	hasCatchAll := false
	for _, t := range templates {
		if len(t.Signatures) == 0 {
			hasCatchAll = true
			break
		}
	}
	if !hasCatchAll {
		templates = append(append([]Template{}, templates...), GenericTemplate())
	}
	return &Extractor{templates: templates}
}

var defaultExtractor = NewExtractor()

// ExtractRecord runs the default templates over the pages of one document.
func ExtractRecord(pages []string) internal.StructuredRecord {
	return defaultExtractor.Extract(pages)
}

func (e *Extractor) Extract(pages []string) internal.StructuredRecord {
	raw := strings.Join(pages, "\n")
	text := util.NormalizeText(raw)
	tmpl := SelectTemplate(e.templates, text)
	return applyTemplate(tmpl, text, raw)
}

func applyTemplate(tmpl Template, text, raw string) internal.StructuredRecord {
	values := make(map[string]*string, len(tmpl.Rules))
	for _, rule := range tmpl.Rules {
		values[rule.Key] = firstMatch(text, rule.Patterns)
	}

	record := internal.StructuredRecord{
		SourceType: tmpl.Source,
		Vehicle: internal.Vehicle{
			Plate:    values[keyPlate],
			Brand:    values[keyBrand],
			Model:    values[keyModel],
			Year:     values[keyYear],
			Odometer: values[keyOdometer],
			Chassis:  values[keyChassis],
		},
		LineItems: []internal.LineItem{},
		Totals: internal.Totals{
			PartsTotal:    parseTotal(values[keyPartsTotal]),
			ServicesTotal: parseTotal(values[keyServicesTotal]),
			OrderTotal:    parseTotal(values[keyOrderTotal]),
		},
		RawText: text,
	}

	if tmpl.OrderMetadata {
		record.Order = &internal.OrderMetadata{
			OrderType:  values[keyOrderType],
			Status:     values[keyStatus],
			Technician: values[keyTechnician],
		}
	}
	if tmpl.LineItems {
		record.LineItems = extractLineItems(raw)
	}
	return record
}

// extractLineItems scans the multi-line text for lines ending in a monetary
// amount. Lines without one are skipped.
func extractLineItems(raw string) []internal.LineItem {
	items := []internal.LineItem{}
	// PDF text often separates the amount with U+00A0, which \s does not match.
	raw = strings.ReplaceAll(raw, "\u00a0", " ")
	for _, line := range util.SplitLines(raw) {
		m := lineItemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value, ok := util.ParseAmount(m[2])
		if !ok {
			continue
		}
		desc := util.CollapseSpaces(m[1])
		if desc == "" {
			continue
		}
		items = append(items, internal.LineItem{Description: desc, TotalValue: value})
	}
	return items
}

func parseTotal(v *string) *decimal.Decimal {
	if v == nil {
		return nil
	}
	return util.ParseLocaleDecimal(*v)
}
