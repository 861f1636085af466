package pipeline

import (
	"regexp"
	"strings"

	"oscheck/internal"
	"oscheck/internal/util"
)

// Keys of the values a template can pull out of a document.
const (
	keyPlate         = "plate"
	keyBrand         = "brand"
	keyModel         = "model"
	keyYear          = "year"
	keyOdometer      = "odometer"
	keyChassis       = "chassis"
	keyOrderType     = "order_type"
	keyStatus        = "status"
	keyTechnician    = "technician"
	keyPartsTotal    = "parts_total"
	keyServicesTotal = "services_total"
	keyOrderTotal    = "order_total"
)

// Pattern is one labeled regular expression with a single capture group. Clean,
// when set, post-processes the captured value.
type Pattern struct {
	re    *regexp.Regexp
	clean func(string) string
	// free-text captures can run into the next "Label:" on the same line.
	freeText bool
}

func pattern(expr string, clean ...func(string) string) Pattern {
	p := Pattern{re: regexp.MustCompile(`(?i)` + expr)}
	if len(clean) > 0 {
		p.clean = clean[0]
	}
	return p
}

func freeText(expr string) Pattern {
	p := pattern(expr)
	p.freeText = true
	return p
}

func (p Pattern) find(text string) *string {
	m := p.re.FindStringSubmatchIndex(text)
	if len(m) < 4 || m[2] < 0 {
		return nil
	}
	value := text[m[2]:m[3]]
	if p.freeText {
		value = trimTrailingLabel(value, text[m[3]:])
	}
	if p.clean != nil {
		value = p.clean(value)
	}
	return util.TrimmedPtr(value)
}

// Rule lists the fallback patterns for one value in priority order.
type Rule struct {
	Key      string
	Patterns []Pattern
}

type Template struct {
	Source internal.SourceType
	// Signatures are lower-case, accent-free substrings; none means catch-all.
	Signatures    []string
	Rules         []Rule
	LineItems     bool
	OrderMetadata bool
}

func (t Template) matches(folded string) bool {
	if len(t.Signatures) == 0 {
		return true
	}
	for _, sig := range t.Signatures {
		if strings.Contains(folded, sig) {
			return true
		}
	}
	return false
}

// firstMatch returns the first non-absent capture of the ordered patterns.
func firstMatch(text string, patterns []Pattern) *string {
	for _, p := range patterns {
		if v := p.find(text); v != nil {
			return v
		}
	}
	return nil
}

// labelWords are the field labels seen on service orders.
var labelWords = map[string]struct{}{
	"placa": {}, "marca": {}, "modelo": {}, "ano": {}, "km": {}, "hodometro": {},
	"chassi": {}, "cor": {}, "combustivel": {}, "situacao": {}, "status": {},
	"colaborador": {}, "veiculo": {}, "total": {}, "pecas": {}, "servicos": {},
	"data": {}, "cliente": {}, "os": {}, "tipo": {}, "renavam": {}, "frota": {},
}

var labelConnectors = map[string]struct{}{"da": {}, "do": {}, "de": {}}

func isLabelWord(token string) bool {
	_, ok := labelWords[strings.Trim(util.FoldAccents(token), ".-")]
	return ok
}

// trimTrailingLabel drops the label swallowed at the end of a capture when
// rest continues with its colon: "Fiat Uno Ano" + ": 2018" gives "Fiat Uno".
// Label words inside the value are kept, so "Fiat Tipo 2.0" stays whole.
func trimTrailingLabel(value, rest string) string {
	if !strings.HasPrefix(strings.TrimLeft(rest, " \t"), ":") {
		return value
	}
	tokens := strings.Fields(value)
	n := len(tokens)
	if n == 0 || !isLabelWord(tokens[n-1]) {
		return value
	}
	n--
	// two-word labels such as "Total da OS"
	if n >= 2 {
		if _, ok := labelConnectors[strings.ToLower(tokens[n-1])]; ok && isLabelWord(tokens[n-2]) {
			n -= 2
		}
	}
	return strings.Join(tokens[:n], " ")
}

func trimSeparators(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), ".,")
}

const numberClass = `(\d[\d.,]*)`

// DefaultTemplates returns the vendor template followed by the generic catch-all.
// Selection walks the list in order, so vendor templates go before generic.
func DefaultTemplates() []Template {
	return []Template{BoschPreventiveTemplate(), GenericTemplate()}
}

func BoschPreventiveTemplate() Template {
	return Template{
		Source:        internal.SourceBoschPreventive,
		Signatures:    []string{"bosch", "ordem bosch", "preventiva"},
		LineItems:     true,
		OrderMetadata: true,
		Rules: []Rule{
			{Key: keyPlate, Patterns: []Pattern{
				pattern(`PLACA:\s*([A-Z0-9-]{4,8})`),
				pattern(`Ve[íi]culo:\s*([A-Z0-9-]+)`),
			}},
			{Key: keyBrand, Patterns: []Pattern{
				pattern(`\bMarca:\s*([A-Z0-9-]+)`),
			}},
			{Key: keyModel, Patterns: []Pattern{
				freeText(`\bModelo:\s*([A-Z0-9 .-]+)`),
				freeText(`Ve[íi]culo:\s*[A-Z0-9-]+\s*-\s*([A-Z0-9 .-]+)`),
			}},
			{Key: keyYear, Patterns: []Pattern{
				pattern(`\bAno:\s*(\d{4})\b`),
			}},
			{Key: keyOdometer, Patterns: []Pattern{
				pattern(`\bKM:?\s*`+numberClass, trimSeparators),
				pattern(`Hod[oô]metro:?\s*`+numberClass, trimSeparators),
			}},
			{Key: keyChassis, Patterns: []Pattern{
				pattern(`CHASSI:?\s*([A-Z0-9]+)`),
			}},
			{Key: keyOrderType, Patterns: []Pattern{
				pattern(`\b(Preventiva|Corretiva)\b`),
			}},
			{Key: keyStatus, Patterns: []Pattern{
				freeText(`Situa[cç][aã]o:?\s*([\p{L}0-9 -]+)`),
				freeText(`\bStatus:?\s*([\p{L}0-9 -]+)`),
			}},
			{Key: keyTechnician, Patterns: []Pattern{
				freeText(`Colaborador:?\s*([\p{L} .-]+)`),
			}},
			{Key: keyPartsTotal, Patterns: []Pattern{
				pattern(`Pe[cç]as?:?\s*R\$\s*`+numberClass, trimSeparators),
				pattern(`pecas[:\s]*`+numberClass, trimSeparators),
			}},
			{Key: keyServicesTotal, Patterns: []Pattern{
				pattern(`Servi[cç]os?:?\s*R\$\s*`+numberClass, trimSeparators),
				pattern(`servi[cç]os[:\s]*`+numberClass, trimSeparators),
			}},
			{Key: keyOrderTotal, Patterns: []Pattern{
				pattern(`Total\s*da\s*OS:?\s*R\$\s*`+numberClass, trimSeparators),
				pattern(`os_total[:\s]*(?:R\$)?\s*`+numberClass, trimSeparators),
			}},
		},
	}
}

func GenericTemplate() Template {
	return Template{
		Source: internal.SourceGeneric,
		Rules: []Rule{
			{Key: keyPlate, Patterns: []Pattern{
				pattern(`PLACA:\s*([A-Z0-9-]{5,7})`),
				pattern(`Ve[íi]culo:\s*([A-Z0-9-]+)`),
			}},
			{Key: keyModel, Patterns: []Pattern{
				freeText(`MODELO\s*VE[ÍI]CULO:\s*([A-Z0-9 .-]+)`),
				freeText(`\bModelo:\s*([A-Z0-9 -]+)`),
				freeText(`Ve[íi]culo:\s*[A-Z0-9-]+\s*-\s*([A-Z0-9 ]+)`),
			}},
			{Key: keyYear, Patterns: []Pattern{
				pattern(`\bAno:\s*(\d{4})\b`),
				pattern(`ANO\s*VE[ÍI]CULO:\s*(\d{4})\b`),
			}},
			{Key: keyOdometer, Patterns: []Pattern{
				pattern(`\bKM:?\s*`+numberClass, trimSeparators),
				pattern(`Quilometragem do Ve[íi]culo:\s*`+numberClass, trimSeparators),
				pattern(`KM\s*ATUAL:\s*`+numberClass, trimSeparators),
			}},
			{Key: keyChassis, Patterns: []Pattern{
				pattern(`CHASSI:?\s*([A-Z0-9]+)`),
			}},
			{Key: keyOrderTotal, Patterns: []Pattern{
				pattern(`Total\s*da\s*OS:\s*R\$\s*`+numberClass, trimSeparators),
				pattern(`os_total\s*R\$\s*`+numberClass, trimSeparators),
			}},
		},
	}
}
