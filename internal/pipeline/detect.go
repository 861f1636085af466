package pipeline

import (
	"strings"

	"oscheck/internal"
	"oscheck/internal/util"
)

// SelectTemplate picks the first template whose signature occurs in the
// normalized text. Templates without signatures match anything.
func SelectTemplate(templates []Template, text string) Template {
	folded := util.FoldAccents(text)
	for _, t := range templates {
		if t.matches(folded) {
			return t
		}
	}
	return GenericTemplate()
}

type DetectResult struct {
	IsOrder bool
	Score   float64
	Reason  string
}

var detectKeywords = []string{"ordem de servico", "o.s", "os ", "orcamento", "preventiva", "corretiva", "revisao", "manutencao"}

var vehicleLabels = []string{"placa", "chassi", "hodometro", "km", "veiculo", "modelo"}

// DetectServiceOrder decides whether an email carries a service order worth
// comparing. Subject and body keywords, vehicle labels and document
// attachments all add to the score.
func DetectServiceOrder(subject, text string, attachmentNames []string) DetectResult {
	subject = util.FoldAccents(subject)
	text = util.FoldAccents(text)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}

	labelHits := 0
	for _, label := range vehicleLabels {
		if strings.Contains(text, label+":") || strings.Contains(text, label+" ") {
			labelHits++
		}
	}
	if labelHits >= 2 {
		score += 0.4
	} else if labelHits == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		if KindFromFilename(name) == internal.DocumentPDF {
			score += 0.3
			break
		}
	}
	if score > 1 {
		score = 1
	}

	isOrder := score >= 0.45
	reason := "rules_negative"
	if isOrder {
		reason = "rules_positive"
	}
	return DetectResult{IsOrder: isOrder, Score: score, Reason: reason}
}
