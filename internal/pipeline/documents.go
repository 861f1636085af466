package pipeline

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"

	"oscheck/internal"
	"oscheck/internal/util"
)

// DocumentInput is an undecoded service-order document.
type DocumentInput struct {
	Name    string
	Kind    internal.DocumentKind
	Content []byte
}

func KindFromFilename(name string) internal.DocumentKind {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".pdf":
		return internal.DocumentPDF
	case ".html", ".htm":
		return internal.DocumentHTML
	case ".txt", ".text":
		return internal.DocumentText
	default:
		return ""
	}
}

func ParseDocumentKind(value string) (internal.DocumentKind, error) {
	switch kind := internal.DocumentKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case internal.DocumentPDF, internal.DocumentHTML, internal.DocumentText:
		return kind, nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", value)
	}
}

// ReadDocumentPages decodes a document into per-page text.
func ReadDocumentPages(kind internal.DocumentKind, content []byte) ([]string, error) {
	switch kind {
	case internal.DocumentPDF:
		return ReadPDFPages(content)
	case internal.DocumentHTML:
		return ReadHTMLPages(string(content))
	case internal.DocumentText:
		return ReadTextPages(content), nil
	default:
		return nil, fmt.Errorf("unsupported document type: %s", kind)
	}
}

// ReadPDFPages returns the plain text of every page that has content. Pages
// that fail to decode are skipped.
func ReadPDFPages(content []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// ReadTextPages splits plain text on form feeds.
func ReadTextPages(content []byte) []string {
	pages := []string{}
	for _, page := range strings.Split(string(content), "\f") {
		if strings.TrimSpace(page) != "" {
			pages = append(pages, page)
		}
	}
	return pages
}

var blockTags = map[string]bool{
	"p": true, "div": true, "tr": true, "li": true, "table": true, "section": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "thead": true, "tbody": true,
}

type lineBuilder struct {
	current strings.Builder
	lines   []string
}

func (b *lineBuilder) write(s string) { b.current.WriteString(s) }

func (b *lineBuilder) flush() {
	if line := util.NormalizeText(b.current.String()); line != "" {
		b.lines = append(b.lines, line)
	}
	b.current.Reset()
}

// ReadHTMLPages renders an HTML body as one page of text. Block elements and
// table rows become lines and cells are separated by spaces.
func ReadHTMLPages(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	b := &lineBuilder{}
	collectHTMLLines(doc.Find("body"), b)
	b.flush()
	if len(b.lines) == 0 {
		return []string{}, nil
	}
	return []string{strings.Join(b.lines, "\n")}, nil
}

func collectHTMLLines(sel *goquery.Selection, b *lineBuilder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch {
		case name == "#text":
			b.write(s.Text())
		case name == "script" || name == "style" || name == "head" || name == "#comment":
		case name == "br":
			b.flush()
		case name == "pre":
			b.flush()
			for _, line := range util.SplitLines(s.Text()) {
				b.write(line)
				b.flush()
			}
		case name == "td" || name == "th":
			b.write(" ")
			collectHTMLLines(s, b)
			b.write(" ")
		case blockTags[name]:
			b.flush()
			collectHTMLLines(s, b)
			b.flush()
		default:
			collectHTMLLines(s, b)
		}
	})
}

// EmailContent is what a raw message offers for comparison.
type EmailContent struct {
	Subject         string
	Text            string
	AttachmentNames []string
	Documents       []DocumentInput
}

// ExtractDocumentsFromEmailRaw parses a raw message. Attachments of a known
// document type become documents; when there are none the body itself is
// the document.
func ExtractDocumentsFromEmailRaw(raw []byte) (EmailContent, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return EmailContent{}, fmt.Errorf("read envelope: %w", err)
	}

	out := EmailContent{
		Subject:         env.GetHeader("Subject"),
		Text:            env.Text,
		AttachmentNames: make([]string, 0, len(env.Attachments)),
	}
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		out.AttachmentNames = append(out.AttachmentNames, filename)
		if kind := KindFromFilename(filename); kind != "" {
			out.Documents = append(out.Documents, DocumentInput{Name: filename, Kind: kind, Content: att.Content})
		}
	}

	if len(out.Documents) == 0 {
		switch {
		case strings.TrimSpace(env.HTML) != "":
			out.Documents = append(out.Documents, DocumentInput{Name: "body.html", Kind: internal.DocumentHTML, Content: []byte(env.HTML)})
		case strings.TrimSpace(env.Text) != "":
			out.Documents = append(out.Documents, DocumentInput{Name: "body.txt", Kind: internal.DocumentText, Content: []byte(env.Text)})
		}
	}
	return out, nil
}
