package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"oscheck/internal"
	"oscheck/internal/config"
	"oscheck/internal/storage"
)

// ErrNoSheet means a comparison was requested before any reference sheet exists.
var ErrNoSheet = errors.New("no reference sheet imported")

// ErrUnreadableDocument wraps decoding failures of an uploaded document.
var ErrUnreadableDocument = errors.New("document not readable")

// ComparisonService extracts documents, compares them against stored sheets
// and keeps the history.
type ComparisonService struct {
	db        *storage.DB
	cfg       config.Config
	logger    *zap.Logger
	extractor *Extractor
}

func NewComparisonService(db *storage.DB, cfg config.Config, logger *zap.Logger) *ComparisonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComparisonService{db: db, cfg: cfg, logger: logger, extractor: NewExtractor()}
}

type CompareResult struct {
	Document   internal.Document
	Comparison internal.Comparison
}

// CompareDocument compares one document against sheetID, or against the
// default sheet when sheetID is empty. A nil mapping falls back to the
// configured mapping file.
func (s *ComparisonService) CompareDocument(ctx context.Context, input DocumentInput, sheetID string, mapping internal.ColumnMapping) (CompareResult, error) {
	if err := ctx.Err(); err != nil {
		return CompareResult{}, err
	}
	sheet, table, err := s.resolveSheet(sheetID)
	if err != nil {
		return CompareResult{}, err
	}
	mapping, err = s.resolveMapping(mapping)
	if err != nil {
		return CompareResult{}, err
	}
	pages, err := ReadDocumentPages(input.Kind, input.Content)
	if err != nil {
		return CompareResult{}, fmt.Errorf("%s: %w: %w", input.Name, ErrUnreadableDocument, err)
	}
	return s.compare(input, pages, sheet, table, mapping)
}

func (s *ComparisonService) compare(input DocumentInput, pages []string, sheet internal.Sheet, table internal.ReferenceTable, mapping internal.ColumnMapping) (CompareResult, error) {
	record := s.extractor.Extract(pages)
	report := Compare(record, table.Rows, table.Columns, mapping)

	doc, err := s.db.InsertDocument(input.Name, input.Kind, record)
	if err != nil {
		return CompareResult{}, err
	}
	cmp, err := s.db.InsertComparison(doc, sheet, nil, report)
	if err != nil {
		return CompareResult{}, err
	}
	s.logCompared(input.Name, sheet, record, report)
	return CompareResult{Document: doc, Comparison: cmp}, nil
}

func (s *ComparisonService) logCompared(name string, sheet internal.Sheet, record internal.StructuredRecord, report internal.MatchReport) {
	s.logger.Info("document compared",
		zap.String("document", name),
		zap.String("sheet", sheet.Name),
		zap.String("source_type", string(record.SourceType)),
		zap.Int("match_score", report.MatchScore),
		zap.Int("differences", len(report.SampleDifferences)),
	)
}

func (s *ComparisonService) resolveSheet(sheetID string) (internal.Sheet, internal.ReferenceTable, error) {
	if strings.TrimSpace(sheetID) == "" {
		sheetID = strings.TrimSpace(s.cfg.DefaultSheetID)
	}
	if sheetID == "" {
		latest, err := s.db.LatestSheet()
		if err != nil {
			return internal.Sheet{}, internal.ReferenceTable{}, err
		}
		if latest == nil {
			return internal.Sheet{}, internal.ReferenceTable{}, ErrNoSheet
		}
		sheetID = latest.ID
	}
	return s.db.SheetTable(sheetID)
}

func (s *ComparisonService) resolveMapping(mapping internal.ColumnMapping) (internal.ColumnMapping, error) {
	if len(mapping) > 0 {
		return mapping, nil
	}
	return config.LoadColumnMapping(s.cfg.ColumnMappingFile)
}

type decodedDocument struct {
	input DocumentInput
	pages []string
	err   error
}

type ProcessResult struct {
	EmailID     int
	Skipped     bool
	Comparisons []internal.Comparison
}

func (s *ComparisonService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

// ProcessPending processes fetched emails oldest first and returns how many
// emails were handled and how many comparisons they produced.
func (s *ComparisonService) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	comparisons := 0
	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return processedEmails, comparisons, err
		}
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return processedEmails, comparisons, err
		}
		processedEmails++
		comparisons += len(res.Comparisons)
	}
	return processedEmails, comparisons, nil
}

// ProcessEmail compares every service-order document of a stored email.
// Emails that do not look like service orders are marked skipped.
func (s *ComparisonService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}

	content, err := ExtractDocumentsFromEmailRaw(raw)
	if err != nil {
		return ProcessResult{}, err
	}

	docs := make([]decodedDocument, 0, len(content.Documents))
	texts := []string{content.Text}
	for _, doc := range content.Documents {
		pages, err := ReadDocumentPages(doc.Kind, doc.Content)
		docs = append(docs, decodedDocument{input: doc, pages: pages, err: err})
		texts = append(texts, pages...)
	}

	detect := DetectServiceOrder(firstNonEmpty(content.Subject, email.Subject), strings.Join(texts, "\n"), content.AttachmentNames)

	log := s.logger.With(zap.Int("email_id", email.ID), zap.String("subject", email.Subject))
	if !detect.IsOrder || len(content.Documents) == 0 {
		if err := s.db.ClearEmailComparisons(email.ID); err != nil {
			return ProcessResult{}, err
		}
		log.Info("email skipped", zap.Float64("score", detect.Score), zap.String("reason", detect.Reason))
		_ = s.db.UpdateEmailStatus(email.ID, "skipped")
		_ = s.db.InsertRun(traceID(), email.ID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, map[string]int{"documents": len(content.Documents), "compared": 0, "failed": 0})
		return ProcessResult{EmailID: email.ID, Skipped: true}, nil
	}

	// Earlier results stay in place until the new ones are ready to be stored.
	sheet, table, err := s.resolveSheet("")
	if err != nil {
		return ProcessResult{}, err
	}
	mapping, err := s.resolveMapping(nil)
	if err != nil {
		return ProcessResult{}, err
	}

	result := ProcessResult{EmailID: email.ID}
	failed := 0
	compared := make([]storage.EmailDocument, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if doc.err != nil {
			failed++
			log.Warn("document not readable", zap.String("document", doc.input.Name), zap.Error(doc.err))
			continue
		}
		record := s.extractor.Extract(doc.pages)
		compared = append(compared, storage.EmailDocument{
			Name:   doc.input.Name,
			Kind:   doc.input.Kind,
			Record: record,
			Report: Compare(record, table.Rows, table.Columns, mapping),
		})
	}

	result.Comparisons, err = s.db.ReplaceEmailComparisons(email.ID, sheet, compared)
	if err != nil {
		return ProcessResult{}, err
	}
	for _, c := range compared {
		s.logCompared(c.Name, sheet, c.Record, c.Report)
	}

	if err := s.db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		return ProcessResult{}, err
	}
	_ = s.db.InsertRun(traceID(), email.ID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, map[string]int{"documents": len(content.Documents), "compared": len(result.Comparisons), "failed": failed})
	log.Info("email processed", zap.Int("comparisons", len(result.Comparisons)), zap.Int("failed", failed))

	return result, nil
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
