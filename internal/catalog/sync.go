package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"oscheck/internal"
	"oscheck/internal/config"
	"oscheck/internal/storage"
)

const lastImportKey = "sheets.last_import"

// ImportService loads reference tables into storage.
type ImportService struct {
	db  *storage.DB
	cfg config.Config
	// clientCtx outlives requests; the Sheets client refreshes tokens with it.
	clientCtx context.Context
	mu        sync.Mutex
	sheets    *SheetsClient
}

func NewImportService(db *storage.DB, cfg config.Config) *ImportService {
	return &ImportService{db: db, cfg: cfg, clientCtx: context.Background()}
}

// ImportXLSX stores one sheet of a workbook. An empty sheetName takes the first sheet.
func (s *ImportService) ImportXLSX(name string, content []byte, sheetName string) (internal.Sheet, error) {
	table, err := ReadXLSX(content, sheetName)
	if err != nil {
		return internal.Sheet{}, err
	}
	return s.store(name, internal.SheetSourceXLSX, table)
}

func (s *ImportService) ImportGoogleSheet(ctx context.Context, spreadsheetID, readRange, name string) (internal.Sheet, error) {
	client, err := s.sheetsClient()
	if err != nil {
		return internal.Sheet{}, err
	}
	table, err := client.FetchTable(ctx, spreadsheetID, readRange)
	if err != nil {
		return internal.Sheet{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = spreadsheetID
	}
	return s.store(name, internal.SheetSourceGoogleSheet, table)
}

func (s *ImportService) sheetsClient() (*SheetsClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheets == nil {
		client, err := NewSheetsClient(s.clientCtx, s.cfg)
		if err != nil {
			return nil, err
		}
		s.sheets = client
	}
	return s.sheets, nil
}

func (s *ImportService) store(name string, source internal.SheetSource, table internal.ReferenceTable) (internal.Sheet, error) {
	sheet, err := s.db.InsertSheet(strings.TrimSpace(name), source, table)
	if err != nil {
		return internal.Sheet{}, err
	}
	_ = s.db.SetMetadata(lastImportKey, time.Now().UTC().Format(time.RFC3339))
	return sheet, nil
}
