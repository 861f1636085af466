package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"oscheck/internal/config"
	"oscheck/internal/connectors"
	"oscheck/internal/pipeline"
	"oscheck/internal/storage"
)

// Service polls a mailbox, compares new service orders and optionally
// exports each processed email's comparisons to a workbook.
type Service struct {
	db           *storage.DB
	cfg          config.Config
	logger       *zap.Logger
	newConnector func(ctx context.Context, provider string) (connectors.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     db,
		cfg:    cfg,
		logger: logger,
		newConnector: func(ctx context.Context, provider string) (connectors.MailConnector, error) {
			return connectors.New(ctx, provider, cfg)
		},
	}
}

type CycleResult struct {
	Fetched     int
	Stored      int
	Processed   int
	Comparisons int
	Exported    int
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("mail listener started", zap.String("provider", s.provider()), zap.Duration("interval", interval))
	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("mail listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) provider() string {
	return strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
}

// RunCycle fetches, processes and exports once.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	provider := s.provider()
	mailConnector, err := s.newConnector(ctx, provider)
	if err != nil {
		return CycleResult{}, err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.logger)
	fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}
	result := CycleResult{Fetched: fetchResult.Fetched, Stored: fetchResult.Stored}

	processor := pipeline.NewComparisonService(s.db, s.cfg, s.logger)
	result.Processed, result.Comparisons, err = processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return result, err
	}

	if s.cfg.MailListenerAutoExport {
		result.Exported, err = s.exportProcessed(provider)
		if err != nil {
			return result, err
		}
	}

	s.logger.Info("listener cycle done",
		zap.String("provider", provider),
		zap.Int("fetched", result.Fetched),
		zap.Int("stored", result.Stored),
		zap.Int("processed", result.Processed),
		zap.Int("comparisons", result.Comparisons),
		zap.Int("exported", result.Exported),
	)
	return result, nil
}

func (s *Service) exportProcessed(provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus("processed", 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider {
			continue
		}
		comparisons, err := s.db.ComparisonsByEmail(email.ID)
		if err != nil {
			return exported, err
		}
		if len(comparisons) == 0 {
			continue
		}
		filename := fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID))
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
		if err := pipeline.ExportComparisonsToXLSX(comparisons, outputPath); err != nil {
			return exported, err
		}
		if err := s.db.UpdateEmailStatus(email.ID, "exported"); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
