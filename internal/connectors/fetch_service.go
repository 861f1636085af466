package connectors

import (
	"context"

	"go.uber.org/zap"

	"oscheck/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *RawMailStore
	logger    *zap.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *zap.Logger) *FetchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewRawMailStore(db, rawMailDir, logger),
		logger:    logger,
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	stored := 0
	for _, msg := range messages {
		row, err := s.store.Store(msg)
		if err != nil {
			return FetchResult{Fetched: len(messages), Stored: stored}, err
		}
		stored++
		s.logger.Debug("email stored", zap.Int("email_id", row.ID), zap.String("provider", row.Provider), zap.String("subject", row.Subject))
	}

	return FetchResult{Fetched: len(messages), Stored: stored}, nil
}
