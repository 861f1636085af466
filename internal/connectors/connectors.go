package connectors

import (
	"context"
	"fmt"

	"oscheck/internal"
	"oscheck/internal/config"
	"oscheck/internal/connectors/gmail"
	"oscheck/internal/connectors/imap"
)

// MailConnector pulls raw messages that may carry service orders.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// New builds the connector for provider ("gmail" or "imap").
func New(ctx context.Context, provider string, cfg config.Config) (MailConnector, error) {
	switch provider {
	case "gmail":
		return gmail.NewConnector(ctx, cfg)
	case "imap":
		return imap.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
