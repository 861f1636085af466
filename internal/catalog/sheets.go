package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"oscheck/internal"
	"oscheck/internal/config"
)

// SheetsClient reads reference tables from Google Sheets.
type SheetsClient struct {
	service    *sheets.Service
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// NewSheetsClient authenticates with the configured refresh token. Token
// refreshes run under ctx for the life of the client, so it must not be a
// request context.
func NewSheetsClient(ctx context.Context, cfg config.Config) (*SheetsClient, error) {
	if err := cfg.Require("GOOGLE_CLIENT_ID", cfg.GoogleClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_REFRESH_TOKEN", cfg.GoogleRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       []string{sheets.SpreadsheetsReadonlyScope},
	}
	httpClient := oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.GoogleRefreshToken})
	httpClient.Timeout = time.Duration(cfg.SheetsTimeoutMs) * time.Millisecond
	return newSheetsClient(ctx, httpClient, cfg.SheetsRateLimitRPS, cfg.SheetsMaxRetries)
}

func newSheetsClient(ctx context.Context, httpClient *http.Client, rps float64, maxRetries int) (*SheetsClient, error) {
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	if rps <= 0 {
		rps = 1
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &SheetsClient{
		service:    svc,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: maxRetries,
		backoff:    250 * time.Millisecond,
	}, nil
}

// FetchTable reads readRange (for example "Frota!A1:F500") with unformatted
// values, so numeric cells arrive as numbers. An empty range reads the whole
// first sheet.
func (c *SheetsClient) FetchTable(ctx context.Context, spreadsheetID, readRange string) (internal.ReferenceTable, error) {
	if strings.TrimSpace(readRange) == "" {
		title, err := c.firstSheetTitle(ctx, spreadsheetID)
		if err != nil {
			return internal.ReferenceTable{}, err
		}
		readRange = "'" + strings.ReplaceAll(title, "'", "''") + "'"
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return internal.ReferenceTable{}, err
		}

		resp, err := c.service.Spreadsheets.Values.Get(spreadsheetID, readRange).
			ValueRenderOption("UNFORMATTED_VALUE").
			MajorDimension("ROWS").
			Context(ctx).
			Do()
		if err == nil {
			return TableFromGrid(resp.Values), nil
		}

		lastErr = err
		var apiErr *googleapi.Error
		if !errors.As(err, &apiErr) || !isRetryableStatus(apiErr.Code) || attempt == c.maxRetries {
			break
		}
		wait := c.backoff*time.Duration(1<<(attempt-1)) + time.Duration(rand.Intn(100))*time.Millisecond
		select {
		case <-ctx.Done():
			return internal.ReferenceTable{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return internal.ReferenceTable{}, fmt.Errorf("fetch sheet %s: %w", spreadsheetID, lastErr)
}

func (c *SheetsClient) firstSheetTitle(ctx context.Context, spreadsheetID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	ss, err := c.service.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read spreadsheet %s: %w", spreadsheetID, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no sheets", spreadsheetID)
	}
	return ss.Sheets[0].Properties.Title, nil
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
