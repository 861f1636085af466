package listener

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"oscheck/internal"
	"oscheck/internal/catalog"
	"oscheck/internal/config"
	"oscheck/internal/connectors"
	"oscheck/internal/storage"
)

type staticConnector struct {
	messages []internal.FetchedMailMessage
}

func (c staticConnector) FetchInbox(context.Context, string, int) ([]internal.FetchedMailMessage, error) {
	return c.messages, nil
}

const orderMail = "From: oficina@example.com\r\n" +
	"Subject: Ordem de servico 4411\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Segue a OS em anexo.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Disposition: attachment; filename=\"os-4411.txt\"\r\n" +
	"\r\n" +
	"Bosch Car Service\r\n" +
	"PLACA: ABC1234\r\n" +
	"KM: 12.000\r\n" +
	"--XYZ--\r\n"

func fleetWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Placa", "Modelo", "Km Atual"},
		{"ABC1234", "Fiat Uno", 12100},
	}
	for r, row := range rows {
		if err := f.SetSheetRow(sheet, "A"+string(rune('1'+r)), &row); err != nil {
			t.Fatal(err)
		}
	}
	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRunCycleFetchesProcessesAndExports(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := config.Config{
		RawMailDir:               filepath.Join(tmp, "raw"),
		OutputDir:                filepath.Join(tmp, "out"),
		MailListenerProvider:     "IMAP",
		MailListenerLabel:        "INBOX",
		MailListenerFetchMax:     10,
		MailListenerProcessBatch: 10,
		MailListenerAutoExport:   true,
	}
	if _, err := catalog.NewImportService(db, cfg).ImportXLSX("frota", fleetWorkbook(t), ""); err != nil {
		t.Fatal(err)
	}

	svc := NewService(db, cfg, zap.NewNop())
	svc.newConnector = func(_ context.Context, provider string) (connectors.MailConnector, error) {
		if provider != "imap" {
			t.Fatalf("provider %q", provider)
		}
		return staticConnector{messages: []internal.FetchedMailMessage{
			{Provider: "imap", MessageID: "<os-4411@oficina>", Subject: "Ordem de servico 4411", Raw: []byte(orderMail)},
		}}, nil
	}

	res, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 1 || res.Processed != 1 || res.Comparisons != 1 || res.Exported != 1 {
		t.Fatalf("cycle %+v", res)
	}

	email, err := db.GetEmailByProviderMessageID("imap", "<os-4411@oficina>")
	if err != nil || email == nil {
		t.Fatalf("email %v %v", email, err)
	}
	if email.Status != "exported" {
		t.Fatalf("status %q", email.Status)
	}
	exportPath := filepath.Join(cfg.OutputDir, "listener", "1__os-4411@oficina_.xlsx")
	if _, err := os.Stat(exportPath); err != nil {
		t.Fatalf("export missing: %v", err)
	}

	again, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.Processed != 0 || again.Exported != 0 {
		t.Fatalf("second cycle %+v", again)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	svc := NewService(db, config.Config{MailListenerProvider: "imap", MailListenerIntervalSec: 3600}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	svc.newConnector = func(context.Context, string) (connectors.MailConnector, error) {
		cancel()
		return staticConnector{}, nil
	}
	if err := svc.Run(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestSanitizeMessageID(t *testing.T) {
	if got := sanitizeMessageID("<a/b:c@x>"); got != "_a_b_c@x_" {
		t.Fatalf("got %q", got)
	}
}
