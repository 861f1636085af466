package connectors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"oscheck/internal"
	"oscheck/internal/config"
	"oscheck/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
	err      error
}

func (f fakeConnector) FetchInbox(_ context.Context, _ string, max int) ([]internal.FetchedMailMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.messages) > max {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func TestFetchAndStore(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	conn := fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "<1@x>", Subject: "OS 1", Raw: []byte("Subject: OS 1\r\n\r\nPLACA: ABC1234\r\n")},
		{Provider: "imap", MessageID: "<2@x>", Subject: "OS 2", Raw: []byte("Subject: OS 2\r\n\r\nPLACA: XYZ9876\r\n")},
	}}
	rawDir := filepath.Join(tmp, "raw")
	svc := NewFetchService(db, rawDir, conn, zap.NewNop())

	res, err := svc.FetchAndStore(context.Background(), "INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 2 || res.Stored != 2 {
		t.Fatalf("result %+v", res)
	}
	pending, err := db.ListEmailsByStatus("fetched", 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending %+v %v", pending, err)
	}
	if _, err := os.Stat(pending[0].RawRef); err != nil {
		t.Fatalf("raw file missing: %v", err)
	}

	if _, err := svc.FetchAndStore(context.Background(), "INBOX", 10); err != nil {
		t.Fatal(err)
	}
	again, _ := db.ListEmailsByStatus("fetched", 10)
	if len(again) != 2 {
		t.Fatalf("refetch must not duplicate emails, got %d", len(again))
	}

	failing := NewFetchService(db, rawDir, fakeConnector{err: errors.New("boom")}, nil)
	if _, err := failing.FetchAndStore(context.Background(), "INBOX", 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestRawMailStoreKeepsOneFilePerContent(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	rawDir := filepath.Join(tmp, "raw")
	store := NewRawMailStore(db, rawDir, zap.New(core))

	raw := []byte("Subject: OS 7\r\n\r\nPLACA: ABC1234\r\n")
	first, err := store.Store(internal.FetchedMailMessage{Provider: "imap", MessageID: "<7@x>", Subject: "OS 7", Raw: raw})
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Store(internal.FetchedMailMessage{Provider: "gmail", MessageID: "abc", Subject: "OS 7", Raw: raw})
	if err != nil {
		t.Fatal(err)
	}
	if first.RawRef != second.RawRef || first.Hash != second.Hash {
		t.Fatalf("same content stored twice: %q %q", first.RawRef, second.RawRef)
	}
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != first.Hash+".eml" {
		t.Fatalf("raw dir %v", entries)
	}
	content, err := os.ReadFile(first.RawRef)
	if err != nil || string(content) != string(raw) {
		t.Fatalf("raw content %q %v", content, err)
	}
	if n := logs.FilterMessage("raw mail written").Len(); n != 1 {
		t.Fatalf("written logged %d times", n)
	}
	if n := logs.FilterMessage("raw mail already stored").Len(); n != 1 {
		t.Fatalf("already stored logged %d times", n)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), "pop3", config.Config{}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New(context.Background(), "imap", config.Config{}); err == nil {
		t.Fatal("expected missing IMAP settings error")
	}
}
