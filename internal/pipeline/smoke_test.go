package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"oscheck/internal"
	"oscheck/internal/catalog"
	"oscheck/internal/config"
	"oscheck/internal/storage"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

var fleetRows = [][]any{
	{"Placa", "Modelo", "Ano", "Km Atual", "Chassi"},
	{"XYZ9876", "VW Gol", 2015, 45000, "9BWAAA111"},
	{"ABC1234", "Fiat Uno 1.0", 2018, 12500, "9BWZZZ377VT004251"},
}

func newTestService(t *testing.T) (*ComparisonService, *storage.DB, internal.Sheet) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{OutputDir: filepath.Join(tmp, "out")}
	sheet, err := catalog.NewImportService(db, cfg).ImportXLSX("frota", mkXLSX(fleetRows), "")
	if err != nil {
		t.Fatal(err)
	}
	return NewComparisonService(db, cfg, zap.NewNop()), db, sheet
}

func TestCompareDocumentAgainstDefaultSheet(t *testing.T) {
	svc, db, sheet := newTestService(t)
	input := DocumentInput{Name: "os.txt", Kind: internal.DocumentText, Content: []byte(boschOrder)}

	res, err := svc.CompareDocument(context.Background(), input, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	report := res.Comparison.Report
	if report.BestRowIndex == nil || *report.BestRowIndex != 1 {
		t.Fatalf("best row %v", report.BestRowIndex)
	}
	if report.MatchScore != MaxScore || report.TotalRows != 2 {
		t.Fatalf("report %+v", report)
	}
	if res.Comparison.SheetID != sheet.ID {
		t.Fatalf("sheet %s", res.Comparison.SheetID)
	}

	stored, err := db.GetComparison(res.Comparison.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored comparison %v %v", stored, err)
	}
	if stored.Report.BestRowData["Placa"] != "ABC1234" {
		t.Fatalf("best row data %+v", stored.Report.BestRowData)
	}
}

func TestCompareDocumentWithMapping(t *testing.T) {
	svc, _, sheet := newTestService(t)
	input := DocumentInput{Name: "os.txt", Kind: internal.DocumentText, Content: []byte("PLACA: ABC1234\nChassi: 9BWZZZ377VT004251")}
	mapping := internal.ColumnMapping{internal.FieldPlate: "placa", internal.FieldModel: "nao existe"}

	res, err := svc.CompareDocument(context.Background(), input, sheet.ID, mapping)
	if err != nil {
		t.Fatal(err)
	}
	if res.Comparison.Report.MatchScore != 7 {
		t.Fatalf("report %+v", res.Comparison.Report)
	}
}

func TestCompareDocumentWithoutSheet(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	svc := NewComparisonService(db, config.Config{}, nil)
	_, err = svc.CompareDocument(context.Background(), DocumentInput{Name: "a.txt", Kind: internal.DocumentText}, "", nil)
	if !errors.Is(err, ErrNoSheet) {
		t.Fatalf("expected ErrNoSheet, got %v", err)
	}
	_, err = svc.CompareDocument(context.Background(), DocumentInput{Name: "a.txt", Kind: internal.DocumentText}, "missing", nil)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSmokeEmailToXLSX(t *testing.T) {
	svc, db, _ := newTestService(t)
	tmp := t.TempDir()

	rawPath := filepath.Join(tmp, "fixture.eml")
	if err := os.WriteFile(rawPath, []byte(emailWithAttachment), 0o644); err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("imap", "<fixture-1@example.com>", "Ordem de servico 4411", "oficina@example.com", "2026-03-01T00:00:00Z", "hash", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	emails, comparisons, err := svc.ProcessPending(context.Background(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if emails != 1 || comparisons != 1 {
		t.Fatalf("emails=%d comparisons=%d", emails, comparisons)
	}

	stored, err := db.ComparisonsByEmail(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].EmailID == nil || *stored[0].EmailID != email.ID {
		t.Fatalf("comparisons %+v", stored)
	}
	if got, _ := db.GetEmailByID(email.ID); got == nil || got.Status != "processed" {
		t.Fatalf("email %+v", got)
	}

	res, err := svc.ProcessEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Comparisons) != 1 {
		t.Fatalf("reprocess %+v", res)
	}
	if again, _ := db.ComparisonsByEmail(email.ID); len(again) != 1 {
		t.Fatalf("reprocessing must replace earlier comparisons, got %d", len(again))
	}

	out := filepath.Join(tmp, "result.xlsx")
	if err := ExportComparisonsToXLSX(comparisonsOf(t, db, email.ID), out); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("comparisons")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][2] != "os-4411.txt" {
		t.Fatalf("summary rows %v", rows)
	}
	if _, err := f.GetRows("differences"); err != nil {
		t.Fatal(err)
	}
}

func comparisonsOf(t *testing.T, db *storage.DB, emailID int) []internal.Comparison {
	t.Helper()
	list, err := db.ComparisonsByEmail(emailID)
	if err != nil {
		t.Fatal(err)
	}
	return list
}

func TestProcessEmailSkipsNonOrders(t *testing.T) {
	svc, db, _ := newTestService(t)
	raw := "From: amigo@example.com\r\nSubject: Churrasco\r\nContent-Type: text/plain\r\n\r\nSabado as 12h.\r\n"
	rawPath := filepath.Join(t.TempDir(), "skip.eml")
	if err := os.WriteFile(rawPath, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("imap", "<skip@example.com>", "Churrasco", "amigo@example.com", "2026-03-01T00:00:00Z", "hash", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.ProcessEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Fatalf("expected skip: %+v", res)
	}
	if got, _ := db.GetEmailByID(email.ID); got == nil || got.Status != "skipped" {
		t.Fatalf("email %+v", got)
	}
	if n, _ := db.CountRuns(email.ID); n != 1 {
		t.Fatalf("runs=%d", n)
	}
}

func TestCompareFiles(t *testing.T) {
	tmp := t.TempDir()
	tablePath := filepath.Join(tmp, "frota.xlsx")
	if err := os.WriteFile(tablePath, mkXLSX(fleetRows), 0o644); err != nil {
		t.Fatal(err)
	}
	docPath := filepath.Join(tmp, "os.txt")
	if err := os.WriteFile(docPath, []byte(boschOrder), 0o644); err != nil {
		t.Fatal(err)
	}
	input, err := LoadDocumentFile(docPath, "")
	if err != nil {
		t.Fatal(err)
	}
	record, report, err := CompareFiles(input, tablePath, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if record.SourceType != internal.SourceBoschPreventive || report.MatchScore != MaxScore {
		t.Fatalf("record %q report %+v", record.SourceType, report)
	}
	if _, err := LoadDocumentFile(filepath.Join(tmp, "frota.xlsx"), ""); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestReprocessKeepsResultsWhenMappingFails(t *testing.T) {
	svc, db, _ := newTestService(t)
	rawPath := filepath.Join(t.TempDir(), "os.eml")
	if err := os.WriteFile(rawPath, []byte(emailWithAttachment), 0o644); err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("imap", "<keep@example.com>", "Ordem de servico 4411", "oficina@example.com", "2026-03-01T00:00:00Z", "hash", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ProcessEmail(context.Background(), email); err != nil {
		t.Fatal(err)
	}
	before := comparisonsOf(t, db, email.ID)
	if len(before) != 1 {
		t.Fatalf("first run: %+v", before)
	}

	svc.cfg.ColumnMappingFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := svc.ProcessEmail(context.Background(), email); err == nil {
		t.Fatal("expected mapping error")
	}
	after := comparisonsOf(t, db, email.ID)
	if len(after) != 1 || after[0].ID != before[0].ID {
		t.Fatalf("earlier comparison lost: %+v", after)
	}
	if d, _ := db.GetDocument(before[0].DocumentID); d == nil {
		t.Fatal("earlier document lost")
	}
}
