package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"oscheck/internal"
	"oscheck/internal/catalog"
	"oscheck/internal/config"
	"oscheck/internal/connectors"
	"oscheck/internal/listener"
	"oscheck/internal/pipeline"
	"oscheck/internal/server"
	"oscheck/internal/storage"
	"oscheck/internal/util"
	"oscheck/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := util.NewLogger(cfg.Debug)
	must(err)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	// Commands that work on files only.
	switch cmd {
	case "extract":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "document path (.pdf, .html, .txt)")
		docType := fs.String("type", "", "pdf|html|text (default: from extension)")
		_ = fs.Parse(args)
		requireFlag("--input", *input)
		doc, err := pipeline.LoadDocumentFile(*input, *docType)
		must(err)
		record, err := pipeline.ExtractDocument(doc)
		must(err)
		printJSON(record)
		return
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "document path")
		docType := fs.String("type", "", "pdf|html|text (default: from extension)")
		table := fs.String("table", "", "reference workbook (.xlsx)")
		sheetName := fs.String("sheet", "", "worksheet name (default: first)")
		mappingPath := fs.String("mapping", "", "column mapping file (YAML)")
		out := fs.String("out", "", "optional output xlsx path")
		_ = fs.Parse(args)
		requireFlag("--input", *input)
		requireFlag("--table", *table)
		doc, err := pipeline.LoadDocumentFile(*input, *docType)
		must(err)
		mapping, err := config.LoadColumnMapping(firstNonEmpty(*mappingPath, cfg.ColumnMappingFile))
		must(err)
		record, report, err := pipeline.CompareFiles(doc, *table, *sheetName, mapping)
		must(err)
		if *out != "" {
			cmp := internal.Comparison{
				ID:           "run",
				DocumentName: doc.Name,
				SheetName:    filepath.Base(*table),
				Report:       report,
				CreatedAt:    time.Now().UTC().Format(time.RFC3339),
			}
			must(pipeline.ExportComparisonsToXLSX([]internal.Comparison{cmp}, *out))
		}
		printJSON(map[string]any{"record": record, "report": report})
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	switch cmd {
	case "sheet:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "xlsx path")
		name := fs.String("name", "", "sheet name (default: file name)")
		sheetName := fs.String("sheet", "", "worksheet name (default: first)")
		_ = fs.Parse(args)
		requireFlag("--file", *file)
		content, err := os.ReadFile(*file)
		must(err)
		sheet, err := catalog.NewImportService(db, cfg).ImportXLSX(firstNonEmpty(*name, filepath.Base(*file)), content, *sheetName)
		must(err)
		fmt.Printf("sheet imported id=%s name=%s rows=%d columns=%s\n", sheet.ID, sheet.Name, sheet.RowCount, strings.Join(sheet.Columns, ","))
	case "sheet:import-gsheet":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "spreadsheet id")
		readRange := fs.String("range", "", "A1 range (default: first sheet)")
		name := fs.String("name", "", "sheet name (default: spreadsheet id)")
		_ = fs.Parse(args)
		requireFlag("--id", *id)
		sheet, err := catalog.NewImportService(db, cfg).ImportGoogleSheet(ctx, *id, *readRange, *name)
		must(err)
		fmt.Printf("sheet imported id=%s name=%s rows=%d\n", sheet.ID, sheet.Name, sheet.RowCount)
	case "sheet:list":
		sheets, err := db.ListSheets()
		must(err)
		for _, s := range sheets {
			fmt.Printf("%s\t%s\t%s\trows=%d\t%s\n", s.ID, s.Name, s.Source, s.RowCount, s.CreatedAt)
		}
	case "compare":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "document path")
		docType := fs.String("type", "", "pdf|html|text (default: from extension)")
		sheetID := fs.String("sheet", "", "sheet id (default: DEFAULT_SHEET_ID or latest)")
		mappingPath := fs.String("mapping", "", "column mapping file (YAML)")
		out := fs.String("out", "", "optional output xlsx path")
		_ = fs.Parse(args)
		requireFlag("--input", *input)
		doc, err := pipeline.LoadDocumentFile(*input, *docType)
		must(err)
		mapping, err := config.LoadColumnMapping(*mappingPath)
		must(err)
		res, err := pipeline.NewComparisonService(db, cfg, logger).CompareDocument(ctx, doc, *sheetID, mapping)
		must(err)
		if *out != "" {
			must(pipeline.ExportComparisonsToXLSX([]internal.Comparison{res.Comparison}, *out))
		}
		printJSON(res.Comparison)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		sheetID := fs.String("sheet", "", "sheet id (default: all sheets)")
		emailID := fs.Int("emailId", 0, "export the comparisons of one email")
		limit := fs.Int("limit", 0, "max comparisons (0 = all)")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(args)
		requireFlag("--out", *out)
		var comparisons []internal.Comparison
		if *emailID != 0 {
			comparisons, err = db.ComparisonsByEmail(*emailID)
		} else {
			comparisons, err = db.ListComparisons(*sheetID, *limit)
		}
		must(err)
		if len(comparisons) == 0 {
			must(fmt.Errorf("no comparisons to export"))
		}
		must(pipeline.ExportComparisonsToXLSX(comparisons, *out))
		fmt.Printf("exported %d comparisons to %s\n", len(comparisons), *out)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(args)
		conn, err := connectors.New(ctx, strings.ToLower(strings.TrimSpace(*provider)), cfg)
		must(err)
		result, err := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger).FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(args)
		processor := pipeline.NewComparisonService(db, cfg, logger)
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d skipped=%t comparisons=%d\n", res.EmailID, res.Skipped, len(res.Comparisons))
			return
		}
		emails, comparisons, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d comparisons=%d\n", emails, comparisons)
	case "mail:listen":
		must(listener.NewService(db, cfg, logger).Run(ctx))
	case "watch":
		svc := pipeline.NewComparisonService(db, cfg, logger)
		must(watcher.NewInbox(cfg, svc, logger).Run(ctx))
	case "serve":
		srv := server.New(db, cfg, logger)
		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()
		select {
		case err := <-errc:
			must(err)
		case <-ctx.Done():
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			must(srv.Stop(shutdownCtx))
			logger.Info("server stopped", zap.String("addr", cfg.HTTPAddr()))
		}
	default:
		usage()
		os.Exit(1)
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	must(err)
	fmt.Println(string(out))
}

func requireFlag(name, value string) {
	if strings.TrimSpace(value) == "" {
		must(fmt.Errorf("%s is required", name))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func usage() {
	fmt.Println("usage: oscheck <command>")
	fmt.Println("commands:")
	fmt.Println("  sheet:import --file=frota.xlsx [--name=frota] [--sheet=Plan1]")
	fmt.Println("  sheet:import-gsheet --id=<spreadsheet id> [--range=Frota!A:F] [--name=frota]")
	fmt.Println("  sheet:list")
	fmt.Println("  extract --input=os.pdf [--type=pdf|html|text]")
	fmt.Println("  compare --input=os.pdf [--sheet=<id>] [--mapping=mapping.yaml] [--out=result.xlsx]")
	fmt.Println("  run --input=os.pdf --table=frota.xlsx [--sheet=Plan1] [--mapping=mapping.yaml] [--out=result.xlsx]")
	fmt.Println("  export:xlsx --out=./out/comparisons.xlsx [--sheet=<id>] [--emailId=1] [--limit=100]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  watch")
	fmt.Println("  serve")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
