package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"oscheck/internal"
	"oscheck/internal/catalog"
)

// ExtractDocument decodes and extracts one document.
func ExtractDocument(input DocumentInput) (internal.StructuredRecord, error) {
	pages, err := ReadDocumentPages(input.Kind, input.Content)
	if err != nil {
		return internal.StructuredRecord{}, fmt.Errorf("%s: %w: %w", input.Name, ErrUnreadableDocument, err)
	}
	return ExtractRecord(pages), nil
}

// LoadDocumentFile reads a document from disk. An empty kind is taken from
// the file extension.
func LoadDocumentFile(path string, kind string) (DocumentInput, error) {
	var docKind internal.DocumentKind
	if kind == "" {
		docKind = KindFromFilename(path)
		if docKind == "" {
			return DocumentInput{}, fmt.Errorf("cannot tell document type of %s", path)
		}
	} else {
		k, err := ParseDocumentKind(kind)
		if err != nil {
			return DocumentInput{}, err
		}
		docKind = k
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return DocumentInput{}, err
	}
	return DocumentInput{Name: filepath.Base(path), Kind: docKind, Content: content}, nil
}

// CompareFiles compares a document file against a workbook without touching
// the database.
func CompareFiles(input DocumentInput, tablePath, sheetName string, mapping internal.ColumnMapping) (internal.StructuredRecord, internal.MatchReport, error) {
	record, err := ExtractDocument(input)
	if err != nil {
		return internal.StructuredRecord{}, internal.MatchReport{}, err
	}
	blob, err := os.ReadFile(tablePath)
	if err != nil {
		return internal.StructuredRecord{}, internal.MatchReport{}, err
	}
	table, err := catalog.ReadXLSX(blob, sheetName)
	if err != nil {
		return internal.StructuredRecord{}, internal.MatchReport{}, err
	}
	return record, Compare(record, table.Rows, table.Columns, mapping), nil
}
