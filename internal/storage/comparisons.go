package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"oscheck/internal"
)

// execer is the part of *sql.DB and *sql.Tx the insert helpers need.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
}

func (d *DB) InsertDocument(name string, kind internal.DocumentKind, record internal.StructuredRecord) (internal.Document, error) {
	return d.insertDocument(d.conn, name, kind, record)
}

func (d *DB) insertDocument(q execer, name string, kind internal.DocumentKind, record internal.StructuredRecord) (internal.Document, error) {
	doc := internal.Document{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		Record:    record,
		CreatedAt: d.timestamp(),
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return internal.Document{}, err
	}
	if _, err := q.Exec(`INSERT INTO documents (id, name, kind, recordJson, createdAt) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, string(doc.Kind), string(recordJSON), doc.CreatedAt); err != nil {
		return internal.Document{}, err
	}
	return doc, nil
}

func (d *DB) GetDocument(id string) (*internal.Document, error) {
	var doc internal.Document
	var kind, recordJSON string
	err := d.conn.QueryRow(`SELECT id, name, kind, recordJson, createdAt FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Name, &kind, &recordJSON, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc.Kind = internal.DocumentKind(kind)
	if err := json.Unmarshal([]byte(recordJSON), &doc.Record); err != nil {
		return nil, fmt.Errorf("document %s record: %w", id, err)
	}
	return &doc, nil
}

// InsertComparison stores a report made for a document against a sheet.
// emailID is nil for documents that did not arrive by mail.
func (d *DB) InsertComparison(doc internal.Document, sheet internal.Sheet, emailID *int, report internal.MatchReport) (internal.Comparison, error) {
	return d.insertComparison(d.conn, doc, sheet, emailID, report)
}

func (d *DB) insertComparison(q execer, doc internal.Document, sheet internal.Sheet, emailID *int, report internal.MatchReport) (internal.Comparison, error) {
	cmp := internal.Comparison{
		ID:           uuid.NewString(),
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		SheetID:      sheet.ID,
		SheetName:    sheet.Name,
		EmailID:      emailID,
		Report:       report,
		CreatedAt:    d.timestamp(),
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return internal.Comparison{}, err
	}
	if _, err := q.Exec(`
INSERT INTO comparisons (id, documentId, sheetId, emailId, matchScore, reportJson, createdAt)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, cmp.ID, cmp.DocumentID, cmp.SheetID, emailID, report.MatchScore, string(reportJSON), cmp.CreatedAt); err != nil {
		return internal.Comparison{}, err
	}
	return cmp, nil
}

const comparisonSelect = `
SELECT c.id, c.documentId, COALESCE(doc.name, ''), c.sheetId, COALESCE(s.name, ''), c.emailId, c.reportJson, c.createdAt
FROM comparisons c
LEFT JOIN documents doc ON doc.id = c.documentId
LEFT JOIN sheets s ON s.id = c.sheetId
`

func scanComparison(s interface{ Scan(...any) error }) (internal.Comparison, error) {
	var cmp internal.Comparison
	var emailID sql.NullInt64
	var reportJSON string
	if err := s.Scan(&cmp.ID, &cmp.DocumentID, &cmp.DocumentName, &cmp.SheetID, &cmp.SheetName, &emailID, &reportJSON, &cmp.CreatedAt); err != nil {
		return internal.Comparison{}, err
	}
	if emailID.Valid {
		id := int(emailID.Int64)
		cmp.EmailID = &id
	}
	if err := json.Unmarshal([]byte(reportJSON), &cmp.Report); err != nil {
		return internal.Comparison{}, fmt.Errorf("comparison %s report: %w", cmp.ID, err)
	}
	return cmp, nil
}

func (d *DB) GetComparison(id string) (*internal.Comparison, error) {
	cmp, err := scanComparison(d.conn.QueryRow(comparisonSelect+`WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cmp, nil
}

func (d *DB) queryComparisons(where string, limit int, args ...any) ([]internal.Comparison, error) {
	if limit <= 0 {
		limit = -1
	}
	query := comparisonSelect + where + ` ORDER BY c.createdAt DESC, c.rowid DESC LIMIT ?`
	rows, err := d.conn.Query(query, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.Comparison{}
	for rows.Next() {
		cmp, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cmp)
	}
	return out, rows.Err()
}

// ListComparisons returns the comparison history, newest first. An empty
// sheetID lists every sheet.
func (d *DB) ListComparisons(sheetID string, limit int) ([]internal.Comparison, error) {
	if sheetID == "" {
		return d.queryComparisons("", limit)
	}
	return d.queryComparisons(`WHERE c.sheetId = ?`, limit, sheetID)
}

func (d *DB) ComparisonsByEmail(emailID int) ([]internal.Comparison, error) {
	return d.queryComparisons(`WHERE c.emailId = ?`, 0, emailID)
}

// DeleteComparison removes one history entry and its document.
func (d *DB) DeleteComparison(id string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var documentID string
	err = tx.QueryRow(`SELECT documentId FROM comparisons WHERE id = ?`, id).Scan(&documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("comparison %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM comparisons WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ? AND NOT EXISTS (SELECT 1 FROM comparisons WHERE documentId = ?)`, documentID, documentID); err != nil {
		return err
	}
	return tx.Commit()
}
