package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"oscheck/internal"
)

// InsertSheet stores a reference table and its rows under a new id.
func (d *DB) InsertSheet(name string, source internal.SheetSource, table internal.ReferenceTable) (internal.Sheet, error) {
	sheet := internal.Sheet{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    source,
		Columns:   table.Columns,
		RowCount:  len(table.Rows),
		CreatedAt: d.timestamp(),
	}
	if sheet.Columns == nil {
		sheet.Columns = []string{}
	}
	columnsJSON, err := json.Marshal(sheet.Columns)
	if err != nil {
		return internal.Sheet{}, err
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return internal.Sheet{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT INTO sheets (id, name, source, columnsJson, rowCount, createdAt) VALUES (?, ?, ?, ?, ?, ?)`,
		sheet.ID, sheet.Name, string(sheet.Source), string(columnsJSON), sheet.RowCount, sheet.CreatedAt); err != nil {
		return internal.Sheet{}, err
	}

	stmt, err := tx.Prepare(`INSERT INTO sheet_rows (sheetId, rowIndex, dataJson) VALUES (?, ?, ?)`)
	if err != nil {
		return internal.Sheet{}, err
	}
	defer stmt.Close()

	for i, row := range table.Rows {
		dataJSON, err := json.Marshal(row)
		if err != nil {
			return internal.Sheet{}, fmt.Errorf("row %d: %w", i, err)
		}
		if _, err := stmt.Exec(sheet.ID, i, string(dataJSON)); err != nil {
			return internal.Sheet{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return internal.Sheet{}, err
	}
	return sheet, nil
}

const sheetColumns = `id, name, source, columnsJson, rowCount, createdAt`

func scanSheet(s interface{ Scan(...any) error }) (internal.Sheet, error) {
	var sheet internal.Sheet
	var source, columnsJSON string
	if err := s.Scan(&sheet.ID, &sheet.Name, &source, &columnsJSON, &sheet.RowCount, &sheet.CreatedAt); err != nil {
		return internal.Sheet{}, err
	}
	sheet.Source = internal.SheetSource(source)
	if err := json.Unmarshal([]byte(columnsJSON), &sheet.Columns); err != nil {
		return internal.Sheet{}, fmt.Errorf("sheet %s columns: %w", sheet.ID, err)
	}
	return sheet, nil
}

func (d *DB) GetSheet(id string) (*internal.Sheet, error) {
	sheet, err := scanSheet(d.conn.QueryRow(`SELECT `+sheetColumns+` FROM sheets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

func (d *DB) MustSheet(id string) (internal.Sheet, error) {
	sheet, err := d.GetSheet(id)
	if err != nil {
		return internal.Sheet{}, err
	}
	if sheet == nil {
		return internal.Sheet{}, fmt.Errorf("sheet %s: %w", id, ErrNotFound)
	}
	return *sheet, nil
}

// LatestSheet returns the most recently imported sheet, or nil when there is none.
func (d *DB) LatestSheet() (*internal.Sheet, error) {
	sheet, err := scanSheet(d.conn.QueryRow(`SELECT ` + sheetColumns + ` FROM sheets ORDER BY createdAt DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

func (d *DB) ListSheets() ([]internal.Sheet, error) {
	rows, err := d.conn.Query(`SELECT ` + sheetColumns + ` FROM sheets ORDER BY createdAt DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.Sheet{}
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sheet)
	}
	return out, rows.Err()
}

// SheetRows returns the rows of a sheet in their original order. Numbers come
// back as float64.
func (d *DB) SheetRows(sheetID string) ([]internal.ReferenceRow, error) {
	rows, err := d.conn.Query(`SELECT dataJson FROM sheet_rows WHERE sheetId = ? ORDER BY rowIndex ASC`, sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.ReferenceRow{}
	for rows.Next() {
		var dataJSON string
		if err := rows.Scan(&dataJSON); err != nil {
			return nil, err
		}
		row := internal.ReferenceRow{}
		if err := json.Unmarshal([]byte(dataJSON), &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SheetTable loads a sheet with its rows.
func (d *DB) SheetTable(sheetID string) (internal.Sheet, internal.ReferenceTable, error) {
	sheet, err := d.MustSheet(sheetID)
	if err != nil {
		return internal.Sheet{}, internal.ReferenceTable{}, err
	}
	rows, err := d.SheetRows(sheetID)
	if err != nil {
		return internal.Sheet{}, internal.ReferenceTable{}, err
	}
	return sheet, internal.ReferenceTable{Columns: sheet.Columns, Rows: rows}, nil
}

// DeleteSheet removes a sheet together with its rows and the comparisons made
// against it. Deleting an unknown id is ErrNotFound.
func (d *DB) DeleteSheet(id string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM comparisons WHERE sheetId = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sheet_rows WHERE sheetId = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM sheets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sheet %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}
