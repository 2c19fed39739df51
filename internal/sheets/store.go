// Package sheets is the remote ledger: worksheets addressed by spreadsheet and
// sheet title, rows addressed by sheet row number, cells by A1 column letters.
package sheets

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"tank-location-sync/internal/errs"
	"tank-location-sync/internal/logging"
	"tank-location-sync/internal/models"
)

// Store reads and writes ledger rows through an API.
//
// Row 1 of every worksheet is a header. On tables written by the upsert
// engine the row at controlRow carries the control identifiers and data rows
// start below it.
type Store struct {
	api        API
	controlRow int

	mu  sync.Mutex
	ids map[string]string // spreadsheet title -> id
}

// NewStore creates a Store whose result tables keep their control identifiers on controlRow
func NewStore(api API, controlRow int) *Store {
	return &Store{
		api:        api,
		controlRow: controlRow,
		ids:        make(map[string]string),
	}
}

// resolve returns the spreadsheet id of table after checking its worksheet exists
func (s *Store) resolve(ctx context.Context, table models.TableRef) (string, error) {
	s.mu.Lock()
	id, ok := s.ids[table.Spreadsheet]
	s.mu.Unlock()

	if !ok {
		var err error
		id, err = s.api.FindSpreadsheet(ctx, table.Spreadsheet)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.ids[table.Spreadsheet] = id
		s.mu.Unlock()
	}

	titles, err := s.api.SheetTitles(ctx, id)
	if err != nil {
		return "", err
	}
	for _, t := range titles {
		if t == table.Sheet {
			return id, nil
		}
	}
	return "", errs.NotFound(fmt.Sprintf("worksheet %s not found", table))
}

func (s *Store) values(ctx context.Context, table models.TableRef) ([][]interface{}, string, error) {
	id, err := s.resolve(ctx, table)
	if err != nil {
		return nil, "", err
	}
	rows, err := s.api.GetValues(ctx, id, quoteSheet(table.Sheet))
	if err != nil {
		return nil, "", err
	}
	return rows, id, nil
}

// ReadControlRow returns physical column -> control identifier
func (s *Store) ReadControlRow(ctx context.Context, table models.TableRef) (models.ControlRow, error) {
	id, err := s.resolve(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := s.api.GetValues(ctx, id, rowRange(table.Sheet, s.controlRow))
	if err != nil {
		return nil, err
	}

	control := models.ControlRow{}
	if len(rows) > 0 {
		for column, v := range rowValues(rows[0]) {
			control[column] = strings.TrimSpace(v)
		}
	}
	return control, nil
}

// ReadAllRows returns a snapshot of every data row with its version token
func (s *Store) ReadAllRows(ctx context.Context, table models.TableRef) ([]models.RemoteRow, error) {
	raw, _, err := s.values(ctx, table)
	if err != nil {
		return nil, err
	}

	var rows []models.RemoteRow
	for i, cells := range raw {
		number := i + 1
		if number <= s.controlRow {
			continue
		}
		values := rowValues(cells)
		rows = append(rows, models.RemoteRow{
			Table:   table,
			Number:  number,
			Version: Version(values),
			Values:  values,
		})
	}
	return rows, nil
}

// ReadRecords reads a plain worksheet as records keyed by its header row
func (s *Store) ReadRecords(ctx context.Context, table models.TableRef) ([]models.Record, error) {
	raw, _, err := s.values(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	header := make([]string, len(raw[0]))
	for i, cell := range raw[0] {
		header[i] = strings.TrimSpace(cellString(cell))
	}

	var records []models.Record
	for _, cells := range raw[1:] {
		rec := models.Record{}
		for i, cell := range cells {
			if i >= len(header) || header[i] == "" {
				continue
			}
			if v := strings.TrimSpace(cellString(cell)); v != "" {
				rec[header[i]] = v
			}
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ReadFieldSet reads logical field -> control identifier pairs from the
// first two columns of table, below its header row.
func (s *Store) ReadFieldSet(ctx context.Context, table models.TableRef) (models.FieldSet, error) {
	raw, _, err := s.values(ctx, table)
	if err != nil {
		return nil, err
	}

	fields := models.FieldSet{}
	for i, cells := range raw {
		if i == 0 || len(cells) < 2 {
			continue
		}
		field := strings.TrimSpace(cellString(cells[0]))
		id := strings.TrimSpace(cellString(cells[1]))
		if field == "" || id == "" {
			continue
		}
		fields[field] = id
	}
	return fields, nil
}

// Insert appends a row holding values (physical column -> value)
func (s *Store) Insert(ctx context.Context, table models.TableRef, values map[string]string) error {
	id, err := s.resolve(ctx, table)
	if err != nil {
		return err
	}
	row, err := denseRow(values)
	if err != nil {
		return errs.Parse(err, "building row")
	}
	return s.api.AppendRow(ctx, id, quoteSheet(table.Sheet)+"!A1", row)
}

// Update writes fields (physical column -> value) into row. Unless token is
// the wildcard, the row is re-read first and the write is refused with a
// version conflict when its content no longer matches token.
func (s *Store) Update(ctx context.Context, row models.RemoteRow, fields map[string]string, token string) error {
	id, err := s.resolve(ctx, row.Table)
	if err != nil {
		return err
	}

	if token != models.WildcardVersion {
		current, err := s.api.GetValues(ctx, id, rowRange(row.Table.Sheet, row.Number))
		if err != nil {
			return err
		}
		var values map[string]string
		if len(current) > 0 {
			values = rowValues(current[0])
		}
		if v := Version(values); v != token {
			logging.Log.WithField("row", row.Number).Debugf("Version mismatch on %s: have %s, remote %s", row.Table, token, v)
			return errs.Conflict(nil, fmt.Sprintf("row %d of %s changed since it was read", row.Number, row.Table))
		}
	}

	cells := make(map[string]string, len(fields))
	for column, v := range fields {
		cells[cellRange(row.Table.Sheet, column, row.Number)] = v
	}
	if len(cells) == 0 {
		return nil
	}
	return s.api.UpdateCells(ctx, id, cells)
}

// ListFiles lists exportable remote files
func (s *Store) ListFiles(ctx context.Context) ([]models.ExportableFile, error) {
	return s.api.ListFiles(ctx)
}

// Download writes the content behind link into w
func (s *Store) Download(ctx context.Context, link string, w io.Writer) error {
	return s.api.Download(ctx, link, w)
}
