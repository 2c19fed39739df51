// Package upsert writes records into a ledger table, matching existing rows
// by key and inserting the rest.
package upsert

import (
	"context"
	"fmt"

	"tank-location-sync/internal/errs"
	"tank-location-sync/internal/logging"
	"tank-location-sync/internal/models"

	"github.com/sirupsen/logrus"
)

// DefaultMaxAttempts is the write budget per record, first try included
const DefaultMaxAttempts = 3

// Store is the part of the ledger the engine writes through
type Store interface {
	ReadControlRow(ctx context.Context, table models.TableRef) (models.ControlRow, error)
	ReadAllRows(ctx context.Context, table models.TableRef) ([]models.RemoteRow, error)
	Insert(ctx context.Context, table models.TableRef, values map[string]string) error
	Update(ctx context.Context, row models.RemoteRow, fields map[string]string, token string) error
}

type Options struct {
	// MaxAttempts bounds the tries of a single row write under version conflicts
	MaxAttempts int
	// SkipMissing logs and skips records with no matching row instead of inserting them
	SkipMissing bool
}

// Result summarises one pass
type Result struct {
	Updated  int
	Inserted int
	Skipped  int
	Attempts int // write calls issued, retries included
}

type Engine struct {
	store Store
	opts  Options
}

func NewEngine(store Store, opts Options) *Engine {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Engine{store: store, opts: opts}
}

// Upsert writes records into table in order. keyField names the logical
// field whose value identifies a row; fields lists the logical fields that
// may be written and their control identifiers.
//
// The column layout and row snapshot are read once at the start of the pass.
// Matched rows receive only the fields present in the record, written with
// the wildcard version token. Unmatched records are inserted.
func (e *Engine) Upsert(ctx context.Context, table models.TableRef, keyField string, fields models.FieldSet, records []models.Record) (Result, error) {
	var res Result

	control, err := e.store.ReadControlRow(ctx, table)
	if err != nil {
		return res, err
	}
	mapping := models.BuildColumnMapping(fields, control)
	keyColumn, ok := mapping[keyField]
	if !ok {
		return res, errs.NotFound(fmt.Sprintf("key field %q has no column in %s", keyField, table))
	}

	snapshot, err := e.store.ReadAllRows(ctx, table)
	if err != nil {
		return res, err
	}

	log := logging.Log.WithField("table", table.String())
	log.Infof("Writing %d records (%d rows in table)", len(records), len(snapshot))

	for i, rec := range records {
		key := rec[keyField]
		if key == "" {
			return res, errs.Parse(nil, fmt.Sprintf("record %d has no %q value", i+1, keyField))
		}
		entry := log.WithField("tank", key)

		values := mappedValues(rec, mapping)
		row, found := findRow(snapshot, keyColumn, key)

		switch {
		case found:
			entry.Debugf("Updating row %d", row.Number)
			err = e.withRetry(ctx, entry, &res, func() error {
				return e.store.Update(ctx, row, values, models.WildcardVersion)
			})
			if err == nil {
				res.Updated++
			}
		case e.opts.SkipMissing:
			entry.Warnf("No row for %s, skipping", key)
			res.Skipped++
			continue
		default:
			entry.Debug("Inserting row")
			err = e.withRetry(ctx, entry, &res, func() error {
				return e.store.Insert(ctx, table, values)
			})
			if err == nil {
				res.Inserted++
			}
		}

		if err != nil {
			return res, errs.WithMetadata(err, map[string]any{"tank": key, "record": i + 1})
		}
	}

	log.Infof("Pass complete: %d updated, %d inserted, %d skipped", res.Updated, res.Inserted, res.Skipped)
	return res, nil
}

// withRetry runs write until it succeeds, fails with anything but a version
// conflict, or the attempt budget runs out.
func (e *Engine) withRetry(ctx context.Context, entry *logrus.Entry, res *Result, write func() error) error {
	var err error
	for remaining := e.opts.MaxAttempts; remaining > 0; remaining-- {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		res.Attempts++
		err = write()
		if err == nil || !errs.IsConflict(err) {
			return err
		}
		entry.Warnf("Version conflict, %d attempts left: %v", remaining-1, err)
	}
	return errs.Conflict(err, fmt.Sprintf("write still conflicting after %d attempts", e.opts.MaxAttempts))
}

// mappedValues projects rec onto physical columns. Fields missing from the
// record or from the mapping are left out.
func mappedValues(rec models.Record, mapping models.ColumnMapping) map[string]string {
	values := make(map[string]string, len(rec))
	for field, v := range rec {
		if column, ok := mapping[field]; ok {
			values[column] = v
		}
	}
	return values
}

func findRow(snapshot []models.RemoteRow, keyColumn, key string) (models.RemoteRow, bool) {
	for _, row := range snapshot {
		if row.Values[keyColumn] == key {
			return row, true
		}
	}
	return models.RemoteRow{}, false
}
