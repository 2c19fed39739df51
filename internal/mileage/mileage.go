// Package mileage writes tank mileage readings into the result table. Only
// tanks already in the table are touched.
package mileage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"tank-location-sync/internal/errs"
	"tank-location-sync/internal/logging"
	"tank-location-sync/internal/models"
	"tank-location-sync/internal/upsert"
)

// TimestampLayout formats the "updated at" column
const TimestampLayout = "02.01.2006 15:04:05"

// Entry is one mileage reading
type Entry struct {
	Tank    string
	Mileage string
	Date    string
	Rest    string
}

// ParseCSV reads tank,mileage,date,rest rows. A leading header row is skipped.
func ParseCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var entries []Entry
	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Parse(err, "reading mileage csv")
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "tank") {
			continue
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) != 4 {
			return nil, errs.Parse(nil, fmt.Sprintf("mileage line %d has %d fields, want 4", line, len(row)))
		}
		e := Entry{
			Tank:    strings.TrimSpace(row[0]),
			Mileage: strings.TrimSpace(row[1]),
			Date:    strings.TrimSpace(row[2]),
			Rest:    strings.TrimSpace(row[3]),
		}
		if e.Tank == "" {
			return nil, errs.Parse(nil, fmt.Sprintf("mileage line %d has no tank", line))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Store is the ledger access the writer needs
type Store interface {
	upsert.Store
	ReadFieldSet(ctx context.Context, table models.TableRef) (models.FieldSet, error)
}

type Writer struct {
	store   Store
	flow    models.WorkflowConfig
	columns models.MileageConfig
	now     func() time.Time
}

func NewWriter(store Store, flow models.WorkflowConfig, columns models.MileageConfig) *Writer {
	return &Writer{
		store:   store,
		flow:    flow,
		columns: columns,
		now:     time.Now,
	}
}

// Write updates the mileage columns of every known tank in entries
func (w *Writer) Write(ctx context.Context, entries []Entry) (upsert.Result, error) {
	fields, err := w.store.ReadFieldSet(ctx, w.flow.Columns)
	if err != nil {
		return upsert.Result{}, err
	}

	stamp := w.now().Format(TimestampLayout)
	records := make([]models.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, models.Record{
			w.flow.ResultKey:    e.Tank,
			w.columns.Current:   e.Mileage,
			w.columns.Date:      e.Date,
			w.columns.Rest:      e.Rest,
			w.columns.UpdatedAt: stamp,
		})
	}

	engine := upsert.NewEngine(w.store, upsert.Options{MaxAttempts: w.flow.MaxAttempts, SkipMissing: true})
	res, err := engine.Upsert(ctx, w.flow.Result, w.flow.ResultKey, fields, records)
	if err != nil {
		return res, err
	}
	logging.Log.Infof("Mileage written for %d tanks, %d unknown", res.Updated, res.Skipped)
	return res, nil
}
