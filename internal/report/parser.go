// Package report turns dislocation report bodies into records and merges them
// with the tank list.
package report

import (
	"fmt"
	"strings"

	"tank-location-sync/internal/errs"
	"tank-location-sync/internal/models"
)

// Parser extracts rows from a report body
type Parser interface {
	Parse(text string) ([]models.Record, error)
}

// Delimited parses reports laid out as a delimited table. The first line
// containing the delimiter is the header; every later line containing it is
// a row. Other lines (greetings, signatures) are ignored.
type Delimited struct {
	Delimiter string
}

func (d Delimited) Parse(text string) ([]models.Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.Parse(nil, "empty report")
	}
	delim := d.Delimiter
	if delim == "" {
		delim = ";"
	}

	var header []string
	var records []models.Record
	for n, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if !strings.Contains(line, delim) {
			continue
		}
		cells := splitCells(line, delim)

		if header == nil {
			header = cells
			continue
		}
		if len(cells) > len(header) && strings.TrimSpace(strings.Join(cells[len(header):], "")) != "" {
			return nil, errs.Parse(nil, fmt.Sprintf("line %d has %d cells, header has %d", n+1, len(cells), len(header)))
		}

		rec := models.Record{}
		for i, v := range cells {
			if i >= len(header) || header[i] == "" || v == "" {
				continue
			}
			rec[header[i]] = v
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}

	if header == nil {
		return nil, errs.Parse(nil, "no table found in report")
	}
	return records, nil
}

func splitCells(line, delim string) []string {
	cells := strings.Split(line, delim)
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}
