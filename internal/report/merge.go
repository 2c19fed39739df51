package report

import (
	"strings"

	"tank-location-sync/internal/models"
)

// Merger combines the tank list with freshly parsed report rows
type Merger interface {
	Merge(baseline, parsed []models.Record) []models.Record
}

// Overlay keeps the tank list as the source of truth for which tanks exist.
// For every baseline tank reported in parsed, the report fields are laid over
// the baseline fields. Reported tanks that are not in the baseline are dropped.
type Overlay struct {
	BaselineKey string // key field of the tank list
	ReportKey   string // key field of parsed rows and of the merged result
}

func (o Overlay) Merge(baseline, parsed []models.Record) []models.Record {
	byKey := make(map[string]models.Record, len(parsed))
	for _, rec := range parsed {
		key := normalizeKey(rec[o.ReportKey])
		if key == "" {
			continue
		}
		byKey[key] = rec
	}

	merged := make([]models.Record, 0, len(byKey))
	for _, base := range baseline {
		key := normalizeKey(base[o.BaselineKey])
		update, ok := byKey[key]
		if !ok {
			continue
		}
		out := base.Clone()
		if o.BaselineKey != o.ReportKey {
			delete(out, o.BaselineKey)
		}
		for field, v := range update {
			out[field] = v
		}
		out[o.ReportKey] = key
		merged = append(merged, out)
	}
	return merged
}

func normalizeKey(v string) string {
	return strings.TrimSpace(v)
}
