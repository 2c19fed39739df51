package workflow

import (
	"context"

	"tank-location-sync/internal/errs"
	"tank-location-sync/internal/models"
)

// Summary counts what a reconcile step wrote
type Summary struct {
	Messages int
	Updated  int
	Inserted int
}

// Reconcile writes every qualifying report into the result table.
//
// Reports are listed oldest first and processed newest first, each in its own
// upsert pass, so on a tank present in several reports the oldest one is
// written last and wins.
func (o *Orchestrator) Reconcile(ctx context.Context) (Summary, error) {
	o.setState(StateReconcile)
	var sum Summary

	baseline, err := o.store.ReadRecords(ctx, o.cfg.Tanks)
	if err != nil {
		return sum, err
	}
	fields, err := o.store.ReadFieldSet(ctx, o.cfg.Columns)
	if err != nil {
		return sum, err
	}

	messages, err := o.mail.List(ctx, o.cfg.Marker, o.cutoff())
	if err != nil {
		return sum, err
	}
	o.log.Infof("Reconciling %d reports against %d tanks", len(messages), len(baseline))

	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		entry := o.log.WithField("trace_id", msg.TraceID).WithField("uid", msg.UID)

		parsed, err := o.parser.Parse(msg.Body)
		if err != nil {
			entry.Errorf("Parsing report %q failed: %v", msg.Subject, err)
			return sum, errs.WithMetadata(err, map[string]any{"uid": msg.UID, "subject": msg.Subject})
		}
		merged := o.merger.Merge(baseline, parsed)
		entry.Infof("Report %q: %d rows, %d known tanks", msg.Subject, len(parsed), len(merged))

		res, err := o.engine.Upsert(ctx, o.cfg.Result, o.cfg.ResultKey, fields, merged)
		sum.Updated += res.Updated
		sum.Inserted += res.Inserted
		if err != nil {
			entry.Errorf("Writing report %q failed: %v", msg.Subject, err)
			return sum, errs.WithMetadata(err, map[string]any{"uid": msg.UID, "subject": msg.Subject})
		}
		sum.Messages++
	}
	return sum, nil
}

// Latest parses the newest qualifying report without writing anything
func (o *Orchestrator) Latest(ctx context.Context) (*models.Message, []models.Record, error) {
	messages, err := o.mail.List(ctx, o.cfg.Marker, o.cutoff())
	if err != nil {
		return nil, nil, err
	}
	if len(messages) == 0 {
		return nil, nil, errs.NotFound("no report with " + o.cfg.Marker + " in the freshness window")
	}
	msg := messages[len(messages)-1]
	records, err := o.parser.Parse(msg.Body)
	if err != nil {
		return &msg, nil, err
	}
	return &msg, records, nil
}
