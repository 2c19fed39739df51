// Package workflow runs the reconciliation saga: request reports for every
// tank, wait for the replies, write them into the ledger and mail out the
// exported spreadsheet.
//
// Nothing is persisted between runs. A restarted run starts over from the
// first step and relies on key matching in the ledger to avoid duplicates.
package workflow

import (
	"context"
	"io"
	"time"

	"tank-location-sync/internal/logging"
	"tank-location-sync/internal/models"
	"tank-location-sync/internal/report"
	"tank-location-sync/internal/upsert"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateInit       State = "init"
	StateSendBatch  State = "send_batch"
	StateWait       State = "wait"
	StateCheckCount State = "check_count"
	StateReSendOnce State = "resend_once"
	StateReconcile  State = "reconcile"
	StateExport     State = "export"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Mail is the mailbox side of a run
type Mail interface {
	List(ctx context.Context, subjectContains string, receivedAfter time.Time) ([]models.Message, error)
	Send(ctx context.Context, text string) error
	SendWithAttachment(ctx context.Context, path, recipient, subject, body string) error
}

// Store is the ledger side of a run
type Store interface {
	upsert.Store
	ReadRecords(ctx context.Context, table models.TableRef) ([]models.Record, error)
	ReadFieldSet(ctx context.Context, table models.TableRef) (models.FieldSet, error)
	ListFiles(ctx context.Context) ([]models.ExportableFile, error)
	Download(ctx context.Context, link string, w io.Writer) error
}

// Outcome summarises a full run
type Outcome struct {
	RunID    string
	Sent     int
	Resent   bool
	Messages int
	Updated  int
	Inserted int
	Exported string
}

type Orchestrator struct {
	cfg    models.WorkflowConfig
	export models.ExportConfig
	mail   Mail
	store  Store
	engine *upsert.Engine
	parser report.Parser
	merger report.Merger
	clock  Clock

	runID string
	state State
	log   *logrus.Entry
}

// New wires an Orchestrator. Every collaborator is required.
func New(cfg models.WorkflowConfig, export models.ExportConfig, mail Mail, store Store,
	parser report.Parser, merger report.Merger, clock Clock) *Orchestrator {
	runID := uuid.New().String()
	return &Orchestrator{
		cfg:    cfg,
		export: export,
		mail:   mail,
		store:  store,
		engine: upsert.NewEngine(store, upsert.Options{MaxAttempts: cfg.MaxAttempts}),
		parser: parser,
		merger: merger,
		clock:  clock,
		runID:  runID,
		state:  StateInit,
		log:    logging.Log.WithField("run_id", runID),
	}
}

func (o *Orchestrator) RunID() string { return o.runID }
func (o *Orchestrator) State() State  { return o.state }

func (o *Orchestrator) setState(s State) {
	o.log.WithField("state", string(s)).Debugf("State %s -> %s", o.state, s)
	o.state = s
	o.log = o.log.WithField("state", string(s))
}

// Run executes the whole saga. Any error aborts the run in the failed state.
func (o *Orchestrator) Run(ctx context.Context) (Outcome, error) {
	out := Outcome{RunID: o.runID}

	fail := func(err error) (Outcome, error) {
		o.log.Errorf("Run failed: %v", err)
		o.setState(StateFailed)
		return out, err
	}

	sent, err := o.SendBatch(ctx)
	out.Sent = sent
	if err != nil {
		return fail(err)
	}
	o.Wait()

	resent, err := o.CheckCount(ctx, sent)
	out.Resent = resent
	if err != nil {
		return fail(err)
	}

	summary, err := o.Reconcile(ctx)
	out.Messages = summary.Messages
	out.Updated = summary.Updated
	out.Inserted = summary.Inserted
	if err != nil {
		return fail(err)
	}

	title, err := o.Export(ctx)
	if err != nil {
		return fail(err)
	}
	out.Exported = title

	o.setState(StateDone)
	o.log.Infof("Run complete: %d requests, %d reports, %d updated, %d inserted", out.Sent, out.Messages, out.Updated, out.Inserted)
	return out, nil
}
