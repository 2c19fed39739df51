package main

import (
	"context"
	"fmt"

	"tank-location-sync/internal/credential"
	imapclient "tank-location-sync/internal/imap"
	"tank-location-sync/internal/journal"
	"tank-location-sync/internal/logging"
	"tank-location-sync/internal/mailbox"
	"tank-location-sync/internal/models"
	"tank-location-sync/internal/report"
	"tank-location-sync/internal/sheets"
	"tank-location-sync/internal/smtp"
	"tank-location-sync/internal/workflow"
)

// app builds collaborators on demand so commands only touch what they use
type app struct {
	ctx context.Context
	cfg *models.Config

	store   *sheets.Store
	journal *journal.Journal
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logging.Log.Warnf("Error closing journal: %v", err)
		}
		a.journal = nil
	}
}

func (a *app) ledger() (*sheets.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	api, err := sheets.NewGoogleAPI(a.ctx, a.cfg.Google.CredentialsFile)
	if err != nil {
		return nil, err
	}
	a.store = sheets.NewStore(api, a.cfg.Workflow.ControlRow)
	return a.store, nil
}

func (a *app) mail() (*mailbox.Transport, error) {
	email := a.cfg.Email
	password, err := credential.ResolvePassword(email.Password, email.Login, credential.Get)
	if err != nil {
		return nil, err
	}
	email.Password = password

	sender := smtp.NewSender(email.Smtp, email.Login, email.Password, email.SmtpTLS)
	newClient := func() imapclient.Client { return imapclient.NewStandardClient() }
	return mailbox.NewTransport(email, a.cfg.Workflow.Marker, newClient, sender), nil
}

func (a *app) orchestrator() (*workflow.Orchestrator, error) {
	store, err := a.ledger()
	if err != nil {
		return nil, err
	}
	mail, err := a.mail()
	if err != nil {
		return nil, err
	}
	wf := a.cfg.Workflow
	return workflow.New(wf, a.cfg.Export, mail, store,
		report.Delimited{Delimiter: wf.Delimiter},
		report.Overlay{BaselineKey: wf.TankKey, ReportKey: wf.ResultKey},
		workflow.SystemClock{},
	), nil
}

func (a *app) runJournal() (*journal.Journal, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	j, err := journal.Open(a.cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	a.journal = j
	return j, nil
}

// record journals command around fn. A journal that cannot be opened is
// logged and does not stop the command.
func (a *app) record(command string, fn func() (journal.Counts, error)) error {
	j, err := a.runJournal()
	if err != nil {
		logging.Log.Warnf("Journal unavailable: %v", err)
		_, runErr := fn()
		return runErr
	}

	id, err := j.Begin(a.ctx, command)
	if err != nil {
		logging.Log.Warnf("Could not journal %s: %v", command, err)
		_, runErr := fn()
		return runErr
	}

	counts, runErr := fn()
	// the run context may be cancelled already, the outcome is still recorded
	if err := j.Finish(context.WithoutCancel(a.ctx), id, counts, runErr); err != nil {
		logging.Log.Warnf("Could not journal the end of %s: %v", command, err)
	}
	if runErr != nil {
		return fmt.Errorf("%s: %w", command, runErr)
	}
	return nil
}
