package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"tank-location-sync/internal/credential"
	"tank-location-sync/internal/journal"
	"tank-location-sync/internal/logging"
	"tank-location-sync/internal/mileage"

	"golang.org/x/term"
)

type sendCmd struct{}

func (sendCmd) Run(a *app) error {
	o, err := a.orchestrator()
	if err != nil {
		return err
	}
	return a.record("send", func() (journal.Counts, error) {
		sent, err := o.SendBatch(a.ctx)
		return journal.Counts{Sent: sent}, err
	})
}

type checkCmd struct {
	Sent int `arg:"" help:"Number of request messages sent."`
}

func (c checkCmd) Run(a *app) error {
	o, err := a.orchestrator()
	if err != nil {
		return err
	}
	return a.record("check", func() (journal.Counts, error) {
		resent, err := o.CheckCount(a.ctx, c.Sent)
		return journal.Counts{Sent: c.Sent, Resent: resent}, err
	})
}

type reconcileCmd struct{}

func (reconcileCmd) Run(a *app) error {
	o, err := a.orchestrator()
	if err != nil {
		return err
	}
	return a.record("reconcile", func() (journal.Counts, error) {
		sum, err := o.Reconcile(a.ctx)
		return journal.Counts{Messages: sum.Messages, Updated: sum.Updated, Inserted: sum.Inserted}, err
	})
}

type exportCmd struct{}

func (exportCmd) Run(a *app) error {
	o, err := a.orchestrator()
	if err != nil {
		return err
	}
	return a.record("export", func() (journal.Counts, error) {
		_, err := o.Export(a.ctx)
		return journal.Counts{}, err
	})
}

type fullCmd struct{}

func (fullCmd) Run(a *app) error {
	o, err := a.orchestrator()
	if err != nil {
		return err
	}
	logging.Log.WithField("run_id", o.RunID()).Info("Starting full run")
	return a.record("full", func() (journal.Counts, error) {
		out, err := o.Run(a.ctx)
		return journal.Counts{
			Sent:     out.Sent,
			Resent:   out.Resent,
			Messages: out.Messages,
			Updated:  out.Updated,
			Inserted: out.Inserted,
		}, err
	})
}

type latestCmd struct{}

func (latestCmd) Run(a *app) error {
	o, err := a.orchestrator()
	if err != nil {
		return err
	}
	msg, records, err := o.Latest(a.ctx)
	if err != nil {
		return err
	}

	fmt.Printf("UID %d, %q, received %s\n", msg.UID, msg.Subject, msg.ReceivedAt.Format(time.RFC3339))
	for i, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+rec[k])
		}
		fmt.Printf("%4d  %s\n", i+1, strings.Join(pairs, "  "))
	}
	return nil
}

type mileageCmd struct {
	File string `arg:"" type:"existingfile" help:"CSV with tank,mileage,date,rest rows."`
}

func (c mileageCmd) Run(a *app) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	entries, err := mileage.ParseCSV(f)
	if err != nil {
		return err
	}
	store, err := a.ledger()
	if err != nil {
		return err
	}

	w := mileage.NewWriter(store, a.cfg.Workflow, a.cfg.Mileage)
	return a.record("mileage", func() (journal.Counts, error) {
		res, err := w.Write(a.ctx, entries)
		return journal.Counts{Updated: res.Updated}, err
	})
}

type historyCmd struct {
	Limit int `help:"Number of runs to show." default:"20" short:"n"`
}

func (c historyCmd) Run(a *app) error {
	j, err := a.runJournal()
	if err != nil {
		return err
	}
	entries, err := j.Recent(a.ctx, c.Limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tCOMMAND\tSTATUS\tSENT\tRESENT\tREPORTS\tUPDATED\tINSERTED\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%d\t%d\t%d\t%s\n",
			e.StartedAt.Local().Format("02.01.2006 15:04:05"), e.Command, e.Status,
			e.Sent, e.Resent, e.Messages, e.Updated, e.Inserted, e.Error)
	}
	return tw.Flush()
}

type setPasswordCmd struct{}

func (setPasswordCmd) Run(a *app) error {
	login := a.cfg.Email.Login
	fmt.Printf("Mailbox password for %s: ", login)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if len(password) == 0 {
		return fmt.Errorf("empty password")
	}
	if err := credential.Set(credential.MailKey(login), string(password)); err != nil {
		return err
	}
	logging.Log.Infof("Password for %s stored in keyring", login)
	return nil
}
