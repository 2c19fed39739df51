package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tank-location-sync/internal/config"
	"tank-location-sync/internal/logging"

	"github.com/alecthomas/kong"
)

type cli struct {
	Config string `help:"Path to the YAML configuration." default:"config.yaml" type:"path" short:"c"`

	Send        sendCmd        `cmd:"" help:"Mail the tank list to the report service."`
	Check       checkCmd       `cmd:"" help:"Count replies against a number of sent requests, re-sending once if short."`
	Reconcile   reconcileCmd   `cmd:"" help:"Write qualifying reports into the result table."`
	Export      exportCmd      `cmd:"" help:"Export the result spreadsheet and mail it."`
	Full        fullCmd        `cmd:"" help:"Run send, wait, check, reconcile and export."`
	Latest      latestCmd      `cmd:"" help:"Print the rows of the newest qualifying report."`
	Mileage     mileageCmd     `cmd:"" help:"Write mileage readings from a CSV file."`
	History     historyCmd     `cmd:"" help:"Show recent runs from the journal."`
	SetPassword setPasswordCmd `cmd:"" name:"set-password" help:"Store the mailbox password in the system keyring."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("locationsync"),
		kong.Description("Tank location report reconciliation."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(c.Config)
	if err != nil {
		logging.Log.Fatalf("Error reading configuration file: %v", err)
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		logging.Log.Fatalf("Invalid log level %q: %v", cfg.LogLevel, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{ctx: ctx, cfg: cfg}
	defer a.close()

	if err := kctx.Run(a); err != nil {
		logging.Log.Errorf("%s failed: %v", kctx.Command(), err)
		a.close()
		os.Exit(1)
	}
}
