package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"expenses/internal/amqp"
	"expenses/internal/backend"
	"expenses/internal/cli"
	"expenses/internal/config"
	"expenses/internal/identity"
	"expenses/internal/ledger"
	"expenses/internal/log"
	gsheet "expenses/internal/sheets/google"
	"expenses/internal/worker"
)

func main() {
	backfill := flag.String("backfill", "", "comma-separated identities whose ledgers are copied to the sheet before consuming")
	flag.Parse()

	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err == nil {
		err = cfg.ValidateWorker()
	}
	if err != nil {
		cli.SetupLogger("info").Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentWorker)
	logger.Info("Starting ledger-worker", log.FieldOperation, log.OpStartup)

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	sheetsClient, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	syncWorker := worker.NewSyncWorker(sheetsClient, sheetsClient)

	if names := splitNames(*backfill); len(names) > 0 {
		if err := runBackfill(ctx, logger, cfg, syncWorker, names); err != nil {
			logger.Error("Backfill failed", log.FieldError, err)
			os.Exit(1)
		}
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeExpenseRecorded(gctx, syncWorker.HandleRecorded)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully", log.FieldOperation, log.OpShutdown)
}

// runBackfill opens each named ledger from the configured store and appends
// the records the sheet is missing.
func runBackfill(ctx context.Context, logger *log.Logger, cfg *config.Config, w *worker.SyncWorker, names []string) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	store, err := backend.NewFactory(logger.Logger).CreateStore(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, name := range names {
		id, err := identity.Normalize(name)
		if err != nil {
			return err
		}
		l, err := ledger.Open(ctx, store.Store, id)
		if err != nil {
			return err
		}
		n, err := w.Backfill(ctx, id, l.Records())
		if err != nil {
			return err
		}
		logger.Info("Backfilled identity", log.FieldIdentity, id.String(), "appended", n)
	}
	return nil
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
