package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/analytics"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/insights"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	memsheet "fintrack/internal/sheets/memory"
	"fintrack/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	// Setup structured logging
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting fintrack-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	// The worker reads sync state from the same SQLite file the API writes.
	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	mirror := newMirror(cfg, logger)

	// Initialize AMQP client for consuming messages
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	workerLogger := logger.WithComponent(log.ComponentWorker)
	syncWorker := worker.NewSyncWorker(sqliteRepo, mirror,
		worker.WithInsights(insights.NewGenerator(analytics.NewEngine(), insights.WithLogger(logger.WithComponent(log.ComponentInsights)))),
		worker.WithMetrics(metrics.New()),
		worker.WithLogger(workerLogger),
		worker.WithBatchSize(cfg.SyncBatchSize),
	)

	scheduler := worker.NewScheduler(syncWorker, logger.WithComponent(log.ComponentScheduler))

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
	})

	// On startup, process any pending transactions that might have been missed
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err)
		// Don't exit - continue with normal operation
	}

	if err := scheduler.Start(cfg.SyncSchedule, cfg.DigestSchedule); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		os.Exit(1)
	}

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- amqpClient.ConsumeTransactionSync(ctx, syncWorker.HandleMessage)
	}()

	select {
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			scheduler.Stop()
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

// newMirror connects to the configured spreadsheet, or keeps rows in memory
// when none is set so the sync state machine still runs.
func newMirror(cfg *config.Config, logger *log.Logger) sheets.Mirror {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
		return memsheet.New()
	}

	client, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client
}
