package main

import (
	"context"
	"os"
	"time"

	"centsible/internal/backend"
	"centsible/internal/cli"
	applog "centsible/internal/log"
	"centsible/internal/services"
	"centsible/internal/worker"
)

// reconcile-worker scans a shared store for balance drift and asks the
// server to repair it over AMQP. Balances are written only by the server,
// under its guard.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting reconcile-worker", applog.FieldOperation, applog.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == backend.MemoryBackend.String() {
		logger.Error("The memory backend is private to the server process, use sqlite or postgres")
		os.Exit(1)
	}

	result := cli.InitBackend(context.Background(), logger, cfg)
	defer result.Cleanup()

	if result.Events == nil {
		logger.Error("AMQP_URL is required: repair requests are delivered to the server over AMQP")
		result.Cleanup()
		os.Exit(1)
	}

	scanner := services.NewDriftScanner(result.Backend, services.DriftScannerConfig{
		Parallelism: cfg.ReconcileParallelism,
		Logger:      logger,
	})
	w := worker.NewDriftWorker(scanner, result.Events, worker.Config{
		Schedule:     cfg.ReconcileSchedule,
		SweepOnStart: true,
	}, logger)
	if err := w.Start(context.Background()); err != nil {
		logger.Error("Failed to start drift worker", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := w.Stop(ctx); err != nil {
			logger.Error("Drift worker shutdown error", applog.FieldError, err)
		}
	})
	cli.WaitForShutdown(ctx, done)
	logger.Info("reconcile-worker stopped")
}
