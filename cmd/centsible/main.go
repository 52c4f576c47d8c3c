package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"centsible/internal/cli"
	"centsible/internal/guard"
	apphttp "centsible/internal/http"
	applog "centsible/internal/log"
	"centsible/internal/services"
	"centsible/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	// Every mutation of a user or goal in this process goes through the same guard.
	g := guard.New()
	reconciler := services.NewReconciler(result.Backend, g, services.ReconcilerConfig{
		Parallelism: cfg.ReconcileParallelism,
		Logger:      logger,
	})
	recorder := services.NewTransactionRecorder(result.Backend, g, services.RecorderConfig{
		Retry:     services.RetryPolicy{Attempts: cfg.BalanceWriteAttempts, Backoff: cfg.BalanceRetryBackoff},
		Publisher: result.Publisher(),
		Repairs:   reconciler,
		Logger:    logger,
	})
	goals := services.NewGoalManager(result.Backend, g, services.GoalConfig{
		Publisher: result.Publisher(),
		Logger:    logger,
	})

	// Balances are only written here, under g. Repair requests published by
	// cmd/reconcile-worker are consumed by this process too.
	var consumer worker.EventConsumer
	if result.Events != nil {
		consumer = result.Events
	}
	reconcileWorker := worker.NewReconcileWorker(reconciler, consumer, worker.Config{
		Schedule:     cfg.ReconcileSchedule,
		SweepOnStart: true,
	}, logger)
	if err := reconcileWorker.Start(context.Background()); err != nil {
		logger.Error("Failed to start reconcile worker", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, recorder, goals, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Ready:              result.Ready,
		Logger:             logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := reconcileWorker.Stop(ctx); err != nil {
			logger.Error("Reconcile worker shutdown error", applog.FieldError, err)
		}
	})

	logger.Info("Starting centsible server",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", result.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
