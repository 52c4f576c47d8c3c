package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"centsible/internal/core"
	applog "centsible/internal/log"
	"centsible/internal/services"
)

// Scanner is the part of services.DriftScanner the drift worker drives.
type Scanner interface {
	Scan(ctx context.Context) ([]services.ReconcileResult, error)
}

// EventPublisher sends repair requests to the process that owns the guard.
type EventPublisher interface {
	Publish(ctx context.Context, event core.LedgerEvent) error
}

// DriftWorker scans the ledger on a schedule and publishes a
// balance.repair_requested event for every drifted user. It never writes
// balances itself.
type DriftWorker struct {
	scanner   Scanner
	publisher EventPublisher
	config    Config
	now       func() time.Time
	logger    *applog.Logger

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
}

func NewDriftWorker(scanner Scanner, publisher EventPublisher, config Config, logger *applog.Logger) *DriftWorker {
	if config.Schedule == "" {
		config.Schedule = "@every 5m"
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentWorker)
	}
	return &DriftWorker{
		scanner:   scanner,
		publisher: publisher,
		config:    config,
		now:       time.Now,
		logger:    logger.WithComponent(applog.ComponentWorker),
	}
}

// Start registers the schedule. Returns an error if already running or if
// the schedule does not parse.
func (w *DriftWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("drift worker is already running")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.logger})))
	if _, err := c.AddFunc(w.config.Schedule, func() { w.Sweep(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule drift scan %q: %w", w.config.Schedule, err)
	}

	if w.config.SweepOnStart {
		w.Sweep(runCtx)
	}
	c.Start()

	w.cron = c
	w.cancel = cancel
	w.running = true

	w.logger.InfoContext(ctx, "Drift worker started",
		applog.FieldOperation, applog.OpStartup,
		"schedule", w.config.Schedule)
	return nil
}

// Stop halts the schedule and waits for an in-flight scan.
func (w *DriftWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	c, cancel := w.cron, w.cancel
	w.running = false
	w.mu.Unlock()

	jobsDone := c.Stop()
	cancel()

	select {
	case <-jobsDone.Done():
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Drift worker stop timed out")
		return ctx.Err()
	}
	w.logger.InfoContext(ctx, "Drift worker stopped gracefully", applog.FieldOperation, applog.OpShutdown)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *DriftWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Sweep scans once and returns how many repair requests were published.
func (w *DriftWorker) Sweep(ctx context.Context) int {
	drifted, err := w.scanner.Scan(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Drift scan incomplete", applog.FieldError, err)
	}

	requested := 0
	for _, res := range drifted {
		err := w.publisher.Publish(ctx, core.LedgerEvent{
			Type:         core.EventBalanceRepairRequested,
			UserID:       res.UserID,
			BalanceCents: res.Stored.Cents,
			OccurredAt:   w.now().UTC(),
		})
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to request balance repair",
				applog.FieldUserID, res.UserID,
				applog.FieldError, err)
			continue
		}
		requested++
	}
	w.logger.InfoContext(ctx, "Drift sweep completed",
		applog.FieldOperation, applog.OpReconcile,
		"drifted", len(drifted),
		"requested", requested)
	return requested
}
