package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"centsible/internal/amqp"
	"centsible/internal/core"
	applog "centsible/internal/log"
	"centsible/internal/services"
)

// Reconciler is the part of services.Reconciler the worker drives.
type Reconciler interface {
	Reconcile(ctx context.Context, userID int64) (services.ReconcileResult, error)
	ReconcilePending(ctx context.Context) ([]services.ReconcileResult, error)
	ReconcileAll(ctx context.Context) ([]services.ReconcileResult, error)
}

// EventConsumer delivers ledger events until ctx is done.
type EventConsumer interface {
	ConsumeLedgerEvents(ctx context.Context, handler amqp.EventHandler) error
}

// Config holds configuration for the reconcile worker
type Config struct {
	// Schedule is a cron spec or descriptor (default: "@every 5m")
	Schedule string
	// SweepOnStart runs one sweep before the first scheduled tick
	SweepOnStart bool
}

// ReconcileWorker periodically heals drifted balances and reacts to
// balance.repair_requested events as they arrive.
type ReconcileWorker struct {
	reconciler Reconciler
	consumer   EventConsumer
	config     Config
	logger     *applog.Logger

	// Lifecycle management
	mu       sync.Mutex
	running  bool
	cron     *cron.Cron
	cancel   context.CancelFunc
	consumed chan struct{}
}

// NewReconcileWorker creates a worker. consumer may be nil, in which case
// only the schedule drives reconciliation.
func NewReconcileWorker(reconciler Reconciler, consumer EventConsumer, config Config, logger *applog.Logger) *ReconcileWorker {
	if config.Schedule == "" {
		config.Schedule = "@every 5m"
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentWorker)
	}
	return &ReconcileWorker{
		reconciler: reconciler,
		consumer:   consumer,
		config:     config,
		logger:     logger.WithComponent(applog.ComponentWorker),
	}
}

// Start registers the schedule and the consumer. Returns an error if
// already running or if the schedule does not parse.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("reconcile worker is already running")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.logger})))
	if _, err := c.AddFunc(w.config.Schedule, func() { w.Sweep(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule reconcile sweep %q: %w", w.config.Schedule, err)
	}

	if w.config.SweepOnStart {
		w.Sweep(runCtx)
	}
	c.Start()

	w.cron = c
	w.cancel = cancel
	w.consumed = make(chan struct{})
	w.running = true

	if w.consumer != nil {
		go w.consume(runCtx, w.consumed)
	} else {
		close(w.consumed)
	}

	w.logger.InfoContext(ctx, "Reconcile worker started",
		applog.FieldOperation, applog.OpStartup,
		"schedule", w.config.Schedule,
		"consumer", w.consumer != nil)
	return nil
}

// Stop halts the schedule and the consumer and waits for in-flight work.
func (w *ReconcileWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	c, cancel, consumed := w.cron, w.cancel, w.consumed
	w.running = false
	w.mu.Unlock()

	jobsDone := c.Stop()
	cancel()

	for _, done := range []<-chan struct{}{jobsDone.Done(), consumed} {
		select {
		case <-done:
		case <-ctx.Done():
			w.logger.WarnContext(ctx, "Reconcile worker stop timed out")
			return ctx.Err()
		}
	}
	w.logger.InfoContext(ctx, "Reconcile worker stopped gracefully", applog.FieldOperation, applog.OpShutdown)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *ReconcileWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Sweep drains the pending set, then checks every user.
func (w *ReconcileWorker) Sweep(ctx context.Context) {
	pending, err := w.reconciler.ReconcilePending(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Pending reconcile failed", applog.FieldError, err)
	}
	all, err := w.reconciler.ReconcileAll(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Full reconcile failed", applog.FieldError, err)
	}

	repaired := 0
	for _, res := range append(pending, all...) {
		if res.Repaired {
			repaired++
		}
	}
	w.logger.InfoContext(ctx, "Reconcile sweep completed",
		applog.FieldOperation, applog.OpReconcile,
		"pending_checked", len(pending),
		"users_checked", len(all),
		"repaired", repaired)
}

// HandleEvent reconciles the user named by a repair request and ignores
// every other event type.
func (w *ReconcileWorker) HandleEvent(ctx context.Context, event core.LedgerEvent) error {
	if event.Type != core.EventBalanceRepairRequested {
		return nil
	}
	res, err := w.reconciler.Reconcile(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			w.logger.WarnContext(ctx, "Repair requested for unknown user", applog.FieldUserID, event.UserID)
			return nil
		}
		return fmt.Errorf("reconcile user %d: %w", event.UserID, err)
	}
	w.logger.InfoContext(ctx, "Repair request processed",
		applog.FieldUserID, event.UserID,
		applog.FieldTransactionID, event.TransactionID,
		"repaired", res.Repaired,
		applog.FieldBalanceCents, res.Recomputed.Cents)
	return nil
}

func (w *ReconcileWorker) consume(ctx context.Context, done chan struct{}) {
	defer close(done)
	if err := w.consumer.ConsumeLedgerEvents(ctx, w.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.ErrorContext(ctx, "Event consumer stopped", applog.FieldError, err)
	}
}

// cronLogger adapts applog.Logger to cron.Logger.
type cronLogger struct {
	logger *applog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, applog.FieldError, err)...)
}
