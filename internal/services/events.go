package services

import (
	"context"

	"centsible/internal/core"
	"centsible/internal/guard"
	"centsible/internal/ledger"
	applog "centsible/internal/log"
)

// EventPublisher receives ledger events after a mutation committed.
// Implemented by amqp.Client.
type EventPublisher interface {
	Publish(ctx context.Context, event core.LedgerEvent) error
}

// RepairScheduler records users whose stored balance may have drifted.
// Implemented by Reconciler.
type RepairScheduler interface {
	MarkPending(userID int64)
}

// LedgerReader is the read-only view of the ledger used to detect drift.
type LedgerReader interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error)
}

// LedgerStore is what the recorder and the reconciler need from persistence.
type LedgerStore interface {
	ledger.Store
	ledger.UserDirectory
	ledger.TransactionLister
}

// GoalStore is what the goal manager needs from persistence.
type GoalStore interface {
	ledger.Store
	ledger.GoalWriter
	ledger.GoalLister
}

// publish sends event when a publisher is configured. Failures are logged
// and never returned: the mutation has already committed.
func publish(ctx context.Context, p EventPublisher, logger *applog.Logger, event core.LedgerEvent) {
	if p == nil {
		logger.DebugContext(ctx, "Event publisher not configured, skipping event", "event", string(event.Type))
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish ledger event",
			"event", string(event.Type),
			applog.FieldUserID, event.UserID,
			applog.FieldError, err)
	}
}

// lockDetached acquires key and returns a context that is no longer tied to
// the caller's cancellation, so an admitted mutation always runs to the end.
func lockDetached(ctx context.Context, g *guard.Guard, key string) (context.Context, func(), error) {
	release, err := g.Lock(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return context.WithoutCancel(ctx), release, nil
}
