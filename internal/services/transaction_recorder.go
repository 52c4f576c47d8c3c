package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"centsible/internal/core"
	"centsible/internal/guard"
	"centsible/internal/ledger"
	applog "centsible/internal/log"
)

// RecordRequest is a validated-on-entry request to append a transaction.
// A zero Date means "today" according to the recorder's clock.
type RecordRequest struct {
	UserID      int64
	Type        core.TransactionType
	Amount      core.Money
	Category    string
	Date        core.Date
	Description string
}

// RecorderConfig holds the optional collaborators of a TransactionRecorder.
type RecorderConfig struct {
	Retry     RetryPolicy
	Now       func() time.Time
	Publisher EventPublisher
	Repairs   RepairScheduler
	Logger    *applog.Logger
}

// TransactionRecorder appends transactions and keeps each user's balance
// equal to the signed sum of their transactions.
type TransactionRecorder struct {
	store     LedgerStore
	guard     *guard.Guard
	retry     RetryPolicy
	now       func() time.Time
	publisher EventPublisher
	repairs   RepairScheduler
	logger    *applog.Logger
}

func NewTransactionRecorder(store LedgerStore, g *guard.Guard, cfg RecorderConfig) *TransactionRecorder {
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = applog.Default(applog.ComponentRecorder)
	}
	return &TransactionRecorder{
		store:     store,
		guard:     g,
		retry:     cfg.Retry.normalized(),
		now:       cfg.Now,
		publisher: cfg.Publisher,
		repairs:   cfg.Repairs,
		logger:    cfg.Logger.WithComponent(applog.ComponentRecorder),
	}
}

// RecordTransaction appends one transaction and applies its signed amount
// to the user's balance under the user's guard key.
//
// Validation errors are returned before the guard is touched. If the
// insert succeeds but every balance write fails, the transaction is kept,
// the user is queued for reconciliation and a *BalanceWriteError is
// returned. Events are published after the guard is released.
func (r *TransactionRecorder) RecordTransaction(ctx context.Context, req RecordRequest) (core.Transaction, core.User, error) {
	tx := core.Transaction{
		UserID:      req.UserID,
		Type:        req.Type,
		Amount:      req.Amount,
		Category:    strings.TrimSpace(req.Category),
		Date:        req.Date,
		Description: strings.TrimSpace(req.Description),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, core.User{}, err
	}

	stored, user, event, err := r.commit(ctx, tx)
	if event != nil {
		publish(context.WithoutCancel(ctx), r.publisher, r.logger, *event)
	}
	return stored, user, err
}

// commit runs the read-modify-write under the user's key and returns the
// event to publish once the key is released.
func (r *TransactionRecorder) commit(ctx context.Context, tx core.Transaction) (core.Transaction, core.User, *core.LedgerEvent, error) {
	ctx, release, err := lockDetached(ctx, r.guard, guard.UserKey(tx.UserID))
	if err != nil {
		return core.Transaction{}, core.User{}, nil, err
	}
	defer release()

	user, err := r.store.GetUser(ctx, tx.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return core.Transaction{}, core.User{}, nil, core.ErrUserNotFound
		}
		return core.Transaction{}, core.User{}, nil, core.StorageError("get user", err)
	}

	newBalance, err := user.Balance.CheckedAdd(tx.Signed())
	if err != nil {
		return core.Transaction{}, core.User{}, nil, err
	}

	now := r.now().UTC()
	tx.CreatedAt = now
	if tx.Date.IsZero() {
		tx.Date = core.DateOf(now)
	}

	stored, err := r.store.InsertTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, core.User{}, nil, core.StorageError("insert transaction", err)
	}

	attempts, err := r.retry.do(func() error {
		return r.store.SetUserBalance(ctx, user.ID, newBalance)
	}, func(attempt int, err error) {
		r.logger.WarnContext(ctx, "Balance write failed, retrying",
			applog.FieldUserID, user.ID,
			applog.FieldTransactionID, stored.ID,
			applog.FieldAttempt, attempt,
			applog.FieldError, err)
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Balance write exhausted retries, scheduling repair",
			applog.FieldUserID, user.ID,
			applog.FieldTransactionID, stored.ID,
			applog.FieldAttempt, attempts,
			applog.FieldError, err)
		if r.repairs != nil {
			r.repairs.MarkPending(user.ID)
		}
		event := &core.LedgerEvent{
			Type:          core.EventBalanceRepairRequested,
			UserID:        user.ID,
			TransactionID: stored.ID,
			AmountCents:   stored.Signed().Cents,
			BalanceCents:  user.Balance.Cents,
			OccurredAt:    now,
		}
		return stored, user, event, &BalanceWriteError{
			UserID:      user.ID,
			Transaction: stored,
			Attempts:    attempts,
			Err:         core.StorageError("set user balance", err),
		}
	}
	user.Balance = newBalance

	fields := applog.NewFields().
		WithOperation(applog.OpRecord).
		WithTransaction(stored).
		WithBalance(newBalance)
	r.logger.InfoContext(ctx, "Transaction recorded", fields.ToSlice()...)

	return stored, user, &core.LedgerEvent{
		Type:          core.EventTransactionRecorded,
		UserID:        user.ID,
		TransactionID: stored.ID,
		AmountCents:   stored.Signed().Cents,
		BalanceCents:  newBalance.Cents,
		OccurredAt:    now,
	}, nil
}

// User returns the user with their current stored balance.
func (r *TransactionRecorder) User(ctx context.Context, userID int64) (core.User, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, core.StorageError("get user", err)
	}
	return user, nil
}

// ListTransactions returns the user's transactions, newest first.
func (r *TransactionRecorder) ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error) {
	if _, err := r.User(ctx, userID); err != nil {
		return nil, err
	}
	txs, err := r.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, core.StorageError("list transactions", err)
	}
	return txs, nil
}

// Summary aggregates the user's transactions into totals.
func (r *TransactionRecorder) Summary(ctx context.Context, userID int64) (core.LedgerSummary, error) {
	user, err := r.User(ctx, userID)
	if err != nil {
		return core.LedgerSummary{}, err
	}
	txs, err := r.store.ListTransactions(ctx, userID)
	if err != nil {
		return core.LedgerSummary{}, core.StorageError("list transactions", err)
	}
	return core.Summarize(user, txs), nil
}

// RegisterUser creates a user with a zero balance.
func (r *TransactionRecorder) RegisterUser(ctx context.Context, username string) (core.User, error) {
	username = strings.TrimSpace(username)
	if err := core.ValidateUsername(username); err != nil {
		return core.User{}, err
	}
	user, err := r.store.CreateUser(ctx, username)
	if err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return core.User{}, core.ErrUsernameTaken
		}
		return core.User{}, core.StorageError("create user", err)
	}
	r.logger.InfoContext(ctx, "User registered",
		applog.FieldOperation, applog.OpCreate,
		applog.FieldUserID, user.ID)
	return user, nil
}
