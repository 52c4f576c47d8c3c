package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"centsible/internal/core"
	"centsible/internal/guard"
	"centsible/internal/ledger"
	applog "centsible/internal/log"
)

// ReconcileResult describes one balance check.
type ReconcileResult struct {
	UserID       int64
	Stored       core.Money
	Recomputed   core.Money
	Transactions int
	Repaired     bool
}

// Drifted reports whether the stored balance differs from the signed sum
// of the user's transactions.
func (r ReconcileResult) Drifted() bool {
	return r.Stored != r.Recomputed
}

// recompute reads the user and sums their transactions. It never writes.
func recompute(ctx context.Context, store LedgerReader, userID int64) (ReconcileResult, error) {
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ReconcileResult{}, core.ErrUserNotFound
		}
		return ReconcileResult{}, core.StorageError("get user", err)
	}
	txs, err := store.ListTransactions(ctx, userID)
	if err != nil {
		return ReconcileResult{}, core.StorageError("list transactions", err)
	}

	var sum core.Money
	for _, tx := range txs {
		if sum, err = sum.CheckedAdd(tx.Signed()); err != nil {
			return ReconcileResult{}, err
		}
	}
	return ReconcileResult{
		UserID:       userID,
		Stored:       user.Balance,
		Recomputed:   sum,
		Transactions: len(txs),
	}, nil
}

// ReconcilerConfig holds the tuning of a Reconciler.
type ReconcilerConfig struct {
	// Parallelism bounds concurrent users in ReconcileAll (default: 4)
	Parallelism int
	Logger      *applog.Logger
}

// Reconciler recomputes balances from the transaction log and writes the
// result when the stored value drifted. It must share the recorder's Guard:
// the balance write is only safe under the same user key the recorder
// holds, so every Reconciler lives in the process that records.
type Reconciler struct {
	store       LedgerStore
	guard       *guard.Guard
	parallelism int
	logger      *applog.Logger

	mu      sync.Mutex
	pending map[int64]struct{}
}

func NewReconciler(store LedgerStore, g *guard.Guard, cfg ReconcilerConfig) *Reconciler {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = applog.Default(applog.ComponentReconcile)
	}
	return &Reconciler{
		store:       store,
		guard:       g,
		parallelism: cfg.Parallelism,
		logger:      cfg.Logger.WithComponent(applog.ComponentReconcile),
		pending:     make(map[int64]struct{}),
	}
}

// MarkPending queues userID for the next ReconcilePending.
func (r *Reconciler) MarkPending(userID int64) {
	r.mu.Lock()
	r.pending[userID] = struct{}{}
	r.mu.Unlock()
}

// Pending returns the queued user ids in ascending order.
func (r *Reconciler) Pending() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Reconciler) clearPending(userID int64) {
	r.mu.Lock()
	delete(r.pending, userID)
	r.mu.Unlock()
}

// Reconcile makes the user's stored balance equal Σ signed(transactions).
func (r *Reconciler) Reconcile(ctx context.Context, userID int64) (ReconcileResult, error) {
	ctx, release, err := lockDetached(ctx, r.guard, guard.UserKey(userID))
	if err != nil {
		return ReconcileResult{}, err
	}
	defer release()

	res, err := recompute(ctx, r.store, userID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			r.clearPending(userID)
		}
		return res, err
	}
	if res.Drifted() {
		if err := r.store.SetUserBalance(ctx, userID, res.Recomputed); err != nil {
			return res, core.StorageError("set user balance", err)
		}
		res.Repaired = true
		r.logger.WarnContext(ctx, "Balance drift repaired",
			applog.FieldOperation, applog.OpReconcile,
			applog.FieldUserID, userID,
			"stored_cents", res.Stored.Cents,
			applog.FieldBalanceCents, res.Recomputed.Cents)
	}
	r.clearPending(userID)
	return res, nil
}

// ReconcilePending reconciles every queued user. Users that fail stay
// queued. All failures are joined into the returned error.
func (r *Reconciler) ReconcilePending(ctx context.Context) ([]ReconcileResult, error) {
	var (
		results []ReconcileResult
		errs    []error
	)
	for _, id := range r.Pending() {
		res, err := r.Reconcile(ctx, id)
		if err != nil {
			if !errors.Is(err, core.ErrUserNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// ReconcileAll checks every user with bounded parallelism. Users that fail
// are queued for the next pending sweep; the first failure is returned.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	ids, err := r.store.ListUserIDs(ctx)
	if err != nil {
		return nil, core.StorageError("list users", err)
	}

	var (
		mu      sync.Mutex
		results = make([]ReconcileResult, 0, len(ids))
		g       errgroup.Group
	)
	g.SetLimit(r.parallelism)
	for _, id := range ids {
		g.Go(func() error {
			res, err := r.Reconcile(ctx, id)
			if err != nil {
				if errors.Is(err, core.ErrUserNotFound) {
					return nil
				}
				r.MarkPending(id)
				r.logger.ErrorContext(ctx, "Reconcile failed",
					applog.FieldUserID, id,
					applog.FieldError, err)
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].UserID < results[j].UserID })
	repaired := 0
	for _, res := range results {
		if res.Repaired {
			repaired++
		}
	}
	r.logger.InfoContext(ctx, "Reconcile sweep finished",
		applog.FieldOperation, applog.OpReconcile,
		"users", len(ids),
		"repaired", repaired)
	return results, err
}
