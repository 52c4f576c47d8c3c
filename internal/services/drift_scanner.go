package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"centsible/internal/core"
	applog "centsible/internal/log"
)

// DriftScannerConfig holds the tuning of a DriftScanner.
type DriftScannerConfig struct {
	// Parallelism bounds concurrent users in Scan (default: 4)
	Parallelism int
	Logger      *applog.Logger
}

// DriftScanner finds users whose stored balance differs from their
// transaction log. It only reads, so it can run in any process; repairs
// are requested from the process that owns the guard.
type DriftScanner struct {
	store       LedgerReader
	parallelism int
	logger      *applog.Logger
}

func NewDriftScanner(store LedgerReader, cfg DriftScannerConfig) *DriftScanner {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = applog.Default(applog.ComponentReconcile)
	}
	return &DriftScanner{
		store:       store,
		parallelism: cfg.Parallelism,
		logger:      cfg.Logger.WithComponent(applog.ComponentReconcile),
	}
}

// Check compares one user's stored balance with the signed sum of their
// transactions. A concurrent recording can make the result stale; the
// owning process re-checks under the guard before writing.
func (s *DriftScanner) Check(ctx context.Context, userID int64) (ReconcileResult, error) {
	return recompute(ctx, s.store, userID)
}

// Scan checks every user and returns the drifted ones ordered by id.
// Users that fail are skipped; the failures are joined into the error.
func (s *DriftScanner) Scan(ctx context.Context) ([]ReconcileResult, error) {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return nil, core.StorageError("list users", err)
	}

	var (
		mu      sync.Mutex
		drifted []ReconcileResult
		errs    []error
		g       errgroup.Group
	)
	g.SetLimit(s.parallelism)
	for _, id := range ids {
		g.Go(func() error {
			res, err := s.Check(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, core.ErrUserNotFound):
			case err != nil:
				errs = append(errs, err)
			case res.Drifted():
				drifted = append(drifted, res)
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(drifted, func(i, j int) bool { return drifted[i].UserID < drifted[j].UserID })
	s.logger.InfoContext(ctx, "Drift scan finished",
		applog.FieldOperation, applog.OpReconcile,
		"users", len(ids),
		"drifted", len(drifted),
		"failed", len(errs))
	return drifted, errors.Join(errs...)
}
