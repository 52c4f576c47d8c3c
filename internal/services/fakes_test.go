package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"centsible/internal/core"
	"centsible/internal/guard"
	"centsible/internal/ledger/memory"
	applog "centsible/internal/log"
)

var errDiskFull = errors.New("disk full")

// flakyStore wraps the memory store and fails selected calls on demand.
type flakyStore struct {
	*memory.Store

	mu                sync.Mutex
	failBalanceWrites int // remaining failures, -1 means always
	balanceWrites     int
	failInsert        bool
	failList          bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New()}
}

func (s *flakyStore) SetUserBalance(ctx context.Context, id int64, balance core.Money) error {
	s.mu.Lock()
	s.balanceWrites++
	fail := s.failBalanceWrites != 0
	if s.failBalanceWrites > 0 {
		s.failBalanceWrites--
	}
	s.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return s.Store.SetUserBalance(ctx, id, balance)
}

func (s *flakyStore) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	fail := s.failInsert
	s.mu.Unlock()
	if fail {
		return core.Transaction{}, errDiskFull
	}
	return s.Store.InsertTransaction(ctx, tx)
}

func (s *flakyStore) ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error) {
	s.mu.Lock()
	fail := s.failList
	s.mu.Unlock()
	if fail {
		return nil, errDiskFull
	}
	return s.Store.ListTransactions(ctx, userID)
}

func (s *flakyStore) set(fn func(s *flakyStore)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []core.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e core.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []core.LedgerEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.LedgerEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

var fixedNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	store     *flakyStore
	guard     *guard.Guard
	publisher *recordingPublisher
	recorder  *TransactionRecorder
	goals     *GoalManager
	reconcile *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newFlakyStore(),
		guard:     guard.New(),
		publisher: &recordingPublisher{},
	}
	logger := applog.Discard()
	f.reconcile = NewReconciler(f.store, f.guard, ReconcilerConfig{Parallelism: 3, Logger: logger})
	f.recorder = NewTransactionRecorder(f.store, f.guard, RecorderConfig{
		Retry:     RetryPolicy{Attempts: 3, Backoff: 0},
		Now:       func() time.Time { return fixedNow },
		Publisher: f.publisher,
		Repairs:   f.reconcile,
		Logger:    logger,
	})
	f.goals = NewGoalManager(f.store, f.guard, GoalConfig{
		Now:       func() time.Time { return fixedNow },
		Publisher: f.publisher,
		Logger:    logger,
	})
	return f
}

func (f *fixture) user(t *testing.T, name string) core.User {
	t.Helper()
	u, err := f.recorder.RegisterUser(context.Background(), name)
	if err != nil {
		t.Fatalf("RegisterUser(%q): %v", name, err)
	}
	return u
}

func (f *fixture) balance(t *testing.T, userID int64) core.Money {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	return u.Balance
}

func mustAmount(t *testing.T, s string) core.Money {
	t.Helper()
	m, err := core.ParseAmount(s)
	if err != nil {
		t.Fatalf("ParseAmount(%q): %v", s, err)
	}
	return m
}

// keyCheckingPublisher tries to take the event's guard key on every Publish
// and records the keys it found held.
type keyCheckingPublisher struct {
	guard *guard.Guard

	mu   sync.Mutex
	seen int
	held []string
}

func (p *keyCheckingPublisher) Publish(ctx context.Context, e core.LedgerEvent) error {
	key := guard.UserKey(e.UserID)
	if e.GoalID != 0 {
		key = guard.GoalKey(e.GoalID)
	}
	lockCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	release, err := p.guard.Lock(lockCtx, key)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen++
	if err != nil {
		p.held = append(p.held, key)
		return nil
	}
	release()
	return nil
}
