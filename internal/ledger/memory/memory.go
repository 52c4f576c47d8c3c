package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"centsible/internal/core"
	"centsible/internal/ledger"
)

// IDGenerator allocates row identifiers.
type IDGenerator interface {
	Next() int64
}

// Sequence is a per-store monotonically increasing IDGenerator.
type Sequence struct {
	last atomic.Int64
}

func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}

// Store keeps rows in maps. Each method is atomic for one row, nothing more,
// which matches the contract of the durable stores.
type Store struct {
	mu    sync.Mutex
	ids   IDGenerator
	users map[int64]core.User
	txs   map[int64]core.Transaction
	goals map[int64]core.SavingsGoal
}

type Option func(*Store)

// WithIDGenerator replaces the default per-store Sequence.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

func New(opts ...Option) *Store {
	s := &Store{
		ids:   &Sequence{},
		users: map[int64]core.User{},
		txs:   map[int64]core.Transaction{},
		goals: map[int64]core.SavingsGoal{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, ledger.ErrNotFound
	}
	return u, nil
}

func (s *Store) SetUserBalance(_ context.Context, id int64, balance core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ledger.ErrNotFound
	}
	u.Balance = balance
	s.users[id] = u
	return nil
}

func (s *Store) InsertTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.ids.Next()
	s.txs[tx.ID] = tx
	return tx, nil
}

func (s *Store) GetGoal(_ context.Context, id int64) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return core.SavingsGoal{}, ledger.ErrNotFound
	}
	return g, nil
}

func (s *Store) SetGoal(_ context.Context, id int64, current core.Money, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return ledger.ErrNotFound
	}
	g.CurrentAmount = current
	g.Completed = completed
	s.goals[id] = g
	return nil
}

func (s *Store) CreateUser(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return core.User{}, ledger.ErrConflict
		}
	}
	u := core.User{ID: s.ids.Next(), Username: username, CreatedAt: time.Now().UTC()}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return core.User{}, ledger.ErrNotFound
}

func (s *Store) ListUserIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) ListTransactions(_ context.Context, userID int64) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) CreateGoal(_ context.Context, goal core.SavingsGoal) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal.ID = s.ids.Next()
	s.goals[goal.ID] = goal
	return goal, nil
}

func (s *Store) ListGoals(_ context.Context, userID int64) ([]core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.SavingsGoal
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
