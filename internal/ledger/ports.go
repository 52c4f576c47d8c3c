package ledger

import (
	"context"
	"errors"

	"centsible/internal/core"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint is violated.
var ErrConflict = errors.New("conflict")

// Ports for outbound adapters. Every call is atomic for a single row only;
// callers serialize read-modify-write cycles themselves.
type (
	// Store is the minimum contract the consistency engine needs.
	Store interface {
		GetUser(ctx context.Context, id int64) (core.User, error)
		SetUserBalance(ctx context.Context, id int64, balance core.Money) error
		// InsertTransaction persists tx and returns it with its allocated ID.
		InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		GetGoal(ctx context.Context, id int64) (core.SavingsGoal, error)
		SetGoal(ctx context.Context, id int64, current core.Money, completed bool) error
	}

	UserDirectory interface {
		// CreateUser stores a user with a zero balance. ErrConflict on a
		// duplicate username.
		CreateUser(ctx context.Context, username string) (core.User, error)
		GetUserByUsername(ctx context.Context, username string) (core.User, error)
		ListUserIDs(ctx context.Context) ([]int64, error)
	}

	// TransactionLister returns a user's transactions, newest first.
	TransactionLister interface {
		ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error)
	}

	GoalWriter interface {
		CreateGoal(ctx context.Context, goal core.SavingsGoal) (core.SavingsGoal, error)
	}

	GoalLister interface {
		ListGoals(ctx context.Context, userID int64) ([]core.SavingsGoal, error)
	}

	// Backend is everything a running application needs from persistence.
	Backend interface {
		Store
		UserDirectory
		TransactionLister
		GoalWriter
		GoalLister
		Close() error
	}
)
