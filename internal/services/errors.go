package services

import (
	"fmt"

	"centsible/internal/core"
)

// BalanceWriteError reports that a transaction was recorded but the user's
// balance could not be updated. The transaction stays committed and the
// user is queued for reconciliation.
type BalanceWriteError struct {
	UserID      int64
	Transaction core.Transaction
	Attempts    int
	Err         error
}

func (e *BalanceWriteError) Error() string {
	return fmt.Sprintf("transaction %d recorded but balance of user %d not updated after %d attempts: %v",
		e.Transaction.ID, e.UserID, e.Attempts, e.Err)
}

func (e *BalanceWriteError) Unwrap() error { return e.Err }

// ContributionError is returned when a contribution would push a goal past
// its target. MaxAllowed is the largest amount that would be accepted.
type ContributionError struct {
	GoalID     int64
	Requested  core.Money
	MaxAllowed core.Money
}

func (e *ContributionError) Error() string {
	return fmt.Sprintf("%v: goal %d accepts at most %s, got %s",
		core.ErrContributionExceedsTarget, e.GoalID, e.MaxAllowed, e.Requested)
}

func (e *ContributionError) Unwrap() error { return core.ErrContributionExceedsTarget }
