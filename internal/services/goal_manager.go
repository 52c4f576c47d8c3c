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

// GoalConfig holds the optional collaborators of a GoalManager.
type GoalConfig struct {
	Now       func() time.Time
	Publisher EventPublisher
	Logger    *applog.Logger
}

// GoalManager applies contributions to savings goals. A goal never exceeds
// its target and a completed goal never changes again.
type GoalManager struct {
	store     GoalStore
	guard     *guard.Guard
	now       func() time.Time
	publisher EventPublisher
	logger    *applog.Logger
}

func NewGoalManager(store GoalStore, g *guard.Guard, cfg GoalConfig) *GoalManager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = applog.Default(applog.ComponentGoals)
	}
	return &GoalManager{
		store:     store,
		guard:     g,
		now:       cfg.Now,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.WithComponent(applog.ComponentGoals),
	}
}

// Contribute adds amount to the goal's current amount.
func (m *GoalManager) Contribute(ctx context.Context, goalID int64, amount core.Money) (core.SavingsGoal, error) {
	return m.contribute(ctx, 0, goalID, amount)
}

// ContributeForUser is Contribute restricted to goals owned by userID.
// Goals of other users are reported as not found.
func (m *GoalManager) ContributeForUser(ctx context.Context, userID, goalID int64, amount core.Money) (core.SavingsGoal, error) {
	return m.contribute(ctx, userID, goalID, amount)
}

func (m *GoalManager) contribute(ctx context.Context, ownerID, goalID int64, amount core.Money) (core.SavingsGoal, error) {
	if err := amount.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}

	goal, events, err := m.apply(ctx, ownerID, goalID, amount)
	for _, event := range events {
		publish(context.WithoutCancel(ctx), m.publisher, m.logger, event)
	}
	return goal, err
}

// apply checks and writes the contribution under the goal's key and
// returns the events to publish once the key is released.
func (m *GoalManager) apply(ctx context.Context, ownerID, goalID int64, amount core.Money) (core.SavingsGoal, []core.LedgerEvent, error) {
	ctx, release, err := lockDetached(ctx, m.guard, guard.GoalKey(goalID))
	if err != nil {
		return core.SavingsGoal{}, nil, err
	}
	defer release()

	goal, err := m.store.GetGoal(ctx, goalID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return core.SavingsGoal{}, nil, core.ErrGoalNotFound
		}
		return core.SavingsGoal{}, nil, core.StorageError("get goal", err)
	}
	if ownerID != 0 && goal.UserID != ownerID {
		return core.SavingsGoal{}, nil, core.ErrGoalNotFound
	}
	if goal.Completed {
		m.logger.WarnContext(ctx, "Contribution rejected, goal completed",
			applog.FieldGoalID, goal.ID,
			applog.FieldAmountCents, amount.Cents)
		return goal, nil, core.ErrGoalAlreadyCompleted
	}

	if amount.Cmp(goal.Remaining()) > 0 {
		m.logger.WarnContext(ctx, "Contribution rejected, exceeds target",
			applog.FieldGoalID, goal.ID,
			applog.FieldAmountCents, amount.Cents,
			"max_allowed_cents", goal.Remaining().Cents)
		return goal, nil, &ContributionError{GoalID: goal.ID, Requested: amount, MaxAllowed: goal.Remaining()}
	}

	current := goal.CurrentAmount.Add(amount)
	completed := current.Cmp(goal.TargetAmount) >= 0
	if err := m.store.SetGoal(ctx, goal.ID, current, completed); err != nil {
		return core.SavingsGoal{}, nil, core.StorageError("set goal", err)
	}
	goal.CurrentAmount = current
	goal.Completed = completed

	m.logger.InfoContext(ctx, "Contribution applied",
		applog.NewFields().WithOperation(applog.OpContribute).WithGoal(goal).ToSlice()...)

	now := m.now().UTC()
	events := []core.LedgerEvent{{
		Type:        core.EventGoalContributed,
		UserID:      goal.UserID,
		GoalID:      goal.ID,
		AmountCents: amount.Cents,
		OccurredAt:  now,
	}}
	if completed {
		events = append(events, core.LedgerEvent{
			Type:        core.EventGoalCompleted,
			UserID:      goal.UserID,
			GoalID:      goal.ID,
			AmountCents: current.Cents,
			OccurredAt:  now,
		})
	}
	return goal, events, nil
}

// CreateGoal opens a goal with a zero current amount for an existing user.
func (m *GoalManager) CreateGoal(ctx context.Context, userID int64, name string, target core.Money) (core.SavingsGoal, error) {
	goal := core.SavingsGoal{
		UserID:       userID,
		Name:         strings.TrimSpace(name),
		TargetAmount: target,
	}
	if err := goal.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}

	if _, err := m.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return core.SavingsGoal{}, core.ErrUserNotFound
		}
		return core.SavingsGoal{}, core.StorageError("get user", err)
	}

	created, err := m.store.CreateGoal(ctx, goal)
	if err != nil {
		return core.SavingsGoal{}, core.StorageError("create goal", err)
	}
	m.logger.InfoContext(ctx, "Savings goal created",
		applog.NewFields().WithOperation(applog.OpCreate).WithGoal(created).ToSlice()...)
	return created, nil
}

func (m *GoalManager) ListGoals(ctx context.Context, userID int64) ([]core.SavingsGoal, error) {
	goals, err := m.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, core.StorageError("list goals", err)
	}
	return goals, nil
}
