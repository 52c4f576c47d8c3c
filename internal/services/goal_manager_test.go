package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"centsible/internal/core"
)

func newGoal(t *testing.T, f *fixture, owner core.User, target string) core.SavingsGoal {
	t.Helper()
	g, err := f.goals.CreateGoal(context.Background(), owner.ID, "Vacation", mustAmount(t, target))
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	return g
}

func TestContribute_ProgressAndCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := newGoal(t, f, f.user(t, "alice"), "100.00")

	got, err := f.goals.Contribute(ctx, g.ID, mustAmount(t, "60"))
	if err != nil || got.CurrentAmount.String() != "60.00" || got.Completed {
		t.Fatalf("+60 = %+v, %v", got, err)
	}

	_, err = f.goals.Contribute(ctx, g.ID, mustAmount(t, "50"))
	if !errors.Is(err, core.ErrContributionExceedsTarget) {
		t.Fatalf("+50 error = %v, want ErrContributionExceedsTarget", err)
	}
	var ce *ContributionError
	if !errors.As(err, &ce) || ce.MaxAllowed.String() != "40.00" {
		t.Fatalf("expected ContributionError with max 40.00, got %v", err)
	}
	stored, _ := f.store.GetGoal(ctx, g.ID)
	if stored.CurrentAmount.String() != "60.00" || stored.Completed {
		t.Fatalf("rejected contribution mutated state: %+v", stored)
	}

	got, err = f.goals.Contribute(ctx, g.ID, mustAmount(t, "40"))
	if err != nil || got.CurrentAmount.String() != "100.00" || !got.Completed {
		t.Fatalf("+40 = %+v, %v", got, err)
	}

	types := f.publisher.types()
	want := []core.LedgerEventType{core.EventGoalContributed, core.EventGoalContributed, core.EventGoalCompleted}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}

func TestContribute_CompletedGoalIsFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := newGoal(t, f, f.user(t, "bob"), "10.00")
	if _, err := f.goals.Contribute(ctx, g.ID, mustAmount(t, "10")); err != nil {
		t.Fatal(err)
	}

	for _, amount := range []string{"0.01", "5", "10"} {
		if _, err := f.goals.Contribute(ctx, g.ID, mustAmount(t, amount)); !errors.Is(err, core.ErrGoalAlreadyCompleted) {
			t.Fatalf("contribute %s: error = %v, want ErrGoalAlreadyCompleted", amount, err)
		}
	}
	stored, _ := f.store.GetGoal(ctx, g.ID)
	if stored.CurrentAmount.String() != "10.00" || !stored.Completed {
		t.Fatalf("completed goal changed: %+v", stored)
	}
}

func TestContribute_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "carol")
	other := f.user(t, "dave")
	g := newGoal(t, f, owner, "50.00")

	tests := []struct {
		name   string
		userID int64
		goalID int64
		amount core.Money
		want   error
	}{
		{"zero amount", 0, g.ID, core.Cents(0), core.ErrInvalidAmount},
		{"negative amount", 0, g.ID, core.Cents(-100), core.ErrInvalidAmount},
		{"unknown goal", 0, 9999, core.Cents(100), core.ErrGoalNotFound},
		{"other user's goal", other.ID, g.ID, core.Cents(100), core.ErrGoalNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.userID != 0 {
				_, err = f.goals.ContributeForUser(ctx, tt.userID, tt.goalID, tt.amount)
			} else {
				_, err = f.goals.Contribute(ctx, tt.goalID, tt.amount)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	got, err := f.goals.ContributeForUser(ctx, owner.ID, g.ID, core.Cents(100))
	if err != nil || got.CurrentAmount != core.Cents(100) {
		t.Fatalf("owner contribution = %+v, %v", got, err)
	}
}

func TestContribute_ConcurrentNeverExceedsTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := newGoal(t, f, f.user(t, "erin"), "100.00")

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
		rejected atomic.Int64
	)
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.goals.Contribute(ctx, g.ID, core.Cents(100))
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, core.ErrGoalAlreadyCompleted), errors.Is(err, core.ErrContributionExceedsTarget):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 100 || rejected.Load() != 50 {
		t.Fatalf("accepted=%d rejected=%d", accepted.Load(), rejected.Load())
	}
	stored, _ := f.store.GetGoal(ctx, g.ID)
	if stored.CurrentAmount.String() != "100.00" || !stored.Completed {
		t.Fatalf("final goal %+v", stored)
	}
}

func TestCreateGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "frank")

	g, err := f.goals.CreateGoal(ctx, u.ID, "  Bike ", mustAmount(t, "250"))
	if err != nil || g.ID == 0 || g.Name != "Bike" || !g.CurrentAmount.IsZero() || g.Completed {
		t.Fatalf("CreateGoal = %+v, %v", g, err)
	}

	tests := []struct {
		name   string
		userID int64
		goal   string
		target core.Money
		want   error
	}{
		{"empty name", u.ID, " ", core.Cents(100), core.ErrEmptyName},
		{"long name", u.ID, strings.Repeat("n", 101), core.Cents(100), core.ErrFieldTooLong},
		{"zero target", u.ID, "Car", core.Cents(0), core.ErrInvalidAmount},
		{"unknown user", 777, "Car", core.Cents(100), core.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.goals.CreateGoal(ctx, tt.userID, tt.goal, tt.target); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	goals, err := f.goals.ListGoals(ctx, u.ID)
	if err != nil || len(goals) != 1 || goals[0].ID != g.ID {
		t.Fatalf("ListGoals = %+v, %v", goals, err)
	}
}
