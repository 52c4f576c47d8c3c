package core

import (
	"sort"
	"time"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// LedgerSummary is a compact view of a user's transactions.
type LedgerSummary struct {
	UserID             int64            `json:"userId"`
	Balance            Money            `json:"balance"`
	TotalIncome        Money            `json:"totalIncome"`
	TotalExpense       Money            `json:"totalExpense"`
	Net                Money            `json:"net"`
	ExpensesByCategory []CategoryAmount `json:"expensesByCategory"`
	Count              int              `json:"count"`
}

// Summarize aggregates txs. ExpensesByCategory is sorted by amount,
// largest first, then by name.
func Summarize(user User, txs []Transaction) LedgerSummary {
	s := LedgerSummary{UserID: user.ID, Balance: user.Balance, Count: len(txs)}
	byCategory := map[string]Money{}
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			s.TotalIncome = s.TotalIncome.Add(tx.Amount)
		case Expense:
			s.TotalExpense = s.TotalExpense.Add(tx.Amount)
			byCategory[tx.Category] = byCategory[tx.Category].Add(tx.Amount)
		}
	}
	s.Net = s.TotalIncome.Sub(s.TotalExpense)

	s.ExpensesByCategory = make([]CategoryAmount, 0, len(byCategory))
	for name, amount := range byCategory {
		s.ExpensesByCategory = append(s.ExpensesByCategory, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(s.ExpensesByCategory, func(i, j int) bool {
		a, b := s.ExpensesByCategory[i], s.ExpensesByCategory[j]
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c > 0
		}
		return a.Name < b.Name
	})
	return s
}

// NetOf returns Σ signed(txs), the value a user's balance must equal.
func NetOf(txs []Transaction) Money {
	var net Money
	for _, tx := range txs {
		net = net.Add(tx.Signed())
	}
	return net
}

// LedgerEventType names the events emitted after a commit.
type LedgerEventType string

const (
	EventTransactionRecorded    LedgerEventType = "transaction.recorded"
	EventGoalContributed        LedgerEventType = "goal.contributed"
	EventGoalCompleted          LedgerEventType = "goal.completed"
	EventBalanceRepairRequested LedgerEventType = "balance.repair_requested"
)

// LedgerEvent describes a committed mutation of an aggregate.
type LedgerEvent struct {
	Type          LedgerEventType `json:"type"`
	UserID        int64           `json:"userId"`
	TransactionID int64           `json:"transactionId,omitempty"`
	GoalID        int64           `json:"goalId,omitempty"`
	AmountCents   int64           `json:"amountCents"`
	BalanceCents  int64           `json:"balanceCents"`
	OccurredAt    time.Time       `json:"occurredAt"`
}
