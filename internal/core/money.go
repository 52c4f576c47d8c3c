// Package core provides money parsing and handling utilities.
//
// This file contains the Money value type. Amounts are held as integer cents
// so repeated additions never drift; decimal strings are the only external
// representation.
package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxAmountCents bounds any single parsed amount (10 trillion units).
	MaxAmountCents int64 = 1_000_000_000_000_000
	// MaxBalanceCents bounds aggregates built by CheckedAdd.
	MaxBalanceCents int64 = 1 << 62
)

// Money is an exact currency amount in minor units.
type Money struct {
	Cents int64
}

// Cents is a shorthand constructor mostly used by tests and adapters.
func Cents(c int64) Money {
	return Money{Cents: c}
}

// ParseMoney converts a decimal string to Money.
//
// It accepts an optional leading minus, a dot (12.34) or comma (12,34)
// decimal separator and at most two fractional digits. Anything else,
// including exponent notation and explicit plus signs, is ErrInvalidAmount.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234
//	ParseMoney("-0.05")  -> -5
//	ParseMoney("7")      -> 700
//	ParseMoney("12.345") -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	digits := strings.TrimPrefix(s, "-")
	intPart, fracPart, hasDot := strings.Cut(digits, ".")
	if intPart == "" && fracPart == "" {
		return Money{}, ErrInvalidAmount
	}
	if hasDot && fracPart == "" {
		return Money{}, ErrInvalidAmount
	}
	if len(fracPart) > 2 || !allDigits(intPart) || !allDigits(fracPart) {
		return Money{}, ErrInvalidAmount
	}

	if intPart == "" {
		intPart = "0"
	}
	normalized := intPart
	if fracPart != "" {
		normalized += "." + fracPart
	}
	if strings.HasPrefix(s, "-") {
		normalized = "-" + normalized
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return fromDecimal(d, MaxAmountCents)
}

// ParseAmount parses an input amount that must be strictly positive.
func ParseAmount(s string) (Money, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return Money{}, err
	}
	if !m.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	return m, nil
}

// MoneyFromDecimal converts an exact decimal (e.g. a NUMERIC column) to
// Money. Values with sub-cent precision are rejected rather than rounded.
// The bound is MaxBalanceCents since stored balances are aggregates.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	return fromDecimal(d, MaxBalanceCents)
}

func fromDecimal(d decimal.Decimal, limit int64) (Money, error) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return Money{}, ErrInvalidAmount
	}
	bi := shifted.BigInt()
	if !bi.IsInt64() {
		return Money{}, ErrInvalidAmount
	}
	cents := bi.Int64()
	if cents > limit || cents < -limit {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents}, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

// CheckedAdd returns m + o, or ErrAmountOverflow if the result leaves
// the ±MaxBalanceCents range.
func (m Money) CheckedAdd(o Money) (Money, error) {
	sum := m.Cents + o.Cents
	// Both operands are far below the int64 limit, so the sum cannot wrap.
	if m.Cents > MaxBalanceCents || m.Cents < -MaxBalanceCents ||
		o.Cents > MaxBalanceCents || o.Cents < -MaxBalanceCents ||
		sum > MaxBalanceCents || sum < -MaxBalanceCents {
		return Money{}, ErrAmountOverflow
	}
	return Money{Cents: sum}, nil
}

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	switch {
	case m.Cents < o.Cents:
		return -1
	case m.Cents > o.Cents:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsPositive() bool { return m.Cents > 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// Validate reports whether m is usable as an input amount.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	if m.Cents > MaxAmountCents {
		return ErrAmountOverflow
	}
	return nil
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + fmt.Sprintf("%02d", cents%100)
}

// Decimal returns the exact decimal value of m.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Sum adds all amounts.
func Sum(ms ...Money) Money {
	var total Money
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}

// MarshalJSON encodes Money as its decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "12.50" or 12.5.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return ErrInvalidAmount
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrInvalidAmount
		}
		raw = s
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
