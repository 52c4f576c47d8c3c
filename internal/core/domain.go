package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	MaxCategoryLength    = 100
	MaxDescriptionLength = 200
	MaxGoalNameLength    = 100
	MinUsernameLength    = 3
	MaxUsernameLength    = 50
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	User struct {
		ID        int64     `json:"id"`
		Username  string    `json:"username"`
		Balance   Money     `json:"balance"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Transaction struct {
		ID          int64           `json:"id"`
		UserID      int64           `json:"userId"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Category    string          `json:"category"`
		Date        Date            `json:"date"`
		Description string          `json:"description,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
	}

	SavingsGoal struct {
		ID            int64  `json:"id"`
		UserID        int64  `json:"userId"`
		Name          string `json:"name"`
		TargetAmount  Money  `json:"targetAmount"`
		CurrentAmount Money  `json:"currentAmount"`
		Completed     bool   `json:"completed"`
	}
)

var (
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrAmountOverflow            = errors.New("amount out of range")
	ErrInvalidType               = errors.New("invalid transaction type")
	ErrEmptyCategory             = errors.New("empty category")
	ErrInvalidDate               = errors.New("invalid date")
	ErrEmptyName                 = errors.New("empty name")
	ErrInvalidUsername           = errors.New("invalid username")
	ErrFieldTooLong              = errors.New("field too long")
	ErrUserNotFound              = errors.New("user not found")
	ErrGoalNotFound              = errors.New("savings goal not found")
	ErrUsernameTaken             = errors.New("username already taken")
	ErrGoalAlreadyCompleted      = errors.New("savings goal already completed")
	ErrContributionExceedsTarget = errors.New("contribution exceeds target amount")
	ErrStorageFailure            = errors.New("storage failure")
)

// StorageError wraps err so that both ErrStorageFailure and the original
// cause match with errors.Is.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}

// IsValidation reports whether err is a user-correctable input error.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrAmountOverflow, ErrInvalidType, ErrEmptyCategory,
		ErrInvalidDate, ErrEmptyName, ErrInvalidUsername, ErrFieldTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ParseTransactionType accepts INCOME or EXPENSE in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

// Signed returns the balance delta of amount for this type.
func (t TransactionType) Signed(amount Money) Money {
	if t == Expense {
		return amount.Neg()
	}
	return amount
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, ErrInvalidDate
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	if y := d.Year(); y < 1900 || y > 9999 {
		return ErrInvalidDate
	}
	return nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks a transaction before it is recorded. The date may be
// zero, in which case the recorder stamps the current day.
func (t Transaction) Validate() error {
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(t.Category) > MaxCategoryLength {
		return fmt.Errorf("category: %w (max %d characters)", ErrFieldTooLong, MaxCategoryLength)
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return fmt.Errorf("description: %w (max %d characters)", ErrFieldTooLong, MaxDescriptionLength)
	}
	if !t.Date.IsZero() {
		if err := t.Date.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Signed returns the balance delta contributed by the transaction.
func (t Transaction) Signed() Money {
	return t.Type.Signed(t.Amount)
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(g.Name) > MaxGoalNameLength {
		return fmt.Errorf("name: %w (max %d characters)", ErrFieldTooLong, MaxGoalNameLength)
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return err
	}
	if g.CurrentAmount.IsNegative() || g.CurrentAmount.Cmp(g.TargetAmount) > 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Remaining is the largest contribution the goal still accepts.
func (g SavingsGoal) Remaining() Money {
	if g.Completed || g.CurrentAmount.Cmp(g.TargetAmount) >= 0 {
		return Money{}
	}
	return g.TargetAmount.Sub(g.CurrentAmount)
}

// ValidateUsername enforces the registration rules.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(username))
	if n < MinUsernameLength || n > MaxUsernameLength {
		return ErrInvalidUsername
	}
	return nil
}
