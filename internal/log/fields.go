package log

import "centsible/internal/core"

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldGoalID        = "goal_id"
	FieldTransactionID = "transaction_id"
	FieldTxType        = "transaction_type"
	FieldCategory      = "category"
	FieldAmountCents   = "amount_cents"
	FieldBalanceCents  = "balance_cents"
	FieldGuardKey      = "guard_key"
	FieldAttempt       = "attempt"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentRecorder  = "transaction_recorder"
	ComponentGoals     = "goal_manager"
	ComponentReconcile = "reconciler"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpRecord     = "record"
	OpContribute = "contribute"
	OpReconcile  = "reconcile"
	OpCreate     = "create"
	OpList       = "list"
	OpPublish    = "publish"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithTransaction adds the fields identifying a recorded transaction.
func (f LogFields) WithTransaction(tx core.Transaction) LogFields {
	if tx.ID != 0 {
		f[FieldTransactionID] = tx.ID
	}
	f[FieldUserID] = tx.UserID
	f[FieldTxType] = string(tx.Type)
	f[FieldAmountCents] = tx.Amount.Cents
	f[FieldCategory] = tx.Category
	return f
}

// WithGoal adds goal progress fields.
func (f LogFields) WithGoal(g core.SavingsGoal) LogFields {
	f[FieldGoalID] = g.ID
	f[FieldUserID] = g.UserID
	f["current_cents"] = g.CurrentAmount.Cents
	f["target_cents"] = g.TargetAmount.Cents
	f["completed"] = g.Completed
	return f
}

func (f LogFields) WithBalance(m core.Money) LogFields {
	f[FieldBalanceCents] = m.Cents
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
