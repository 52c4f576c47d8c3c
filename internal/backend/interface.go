package backend

import (
	"context"

	"centsible/internal/amqp"
	"centsible/internal/ledger"
	"centsible/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional event client and a
// cleanup function releasing both.
type BackendResult struct {
	Backend ledger.Backend
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Publisher returns the event client as a services.EventPublisher, or nil
// when AMQP is not configured.
func (r *BackendResult) Publisher() services.EventPublisher {
	if r.Events == nil {
		return nil
	}
	return r.Events
}

// Ready reports whether the store answers. Stores without a Ping method,
// like the in-memory one, are always ready.
func (r *BackendResult) Ready(ctx context.Context) error {
	if p, ok := r.Backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	PostgresURL string

	// Event publishing, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
