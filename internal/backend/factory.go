package backend

import (
	"context"
	"errors"
	"fmt"

	"centsible/internal/amqp"
	"centsible/internal/ledger"
	"centsible/internal/ledger/memory"
	applog "centsible/internal/log"
	"centsible/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store ledger.Backend
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		store, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		store = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	events := f.createEventClient(config)
	return &BackendResult{
		Backend: store,
		Events:  events,
		Cleanup: func() error {
			var errs []error
			if events != nil {
				if err := events.Close(); err != nil {
					errs = append(errs, fmt.Errorf("amqp: %w", err))
				}
			}
			if err := store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (ledger.Backend, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (ledger.Backend, error) {
	repo, err := storage.NewPostgresRepository(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}
	f.logger.Info("Initialized Postgres backend")
	return repo, nil
}

func (f *DefaultFactory) createMemoryBackend() ledger.Backend {
	f.logger.Info("Initialized memory backend")
	return memory.New()
}

// createEventClient dials AMQP when configured. A broker that is down is
// not fatal: the ledger keeps working without events.
func (f *DefaultFactory) createEventClient(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client.WithLogger(f.logger)
}
