package backend

import (
	"context"
	"fmt"

	"pocketledger/internal/log"
	"pocketledger/internal/memstore"
	"pocketledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentStorage)
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	store, err := storage.Open(config.ExpenseDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("open expense store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", log.FieldPath, config.ExpenseDBPath)

	return &Result{
		Repository: store,
		Cleanup:    store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*Result, error) {
	f.logger.Info("Initialized memory backend")

	return &Result{
		Repository: memstore.New(),
		Cleanup:    nil,
	}, nil
}
