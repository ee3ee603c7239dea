package backend

import (
	"context"
	"fmt"
	"log/slog"

	"expenses/internal/log"
	"expenses/internal/storage/csvfile"
	"expenses/internal/storage/memory"
	"expenses/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(log.FieldComponent, log.ComponentBackend),
	}
}

// CreateStore implements Factory.CreateStore
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case CSVBackend:
		return f.createCSVStore(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteStore(ctx, config)
	case MemoryBackend:
		return f.createMemoryStore(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createCSVStore(ctx context.Context, config Config) (*Result, error) {
	store := csvfile.New(config.DataDir, config.DefaultCurrency)

	f.logger.InfoContext(ctx, "Initialized csv backend",
		log.FieldBackend, config.Type.String(),
		"data_dir", config.DataDir,
		log.FieldCurrency, config.DefaultCurrency.String())

	return &Result{Store: store}, nil
}

func (f *DefaultFactory) createSQLiteStore(ctx context.Context, config Config) (*Result, error) {
	store, err := sqlite.Open(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		log.FieldBackend, config.Type.String(),
		"db_path", config.SQLiteDBPath)

	return &Result{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryStore(ctx context.Context) (*Result, error) {
	f.logger.WarnContext(ctx, "Initialized memory backend, ledgers are lost on exit",
		log.FieldBackend, MemoryBackend.String())

	return &Result{Store: memory.New()}, nil
}
