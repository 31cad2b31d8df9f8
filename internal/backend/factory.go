// Package backend opens the ledger store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/ledger/memory"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Dialer opens an AMQP publisher.
type Dialer func(url, exchange, queue string) (*amqp.Client, error)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	dial   Dialer
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		dial:   amqp.NewClient,
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	result := &BackendResult{Store: sqliteRepo, Cleanup: sqliteRepo.Close}

	// Change events are optional; rows stay pending for the worker's sweep.
	if config.AMQPURL != "" {
		amqpClient, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync", log.FieldError, err)
		} else {
			result.Publisher = amqpClient
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", result.Publisher != nil)

	return result, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if config.AMQPURL != "" {
		f.logger.WarnContext(ctx, "AMQP is only used with the sqlite backend, ignoring AMQP_URL")
	}

	if config.DataFile == "" {
		f.logger.InfoContext(ctx, "Initialized memory backend", "persistent", false)
		return &BackendResult{Store: memory.New()}, nil
	}

	store, err := memory.Open(config.DataFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized memory backend", "data_file", config.DataFile, "persistent", true)

	return &BackendResult{Store: store}, nil
}
