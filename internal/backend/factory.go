// Package backend opens the configured expense store and, when enabled, the
// AMQP change-event client.
package backend

import (
	"context"
	"errors"
	"fmt"

	"expenses/internal/amqp"
	"expenses/internal/log"
	"expenses/internal/storage"
	"expenses/internal/storage/memory"
	"expenses/internal/storage/postgres"
	"expenses/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(ctx, config)
	if err != nil {
		return nil, err
	}

	events, err := f.openEvents(config)
	if err != nil {
		store.Close()
		return nil, err
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		log.FieldBackend, config.Type.String(),
		"events_enabled", events != nil)

	return &BackendResult{
		Store:  store,
		Events: events,
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

func (f *DefaultFactory) openStore(ctx context.Context, config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		s, err := sqlite.Open(config.SQLiteDBPath, config.StoreOptions...)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite store: %w", err)
		}
		f.logger.Debug("Opened SQLite store", "db_path", config.SQLiteDBPath)
		return s, nil

	case PostgresBackend:
		s, err := postgres.Open(ctx, config.DatabaseURL, config.StoreOptions...)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres store: %w", err)
		}
		return s, nil

	case MemoryBackend:
		if config.MemorySeedFile == "" {
			return memory.New(config.StoreOptions...), nil
		}
		s, err := memory.NewFromFile(config.MemorySeedFile, config.StoreOptions...)
		if err != nil {
			return nil, fmt.Errorf("initialize memory store: %w", err)
		}
		f.logger.Info("Seeded memory store", "seed_file", config.MemorySeedFile)
		return s, nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
}

func (f *DefaultFactory) openEvents(config Config) (*amqp.Client, error) {
	if config.AMQPURL == "" {
		return nil, nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		if config.RequireEvents {
			return nil, fmt.Errorf("initialize AMQP client: %w", err)
		}
		f.logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		return nil, nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client, nil
}
