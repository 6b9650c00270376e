package backend

import (
	"context"
	"errors"
	"fmt"

	"cajaclaro/internal/amqp"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/storage"
	"cajaclaro/internal/storage/memory"
)

type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.ForComponent(applog.ComponentBackend)
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the store and, when a broker URL is configured, the
// tick publisher. An unreachable broker is logged and skipped since
// accounts still tick lazily on read.
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(cfg)
	if err != nil {
		return nil, err
	}
	client := f.openPublisher(ctx, cfg)

	res := &BackendResult{
		Store: store,
		Cleanup: func() error {
			var errs []error
			if client != nil {
				errs = append(errs, client.Close())
			}
			return errors.Join(append(errs, store.Close())...)
		},
	}
	// Leave the interface nil rather than holding a typed nil pointer
	if client != nil {
		res.Publisher = client
	}
	return res, nil
}

func (f *DefaultFactory) openStore(cfg Config) (storage.Store, error) {
	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Warn("Initialized memory backend, data is lost on exit")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
}

func (f *DefaultFactory) openPublisher(ctx context.Context, cfg Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		applog.ForComponent(applog.ComponentAMQP))
	if err != nil {
		f.logger.Warn("AMQP unavailable, continuing without tick requests", applog.FieldError, err)
		return nil
	}
	f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}
