// Package app assembles the ingest handler and its collaborators from
// configuration. Both the Lambda and the HTTP entry points build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rawingest/internal/config"
	"rawingest/internal/ingest"
	"rawingest/internal/kafka"
	"rawingest/internal/logger"
	"rawingest/internal/schema"
	"rawingest/internal/storage"
	"rawingest/internal/worker"
)

// Options adjust how the App is assembled.
type Options struct {
	// AsyncNotify publishes notifications through a worker pool instead of
	// on the request path.
	AsyncNotify bool

	// Store replaces the configured object store.
	Store storage.ObjectStore

	// Clock is passed to the handler.
	Clock func() time.Time
}

// App owns the long-lived dependencies of the process.
type App struct {
	Config    *config.Config
	Validator *schema.Validator
	Store     storage.ObjectStore
	Producer  *kafka.Producer
	Pool      *worker.Pool
	Handler   *ingest.Handler
}

// New loads the schema, opens the object store and, when configured, the
// notification producer.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := logger.WithComponent("app")

	validator, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("schema", validator.Source()).Msg("schema loaded")

	store := opts.Store
	if store == nil {
		store, err = storage.New(ctx, StorageConfig(cfg.Storage))
		if err != nil {
			return nil, fmt.Errorf("failed to open object store: %w", err)
		}
	}
	log.Info().
		Str("backend", cfg.Storage.Backend).
		Str("bucket", cfg.Storage.Bucket).
		Msg("object store ready")

	a := &App{
		Config:    cfg,
		Validator: validator,
		Store:     store,
	}

	var notifier ingest.Notifier
	if cfg.Notify.Enabled() {
		producer, err := kafka.NewProducer(cfg.Notify.Brokers, cfg.Notify.Topic, cfg.Notify.Producer)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create notification producer: %w", err)
		}
		a.Producer = producer
		notifier = producer

		if opts.AsyncNotify {
			a.Pool = worker.NewPool(worker.Config{
				Publisher:      producer,
				Workers:        cfg.Notify.Workers,
				QueueSize:      cfg.Notify.QueueSize,
				BatchSize:      cfg.Notify.BatchSize,
				BatchTimeout:   cfg.Notify.BatchTimeout,
				PublishTimeout: cfg.Notify.Producer.WriteTimeout,
			})
			notifier = a.Pool
		}

		log.Info().
			Strs("brokers", cfg.Notify.Brokers).
			Str("topic", cfg.Notify.Topic).
			Bool("async", opts.AsyncNotify).
			Msg("object-created notifications enabled")
	}

	handler, err := ingest.NewHandler(ingest.Config{
		Store:            store,
		Bucket:           bucketName(cfg.Storage),
		Validator:        validator,
		Notifier:         notifier,
		NotifyTimeout:    cfg.Notify.Timeout,
		StrictTimestamps: cfg.Ingest.StrictTimestamps,
		Clock:            opts.Clock,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Handler = handler

	return a, nil
}

// Start launches background workers.
func (a *App) Start() {
	if a.Pool != nil {
		a.Pool.Start()
	}
}

// Close flushes pending notifications and releases clients.
func (a *App) Close() error {
	var errs []error
	if a.Pool != nil {
		a.Pool.Stop()
	}
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// StorageConfig maps the storage section onto the store factory config.
func StorageConfig(c config.StorageConfig) storage.Config {
	return storage.Config{
		Backend:         storage.Backend(c.Backend),
		Bucket:          c.Bucket,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		MaxAttempts:     c.MaxAttempts,
		Dir:             c.Dir,
	}
}

// bucketName is the location reported in notifications.
func bucketName(c config.StorageConfig) string {
	if c.Backend == string(storage.BackendFS) && c.Bucket == "" {
		return c.Dir
	}
	return c.Bucket
}
