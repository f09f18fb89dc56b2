package storage

import (
	"context"
	"fmt"
	"time"

	"rawingest/internal/metrics"
)

// Backend names an object storage implementation.
type Backend string

const (
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
	BackendFS  Backend = "fs"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend

	// Bucket is the destination bucket (s3, gcs).
	Bucket string

	// S3 options
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	MaxAttempts     int

	// Dir is the root directory for the fs backend.
	Dir string
}

// New builds the configured store, instrumented with metrics.
func New(ctx context.Context, cfg Config) (ObjectStore, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendS3
	}

	var (
		store ObjectStore
		err   error
	)
	switch backend {
	case BackendS3:
		store, err = NewS3Store(ctx, S3StoreConfig{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			MaxAttempts:     cfg.MaxAttempts,
		})
	case BackendGCS:
		store, err = newGCSStore(ctx, cfg)
	case BackendFS:
		dir := cfg.Dir
		if dir == "" {
			dir = "data"
		}
		store, err = NewFileStore(dir)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
	if err != nil {
		return nil, err
	}

	return Instrument(store, backend), nil
}

// Instrument records put counts, latency and bytes for store.
func Instrument(store ObjectStore, backend Backend) ObjectStore {
	return &instrumentedStore{next: store, backend: string(backend)}
}

type instrumentedStore struct {
	next    ObjectStore
	backend string
}

func (s *instrumentedStore) Put(ctx context.Context, obj Object) error {
	start := time.Now()
	err := s.next.Put(ctx, obj)
	metrics.StoragePutDuration.WithLabelValues(s.backend).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.StoragePutTotal.WithLabelValues(s.backend, "failed").Inc()
		return err
	}

	metrics.StoragePutTotal.WithLabelValues(s.backend, "success").Inc()
	metrics.StorageBytesWritten.Add(float64(len(obj.Body)))
	return nil
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}

// Unwrap returns the underlying store.
func (s *instrumentedStore) Unwrap() ObjectStore {
	return s.next
}
