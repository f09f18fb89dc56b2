//go:build gcp

package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSStore implements ObjectStore using Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
}

// NewGCSStore creates a new GCS-backed object store.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs: %w", ErrBucketRequired)
	}

	// Create GCS client (uses ADC by default)
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Put uploads obj to the bucket.
func (s *GCSStore) Put(ctx context.Context, obj Object) error {
	w := s.client.Bucket(s.bucket).Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.ContentEncoding = obj.ContentEncoding

	if _, err := w.Write(obj.Body); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed for %s: %w", obj.Key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed for %s: %w", obj.Key, err)
	}

	return nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
