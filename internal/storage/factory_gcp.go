//go:build gcp

package storage

import "context"

func newGCSStore(ctx context.Context, cfg Config) (ObjectStore, error) {
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: cfg.Bucket})
}
