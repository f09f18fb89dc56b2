//go:build !gcp

package storage

import (
	"context"
	"fmt"
)

func newGCSStore(ctx context.Context, cfg Config) (ObjectStore, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
