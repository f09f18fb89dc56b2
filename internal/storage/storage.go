package storage

import (
	"context"
	"errors"
)

// Storage errors
var (
	ErrBucketRequired = errors.New("bucket is required")
	ErrInvalidKey     = errors.New("invalid object key")
)

// Object is a single blob write.
type Object struct {
	Key             string
	Body            []byte
	ContentType     string
	ContentEncoding string
}

// ObjectStore writes objects to a bucket fixed at construction time.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Put writes obj once. No read-back, no retry beyond what the client does.
	Put(ctx context.Context, obj Object) error
	Close() error
}

// Discard accepts and drops every object. The validate command uses it.
var Discard ObjectStore = discardStore{}

type discardStore struct{}

func (discardStore) Put(ctx context.Context, obj Object) error { return nil }
func (discardStore) Close() error                              { return nil }
