package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore writes objects below a local directory, one file per key. It is
// meant for local runs of the serve command.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: 0755 is intentional for a shared data directory
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure data dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Put writes the object body to <baseDir>/<key>.
func (s *FileStore) Put(ctx context.Context, obj Object) error {
	path, err := s.path(obj.Key)
	if err != nil {
		return err
	}

	//nolint:gosec // G301
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create partition dir: %w", err)
	}

	// Write to a unique temp file, then rename
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp object: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(obj.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		//nolint:gosec // G302: 0644 is intentional for readable objects
		err = os.Chmod(tmpPath, 0644)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write object: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit object: %w", err)
	}

	return nil
}

// Get reads back a stored object.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // key checked by path
	return os.ReadFile(path)
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.baseDir, rel), nil
}
