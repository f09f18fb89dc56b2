package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rawingest/internal/config"
	"rawingest/internal/models"
	"rawingest/internal/schema"
	"rawingest/internal/storage"
)

func fsConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = "fs"
	cfg.Storage.Dir = t.TempDir()
	return cfg
}

func TestNew_FileBackendEndToEnd(t *testing.T) {
	cfg := fsConfig(t)
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	a, err := New(context.Background(), cfg, Options{Clock: func() time.Time { return now }})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Producer)
	assert.Nil(t, a.Pool)

	doc := `{"event_type":"purchase","service_name":"checkout","timestamp":"2024-03-05T10:00:00Z"}`
	resp := a.Handler.Handle(context.Background(), models.NewEnvelope(doc, false))
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var body models.AcceptedBody
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "year=2024/month=03/day=05/service=checkout/1709632800000.json.gz", body.Key)

	fs, err := storage.NewFileStore(cfg.Storage.Dir)
	require.NoError(t, err)
	stored, err := fs.Get(context.Background(), body.Key)
	require.NoError(t, err)

	zr, err := gzip.NewReader(bytes.NewReader(stored))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, doc+"\n", string(plain))
}

func TestNew_UsesBuiltinSchema(t *testing.T) {
	a, err := New(context.Background(), fsConfig(t), Options{})
	require.NoError(t, err)
	defer a.Close()

	// the test binary has no schema.json next to it
	assert.Equal(t, schema.SourceBuiltin, a.Validator.Source())
}

func TestNew_MissingSchemaFile(t *testing.T) {
	cfg := fsConfig(t)
	cfg.Schema.Path = "/does/not/exist/schema.json"

	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read schema")
}

func TestNew_S3WithoutBucket(t *testing.T) {
	cfg := config.Default()

	_, err := New(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, storage.ErrBucketRequired)
}

func TestNew_NotificationsAsync(t *testing.T) {
	cfg := fsConfig(t)
	cfg.Notify.Brokers = []string{"127.0.0.1:1"}

	a, err := New(context.Background(), cfg, Options{AsyncNotify: true})
	require.NoError(t, err)

	require.NotNil(t, a.Producer)
	require.NotNil(t, a.Pool)

	a.Start()
	assert.NoError(t, a.Close())
}

func TestNew_NotificationsSync(t *testing.T) {
	cfg := fsConfig(t)
	cfg.Notify.Brokers = []string{"127.0.0.1:1"}

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Producer)
	assert.Nil(t, a.Pool)
}

func TestStorageConfig(t *testing.T) {
	got := StorageConfig(config.StorageConfig{
		Backend:     "s3",
		Bucket:      "raw",
		Region:      "eu-west-1",
		Endpoint:    "http://localhost:9000",
		MaxAttempts: 5,
	})

	assert.Equal(t, storage.BackendS3, got.Backend)
	assert.Equal(t, "raw", got.Bucket)
	assert.Equal(t, "eu-west-1", got.Region)
	assert.Equal(t, "http://localhost:9000", got.Endpoint)
	assert.Equal(t, 5, got.MaxAttempts)
}

func TestBucketName(t *testing.T) {
	assert.Equal(t, "raw", bucketName(config.StorageConfig{Backend: "s3", Bucket: "raw"}))
	assert.Equal(t, "/data", bucketName(config.StorageConfig{Backend: "fs", Dir: "/data"}))
}
