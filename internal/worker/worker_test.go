package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rawingest/internal/models"
)

// mockPublisher records what it was asked to publish
type mockPublisher struct {
	published  atomic.Uint64
	batches    atomic.Uint64
	failed     atomic.Uint64
	shouldFail bool
	failBatch  bool

	block chan struct{}
	once  sync.Once
}

func (m *mockPublisher) Publish(ctx context.Context, evt *models.ObjectCreated) error {
	if m.shouldFail {
		m.failed.Add(1)
		return context.DeadlineExceeded
	}
	m.published.Add(1)
	return nil
}

func (m *mockPublisher) PublishBatch(ctx context.Context, events []*models.ObjectCreated) error {
	if m.block != nil {
		<-m.block
	}
	if m.shouldFail || m.failBatch {
		return context.DeadlineExceeded
	}
	m.batches.Add(1)
	m.published.Add(uint64(len(events)))
	return nil
}

func (m *mockPublisher) release() {
	m.once.Do(func() { close(m.block) })
}

func event(i int) *models.ObjectCreated {
	key := models.NewPartitionKey("2024-03-05T10:00:00Z", "checkout", time.UnixMilli(int64(1709632800000+i)))
	return models.NewObjectCreated("raw-events", key, 100, 60, time.Now())
}

func TestWorkerPool_ProcessNotifications(t *testing.T) {
	mock := &mockPublisher{}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 25; i++ {
		require.NoError(t, pool.Notify(context.Background(), event(i)))
	}

	require.Eventually(t, func() bool {
		return pool.Stats().Processed == 25
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(25), mock.published.Load())
}

func TestWorkerPool_Batching(t *testing.T) {
	mock := &mockPublisher{}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: time.Hour, // only a full batch triggers a publish
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Notify(context.Background(), event(i)))
	}

	require.Eventually(t, func() bool {
		return mock.published.Load() == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), mock.batches.Load())
}

func TestWorkerPool_TimeoutBatch(t *testing.T) {
	mock := &mockPublisher{}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Notify(context.Background(), event(i)))
	}

	require.Eventually(t, func() bool {
		return mock.published.Load() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	mock := &mockPublisher{}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: time.Hour,
	})
	pool.Start()

	for i := 0; i < 7; i++ {
		require.NoError(t, pool.Notify(context.Background(), event(i)))
	}

	pool.Stop()

	assert.Equal(t, uint64(7), mock.published.Load(), "queued notifications are flushed on stop")
	assert.ErrorIs(t, pool.Notify(context.Background(), event(8)), ErrPoolStopped)

	pool.Stop() // idempotent
}

func TestWorkerPool_QueueFull(t *testing.T) {
	mock := &mockPublisher{block: make(chan struct{})}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      1,
		QueueSize:    2,
		BatchSize:    1,
		BatchTimeout: time.Hour,
	})
	pool.Start()
	defer pool.Stop()
	defer mock.release()

	// the single worker takes one and blocks in PublishBatch
	require.NoError(t, pool.Notify(context.Background(), event(0)))
	require.Eventually(t, func() bool {
		return pool.Stats().Queued == 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, pool.Notify(context.Background(), event(1)))
	require.NoError(t, pool.Notify(context.Background(), event(2)))
	assert.ErrorIs(t, pool.Notify(context.Background(), event(3)), ErrQueueFull)
	assert.Equal(t, uint64(1), pool.Stats().Dropped)
}

func TestWorkerPool_FallbackToIndividualPublish(t *testing.T) {
	mock := &mockPublisher{failBatch: true}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      1,
		BatchSize:    4,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Notify(context.Background(), event(i)))
	}

	require.Eventually(t, func() bool {
		return pool.Stats().Processed == 4
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, pool.Stats().Failed)
	assert.Zero(t, mock.batches.Load())
}

func TestWorkerPool_ErrorHandling(t *testing.T) {
	mock := &mockPublisher{shouldFail: true}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Notify(context.Background(), event(i)))
	}

	require.Eventually(t, func() bool {
		return pool.Stats().Failed == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, pool.Stats().Processed)
}
