package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"rawingest/internal/logger"
	"rawingest/internal/metrics"
	"rawingest/internal/models"
)

// Pool errors
var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Publisher delivers notifications downstream.
type Publisher interface {
	Publish(ctx context.Context, evt *models.ObjectCreated) error
	PublishBatch(ctx context.Context, events []*models.ObjectCreated) error
}

// Pool decouples notification publishing from the request path: Notify only
// enqueues, and workers publish in batches.
type Pool struct {
	publisher      Publisher
	queue          chan *models.ObjectCreated
	workers        int
	batchSize      int
	batchTimeout   time.Duration
	publishTimeout time.Duration

	mu      sync.RWMutex
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher      Publisher
	Workers        int
	QueueSize      int
	BatchSize      int
	BatchTimeout   time.Duration
	PublishTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	metrics.WorkerQueueCapacity.Set(float64(cfg.QueueSize))

	return &Pool{
		publisher:      cfg.Publisher,
		queue:          make(chan *models.ObjectCreated, cfg.QueueSize),
		workers:        cfg.Workers,
		batchSize:      cfg.BatchSize,
		batchTimeout:   cfg.BatchTimeout,
		publishTimeout: cfg.PublishTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start begins processing notifications
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("queue_size", cap(p.queue)).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Notify enqueues evt without blocking. It returns ErrQueueFull when the
// queue is at capacity and ErrPoolStopped after Stop.
func (p *Pool) Notify(ctx context.Context, evt *models.ObjectCreated) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- evt:
		metrics.WorkerQueueSize.Set(float64(len(p.queue)))
		return nil
	default:
		p.dropped.Add(1)
		metrics.NotifyTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Stop rejects new notifications, publishes what is queued and waits for
// the workers to exit.
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	log.Info().Int("queued", len(p.queue)).Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.ObjectCreated, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			batch = p.drain(batch)
			if len(batch) > 0 {
				p.publishBatch(batch)
			}
			return

		case evt := <-p.queue:
			metrics.WorkerQueueSize.Set(float64(len(p.queue)))
			batch = append(batch, evt)

			if len(batch) >= p.batchSize {
				p.publishBatch(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.publishBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

// drain moves whatever is left in the queue into batch, flushing full batches.
func (p *Pool) drain(batch []*models.ObjectCreated) []*models.ObjectCreated {
	for {
		select {
		case evt := <-p.queue:
			batch = append(batch, evt)
			if len(batch) >= p.batchSize {
				p.publishBatch(batch)
				batch = batch[:0]
			}
		default:
			metrics.WorkerQueueSize.Set(0)
			return batch
		}
	}
}

func (p *Pool) publishBatch(batch []*models.ObjectCreated) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("worker")
	start := time.Now()

	// not derived from p.ctx: the final flush runs after cancellation
	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)
	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("failed to publish batch")

		p.publishIndividually(batch)
		return
	}

	log.Debug().
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("batch published")

	p.processed.Add(uint64(len(batch)))
	metrics.WorkerProcessedTotal.Add(float64(len(batch)))
}

// publishIndividually retries each notification of a failed batch on its own
func (p *Pool) publishIndividually(batch []*models.ObjectCreated) {
	log := logger.WithComponent("worker")
	log.Warn().Int("count", len(batch)).Msg("attempting individual publish for failed batch")

	for _, evt := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
		err := p.publisher.Publish(ctx, evt)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("object_id", evt.ID).
				Str("key", evt.Key).
				Msg("failed to publish notification")
			p.failed.Add(1)
			metrics.WorkerFailedTotal.Inc()
			continue
		}

		p.processed.Add(1)
		metrics.WorkerProcessedTotal.Inc()
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
		Queued:    len(p.queue),
	}
}

// Stats holds worker pool counters
type Stats struct {
	Processed uint64
	Failed    uint64
	Dropped   uint64
	Queued    int
}
