package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"rawingest/internal/config"
	"rawingest/internal/logger"
	"rawingest/internal/metrics"
	"rawingest/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize message")
	ErrNoBrokers       = errors.New("at least one broker is required")
	ErrNoTopic         = errors.New("topic is required")
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes object-created notifications to Kafka with a small
// writer pool and exponential-backoff retry.
type Producer struct {
	cfg     config.ProducerConfig
	topic   string
	writers []MessageWriter
	pool    chan MessageWriter
	closed  atomic.Bool

	newWriter func() MessageWriter

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// WithWriterFactory replaces the kafka.Writer constructor, e.g. for tests.
func WithWriterFactory(fn func() MessageWriter) ProducerOption {
	return func(p *Producer) {
		p.newWriter = fn
	}
}

// NewProducer creates a producer for topic on brokers.
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, ErrNoTopic
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	p := &Producer{
		cfg:     cfg,
		topic:   topic,
		writers: make([]MessageWriter, cfg.PoolSize),
		pool:    make(chan MessageWriter, cfg.PoolSize),
	}

	compression := getCompression(cfg.Compression)
	p.newWriter = func() MessageWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // same service, same partition
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compression,
			MaxAttempts:  1, // retries are ours
		}
	}

	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < cfg.PoolSize; i++ {
		w := p.newWriter()
		p.writers[i] = w
		p.pool <- w
	}

	return p, nil
}

// getCompression returns the kafka compression codec
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// Notify publishes one notification. It implements the ingest notifier.
func (p *Producer) Notify(ctx context.Context, evt *models.ObjectCreated) error {
	return p.Publish(ctx, evt)
}

// Publish sends a single notification.
func (p *Producer) Publish(ctx context.Context, evt *models.ObjectCreated) error {
	return p.PublishBatch(ctx, []*models.ObjectCreated{evt})
}

// PublishBatch sends notifications in a single write.
func (p *Producer) PublishBatch(ctx context.Context, events []*models.ObjectCreated) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(events) == 0 {
		return nil
	}

	log := logger.WithComponent("kafka_producer")
	start := time.Now()

	messages := make([]kafka.Message, 0, len(events))
	var serializeErr error
	for _, evt := range events {
		msg, err := newMessage(evt)
		if err != nil {
			log.Error().
				Err(err).
				Str("object_id", evt.ID).
				Str("key", evt.Key).
				Msg("failed to serialize notification")
			p.messagesFailed.Add(1)
			metrics.NotifyTotal.WithLabelValues("failed").Inc()
			serializeErr = err
			continue
		}
		messages = append(messages, msg)
	}

	if len(messages) == 0 {
		return serializeErr
	}

	var writer MessageWriter
	select {
	case writer = <-p.pool:
		defer func() { p.pool <- writer }()
	case <-ctx.Done():
		p.recordFailure(len(messages))
		return ctx.Err()
	}

	err := p.publishWithRetry(ctx, writer, messages)
	duration := time.Since(start)
	metrics.NotifyPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(messages)).
			Dur("duration", duration).
			Msg("failed to publish notifications")
		p.recordFailure(len(messages))
		return err
	}

	log.Debug().
		Int("batch_size", len(messages)).
		Dur("duration", duration).
		Msg("notifications published")

	var bytesTotal uint64
	for _, msg := range messages {
		bytesTotal += uint64(len(msg.Value))
	}
	p.messagesSent.Add(uint64(len(messages)))
	p.bytesWritten.Add(bytesTotal)
	metrics.NotifyTotal.WithLabelValues("success").Add(float64(len(messages)))
	metrics.NotifyBytesWritten.Add(float64(bytesTotal))

	return serializeErr
}

func (p *Producer) recordFailure(n int) {
	p.messagesFailed.Add(uint64(n))
	metrics.NotifyTotal.WithLabelValues("failed").Add(float64(n))
}

func newMessage(evt *models.ObjectCreated) (kafka.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	return kafka.Message{
		Key:   []byte(evt.PartitionKey()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "object_id", Value: []byte(evt.ID)},
			{Key: "bucket", Value: []byte(evt.Bucket)},
			{Key: "service", Value: []byte(evt.Service)},
			{Key: "size", Value: []byte(strconv.Itoa(evt.Size))},
		},
		Time: evt.ReceivedAt,
	}, nil
}

// publishWithRetry writes messages with exponential backoff between attempts.
func (p *Producer) publishWithRetry(ctx context.Context, writer MessageWriter, messages []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Int("batch_size", len(messages)).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")

			metrics.NotifyPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("batch_size", len(messages)).
			Msg("kafka publish attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes all writers in the pool
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent   uint64
	MessagesFailed uint64
	BytesWritten   uint64
}

// HealthCheck reports whether the producer can still accept messages.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	select {
	case writer := <-p.pool:
		p.pool <- writer
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
