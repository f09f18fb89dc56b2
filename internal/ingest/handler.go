// Package ingest turns one invocation envelope into one stored object:
// decode, validate, resolve the timestamp, derive the partition key, compress,
// write and respond.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"rawingest/internal/logger"
	"rawingest/internal/metrics"
	"rawingest/internal/models"
	"rawingest/internal/schema"
	"rawingest/internal/storage"
)

// Content metadata attached to every stored object
const (
	ContentType     = "application/json"
	ContentEncoding = "gzip"
)

// DefaultNotifyTimeout bounds a notification when Config.NotifyTimeout is unset.
const DefaultNotifyTimeout = time.Second

// notifyDeadlineMargin is left between a notification and the invocation deadline.
const notifyDeadlineMargin = 250 * time.Millisecond

var errNoStore = errors.New("ingest: object store is required")
var errNoValidator = errors.New("ingest: validator is required")
var errInvalidUTF8 = errors.New("decode body: invalid UTF-8")

// Validator checks a decoded document. Rule violations must be reported as
// *schema.ViolationError; any other error is treated as an internal failure.
type Validator interface {
	Validate(doc any) error
}

// Notifier announces stored objects. Its errors are logged and never change
// the invocation result.
type Notifier interface {
	Notify(ctx context.Context, evt *models.ObjectCreated) error
}

// Config holds the handler dependencies.
type Config struct {
	Store     storage.ObjectStore
	Bucket    string
	Validator Validator

	// Notifier is optional.
	Notifier Notifier

	// NotifyTimeout bounds each notification. It is further capped so the
	// notification ends before the invocation deadline.
	NotifyTimeout time.Duration

	// StrictTimestamps rejects documents whose timestamp cannot be parsed and
	// partitions by the parsed UTC date. Off by default: the date is sliced
	// from the first ten characters as-is.
	StrictTimestamps bool

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Handler is safe for concurrent use; it holds only immutable dependencies.
type Handler struct {
	store     storage.ObjectStore
	bucket    string
	validator Validator
	notifier  Notifier
	notifyTTL time.Duration
	strict    bool
	clock     func() time.Time
}

// NewHandler creates a handler from cfg.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Store == nil {
		return nil, errNoStore
	}
	if cfg.Validator == nil {
		return nil, errNoValidator
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	notifyTTL := cfg.NotifyTimeout
	if notifyTTL <= 0 {
		notifyTTL = DefaultNotifyTimeout
	}

	return &Handler{
		store:     cfg.Store,
		bucket:    cfg.Bucket,
		validator: cfg.Validator,
		notifier:  cfg.Notifier,
		notifyTTL: notifyTTL,
		strict:    cfg.StrictTimestamps,
		clock:     clock,
	}, nil
}

// Result describes a stored document.
type Result struct {
	Key            models.PartitionKey
	Size           int
	CompressedSize int
}

// prepared is a validated document and its destination
type prepared struct {
	doc *models.Document
	key models.PartitionKey
	now time.Time
}

// Handle runs one invocation and always produces a response.
func (h *Handler) Handle(ctx context.Context, env models.Envelope) (resp models.Response) {
	start := time.Now()

	log := logger.WithComponent("ingest")
	if id := env.RequestContext.RequestID; id != "" {
		log = log.With().Str("request_id", id).Logger()
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("ingest").Inc()
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			resp = h.failure(log, newError(KindUnexpected, fmt.Errorf("panic: %v", r)), start)
		}
	}()

	res, err := h.Ingest(ctx, env)
	if err != nil {
		return h.failure(log, err, start)
	}

	duration := time.Since(start)
	metrics.IngestDocumentsTotal.WithLabelValues("accepted").Inc()
	metrics.IngestDuration.Observe(duration.Seconds())
	metrics.IngestPayloadBytes.Observe(float64(res.Size))

	log.Info().
		Str("service", res.Key.Service).
		Str("key", res.Key.Key()).
		Int("bytes", res.Size).
		Int("compressed_bytes", res.CompressedSize).
		Dur("duration", duration).
		Msg("document accepted")

	return models.Accepted(res.Key.Key())
}

// Ingest stores the envelope's document and returns where it went. Errors are
// *Error values carrying their Kind.
func (h *Handler) Ingest(ctx context.Context, env models.Envelope) (*Result, error) {
	p, err := h.prepare(env)
	if err != nil {
		return nil, err
	}

	payload := p.doc.Bytes()
	compressed, err := compress(payload)
	if err != nil {
		return nil, newError(KindUnexpected, fmt.Errorf("compress document: %w", err))
	}

	err = h.store.Put(ctx, storage.Object{
		Key:             p.key.Key(),
		Body:            compressed,
		ContentType:     ContentType,
		ContentEncoding: ContentEncoding,
	})
	if err != nil {
		return nil, newError(KindStorage, err)
	}

	res := &Result{Key: p.key, Size: len(payload), CompressedSize: len(compressed)}
	h.notify(ctx, p, res)
	return res, nil
}

// Check decodes and validates the envelope and returns the key the document
// would be written to, without writing it.
func (h *Handler) Check(env models.Envelope) (models.PartitionKey, error) {
	p, err := h.prepare(env)
	if err != nil {
		return models.PartitionKey{}, err
	}
	return p.key, nil
}

func (h *Handler) prepare(env models.Envelope) (*prepared, error) {
	body, err := decodeBody(env)
	if err != nil {
		return nil, newError(KindDecode, err)
	}

	doc, err := models.DecodeDocument(body)
	if err != nil {
		return nil, newError(KindDecode, err)
	}

	if err := h.validator.Validate(doc.Value()); err != nil {
		var violation *schema.ViolationError
		if errors.As(err, &violation) {
			return nil, newError(KindInvalidPayload, violation)
		}
		return nil, newError(KindUnexpected, fmt.Errorf("validate document: %w", err))
	}

	if !doc.IsObject() {
		return nil, newError(KindDecode, models.ErrNotAnObject)
	}

	now := h.clock()
	ts, err := h.resolveTimestamp(doc, now)
	if err != nil {
		return nil, err
	}

	return &prepared{
		doc: doc,
		key: models.NewPartitionKey(ts, doc.ServiceName(), now),
		now: now,
	}, nil
}

func (h *Handler) resolveTimestamp(doc *models.Document, now time.Time) (string, error) {
	ts, ok, err := doc.Timestamp()
	if err != nil {
		return "", newError(KindDecode, err)
	}
	if !ok {
		return models.NowTimestamp(now), nil
	}
	if !h.strict {
		return ts, nil
	}

	normalized, err := models.NormalizeTimestamp(ts)
	if err != nil {
		return "", newError(KindInvalidPayload, fmt.Errorf("timestamp %q: %w", ts, err))
	}
	return normalized, nil
}

func (h *Handler) notify(ctx context.Context, p *prepared, res *Result) {
	if h.notifier == nil {
		return
	}

	log := logger.WithComponent("ingest")
	evt := models.NewObjectCreated(h.bucket, res.Key, res.Size, res.CompressedSize, p.now)

	timeout := h.notifyTTL
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline) - notifyDeadlineMargin; remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		metrics.NotifyTotal.WithLabelValues("dropped").Inc()
		log.Warn().
			Str("key", evt.Key).
			Msg("object-created notification skipped: invocation deadline too close")
		return
	}

	nctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := h.notifier.Notify(nctx, evt); err != nil {
		log.Warn().
			Err(err).
			Str("key", evt.Key).
			Dur("timeout", timeout).
			Msg("object-created notification failed")
	}
}

func (h *Handler) failure(log zerolog.Logger, err error, start time.Time) models.Response {
	kind := KindOf(err)

	metrics.IngestDocumentsTotal.WithLabelValues(kind.String()).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	event := log.Error()
	if kind == KindInvalidPayload {
		metrics.IngestValidationErrors.Inc()
		event = log.Warn()
	}
	event.
		Err(err).
		Str("kind", kind.String()).
		Int("status", kind.StatusCode()).
		Msg("document rejected")

	return models.Failure(kind.StatusCode(), kind.Code(), err.Error())
}

func decodeBody(env models.Envelope) ([]byte, error) {
	raw := []byte(env.RawBody())
	if env.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("decode base64 body: %w", err)
		}
		raw = decoded
	}
	if !utf8.Valid(raw) {
		return nil, errInvalidUTF8
	}
	return raw, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
