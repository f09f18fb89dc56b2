package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawingest_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rawingest_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rawingest_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rawingest_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Ingest metrics
	IngestDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawingest_ingest_documents_total",
			Help: "Total number of documents handled",
		},
		[]string{"outcome"}, // accepted, invalid_payload, decode, storage, unexpected
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rawingest_ingest_duration_seconds",
			Help:    "Time taken to handle one document end to end",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	IngestPayloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rawingest_ingest_payload_bytes",
			Help:    "Uncompressed size of accepted documents",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
	)

	IngestValidationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rawingest_ingest_validation_errors_total",
			Help: "Total number of schema validation failures",
		},
	)

	// Storage metrics
	StoragePutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawingest_storage_put_total",
			Help: "Total number of object writes",
		},
		[]string{"backend", "status"}, // status: success, failed
	)

	StoragePutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rawingest_storage_put_duration_seconds",
			Help:    "Time taken to write one object",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend"},
	)

	StorageBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rawingest_storage_bytes_written_total",
			Help: "Total compressed bytes written to object storage",
		},
	)

	// Notification metrics
	NotifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawingest_notify_total",
			Help: "Total number of object-created notifications",
		},
		[]string{"status"}, // status: success, failed, dropped
	)

	NotifyPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rawingest_notify_publish_duration_seconds",
			Help:    "Time taken to publish notifications to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	NotifyPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rawingest_notify_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	NotifyBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rawingest_notify_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rawingest_worker_queue_size",
			Help: "Current size of the notification queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rawingest_worker_queue_capacity",
			Help: "Capacity of the notification queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rawingest_worker_processed_total",
			Help: "Total number of notifications published by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rawingest_worker_failed_total",
			Help: "Total number of notifications failed in workers",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rawingest_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch of notifications",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rawingest_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
