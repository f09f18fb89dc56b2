package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rawingest/internal/logger"
	"rawingest/internal/metrics"
	"rawingest/internal/models"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// responseWriter wraps http.ResponseWriter to capture status and size
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Logging logs every request and records the HTTP metrics. A caller-supplied
// X-Request-ID is kept; otherwise one is generated.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			r.Header.Set(RequestIDHeader, requestID)
		}
		w.Header().Set(RequestIDHeader, requestID)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		log := logger.Logger.With().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Logger()

		log.Debug().
			Int64("content_length", r.ContentLength).
			Str("user_agent", r.UserAgent()).
			Msg("request received")

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		log.Info().
			Int("status", rw.status).
			Int("response_size", rw.size).
			Dur("duration", duration).
			Msg("request completed")

		route := routePattern(r)
		status := strconv.Itoa(rw.status)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(duration.Seconds())

		if r.ContentLength > 0 {
			metrics.HTTPRequestSize.WithLabelValues(r.Method, route).Observe(float64(r.ContentLength))
		}
		if rw.size > 0 {
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.size))
		}
	})
}

// routePattern keeps metric labels bounded: the matched chi route, or a
// fixed label for unmatched paths.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// Recovery middleware recovers from panics and answers with the ingest error shape
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Logger.Error().
					Str("request_id", r.Header.Get(RequestIDHeader)).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				metrics.PanicsRecovered.WithLabelValues("http_handler").Inc()

				WriteResponse(w, models.Failure(http.StatusInternalServerError, "ingest_failed", "internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// WriteResponse writes an invocation response as an HTTP response.
func WriteResponse(w http.ResponseWriter, resp models.Response) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}

// Chain applies middlewares in order
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
