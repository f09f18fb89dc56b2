package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rawingest/internal/app"
	"rawingest/internal/handlers"
	"rawingest/internal/logger"
	"rawingest/internal/middleware"
)

// Server exposes the ingest handler over HTTP.
type Server struct {
	app        *app.App
	httpServer *http.Server
	ready      chan struct{}
	addr       string
	wg         sync.WaitGroup
}

// New builds a server for a; call Run to start it.
func New(a *app.App) *Server {
	s := &Server{app: a, ready: make(chan struct{})}

	cfg := a.Config.Server
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Router wires the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, middleware.Recovery, middleware.Logging)

	r.Handle("/ingest", handlers.NewIngestHandler(handlers.IngestConfig{
		Ingester:    s.app.Handler,
		MaxBodySize: s.app.Config.Ingest.MaxBodyBytes,
	}))
	r.Get("/health", s.healthHandler)
	r.Get("/stats", s.statsHandler)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully. The app is
// closed when Run returns.
func (s *Server) Run(ctx context.Context) error {
	log := logger.WithComponent("server")

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		_ = s.app.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.addr = ln.Addr().String()

	s.app.Start()

	errCh := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", s.addr).Msg("starting HTTP server")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.app.Producer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reportStats(ctx)
		}()
	}
	close(s.ready)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("HTTP server error")
	}

	if err := s.shutdown(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Addr returns the listening address once Ready is closed.
func (s *Server) Addr() string {
	return s.addr
}

// Ready is closed once the listener is open.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// shutdown stops accepting requests, then flushes notifications and closes clients
func (s *Server) shutdown() error {
	log := logger.WithComponent("server")
	log.Info().Msg("initiating graceful shutdown")

	timeout := s.app.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		errs = append(errs, err)
	}

	if err := s.app.Close(); err != nil {
		log.Error().Err(err).Msg("close error")
		errs = append(errs, err)
	}

	s.wg.Wait()
	log.Info().Msg("server stopped gracefully")
	return errors.Join(errs...)
}

// reportStats periodically logs notification statistics
func (s *Server) reportStats(ctx context.Context) {
	log := logger.WithComponent("server")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.stats()
			event := log.Info()
			if stats.Producer != nil {
				event = event.
					Uint64("producer_sent", stats.Producer.MessagesSent).
					Uint64("producer_failed", stats.Producer.MessagesFailed).
					Uint64("producer_bytes", stats.Producer.BytesWritten)
			}
			if stats.Worker != nil {
				event = event.
					Uint64("worker_processed", stats.Worker.Processed).
					Uint64("worker_failed", stats.Worker.Failed).
					Uint64("worker_dropped", stats.Worker.Dropped).
					Int("queue_size", stats.Worker.Queued)
			}
			event.Msg("stats")
		}
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Backend   string `json:"backend"`
	Schema    string `json:"schema"`
	Notify    string `json:"notify,omitempty"`
	Timestamp string `json:"timestamp"`
}

// healthHandler reports liveness. A failing notification producer degrades
// the status without failing the check: ingestion does not depend on it.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Backend:   s.app.Config.Storage.Backend,
		Schema:    s.app.Validator.Source(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if s.app.Producer != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Notify = "ok"
		if err := s.app.Producer.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Notify = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type producerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

type workerStats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

type statsResponse struct {
	Producer *producerStats `json:"producer,omitempty"`
	Worker   *workerStats   `json:"worker,omitempty"`
}

func (s *Server) stats() statsResponse {
	var resp statsResponse
	if s.app.Producer != nil {
		ps := s.app.Producer.Stats()
		resp.Producer = &producerStats{
			MessagesSent:   ps.MessagesSent,
			MessagesFailed: ps.MessagesFailed,
			BytesWritten:   ps.BytesWritten,
		}
	}
	if s.app.Pool != nil {
		ws := s.app.Pool.Stats()
		resp.Worker = &workerStats{
			Processed: ws.Processed,
			Failed:    ws.Failed,
			Dropped:   ws.Dropped,
			Queued:    ws.Queued,
		}
	}
	return resp
}

// statsHandler returns notification counters
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
