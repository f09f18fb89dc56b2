package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"rawingest/internal/middleware"
	"rawingest/internal/models"
)

// Headers that mark a base64-encoded request body
const (
	BodyEncodingHeader      = "X-Body-Encoding"
	TransferEncodingHeader  = "Content-Transfer-Encoding"
	base64Encoding          = "base64"
	defaultMaxBodySize      = 1 << 20
	errCodeMethodNotAllowed = "method_not_allowed"
	errCodeUnsupportedMedia = "unsupported_media_type"
	errCodeBodyTooLarge     = "body_too_large"
)

// Ingester runs one invocation.
type Ingester interface {
	Handle(ctx context.Context, env models.Envelope) models.Response
}

// IngestHandler turns HTTP requests into invocation envelopes.
type IngestHandler struct {
	ingester    Ingester
	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Ingester    Ingester
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}

	return &IngestHandler{
		ingester:    cfg.Ingester,
		maxBodySize: maxBodySize,
	}
}

// ServeHTTP handles POST /ingest. The response mirrors the invocation
// response: same status code, headers and body.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, errCodeMethodNotAllowed, "method not allowed")
		return
	}

	encoded := isBase64(r.Header)
	if !encoded && !isJSON(r.Header.Get("Content-Type")) {
		h.writeError(w, http.StatusUnsupportedMediaType, errCodeUnsupportedMedia, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, errCodeBodyTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	env := models.Envelope{
		IsBase64Encoded: encoded,
		Headers:         flattenHeaders(r.Header),
		RequestContext:  models.RequestContext{RequestID: r.Header.Get(middleware.RequestIDHeader)},
	}
	// an empty body is treated like an absent one
	if len(body) > 0 {
		text := string(body)
		env.Body = &text
	}

	middleware.WriteResponse(w, h.ingester.Handle(r.Context(), env))
}

func isBase64(header http.Header) bool {
	for _, name := range []string{BodyEncodingHeader, TransferEncodingHeader} {
		if strings.EqualFold(strings.TrimSpace(header.Get(name)), base64Encoding) {
			return true
		}
	}
	return false
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func flattenHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	out := make(map[string]string, len(header))
	for k := range header {
		out[k] = header.Get(k)
	}
	return out
}

// writeError writes a transport-level error in the ingest error shape
func (h *IngestHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	middleware.WriteResponse(w, models.Failure(status, code, message))
}
