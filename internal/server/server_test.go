package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rawingest/internal/app"
	"rawingest/internal/config"
	"rawingest/internal/models"
)

const doc = `{"event_type":"purchase","service_name":"checkout","timestamp":"2024-03-05T10:00:00Z"}`

func newApp(t *testing.T, mutate ...func(*config.Config)) *app.App {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Storage.Backend = "fs"
	cfg.Storage.Dir = t.TempDir()
	for _, m := range mutate {
		m(cfg)
	}

	a, err := app.New(context.Background(), cfg, app.Options{AsyncNotify: true})
	require.NoError(t, err)
	return a
}

func post(t *testing.T, url, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestRouter_Ingest(t *testing.T) {
	a := newApp(t)
	defer a.Close()
	ts := httptest.NewServer(New(a).Router())
	defer ts.Close()

	resp, body := post(t, ts.URL+"/ingest", doc, map[string]string{"Content-Type": "application/json"})

	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var accepted models.AcceptedBody
	require.NoError(t, json.Unmarshal(body, &accepted))
	assert.Equal(t, "accepted", accepted.Status)
	assert.Regexp(t, `^year=2024/month=03/day=05/service=checkout/\d+\.json\.gz$`, accepted.Key)
}

func TestRouter_IngestBase64(t *testing.T) {
	a := newApp(t)
	defer a.Close()
	ts := httptest.NewServer(New(a).Router())
	defer ts.Close()

	encoded := base64.StdEncoding.EncodeToString([]byte(doc))
	resp, body := post(t, ts.URL+"/ingest", encoded, map[string]string{"X-Body-Encoding": "base64"})

	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func TestRouter_IngestInvalid(t *testing.T) {
	a := newApp(t)
	defer a.Close()
	ts := httptest.NewServer(New(a).Router())
	defer ts.Close()

	resp, body := post(t, ts.URL+"/ingest", `{"service_name":"checkout"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var failure models.ErrorBody
	require.NoError(t, json.Unmarshal(body, &failure))
	assert.Equal(t, "invalid_payload", failure.Error)

	resp, body = post(t, ts.URL+"/ingest", `{"event_type":`, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &failure))
	assert.Equal(t, "ingest_failed", failure.Error)
}

func TestRouter_Health(t *testing.T) {
	a := newApp(t)
	defer a.Close()
	ts := httptest.NewServer(New(a).Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "fs", health.Backend)
	assert.Equal(t, "builtin", health.Schema)
	assert.Empty(t, health.Notify)
}

func TestRouter_StatsWithNotifications(t *testing.T) {
	a := newApp(t, func(c *config.Config) {
		c.Notify.Brokers = []string{"127.0.0.1:1"}
	})
	defer a.Close()
	ts := httptest.NewServer(New(a).Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.NotNil(t, stats.Producer)
	assert.NotNil(t, stats.Worker)
}

func TestRouter_Metrics(t *testing.T) {
	a := newApp(t)
	defer a.Close()
	ts := httptest.NewServer(New(a).Router())
	defer ts.Close()

	post(t, ts.URL+"/ingest", doc, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(data), "rawingest_ingest_documents_total")
	assert.Contains(t, string(data), "rawingest_storage_put_total")
}

func TestServer_RunAndShutdown(t *testing.T) {
	s := New(newApp(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenError(t *testing.T) {
	a := newApp(t, func(c *config.Config) { c.Server.Addr = "256.0.0.1:99999" })

	err := New(a).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
