// Tests for the observability HTTP server
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nainya/revstore/internal/logger"
	"github.com/nainya/revstore/internal/metrics"
	"github.com/nainya/revstore/pkg/storage"
	"github.com/nainya/revstore/pkg/version"
)

func setupTestServer(t *testing.T) (*httptest.Server, *version.Manager, *metrics.Metrics) {
	t.Helper()

	store := storage.NewMemoryStore()
	mgr, err := version.NewManager(store, version.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	log := logger.NewLogger(logger.Config{Level: "error", Output: io.Discard})

	o := NewObservabilityServer(0, log, m, mgr, store)
	ts := httptest.NewServer(o.Handler())
	t.Cleanup(ts.Close)

	return ts, mgr, m
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("Expected status healthy, got %s", body.Status)
	}
	if body.Service != "revstore" {
		t.Errorf("Expected service revstore, got %s", body.Service)
	}
}

func TestReadyEndpoint(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("Ready request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

// brokenAdapter fails every operation with a backend error.
type brokenAdapter struct{}

func (brokenAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("backend down")
}

func (brokenAdapter) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("backend down")
}

func (brokenAdapter) Delete(ctx context.Context, key string) error {
	return errors.New("backend down")
}

func (brokenAdapter) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return nil, errors.New("backend down")
}

func TestReadyEndpointReportsBackendFailure(t *testing.T) {
	store := brokenAdapter{}
	mgr, err := version.NewManager(store, version.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	log := logger.NewLogger(logger.Config{Level: "error", Output: io.Discard})

	o := NewObservabilityServer(0, log, m, mgr, store)
	ts := httptest.NewServer(o.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("Ready request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, mgr, _ := setupTestServer(t)
	ctx := context.Background()

	for _, content := range []string{`{"n":1}`, `{"n":2}`} {
		_, err := mgr.CreateVersion(ctx, version.VersionableContent{
			ID:      "c1",
			Type:    "doc",
			Content: json.RawMessage(content),
			OwnerID: "user1",
		}, version.CreateOptions{})
		if err != nil {
			t.Fatalf("Failed to create version: %v", err)
		}
	}

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("Stats request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var stats version.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.VersionCount != 2 {
		t.Errorf("Expected 2 versions, got %d", stats.VersionCount)
	}
	if stats.ContentCount != 1 {
		t.Errorf("Expected 1 content, got %d", stats.ContentCount)
	}
}

func TestStatsEndpointOwnerFilter(t *testing.T) {
	ts, mgr, _ := setupTestServer(t)
	ctx := context.Background()

	_, err := mgr.CreateVersion(ctx, version.VersionableContent{
		ID:      "c1",
		Type:    "doc",
		Content: json.RawMessage(`{"n":1}`),
		OwnerID: "user1",
	}, version.CreateOptions{})
	if err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}

	resp, err := http.Get(ts.URL + "/stats?owner=user2")
	if err != nil {
		t.Fatalf("Stats request failed: %v", err)
	}
	defer resp.Body.Close()

	var stats version.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.VersionCount != 0 {
		t.Errorf("Expected 0 versions for user2, got %d", stats.VersionCount)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("Metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics body: %v", err)
	}
	if len(body) == 0 {
		t.Error("Expected non-empty metrics output")
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	ts, _, m := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	resp.Body.Close()

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/health", "200"))
	if got != 1 {
		t.Errorf("Expected 1 recorded request, got %v", got)
	}
}
