package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailcam/mailcam/internal/config"
	"github.com/mailcam/mailcam/internal/health"
	"github.com/mailcam/mailcam/internal/logger"
	"github.com/mailcam/mailcam/internal/publisher"
	"github.com/mailcam/mailcam/internal/telemetry"
	"github.com/mailcam/mailcam/internal/tracker"
)

// fakeDetection is a canned DetectionSource
type fakeDetection struct {
	snap     tracker.Snapshot
	hasSnap  bool
	cycle    publisher.CycleDetails
	hasCycle bool
}

func (f *fakeDetection) Snapshot() (tracker.Snapshot, bool)        { return f.snap, f.hasSnap }
func (f *fakeDetection) LastCycle() (publisher.CycleDetails, bool) { return f.cycle, f.hasCycle }

// fakeStats is a canned StatsSource
type fakeStats struct {
	stats telemetry.CycleStats
}

func (f *fakeStats) Stats() telemetry.CycleStats { return f.stats }
func (f *fakeStats) Runtime() telemetry.RuntimeStats {
	return telemetry.RuntimeStats{UptimeSeconds: 1, Goroutines: 2}
}

// staticWebChecker always reports a fixed health status
type staticWebChecker struct {
	name   string
	status health.Status
}

func (s staticWebChecker) Name() string { return s.name }
func (s staticWebChecker) Check(ctx context.Context) health.Check {
	return health.Check{Name: s.name, Status: s.status, Timestamp: time.Now()}
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	log, err := logger.New(logger.LogConfig{
		Level:  "debug",
		Format: "text",
		Output: "stdout",
	})
	require.NoError(t, err)

	cfg := &config.WebConfig{Enabled: true, Host: "127.0.0.1", Port: 8080}

	server := NewServer(cfg, log)
	server.SetVersion("test-version-1.0.0")
	server.setupRoutes()
	return server
}

func serve(t *testing.T, server *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func TestHandleLiveness(t *testing.T) {
	server := setupTestServer(t)

	w := serve(t, server, http.MethodGet, "/api/health/live")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "alive", response["status"])
}

func TestHandleHealth_NoRegistry(t *testing.T) {
	server := setupTestServer(t)

	w := serve(t, server, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestHandleHealth_Unhealthy(t *testing.T) {
	server := setupTestServer(t)

	registry := health.NewRegistry(server.logger, nil)
	registry.RegisterChecker(staticWebChecker{name: "model", status: health.StatusUnhealthy})
	server.SetHealthRegistry(registry)

	w := serve(t, server, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks, "model")
}

func TestHandleHealth_Degraded(t *testing.T) {
	server := setupTestServer(t)

	registry := health.NewRegistry(server.logger, nil)
	registry.RegisterChecker(staticWebChecker{name: "broker", status: health.StatusDegraded})
	server.SetHealthRegistry(registry)

	// Degraded is still serving traffic, so the status code stays 200.
	w := serve(t, server, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, health.StatusDegraded, report.Status)
}

func TestHandleStatus(t *testing.T) {
	server := setupTestServer(t)
	server.SetStatsSource(&fakeStats{stats: telemetry.CycleStats{CyclesCompleted: 7, LastState: "Delivered"}})

	w := serve(t, server, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "test-version-1.0.0", response["version"])
	assert.NotEmpty(t, response["uptime"])

	cycles, ok := response["cycles"].(map[string]interface{})
	require.True(t, ok, "cycles missing from status payload")
	assert.Equal(t, float64(7), cycles["cycles_completed"])
	assert.Equal(t, "Delivered", cycles["last_state"])
}

func TestHandleSummary_NoCycleYet(t *testing.T) {
	server := setupTestServer(t)
	server.SetDetectionSource(&fakeDetection{})

	w := serve(t, server, http.MethodGet, "/api/summary")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSummary(t *testing.T) {
	server := setupTestServer(t)

	now := time.Now()
	server.SetDetectionSource(&fakeDetection{
		hasSnap: true,
		snap: tracker.Snapshot{
			AsOf:        now,
			DayBoundary: "2026-08-29",
			States: []tracker.CarrierState{
				{Label: "amazon", DetectedToday: true, FirstSeen: &now, LastSeen: &now},
				{Label: "usps", DetectedToday: false},
			},
		},
	})

	w := serve(t, server, http.MethodGet, "/api/summary")
	assert.Equal(t, http.StatusOK, w.Code)

	var snap tracker.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "2026-08-29", snap.DayBoundary)
	require.Len(t, snap.States, 2)
	assert.Equal(t, "amazon", snap.States[0].Label)
	assert.True(t, snap.States[0].DetectedToday)
	assert.False(t, snap.States[1].DetectedToday)
}

func TestHandleDetections(t *testing.T) {
	server := setupTestServer(t)
	server.SetDetectionSource(&fakeDetection{
		hasCycle: true,
		cycle: publisher.CycleDetails{
			State:     "Delivered",
			Iteration: 42,
			HitCount:  1,
		},
	})

	w := serve(t, server, http.MethodGet, "/api/detections")
	assert.Equal(t, http.StatusOK, w.Code)

	var details publisher.CycleDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, "Delivered", details.State)
	assert.Equal(t, uint64(42), details.Iteration)
}

func TestHandleDetections_NoSource(t *testing.T) {
	server := setupTestServer(t)

	w := serve(t, server, http.MethodGet, "/api/detections")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleMetrics_NoCollector(t *testing.T) {
	server := setupTestServer(t)

	w := serve(t, server, http.MethodGet, "/api/metrics")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "Telemetry collector not available")
}

func TestHandleGetConfig_MasksPassword(t *testing.T) {
	server := setupTestServer(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mailcam.yaml")
	configYAML := `
model:
  path: /models/mailcam.onnx
  labels: /models/labels.txt
  tensor_side: 640
  conf_min: 0.3
  area_min_frac: 0.001
  iou_threshold: 0.45
  allow_labels: [amazon, usps]
source:
  url: http://camera.local/snapshot.jpg
  poll_interval: 30s
  fetch_timeout: 10s
  infer_timeout: 20s
mqtt:
  host: broker.local
  port: 1883
  username: mailcam
  password: hunter2
`
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0o644))

	configSvc, err := config.NewService(configPath, server.logger)
	require.NoError(t, err)
	server.SetConfigDependency(configSvc)

	w := serve(t, server, http.MethodGet, "/api/config")
	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "hunter2")

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	mqtt, ok := response["mqtt"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "***", mqtt["password"])
	assert.Equal(t, "broker.local", mqtt["host"])
}

func TestNoRoute(t *testing.T) {
	server := setupTestServer(t)

	w := serve(t, server, http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
