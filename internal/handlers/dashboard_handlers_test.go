package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"climacaribe/internal/engine"
	"climacaribe/internal/models"
	"climacaribe/internal/scheduler"
	"climacaribe/pkg/logging"
	"climacaribe/pkg/metrics"
)

type stubRepository struct {
	healthErr error
}

func (r *stubRepository) FetchReadings(ctx context.Context, window models.Window, zoneFilter *engine.ZoneFilter) ([]models.Reading, error) {
	base := time.Now().UTC().Add(-10 * time.Minute)
	temps := []float64{30, 30, 30, 30, 30, 30, 30, 30, 90}
	readings := make([]models.Reading, len(temps))
	for i, tv := range temps {
		v := tv
		readings[i] = models.Reading{
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			StationID:   "ST-001",
			City:        "Barranquilla",
			Region:      "Atlántico",
			Temperature: &v,
			Status:      "normal",
		}
	}
	return readings, nil
}

func (r *stubRepository) FetchAlerts(ctx context.Context, window models.Window) ([]models.Alert, error) {
	return []models.Alert{
		{
			DetectedAt: time.Now().UTC().Add(-5 * time.Minute),
			City:       "Cartagena",
			Region:     "Bolívar",
			Severity:   "high",
			AlertType:  "strong_wind",
			Title:      "Viento fuerte",
		},
		{
			DetectedAt: time.Now().UTC().Add(-8 * time.Minute),
			City:       "Barranquilla",
			Region:     "Atlántico",
			Severity:   "critical",
			AlertType:  "extreme_heat",
			Title:      "Calor extremo",
		},
	}, nil
}

func (r *stubRepository) HealthCheck(ctx context.Context) error { return r.healthErr }

var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Collector
)

func testCollector() *metrics.Collector {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewCollector("climacaribe_handlers_test")
	})
	return testMetrics
}

func quietLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("handlers-test", "test", logging.FatalLevel)
	logger.SetOutput(io.Discard)
	return logger
}

// newPublishedHandler runs one scheduler cycle against the stub repository
// and returns a handler whose snapshot is populated.
func newPublishedHandler(t *testing.T, repo *stubRepository) (*DashboardHandler, *mux.Router) {
	t.Helper()

	cfg := scheduler.Config{
		Window:           time.Hour,
		AnomalyThreshold: 2.5,
		RefreshInterval:  time.Hour,
		FailureBackoff:   time.Millisecond,
		FetchTimeout:     time.Second,
		AlertLimit:       10,
	}
	sched := scheduler.New(cfg, repo, engine.NewZoneClassifier(nil), quietLogger(), testCollector())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for sched.Snapshot() == nil {
		select {
		case <-deadline:
			cancel()
			t.Fatal("scheduler never published a snapshot")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	handler := NewDashboardHandler(sched, repo, quietLogger(), testCollector())
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return handler, router
}

func TestGetSnapshotBeforeFirstCycle(t *testing.T) {
	repo := &stubRepository{}
	sched := scheduler.New(scheduler.Config{
		Window:           time.Hour,
		AnomalyThreshold: 2.5,
		RefreshInterval:  time.Hour,
		FailureBackoff:   time.Millisecond,
		FetchTimeout:     time.Second,
		AlertLimit:       10,
	}, repo, engine.NewZoneClassifier(nil), quietLogger(), testCollector())
	handler := NewDashboardHandler(sched, repo, quietLogger(), testCollector())

	rr := httptest.NewRecorder()
	handler.GetSnapshot(rr, httptest.NewRequest("GET", "/api/snapshot", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before first cycle", rr.Code)
	}
}

func TestGetSnapshot(t *testing.T) {
	_, router := newPublishedHandler(t, &stubRepository{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/snapshot", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}

	var snap models.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("response is not valid json: %v", err)
	}
	if snap.KPIs.TotalEvents != 9 {
		t.Errorf("TotalEvents = %d, want 9", snap.KPIs.TotalEvents)
	}
	if snap.Stale {
		t.Error("fresh snapshot reported stale")
	}
}

func TestGetAnomaliesFlaggedFilter(t *testing.T) {
	_, router := newPublishedHandler(t, &stubRepository{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/anomalies?flagged=true", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp AnomaliesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("response is not valid json: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("the 90 degree outlier should be flagged")
	}
	for _, r := range resp.Results {
		if !r.IsAnomaly {
			t.Errorf("flagged=true returned a non-anomalous reading (z=%v)", r.ZScore)
		}
	}
	if resp.Summary.TotalReadings != 9 {
		t.Errorf("TotalReadings = %d, want 9", resp.Summary.TotalReadings)
	}
}

func TestGetAlertsRankedWithRecommendations(t *testing.T) {
	_, router := newPublishedHandler(t, &stubRepository{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/alerts", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp AlertsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("response is not valid json: %v", err)
	}
	if len(resp.Alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(resp.Alerts))
	}
	// The older critical outranks the newer high.
	if resp.Alerts[0].Severity != "critical" {
		t.Errorf("first alert severity = %s, want critical", resp.Alerts[0].Severity)
	}
	if resp.Alerts[0].SeverityRank != 1 {
		t.Errorf("first alert rank = %d, want 1", resp.Alerts[0].SeverityRank)
	}
	if resp.Alerts[0].Recommendation == "" {
		t.Error("alert missing recommendation text")
	}
}

func TestExportReadingsCSV(t *testing.T) {
	_, router := newPublishedHandler(t, &stubRepository{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/export.csv", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %s, want text/csv", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "climacaribe_data_") {
		t.Errorf("Content-Disposition = %s", cd)
	}

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 10 {
		t.Errorf("csv lines = %d, want header + 9 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "ts,station_id") {
		t.Errorf("unexpected csv header: %s", lines[0])
	}
}

func TestRefreshNowEndpoint(t *testing.T) {
	_, router := newPublishedHandler(t, &stubRepository{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/refresh", nil))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("response is not valid json: %v", err)
	}
	if _, ok := resp["triggered"]; !ok {
		t.Error("response missing triggered field")
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	repo := &stubRepository{healthErr: errors.New("connection refused")}
	_, router := newPublishedHandler(t, repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when the database is down", rr.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("response is not valid json: %v", err)
	}
	if resp["status"] != "degraded" {
		t.Errorf("status field = %v, want degraded", resp["status"])
	}
	if _, ok := resp["last_cycle"]; !ok {
		t.Error("health response missing last_cycle after a published snapshot")
	}
}
