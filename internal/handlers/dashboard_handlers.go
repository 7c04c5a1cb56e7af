package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"climacaribe/internal/engine"
	"climacaribe/internal/export"
	"climacaribe/internal/models"
	"climacaribe/internal/repository"
	"climacaribe/internal/scheduler"
	"climacaribe/pkg/logging"
	"climacaribe/pkg/metrics"
)

// DashboardHandler serves the published snapshot to the presentation layer
type DashboardHandler struct {
	sched   *scheduler.Scheduler
	repo    repository.StreamRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(
	sched *scheduler.Scheduler,
	repo repository.StreamRepository,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *DashboardHandler {
	return &DashboardHandler{
		sched:   sched,
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// RankedAlert pairs an alert with its advisory text for display
type RankedAlert struct {
	models.Alert
	SeverityRank   int    `json:"severity_rank"`
	Recommendation string `json:"recommendation"`
}

// GetSnapshot handles GET /api/snapshot
func (h *DashboardHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/snapshot").Observe(time.Since(startTime).Seconds())
	}()

	snap := h.sched.Snapshot()
	if snap == nil {
		h.sendError(w, r, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}

	h.metrics.RecordAPIRequest("/api/snapshot", "GET", "200")
	h.sendJSON(w, snap, http.StatusOK)
}

// AnomaliesResponse wraps the anomaly scan of the current cycle
type AnomaliesResponse struct {
	CycleID    string                 `json:"cycle_id"`
	ComputedAt time.Time              `json:"computed_at"`
	Stale      bool                   `json:"stale"`
	Summary    models.AnomalySummary  `json:"summary"`
	Results    []models.AnomalyResult `json:"results"`
}

// GetAnomalies handles GET /api/anomalies. With ?flagged=true only the
// readings classified as anomalous are returned, still in rank order.
func (h *DashboardHandler) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/anomalies").Observe(time.Since(startTime).Seconds())
	}()

	snap := h.sched.Snapshot()
	if snap == nil {
		h.sendError(w, r, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}

	results := snap.Anomalies
	if flagged, _ := strconv.ParseBool(r.URL.Query().Get("flagged")); flagged {
		only := make([]models.AnomalyResult, 0, snap.AnomalySummary.AnomalyCount)
		for i := range results {
			if results[i].IsAnomaly {
				only = append(only, results[i])
			}
		}
		results = only
	}

	response := AnomaliesResponse{
		CycleID:    snap.CycleID,
		ComputedAt: snap.ComputedAt,
		Stale:      snap.Stale,
		Summary:    snap.AnomalySummary,
		Results:    results,
	}

	h.metrics.RecordAPIRequest("/api/anomalies", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// AlertsResponse wraps the ranked alert list of the current cycle
type AlertsResponse struct {
	CycleID    string        `json:"cycle_id"`
	ComputedAt time.Time     `json:"computed_at"`
	Stale      bool          `json:"stale"`
	Alerts     []RankedAlert `json:"alerts"`
}

// GetAlerts handles GET /api/alerts
func (h *DashboardHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/alerts").Observe(time.Since(startTime).Seconds())
	}()

	snap := h.sched.Snapshot()
	if snap == nil {
		h.sendError(w, r, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}

	ranked := make([]RankedAlert, 0, len(snap.Alerts))
	for _, alert := range snap.Alerts {
		ranked = append(ranked, RankedAlert{
			Alert:          alert,
			SeverityRank:   alert.SeverityRank(),
			Recommendation: engine.RecommendationFor(alert.AlertType),
		})
	}

	response := AlertsResponse{
		CycleID:    snap.CycleID,
		ComputedAt: snap.ComputedAt,
		Stale:      snap.Stale,
		Alerts:     ranked,
	}

	h.metrics.RecordAPIRequest("/api/alerts", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// ExportReadings handles GET /api/export.csv, serving the full reading set
// the current cycle was computed from.
func (h *DashboardHandler) ExportReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/export.csv").Observe(time.Since(startTime).Seconds())
	}()

	snap := h.sched.Snapshot()
	if snap == nil {
		h.sendError(w, r, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+export.ExportFilename(time.Now()))

	if err := export.WriteReadingsCSV(w, snap.Readings); err != nil {
		h.logger.Error(ctx, "[API_EXPORT_ERROR] Failed to write csv export", logging.Fields{
			"cycle_id": snap.CycleID,
		}, err)
		h.metrics.RecordAPIError("export_error", "/api/export.csv")
		return
	}

	h.metrics.RecordAPIRequest("/api/export.csv", "GET", "200")
}

// RefreshNow handles POST /api/refresh
func (h *DashboardHandler) RefreshNow(w http.ResponseWriter, r *http.Request) {
	triggered := h.sched.RefreshNow()

	status := map[string]interface{}{
		"triggered": triggered,
		"state":     h.sched.State().String(),
	}
	if !triggered {
		status["reason"] = "refresh already in flight"
	}

	h.metrics.RecordAPIRequest("/api/refresh", "POST", "202")
	h.sendJSON(w, status, http.StatusAccepted)
}

// HealthCheck handles GET /health
func (h *DashboardHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]interface{}{
		"status":    "healthy",
		"state":     h.sched.State().String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.repo.HealthCheck(ctx); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	if snap := h.sched.Snapshot(); snap != nil {
		status["last_cycle"] = snap.ComputedAt.Format(time.RFC3339)
		status["stale"] = snap.Stale
	}

	h.sendJSON(w, status, code)
}

// sendJSON sends a JSON response
func (h *DashboardHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *DashboardHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all dashboard API routes
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/snapshot", h.GetSnapshot).Methods("GET")
	router.HandleFunc("/api/anomalies", h.GetAnomalies).Methods("GET")
	router.HandleFunc("/api/alerts", h.GetAlerts).Methods("GET")
	router.HandleFunc("/api/export.csv", h.ExportReadings).Methods("GET")
	router.HandleFunc("/api/refresh", h.RefreshNow).Methods("POST")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
