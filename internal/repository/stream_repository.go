package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"climacaribe/internal/engine"
	"climacaribe/internal/models"
	"climacaribe/pkg/database"
	"climacaribe/pkg/logging"
	"climacaribe/pkg/metrics"
)

// StreamRepository provides windowed read access to the weather stream store.
// It is the engine's only I/O boundary: all other components are pure.
type StreamRepository interface {
	// FetchReadings returns the readings inside the half-open window,
	// optionally restricted to one zone pushed down to the store.
	FetchReadings(ctx context.Context, window models.Window, zoneFilter *engine.ZoneFilter) ([]models.Reading, error)

	// FetchAlerts returns the active alerts detected inside the window.
	FetchAlerts(ctx context.Context, window models.Window) ([]models.Alert, error)

	HealthCheck(ctx context.Context) error
}

// streamRepository implements StreamRepository against PostgreSQL
type streamRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStreamRepository creates a new stream repository
func NewStreamRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) StreamRepository {
	return &streamRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// FetchReadings retrieves the reading set for one refresh cycle
func (r *streamRepository) FetchReadings(ctx context.Context, window models.Window, zoneFilter *engine.ZoneFilter) ([]models.Reading, error) {
	query := `
		SELECT fws.ts, fws.station_id, fws.location_id,
		       dl.city, dl.region,
		       fws.temperature, fws.feels_like, fws.humidity,
		       fws.pressure, fws.wind_speed, fws.precipitation,
		       fws.status
		FROM stream.fact_weather_stream fws
		JOIN stream.dim_location dl ON fws.location_id = dl.location_id
		WHERE fws.ts >= ? AND fws.ts < ?
	`
	args := []interface{}{window.Start, window.End}

	if zoneFilter != nil {
		if zoneFilter.Zone == models.ZoneCoastal {
			query += " AND dl.region IN (?)"
		} else {
			query += " AND dl.region NOT IN (?)"
		}
		args = append(args, zoneFilter.CoastalRegions())
	}

	query += " ORDER BY fws.ts ASC"

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build readings query: %w", err)
	}
	query = r.db.DB().Rebind(query)

	var readings []models.Reading
	if err := r.db.SelectContext(ctx, "fetch_readings", &readings, query, inArgs...); err != nil {
		r.metrics.RecordFetchError("readings")
		return nil, &SourceUnavailableError{Source: "readings", Err: err}
	}

	r.logger.Debug(ctx, "[REPO_FETCH_READINGS] Readings fetched", logging.Fields{
		"count":        len(readings),
		"window_start": window.Start,
		"window_end":   window.End,
	})

	return readings, nil
}

// FetchAlerts retrieves the active alerts for one refresh cycle. Ordering
// and truncation are applied by the ranker, not here.
func (r *streamRepository) FetchAlerts(ctx context.Context, window models.Window) ([]models.Alert, error) {
	query := `
		SELECT wa.detected_at,
		       dl.city, dl.region,
		       wa.severity, wa.alert_type, wa.title, wa.description,
		       wa.metric_value
		FROM stream.weather_alerts wa
		JOIN stream.dim_location dl ON wa.location_id = dl.location_id
		WHERE wa.status = 'active'
		  AND wa.detected_at >= $1 AND wa.detected_at < $2
		ORDER BY wa.detected_at DESC
	`

	var alerts []models.Alert
	if err := r.db.SelectContext(ctx, "fetch_alerts", &alerts, query, window.Start, window.End); err != nil {
		r.metrics.RecordFetchError("alerts")
		return nil, &SourceUnavailableError{Source: "alerts", Err: err}
	}

	r.logger.Debug(ctx, "[REPO_FETCH_ALERTS] Alerts fetched", logging.Fields{
		"count":        len(alerts),
		"window_start": window.Start,
		"window_end":   window.End,
	})

	return alerts, nil
}

// HealthCheck performs a repository health check
func (r *streamRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// SourceUnavailableError reports a failed fetch from the weather store.
// The scheduler retries on the next cadence and keeps the last-known-good
// snapshot published.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("%s source unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// IsTransient returns true as source failures are retried
func (e *SourceUnavailableError) IsTransient() bool {
	return true
}
