package models

import (
	"fmt"
	"time"
)

// Reading represents a single weather stream event as fetched from the store.
// Readings are immutable once fetched; identified by (station_id, ts).
// NULL sensor values are represented as pointers so a missing field can be
// excluded from aggregates without dropping the whole record.
type Reading struct {
	Timestamp     time.Time `json:"ts" db:"ts"`
	StationID     string    `json:"station_id" db:"station_id"`
	LocationID    int64     `json:"location_id" db:"location_id"`
	City          string    `json:"city" db:"city"`
	Region        string    `json:"region" db:"region"`
	Temperature   *float64  `json:"temperature,omitempty" db:"temperature"`
	FeelsLike     *float64  `json:"feels_like,omitempty" db:"feels_like"`
	Humidity      *float64  `json:"humidity,omitempty" db:"humidity"`
	Pressure      *float64  `json:"pressure,omitempty" db:"pressure"`
	WindSpeed     *float64  `json:"wind_speed,omitempty" db:"wind_speed"`
	Precipitation *float64  `json:"precipitation,omitempty" db:"precipitation"`
	Status        string    `json:"status" db:"status"`
}

// HasAlertStatus reports whether the reading carries a non-normal status.
func (r *Reading) HasAlertStatus() bool {
	switch r.Status {
	case "alert", "warning", "critical":
		return true
	}
	return false
}

// Window is a half-open trailing time interval [Start, End) over which
// readings and alerts are evaluated. End is the evaluation instant.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a trailing window ending at the given instant.
func NewWindow(end time.Time, duration time.Duration) (Window, error) {
	if duration <= 0 {
		return Window{}, &InvalidParameterError{
			Parameter: "window_duration",
			Value:     duration.String(),
			Message:   "window duration must be positive",
		}
	}
	return Window{Start: end.Add(-duration), End: end}, nil
}

// Contains reports whether t falls inside the half-open interval.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Severity is the urgency level of a weather alert. The zero value is
// SeverityUnknown so an unrecognized string from the store never fails,
// it just sorts into the lowest-priority bucket.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityCritical
	SeverityHigh
	SeverityMedium
	SeverityLow
)

// ParseSeverity maps a raw severity string to a Severity. "warning" and
// "caution" are accepted as aliases seen in older alert rows.
func ParseSeverity(s string) Severity {
	switch s {
	case "critical":
		return SeverityCritical
	case "high", "warning":
		return SeverityHigh
	case "medium", "caution":
		return SeverityMedium
	case "low":
		return SeverityLow
	}
	return SeverityUnknown
}

// Rank returns the display priority: critical=1, high=2, medium=3 and
// everything else 4. Lower rank means more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	}
	return 4
}

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	}
	return "unknown"
}

// Alert represents an active weather alert row joined with its location.
type Alert struct {
	DetectedAt  time.Time `json:"detected_at" db:"detected_at"`
	City        string    `json:"city" db:"city"`
	Region      string    `json:"region" db:"region"`
	Severity    string    `json:"severity" db:"severity"`
	AlertType   string    `json:"alert_type" db:"alert_type"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	MetricValue *float64  `json:"metric_value,omitempty" db:"metric_value"`
}

// SeverityRank returns the display priority of the alert's raw severity.
func (a *Alert) SeverityRank() int {
	return ParseSeverity(a.Severity).Rank()
}

// Zone is the coarse geographic grouping derived from a reading's region.
type Zone int

const (
	ZoneInterior Zone = iota
	ZoneCoastal
)

func (z Zone) String() string {
	if z == ZoneCoastal {
		return "coastal"
	}
	return "interior"
}

// KPISnapshot holds the summary metrics computed over one cycle's readings.
// Replaced wholesale each cycle, never mutated in place. Temperature
// aggregates default to 0 when the window is empty; callers branch on
// TotalEvents to tell "no data" from "zero degrees".
type KPISnapshot struct {
	TotalEvents      int        `json:"total_events"`
	ActiveStations   int        `json:"active_stations"`
	ActiveLocations  int        `json:"active_locations"`
	AvgTemp          float64    `json:"avg_temp"`
	MaxTemp          float64    `json:"max_temp"`
	MinTemp          float64    `json:"min_temp"`
	TempDelta        float64    `json:"temp_delta"`
	ExtremeHeat      bool       `json:"extreme_heat"`
	ActiveAlertCount int        `json:"active_alert_count"`
	LatestTS         *time.Time `json:"latest_ts,omitempty"`
	ComputedAt       time.Time  `json:"computed_at"`
}

// AnomalyResult augments a reading with its pooled z-score classification.
type AnomalyResult struct {
	Reading   Reading `json:"reading"`
	Value     float64 `json:"value"`
	ZScore    float64 `json:"z_score"`
	IsAnomaly bool    `json:"is_anomaly"`
}

// AnomalySummary condenses one cycle's anomaly scan for display.
type AnomalySummary struct {
	AnomalyCount  int     `json:"anomaly_count"`
	TotalReadings int     `json:"total_readings"`
	AnomalyPct    float64 `json:"anomaly_pct"`
}

// CityStats is the per-city rollup of one cycle's readings.
type CityStats struct {
	City          string     `json:"city"`
	Region        string     `json:"region"`
	AvgTemp       float64    `json:"avg_temp"`
	AvgFeelsLike  float64    `json:"avg_feels_like"`
	AvgHumidity   float64    `json:"avg_humidity"`
	AvgWindSpeed  float64    `json:"avg_wind_speed"`
	AlertCount    int        `json:"alert_count"`
	LatestReading *time.Time `json:"latest_reading,omitempty"`
}

// ZoneStats compares mean conditions between coastal and interior readings.
type ZoneStats struct {
	Zone         string  `json:"zone"`
	ReadingCount int     `json:"reading_count"`
	AvgTemp      float64 `json:"avg_temp"`
	AvgHumidity  float64 `json:"avg_humidity"`
}

// InvalidParameterError reports a configuration or input value outside its
// allowed range. Out-of-range values are rejected, never silently clamped.
type InvalidParameterError struct {
	Parameter string
	Value     string
	Message   string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Parameter, e.Value, e.Message)
}

// IsTransient returns false as parameter errors are permanent.
func (e *InvalidParameterError) IsTransient() bool {
	return false
}
