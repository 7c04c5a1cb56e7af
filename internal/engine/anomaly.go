package engine

import (
	"fmt"
	"math"
	"sort"

	"climacaribe/internal/models"
)

const (
	// MinAnomalyThreshold and MaxAnomalyThreshold bound the configurable
	// z-score threshold. Out-of-range values are rejected, not clamped.
	MinAnomalyThreshold = 1.5
	MaxAnomalyThreshold = 4.0

	// minSampleSize is the smallest series for which a standard deviation
	// is meaningful. Below it every reading scores zero.
	minSampleSize = 2
)

// FieldSelector extracts the numeric field scored for anomalies from a
// reading. It returns false when the field is missing, which excludes the
// reading from the scan without aborting it.
type FieldSelector func(r *models.Reading) (float64, bool)

// TemperatureField selects the reading's temperature.
func TemperatureField(r *models.Reading) (float64, bool) {
	if r.Temperature == nil || math.IsNaN(*r.Temperature) {
		return 0, false
	}
	return *r.Temperature, true
}

// HumidityField selects the reading's relative humidity.
func HumidityField(r *models.Reading) (float64, bool) {
	if r.Humidity == nil || math.IsNaN(*r.Humidity) {
		return 0, false
	}
	return *r.Humidity, true
}

// WindSpeedField selects the reading's wind speed.
func WindSpeedField(r *models.Reading) (float64, bool) {
	if r.WindSpeed == nil || math.IsNaN(*r.WindSpeed) {
		return 0, false
	}
	return *r.WindSpeed, true
}

// Detect scores every reading against the pooled sample mean and standard
// deviation of the selected field and flags those beyond the threshold.
// The series is pooled across all stations, not normalized per city. Sample
// statistics use Welford's method for numerical stability on large windows.
//
// When the sample standard deviation is zero or fewer than two readings carry
// the field, every z-score is 0 and nothing is flagged. An empty input yields
// an empty result, not an error.
func Detect(readings []models.Reading, field FieldSelector, threshold float64) ([]models.AnomalyResult, error) {
	if threshold < MinAnomalyThreshold || threshold > MaxAnomalyThreshold {
		return nil, &models.InvalidParameterError{
			Parameter: "anomaly_threshold",
			Value:     fmt.Sprintf("%g", threshold),
			Message: fmt.Sprintf("z-score threshold must be between %g and %g",
				MinAnomalyThreshold, MaxAnomalyThreshold),
		}
	}

	results := make([]models.AnomalyResult, 0, len(readings))

	// Welford's online mean/variance over the readings that carry the field.
	var count int
	var mean, m2 float64

	for i := range readings {
		v, ok := field(&readings[i])
		if !ok {
			continue
		}
		results = append(results, models.AnomalyResult{
			Reading: readings[i],
			Value:   v,
		})

		count++
		delta := v - mean
		mean += delta / float64(count)
		m2 += delta * (v - mean)
	}

	if count < minSampleSize {
		return results, nil
	}

	// Sample (n-1) standard deviation, matching the store-side std().
	stddev := math.Sqrt(m2 / float64(count-1))
	if stddev == 0 {
		return results, nil
	}

	for i := range results {
		z := (results[i].Value - mean) / stddev
		results[i].ZScore = z
		results[i].IsAnomaly = math.Abs(z) > threshold
	}

	return results, nil
}

// RankAnomalies orders results by descending |z|, breaking ties with the
// most recent timestamp first. The input slice is not modified.
func RankAnomalies(results []models.AnomalyResult) []models.AnomalyResult {
	ranked := make([]models.AnomalyResult, len(results))
	copy(ranked, results)

	sort.SliceStable(ranked, func(i, j int) bool {
		zi, zj := math.Abs(ranked[i].ZScore), math.Abs(ranked[j].ZScore)
		if zi != zj {
			return zi > zj
		}
		return ranked[i].Reading.Timestamp.After(ranked[j].Reading.Timestamp)
	})

	return ranked
}

// Summarize counts the flagged readings in a scan.
func Summarize(results []models.AnomalyResult) models.AnomalySummary {
	summary := models.AnomalySummary{TotalReadings: len(results)}
	for i := range results {
		if results[i].IsAnomaly {
			summary.AnomalyCount++
		}
	}
	if summary.TotalReadings > 0 {
		summary.AnomalyPct = float64(summary.AnomalyCount) / float64(summary.TotalReadings) * 100
	}
	return summary
}
