package engine

import (
	"math"
	"sort"
	"time"

	"climacaribe/internal/models"
)

const (
	// CaribbeanReferenceTemp is the long-run Caribbean mean used for the
	// temperature delta on the KPI snapshot.
	CaribbeanReferenceTemp = 28.0

	// ExtremeHeatTemp marks the max-temperature level flagged as extreme.
	ExtremeHeatTemp = 38.0
)

// Aggregate reduces a reading set into summary KPIs. It is a pure function:
// readings with missing numeric fields are excluded from the affected
// aggregate only, and an empty input yields a zero-valued snapshot with
// TotalEvents == 0.
func Aggregate(readings []models.Reading) models.KPISnapshot {
	snap := models.KPISnapshot{
		TotalEvents: len(readings),
		ComputedAt:  time.Now().UTC(),
	}

	stations := make(map[string]struct{})
	locations := make(map[int64]struct{})

	var tempSum float64
	var tempCount int
	maxTemp := math.Inf(-1)
	minTemp := math.Inf(1)
	var latest time.Time

	for i := range readings {
		r := &readings[i]

		stations[r.StationID] = struct{}{}
		locations[r.LocationID] = struct{}{}

		if r.HasAlertStatus() {
			snap.ActiveAlertCount++
		}

		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}

		if r.Temperature == nil || math.IsNaN(*r.Temperature) {
			continue
		}
		t := *r.Temperature
		tempSum += t
		tempCount++
		if t > maxTemp {
			maxTemp = t
		}
		if t < minTemp {
			minTemp = t
		}
	}

	snap.ActiveStations = len(stations)
	snap.ActiveLocations = len(locations)

	if tempCount > 0 {
		snap.AvgTemp = round1(tempSum / float64(tempCount))
		snap.MaxTemp = round1(maxTemp)
		snap.MinTemp = round1(minTemp)
		snap.TempDelta = round1(snap.AvgTemp - CaribbeanReferenceTemp)
		snap.ExtremeHeat = snap.MaxTemp >= ExtremeHeatTemp
	}

	if !latest.IsZero() {
		snap.LatestTS = &latest
	}

	return snap
}

// AggregateByCity rolls up one cycle's readings per city, ordered by mean
// temperature descending. Missing numeric fields are excluded per-field.
func AggregateByCity(readings []models.Reading) []models.CityStats {
	type cityAcc struct {
		region     string
		temp       meanAcc
		feelsLike  meanAcc
		humidity   meanAcc
		windSpeed  meanAcc
		alertCount int
		latest     time.Time
	}

	byCity := make(map[string]*cityAcc)

	for i := range readings {
		r := &readings[i]

		acc, ok := byCity[r.City]
		if !ok {
			acc = &cityAcc{region: r.Region}
			byCity[r.City] = acc
		}

		acc.temp.add(r.Temperature)
		acc.feelsLike.add(r.FeelsLike)
		acc.humidity.add(r.Humidity)
		acc.windSpeed.add(r.WindSpeed)
		if r.HasAlertStatus() {
			acc.alertCount++
		}
		if r.Timestamp.After(acc.latest) {
			acc.latest = r.Timestamp
		}
	}

	stats := make([]models.CityStats, 0, len(byCity))
	for city, acc := range byCity {
		cs := models.CityStats{
			City:         city,
			Region:       acc.region,
			AvgTemp:      round1(acc.temp.mean()),
			AvgFeelsLike: round1(acc.feelsLike.mean()),
			AvgHumidity:  round1(acc.humidity.mean()),
			AvgWindSpeed: round1(acc.windSpeed.mean()),
			AlertCount:   acc.alertCount,
		}
		if !acc.latest.IsZero() {
			latest := acc.latest
			cs.LatestReading = &latest
		}
		stats = append(stats, cs)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].AvgTemp != stats[j].AvgTemp {
			return stats[i].AvgTemp > stats[j].AvgTemp
		}
		return stats[i].City < stats[j].City
	})

	return stats
}

// AggregateByZone computes mean temperature and humidity per zone, coastal
// first. Zones with no readings in the window are omitted.
func AggregateByZone(readings []models.Reading, classifier *ZoneClassifier) []models.ZoneStats {
	type zoneAcc struct {
		count    int
		temp     meanAcc
		humidity meanAcc
	}

	byZone := make(map[models.Zone]*zoneAcc)

	for i := range readings {
		r := &readings[i]
		zone := classifier.Classify(r.Region)

		acc, ok := byZone[zone]
		if !ok {
			acc = &zoneAcc{}
			byZone[zone] = acc
		}
		acc.count++
		acc.temp.add(r.Temperature)
		acc.humidity.add(r.Humidity)
	}

	stats := make([]models.ZoneStats, 0, len(byZone))
	for _, zone := range []models.Zone{models.ZoneCoastal, models.ZoneInterior} {
		acc, ok := byZone[zone]
		if !ok {
			continue
		}
		stats = append(stats, models.ZoneStats{
			Zone:         zone.String(),
			ReadingCount: acc.count,
			AvgTemp:      round1(acc.temp.mean()),
			AvgHumidity:  round1(acc.humidity.mean()),
		})
	}

	return stats
}

// FilterByZone returns the readings whose region maps into the filter's zone.
// A nil filter returns the input unchanged.
func FilterByZone(readings []models.Reading, filter *ZoneFilter) []models.Reading {
	if filter == nil {
		return readings
	}

	filtered := make([]models.Reading, 0, len(readings))
	for i := range readings {
		if filter.Matches(readings[i].Region) {
			filtered = append(filtered, readings[i])
		}
	}
	return filtered
}

// meanAcc accumulates a mean over optional values, skipping nil and NaN.
type meanAcc struct {
	sum   float64
	count int
}

func (m *meanAcc) add(v *float64) {
	if v == nil || math.IsNaN(*v) {
		return
	}
	m.sum += *v
	m.count++
}

func (m *meanAcc) mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// round1 rounds to 1 decimal, matching the store-side ROUND(...,1) the
// presentation layer historically displayed.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
