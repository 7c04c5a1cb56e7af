package engine

import (
	"testing"
	"time"

	"climacaribe/internal/models"
)

func fp(v float64) *float64 { return &v }

func makeReading(ts time.Time, station, city, region string, temp *float64, status string) models.Reading {
	return models.Reading{
		Timestamp:   ts,
		StationID:   station,
		LocationID:  int64(len(city)), // distinct per city in these fixtures
		City:        city,
		Region:      region,
		Temperature: temp,
		Status:      status,
	}
}

func TestAggregate(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		readings []models.Reading
		check    func(*testing.T, models.KPISnapshot)
	}{
		{
			name:     "empty input yields zero snapshot without error",
			readings: nil,
			check: func(t *testing.T, snap models.KPISnapshot) {
				if snap.TotalEvents != 0 {
					t.Errorf("TotalEvents = %d, want 0", snap.TotalEvents)
				}
				if snap.AvgTemp != 0 || snap.MaxTemp != 0 || snap.MinTemp != 0 {
					t.Errorf("temps = %v/%v/%v, want 0/0/0",
						snap.AvgTemp, snap.MaxTemp, snap.MinTemp)
				}
				if snap.LatestTS != nil {
					t.Errorf("LatestTS = %v, want nil", snap.LatestTS)
				}
			},
		},
		{
			name: "basic aggregation",
			readings: []models.Reading{
				makeReading(base, "ST01", "Barranquilla", "Atlántico", fp(30.0), "normal"),
				makeReading(base.Add(time.Minute), "ST02", "Cartagena", "Bolívar", fp(32.0), "alert"),
				makeReading(base.Add(2*time.Minute), "ST01", "Barranquilla", "Atlántico", fp(28.0), "normal"),
			},
			check: func(t *testing.T, snap models.KPISnapshot) {
				if snap.TotalEvents != 3 {
					t.Errorf("TotalEvents = %d, want 3", snap.TotalEvents)
				}
				if snap.ActiveStations != 2 {
					t.Errorf("ActiveStations = %d, want 2", snap.ActiveStations)
				}
				if snap.AvgTemp != 30.0 {
					t.Errorf("AvgTemp = %v, want 30.0", snap.AvgTemp)
				}
				if snap.MaxTemp != 32.0 || snap.MinTemp != 28.0 {
					t.Errorf("Max/Min = %v/%v, want 32.0/28.0", snap.MaxTemp, snap.MinTemp)
				}
				if snap.ActiveAlertCount != 1 {
					t.Errorf("ActiveAlertCount = %d, want 1", snap.ActiveAlertCount)
				}
				if snap.TempDelta != 2.0 {
					t.Errorf("TempDelta = %v, want 2.0", snap.TempDelta)
				}
				if snap.LatestTS == nil || !snap.LatestTS.Equal(base.Add(2*time.Minute)) {
					t.Errorf("LatestTS = %v, want %v", snap.LatestTS, base.Add(2*time.Minute))
				}
			},
		},
		{
			name: "missing temperature excluded from temperature aggregates only",
			readings: []models.Reading{
				makeReading(base, "ST01", "Barranquilla", "Atlántico", fp(30.0), "normal"),
				makeReading(base.Add(time.Minute), "ST02", "Cartagena", "Bolívar", nil, "critical"),
			},
			check: func(t *testing.T, snap models.KPISnapshot) {
				if snap.TotalEvents != 2 {
					t.Errorf("TotalEvents = %d, want 2", snap.TotalEvents)
				}
				if snap.AvgTemp != 30.0 || snap.MaxTemp != 30.0 || snap.MinTemp != 30.0 {
					t.Errorf("temps = %v/%v/%v, want 30/30/30",
						snap.AvgTemp, snap.MaxTemp, snap.MinTemp)
				}
				// record still counts for the status aggregate
				if snap.ActiveAlertCount != 1 {
					t.Errorf("ActiveAlertCount = %d, want 1", snap.ActiveAlertCount)
				}
			},
		},
		{
			name: "rounding to one decimal",
			readings: []models.Reading{
				makeReading(base, "ST01", "Barranquilla", "Atlántico", fp(30.04), "normal"),
				makeReading(base, "ST02", "Cartagena", "Bolívar", fp(30.11), "normal"),
			},
			check: func(t *testing.T, snap models.KPISnapshot) {
				if snap.AvgTemp != 30.1 {
					t.Errorf("AvgTemp = %v, want 30.1", snap.AvgTemp)
				}
			},
		},
		{
			name: "extreme heat flag at 38 degrees",
			readings: []models.Reading{
				makeReading(base, "ST01", "Barranquilla", "Atlántico", fp(38.2), "normal"),
			},
			check: func(t *testing.T, snap models.KPISnapshot) {
				if !snap.ExtremeHeat {
					t.Error("ExtremeHeat = false, want true")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Aggregate(tt.readings))
		})
	}
}

func TestAggregateOrderingInvariant(t *testing.T) {
	base := time.Now().UTC()
	readings := []models.Reading{
		makeReading(base, "ST01", "Montería", "Córdoba", fp(33.5), "normal"),
		makeReading(base, "ST02", "Bogotá", "Cundinamarca", fp(14.2), "normal"),
		makeReading(base, "ST03", "Santa Marta", "Magdalena", fp(29.8), "normal"),
	}

	snap := Aggregate(readings)
	if snap.MaxTemp < snap.AvgTemp || snap.AvgTemp < snap.MinTemp {
		t.Errorf("ordering violated: max=%v avg=%v min=%v",
			snap.MaxTemp, snap.AvgTemp, snap.MinTemp)
	}
}

func TestAggregateIsPure(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	readings := []models.Reading{
		makeReading(base, "ST01", "Barranquilla", "Atlántico", fp(30.0), "normal"),
		makeReading(base.Add(time.Minute), "ST02", "Cartagena", "Bolívar", fp(31.0), "alert"),
	}

	first := Aggregate(readings)
	second := Aggregate(readings)

	// ComputedAt differs between calls; everything derived must not.
	first.ComputedAt = second.ComputedAt
	if *first.LatestTS != *second.LatestTS {
		t.Errorf("LatestTS differs: %v vs %v", first.LatestTS, second.LatestTS)
	}
	first.LatestTS = second.LatestTS
	if first != second {
		t.Errorf("repeated aggregation differs: %+v vs %+v", first, second)
	}
}

func TestAggregateByCity(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	readings := []models.Reading{
		makeReading(base, "ST01", "Barranquilla", "Atlántico", fp(32.0), "alert"),
		makeReading(base.Add(time.Minute), "ST01", "Barranquilla", "Atlántico", fp(34.0), "normal"),
		makeReading(base, "ST02", "Bogotá", "Cundinamarca", fp(14.0), "normal"),
	}

	stats := AggregateByCity(readings)

	if len(stats) != 2 {
		t.Fatalf("len(stats) = %d, want 2", len(stats))
	}

	// Ordered by mean temperature descending
	if stats[0].City != "Barranquilla" || stats[1].City != "Bogotá" {
		t.Errorf("order = [%s, %s], want [Barranquilla, Bogotá]", stats[0].City, stats[1].City)
	}

	if stats[0].AvgTemp != 33.0 {
		t.Errorf("Barranquilla AvgTemp = %v, want 33.0", stats[0].AvgTemp)
	}
	if stats[0].AlertCount != 1 {
		t.Errorf("Barranquilla AlertCount = %d, want 1", stats[0].AlertCount)
	}
	if stats[0].LatestReading == nil || !stats[0].LatestReading.Equal(base.Add(time.Minute)) {
		t.Errorf("Barranquilla LatestReading = %v, want %v", stats[0].LatestReading, base.Add(time.Minute))
	}
}

func TestAggregateByZone(t *testing.T) {
	classifier := NewZoneClassifier(nil)
	base := time.Now().UTC()

	readings := []models.Reading{
		makeReading(base, "ST01", "Barranquilla", "Atlántico", fp(32.0), "normal"),
		makeReading(base, "ST02", "Cartagena", "Bolívar", fp(30.0), "normal"),
		makeReading(base, "ST03", "Bogotá", "Cundinamarca", fp(14.0), "normal"),
	}

	stats := AggregateByZone(readings, classifier)

	if len(stats) != 2 {
		t.Fatalf("len(stats) = %d, want 2", len(stats))
	}

	if stats[0].Zone != "coastal" {
		t.Errorf("stats[0].Zone = %s, want coastal", stats[0].Zone)
	}
	if stats[0].ReadingCount != 2 || stats[0].AvgTemp != 31.0 {
		t.Errorf("coastal = %+v, want count 2 avg 31.0", stats[0])
	}

	if stats[1].Zone != "interior" {
		t.Errorf("stats[1].Zone = %s, want interior", stats[1].Zone)
	}
	if stats[1].ReadingCount != 1 || stats[1].AvgTemp != 14.0 {
		t.Errorf("interior = %+v, want count 1 avg 14.0", stats[1])
	}
}

func TestAggregateByZoneOmitsEmptyZones(t *testing.T) {
	classifier := NewZoneClassifier(nil)
	readings := []models.Reading{
		makeReading(time.Now().UTC(), "ST01", "Bogotá", "Cundinamarca", fp(14.0), "normal"),
	}

	stats := AggregateByZone(readings, classifier)
	if len(stats) != 1 || stats[0].Zone != "interior" {
		t.Errorf("stats = %+v, want only interior", stats)
	}
}

func TestFilterByZone(t *testing.T) {
	classifier := NewZoneClassifier(nil)
	base := time.Now().UTC()

	readings := []models.Reading{
		makeReading(base, "ST01", "Barranquilla", "Atlántico", fp(32.0), "normal"),
		makeReading(base, "ST02", "Bogotá", "Cundinamarca", fp(14.0), "normal"),
		makeReading(base, "ST03", "Santa Marta", "Magdalena", fp(29.0), "normal"),
	}

	coastal := FilterByZone(readings, NewZoneFilter(models.ZoneCoastal, classifier))
	if len(coastal) != 2 {
		t.Errorf("coastal count = %d, want 2", len(coastal))
	}
	for _, r := range coastal {
		if classifier.Classify(r.Region) != models.ZoneCoastal {
			t.Errorf("reading from %s leaked through coastal filter", r.Region)
		}
	}

	if got := FilterByZone(readings, nil); len(got) != len(readings) {
		t.Errorf("nil filter count = %d, want %d", len(got), len(readings))
	}
}
