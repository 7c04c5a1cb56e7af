// Package export serializes a cycle's reading set to flat tabular text for
// downstream retrieval.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"climacaribe/internal/models"
)

// csvHeader is the column order of the exported table.
var csvHeader = []string{
	"ts",
	"station_id",
	"location_id",
	"city",
	"region",
	"temperature",
	"feels_like",
	"humidity",
	"pressure",
	"wind_speed",
	"precipitation",
	"status",
}

// WriteReadingsCSV writes the readings as comma-separated text with a
// header row and one row per reading. Missing numeric fields become empty
// cells. Timestamps are RFC 3339 UTC.
func WriteReadingsCSV(w io.Writer, readings []models.Reading) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	row := make([]string, len(csvHeader))
	for i := range readings {
		r := &readings[i]

		row[0] = r.Timestamp.UTC().Format(time.RFC3339)
		row[1] = r.StationID
		row[2] = strconv.FormatInt(r.LocationID, 10)
		row[3] = r.City
		row[4] = r.Region
		row[5] = formatOptional(r.Temperature)
		row[6] = formatOptional(r.FeelsLike)
		row[7] = formatOptional(r.Humidity)
		row[8] = formatOptional(r.Pressure)
		row[9] = formatOptional(r.WindSpeed)
		row[10] = formatOptional(r.Precipitation)
		row[11] = r.Status

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	return nil
}

// ExportFilename returns a timestamped download name for an export taken at t.
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("climacaribe_data_%s.csv", t.UTC().Format("20060102_150405"))
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
