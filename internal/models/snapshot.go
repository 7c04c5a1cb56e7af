package models

import (
	"time"
)

// Snapshot is the immutable result of one refresh cycle: everything the
// presentation layer reads. It is fully recomputed from a single fetch —
// KPIs, anomalies and ranked alerts always describe the same reading and
// alert sets. Versioned by CycleID/ComputedAt so readers can detect
// staleness.
//
// Stale is set when a later cycle failed to fetch: the data is the
// last-known-good result and LastError says why it could not be refreshed.
// Readers distinguish "no data in window" (TotalEvents == 0, Stale false)
// from "fetch failed" (Stale true) from "data, zero anomalies".
type Snapshot struct {
	CycleID    string    `json:"cycle_id"`
	Window     Window    `json:"window"`
	ComputedAt time.Time `json:"computed_at"`

	KPIs           KPISnapshot     `json:"kpis"`
	Anomalies      []AnomalyResult `json:"anomalies"`
	AnomalySummary AnomalySummary  `json:"anomaly_summary"`
	Alerts         []Alert         `json:"alerts"`
	Cities         []CityStats     `json:"cities"`
	Zones          []ZoneStats     `json:"zones"`

	// Readings is the full reading set the cycle was computed from,
	// kept for tabular export.
	Readings []Reading `json:"-"`

	Stale     bool   `json:"stale"`
	LastError string `json:"last_error,omitempty"`
}
