package engine

import (
	"sort"

	"climacaribe/internal/models"
)

// DefaultAlertLimit caps the ranked alert list shown by the dashboard.
const DefaultAlertLimit = 10

// AlertRecommendations maps an alert type to the advisory text shown with
// it. Types not in the map fall through to a generic advisory.
var AlertRecommendations = map[string]string{
	"extreme_heat":        "Evitar exposición al sol | Hidratación constante | Buscar lugares frescos",
	"high_heat":           "Reducir actividad física | Usar protector solar | Mantenerse hidratado",
	"heat_index_critical": "NO realizar actividades al aire libre | Permanecer en interiores",
	"heavy_rain":          "Reducir velocidad al conducir | Evitar zonas de inundación",
	"strong_wind":         "Asegurar objetos sueltos | Precaución al conducir",
	"low_pressure":        "Mantenerse informado | Posible tormenta en camino",
}

const defaultRecommendation = "Condiciones anormales - Mantenerse informado"

// RecommendationFor returns the advisory text for an alert type.
func RecommendationFor(alertType string) string {
	if rec, ok := AlertRecommendations[alertType]; ok {
		return rec
	}
	return defaultRecommendation
}

// Rank filters alerts to the window and optional zone, orders them by
// severity rank ascending then detection time descending, and truncates to
// limit. Truncation happens after sorting so the most urgent and most recent
// alerts are never displaced by older low-severity ones. Unknown severity
// strings sort into the lowest-priority bucket rather than failing.
// The input slice is not modified; limit <= 0 means no cap.
func Rank(alerts []models.Alert, window models.Window, zoneFilter *ZoneFilter, limit int) []models.Alert {
	ranked := make([]models.Alert, 0, len(alerts))
	for i := range alerts {
		if !window.Contains(alerts[i].DetectedAt) {
			continue
		}
		if !zoneFilter.Matches(alerts[i].Region) {
			continue
		}
		ranked = append(ranked, alerts[i])
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := ranked[i].SeverityRank(), ranked[j].SeverityRank()
		if ri != rj {
			return ri < rj
		}
		return ranked[i].DetectedAt.After(ranked[j].DetectedAt)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return ranked
}
