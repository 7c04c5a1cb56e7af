package engine

import (
	"sort"

	"climacaribe/internal/models"
)

// DefaultCoastalRegions are the Caribbean departments treated as coastal.
var DefaultCoastalRegions = []string{
	"Atlántico",
	"Bolívar",
	"Magdalena",
	"Cesar",
	"Córdoba",
}

// ZoneClassifier maps a region label to a coarse zone. The classification is
// total: any region not in the coastal set is interior, unrecognized names
// included.
type ZoneClassifier struct {
	coastal map[string]struct{}
}

// NewZoneClassifier builds a classifier for the given coastal regions.
// An empty slice falls back to the default Caribbean set.
func NewZoneClassifier(coastalRegions []string) *ZoneClassifier {
	if len(coastalRegions) == 0 {
		coastalRegions = DefaultCoastalRegions
	}

	coastal := make(map[string]struct{}, len(coastalRegions))
	for _, r := range coastalRegions {
		coastal[r] = struct{}{}
	}

	return &ZoneClassifier{coastal: coastal}
}

// Classify returns the zone for a region label.
func (z *ZoneClassifier) Classify(region string) models.Zone {
	if _, ok := z.coastal[region]; ok {
		return models.ZoneCoastal
	}
	return models.ZoneInterior
}

// CoastalRegions returns the membership set in sorted order, for callers
// that push the zone restriction down to the store.
func (z *ZoneClassifier) CoastalRegions() []string {
	regions := make([]string, 0, len(z.coastal))
	for r := range z.coastal {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

// ZoneFilter restricts readings and alerts to a single zone. A nil filter
// means no restriction.
type ZoneFilter struct {
	Zone       models.Zone
	classifier *ZoneClassifier
}

// NewZoneFilter builds a filter selecting one zone using the given classifier.
func NewZoneFilter(zone models.Zone, classifier *ZoneClassifier) *ZoneFilter {
	return &ZoneFilter{Zone: zone, classifier: classifier}
}

// Matches reports whether the region maps into the selected zone.
func (f *ZoneFilter) Matches(region string) bool {
	if f == nil {
		return true
	}
	return f.classifier.Classify(region) == f.Zone
}

// CoastalRegions returns the classifier's coastal membership set.
func (f *ZoneFilter) CoastalRegions() []string {
	return f.classifier.CoastalRegions()
}
