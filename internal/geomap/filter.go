package geomap

import (
	"portal-api/internal/model"
)

// DefaultMaxFlows bounds simultaneously rendered arcs when the caller does
// not supply a density limit.
const DefaultMaxFlows = 60

// BBox is a geographic region clip. Min/Max follow the usual convention:
// MinLat ≤ MaxLat, MinLon ≤ MaxLon (no antimeridian wrapping).
type BBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (b BBox) contains(p model.GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// FilterOptions controls which events become visible flows.
type FilterOptions struct {
	// Severities is a multi-select; empty or nil means all five buckets.
	Severities []string
	// Region clips to events whose origin or target falls inside the box.
	Region *BBox
	// MaxFlows bounds the visible set; <=0 uses DefaultMaxFlows.
	MaxFlows int
}

// NormalizedSeverities resolves the severity selection. An empty selection
// auto-resets to all buckets so a user toggling everything off never ends up
// staring at an empty map.
func (o FilterOptions) NormalizedSeverities() []string {
	valid := make([]string, 0, len(o.Severities))
	for _, s := range o.Severities {
		if model.ValidSeverity(s) {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return model.Severities
	}
	return valid
}

// Filter selects the visible events: severity multi-select, optional region
// clip, then the first MaxFlows in input order. The same input and options
// always yield the same visible set.
func Filter(events []model.ThreatEvent, opts FilterOptions) []model.ThreatEvent {
	allowed := make(map[string]struct{})
	for _, s := range opts.NormalizedSeverities() {
		allowed[s] = struct{}{}
	}

	limit := opts.MaxFlows
	if limit <= 0 {
		limit = DefaultMaxFlows
	}

	out := make([]model.ThreatEvent, 0, limit)
	for _, event := range events {
		if _, ok := allowed[event.Severity]; !ok {
			continue
		}
		if opts.Region != nil && !opts.Region.contains(event.Origin) && !opts.Region.contains(event.Target) {
			continue
		}
		out = append(out, event)
		if len(out) == limit {
			break
		}
	}
	return out
}
