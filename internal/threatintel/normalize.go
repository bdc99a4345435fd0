package threatintel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"portal-api/internal/model"
)

// NormalizeGeoEvent coerces one loosely-shaped upstream record into the
// canonical ThreatEvent. External feeds disagree on field names and nesting,
// so every field is picked from a list of candidates. A record missing usable
// origin or target coordinates is discarded (nil) rather than failing the
// batch; coordinates are validated so NaN or out-of-range values never
// propagate downstream.
func NormalizeGeoEvent(raw map[string]any) *model.ThreatEvent {
	if raw == nil {
		return nil
	}

	origin, ok := normalizePoint(pickMap(raw, "origin", "source", "src", "from"))
	if !ok {
		return nil
	}
	target, ok := normalizePoint(pickMap(raw, "target", "destination", "dst", "to"))
	if !ok {
		return nil
	}

	id := pickStr(raw, "id", "uuid", "_id", "eventId")
	if id == "" {
		id = fmt.Sprintf("FEED-%d", time.Now().UnixNano())
	}

	label := pickStr(raw, "label", "title", "name", "info", "summary")
	if label == "" {
		label = "Threat flow"
	}

	observed := time.Now().UTC()
	if ts := pickStr(raw, "observedAt", "observed_at", "timestamp", "time", "detectedAt"); ts != "" {
		if parsed, err := parseTimeFlexible(ts); err == nil {
			observed = parsed
		}
	}

	return &model.ThreatEvent{
		ID:         id,
		Label:      label,
		Severity:   severityOrDefault(pickStr(raw, "severity", "level", "priority"), model.SeverityLow),
		Feed:       pickStr(raw, "feed", "source_tag", "provider"),
		ObservedAt: observed,
		Origin:     origin,
		Target:     target,
	}
}

func normalizePoint(raw map[string]any) (model.GeoPoint, bool) {
	if raw == nil {
		return model.GeoPoint{}, false
	}
	lat, ok := pickFloat(raw, "lat", "latitude")
	if !ok {
		return model.GeoPoint{}, false
	}
	lon, ok := pickFloat(raw, "lon", "lng", "longitude")
	if !ok {
		return model.GeoPoint{}, false
	}
	if !validCoord(lat, -90, 90) || !validCoord(lon, -180, 180) {
		return model.GeoPoint{}, false
	}
	label := pickStr(raw, "label", "name", "city", "country")
	if label == "" {
		label = "Unknown"
	}
	return model.GeoPoint{Label: label, Lat: lat, Lon: lon}, true
}

func validCoord(v, min, max float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= min && v <= max
}

// severityOrDefault clamps arbitrary input to the five known buckets.
func severityOrDefault(s, fallback string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if model.ValidSeverity(s) {
		return s
	}
	return fallback
}

func pickMap(raw map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if v, ok := raw[key].(map[string]any); ok {
			return v
		}
	}
	return nil
}

func pickStr(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func pickFloat(raw map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case float64:
			return v, true
		case string:
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

func parseTimeFlexible(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
