package geomap

import (
	"fmt"
	"math"

	"portal-api/internal/model"
)

// Curvature bounds: the quadratic control point sits perpendicular to the
// chord midpoint, offset by a fraction of the chord length but never outside
// [minCurve, maxCurve] pixels. Short hops stay visibly curved, long hauls
// stay on screen.
const (
	curveRatio = 0.22
	minCurve   = 14.0
	maxCurve   = 110.0
)

var severityPalette = map[string]string{
	model.SeverityCritical: "#ef4444",
	model.SeverityHigh:     "#f97316",
	model.SeverityMedium:   "#eab308",
	model.SeverityLow:      "#3b82f6",
	model.SeverityInfo:     "#64748b",
}

// ColorFor returns the palette color for a severity; unknown values render
// in the info color rather than failing.
func ColorFor(severity string) string {
	if c, ok := severityPalette[severity]; ok {
		return c
	}
	return severityPalette[model.SeverityInfo]
}

// Arc is one renderable flow between two projected points.
type Arc struct {
	EventID  string
	Label    string
	Severity string
	Color    string
	From     Point
	To       Point
	Control  Point
}

// BuildArc projects an event's endpoints and computes its curved path. A nil
// projector falls back to the equirectangular default.
func BuildArc(event model.ThreatEvent, w, h float64, project Projector) Arc {
	if project == nil {
		project = Project
	}
	from := project(event.Origin.Lat, event.Origin.Lon, w, h)
	to := project(event.Target.Lat, event.Target.Lon, w, h)
	return Arc{
		EventID:  event.ID,
		Label:    event.Label,
		Severity: event.Severity,
		Color:    ColorFor(event.Severity),
		From:     from,
		To:       to,
		Control:  controlPoint(from, to),
	}
}

// controlPoint places the quadratic control point perpendicular to the chord
// at its midpoint, offset proportionally to chord length within the
// curvature bounds.
func controlPoint(from, to Point) Point {
	dx := to.X - from.X
	dy := to.Y - from.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return from
	}

	offset := dist * curveRatio
	if offset < minCurve {
		offset = minCurve
	}
	if offset > maxCurve {
		offset = maxCurve
	}

	midX := (from.X + to.X) / 2
	midY := (from.Y + to.Y) / 2
	// Unit normal to the chord; arcs always bow the same way for a given
	// direction so re-renders are visually stable.
	nx := -dy / dist
	ny := dx / dist
	return Point{X: midX + nx*offset, Y: midY + ny*offset}
}

// PathData renders the arc as an SVG quadratic path.
func (a Arc) PathData() string {
	return fmt.Sprintf("M %.1f %.1f Q %.1f %.1f %.1f %.1f",
		a.From.X, a.From.Y, a.Control.X, a.Control.Y, a.To.X, a.To.Y)
}
