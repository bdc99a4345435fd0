package geomap

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"portal-api/internal/model"
)

func TestProjectCorners(t *testing.T) {
	w, h := 960.0, 480.0

	center := Project(0, 0, w, h)
	if center.X != 480 || center.Y != 240 {
		t.Fatalf("origin should project to canvas center, got %+v", center)
	}

	west := Project(0, -180, w, h)
	if west.X != 0 {
		t.Fatalf("lon -180 should project to x=0, got %v", west.X)
	}
	east := Project(0, 180, w, h)
	if east.X != w {
		t.Fatalf("lon 180 should project to x=w, got %v", east.X)
	}
}

func TestProjectClampsPolarLatitudes(t *testing.T) {
	w, h := 960.0, 480.0
	pole := Project(90, 0, w, h)
	clamped := Project(85, 0, w, h)
	if pole.Y != clamped.Y {
		t.Fatalf("lat 90 should clamp to 85: %v vs %v", pole.Y, clamped.Y)
	}

	mercPole := ProjectMercator(89.9, 0, w, h)
	if math.IsInf(mercPole.Y, 0) || math.IsNaN(mercPole.Y) {
		t.Fatalf("mercator must not blow up near the pole: %v", mercPole.Y)
	}
	if mercPole.Y < 0 || mercPole.Y > h {
		t.Fatalf("mercator y out of canvas: %v", mercPole.Y)
	}
}

func TestProjectorForSelection(t *testing.T) {
	w, h := 960.0, 480.0

	merc := ProjectorFor("mercator")(45, 0, w, h)
	want := ProjectMercator(45, 0, w, h)
	if merc != want {
		t.Fatalf("mercator projector mismatch: %+v vs %+v", merc, want)
	}

	for _, name := range []string{"", "equirect", "bogus"} {
		got := ProjectorFor(name)(45, 0, w, h)
		if got != Project(45, 0, w, h) {
			t.Fatalf("%q should select the equirectangular default, got %+v", name, got)
		}
	}
}

func TestControlPointCurvatureBounds(t *testing.T) {
	short := controlPoint(Point{X: 100, Y: 100}, Point{X: 110, Y: 100})
	shortOffset := math.Hypot(short.X-105, short.Y-100)
	if math.Abs(shortOffset-minCurve) > 0.01 {
		t.Fatalf("short chord should hit min curvature %v, got %v", minCurve, shortOffset)
	}

	long := controlPoint(Point{X: 0, Y: 0}, Point{X: 900, Y: 0})
	longOffset := math.Hypot(long.X-450, long.Y-0)
	if math.Abs(longOffset-maxCurve) > 0.01 {
		t.Fatalf("long chord should hit max curvature %v, got %v", maxCurve, longOffset)
	}

	mid := controlPoint(Point{X: 0, Y: 0}, Point{X: 200, Y: 0})
	midOffset := math.Hypot(mid.X-100, mid.Y-0)
	want := 200 * curveRatio
	if math.Abs(midOffset-want) > 0.01 {
		t.Fatalf("mid chord should scale with length: want %v, got %v", want, midOffset)
	}
}

func TestColorForUnknownSeverity(t *testing.T) {
	if ColorFor("bogus") != severityPalette[model.SeverityInfo] {
		t.Fatal("unknown severity must fall back to the info color")
	}
	if ColorFor(model.SeverityCritical) == ColorFor(model.SeverityLow) {
		t.Fatal("severities must map to distinct colors")
	}
}

func flowBatch(n int) []model.ThreatEvent {
	severities := model.Severities
	events := make([]model.ThreatEvent, n)
	for i := range events {
		events[i] = model.ThreatEvent{
			ID:       fmt.Sprintf("EV-%03d", i),
			Label:    "flow",
			Severity: severities[i%len(severities)],
			Origin:   model.GeoPoint{Label: "A", Lat: 6.5, Lon: 3.4},
			Target:   model.GeoPoint{Label: "B", Lat: 51.5, Lon: -0.1},
		}
	}
	return events
}

func TestFilterEmptySeveritySelectionResetsToAll(t *testing.T) {
	events := flowBatch(10)

	all := Filter(events, FilterOptions{Severities: nil})
	if len(all) != 10 {
		t.Fatalf("nil selection should keep everything, got %d", len(all))
	}

	alsoAll := Filter(events, FilterOptions{Severities: []string{}})
	if len(alsoAll) != 10 {
		t.Fatalf("empty selection must auto-reset to all, got %d", len(alsoAll))
	}

	onlyJunk := Filter(events, FilterOptions{Severities: []string{"nonsense"}})
	if len(onlyJunk) != 10 {
		t.Fatalf("all-invalid selection must auto-reset to all, got %d", len(onlyJunk))
	}

	criticalOnly := Filter(events, FilterOptions{Severities: []string{model.SeverityCritical}})
	if len(criticalOnly) != 2 {
		t.Fatalf("expected 2 critical events, got %d", len(criticalOnly))
	}
}

func TestFilterMaxFlowsIsStableFirstN(t *testing.T) {
	events := flowBatch(100)
	opts := FilterOptions{MaxFlows: 7}

	first := Filter(events, opts)
	second := Filter(events, opts)
	if len(first) != 7 {
		t.Fatalf("expected 7 flows, got %d", len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("selection not stable at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
		if first[i].ID != events[i].ID {
			t.Fatalf("selection must be the first N in input order, got %s at %d", first[i].ID, i)
		}
	}
}

func TestFilterRegionClip(t *testing.T) {
	events := []model.ThreatEvent{
		{ID: "in", Severity: model.SeverityHigh,
			Origin: model.GeoPoint{Lat: 6.5, Lon: 3.4},
			Target: model.GeoPoint{Lat: -1.3, Lon: 36.8}},
		{ID: "out", Severity: model.SeverityHigh,
			Origin: model.GeoPoint{Lat: 51.5, Lon: -0.1},
			Target: model.GeoPoint{Lat: 48.9, Lon: 2.35}},
	}
	africa := &BBox{MinLat: -35, MaxLat: 37, MinLon: -20, MaxLon: 52}
	got := Filter(events, FilterOptions{Region: africa})
	if len(got) != 1 || got[0].ID != "in" {
		t.Fatalf("expected only the African flow, got %+v", got)
	}
}

func TestRenderSVG(t *testing.T) {
	events := flowBatch(3)
	svg := RenderSVG(events, DefaultRenderOptions())

	if !strings.HasPrefix(svg, "<svg") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatal("output is not a complete SVG document")
	}
	if strings.Count(svg, "<path") != 3 {
		t.Fatalf("expected 3 arcs, got %d", strings.Count(svg, "<path"))
	}
	if !strings.Contains(svg, severityPalette[model.SeverityCritical]) {
		t.Fatal("critical palette color missing from output")
	}
	if strings.Contains(svg, "NaN") {
		t.Fatal("SVG contains NaN coordinates")
	}

	noArcs := RenderSVG(events, RenderOptions{Width: 960, Height: 480, ShowArcs: false})
	if strings.Contains(noArcs, "<path") {
		t.Fatal("arcs rendered despite toggle off")
	}
	if !strings.Contains(noArcs, "<circle") {
		t.Fatal("endpoints should render even with arcs off")
	}
}
