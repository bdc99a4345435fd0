package geomap

import (
	"fmt"
	"html"
	"strings"

	"portal-api/internal/model"
)

// RenderOptions shapes the emitted SVG.
type RenderOptions struct {
	Width  int
	Height int
	// ShowArcs toggles flow paths; endpoints render either way.
	ShowArcs bool
	// Projection selects the map projection, see ProjectorFor.
	Projection string
	Filter     FilterOptions
}

// DefaultRenderOptions is the shape served when the caller passes nothing.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Width: 960, Height: 480, ShowArcs: true}
}

// RenderSVG draws the flow map: a dark backdrop, endpoint markers and
// severity-colored arcs. Output is deterministic for a given event batch and
// options.
func RenderSVG(events []model.ThreatEvent, opts RenderOptions) string {
	if opts.Width <= 0 || opts.Height <= 0 {
		def := DefaultRenderOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}
	w := float64(opts.Width)
	h := float64(opts.Height)

	visible := Filter(events, opts.Filter)
	project := ProjectorFor(opts.Projection)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-label="Threat flow map">`,
		opts.Width, opts.Height)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#0b1220"/>`, opts.Width, opts.Height)

	if opts.ShowArcs {
		b.WriteString(`<g class="flows" fill="none" stroke-width="1.5" stroke-linecap="round" opacity="0.85">`)
		for _, event := range visible {
			arc := BuildArc(event, w, h, project)
			fmt.Fprintf(&b, `<path class="flow flow-%s" d="%s" stroke="%s"><title>%s</title></path>`,
				arc.Severity, arc.PathData(), arc.Color, html.EscapeString(arcTitle(event)))
		}
		b.WriteString(`</g>`)
	}

	b.WriteString(`<g class="hubs">`)
	for _, event := range visible {
		origin := project(event.Origin.Lat, event.Origin.Lon, w, h)
		target := project(event.Target.Lat, event.Target.Lon, w, h)
		color := ColorFor(event.Severity)
		fmt.Fprintf(&b, `<circle cx="%.1f" cy="%.1f" r="2.5" fill="%s"/>`, origin.X, origin.Y, color)
		fmt.Fprintf(&b, `<circle cx="%.1f" cy="%.1f" r="3.5" fill="none" stroke="%s" stroke-width="1"/>`,
			target.X, target.Y, color)
	}
	b.WriteString(`</g></svg>`)
	return b.String()
}

func arcTitle(event model.ThreatEvent) string {
	return fmt.Sprintf("%s: %s → %s (%s)",
		event.Label, event.Origin.Label, event.Target.Label, event.Severity)
}
