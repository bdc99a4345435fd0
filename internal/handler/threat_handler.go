package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"portal-api/internal/geomap"
	"portal-api/internal/service"
	"portal-api/internal/threatintel"
	"portal-api/internal/util"
)

// ThreatHandler serves the live threat surfaces: geo events, the rendered
// flow map, intel status, the SOC preview and the public status page.
type ThreatHandler struct {
	intel  *threatintel.Service
	portal *service.PortalService
}

func NewThreatHandler(intel *threatintel.Service, portal *service.PortalService) *ThreatHandler {
	return &ThreatHandler{intel: intel, portal: portal}
}

func (h *ThreatHandler) RegisterRoutes(r chi.Router) {
	r.Get("/threat-geo-events", h.GeoEvents)
	r.Get("/threat-map.svg", h.ThreatMap)
	r.Get("/threat-intel/status", h.IntelStatus)
	r.Get("/soc-preview", h.SOCPreview)
	r.Get("/incidents", h.Incidents)
	r.Get("/alerts", h.Alerts)
	r.Get("/status", h.Status)
}

func (h *ThreatHandler) GeoEvents(w http.ResponseWriter, r *http.Request) {
	events, meta := h.intel.GetGeoEvents(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"data": events, "meta": meta})
}

// ThreatMap renders the flow map as SVG. Query parameters: severity (comma
// list), minLat/maxLat/minLon/maxLon (region clip), maxFlows, arcs
// (true/false), projection (equirect/mercator), width/height.
func (h *ThreatHandler) ThreatMap(w http.ResponseWriter, r *http.Request) {
	events, _ := h.intel.GetGeoEvents(r.Context())

	opts := geomap.DefaultRenderOptions()
	q := r.URL.Query()

	if raw := q.Get("severity"); raw != "" {
		opts.Filter.Severities = strings.Split(raw, ",")
	}
	if region, ok := parseRegion(q); ok {
		opts.Filter.Region = region
	}
	if n, err := strconv.Atoi(q.Get("maxFlows")); err == nil && n > 0 {
		opts.Filter.MaxFlows = n
	}
	if q.Get("arcs") == "false" {
		opts.ShowArcs = false
	}
	opts.Projection = q.Get("projection")
	if n, err := strconv.Atoi(q.Get("width")); err == nil && n > 0 && n <= 4096 {
		opts.Width = n
	}
	if n, err := strconv.Atoi(q.Get("height")); err == nil && n > 0 && n <= 4096 {
		opts.Height = n
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(geomap.RenderSVG(events, opts))); err != nil {
		util.Error("write threat map failed", util.ErrorField(err))
	}
}

func (h *ThreatHandler) IntelStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"data": h.intel.MISPStatus()})
}

func (h *ThreatHandler) SOCPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	preview, err := h.portal.SOCPreview(r.Context(), service.SOCFilter{
		Severity: q.Get("severity"),
		Source:   q.Get("source"),
		Status:   q.Get("status"),
		Mitre:    q.Get("mitre"),
	})
	if err != nil {
		util.Error("soc preview failed", util.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Could not load SOC preview")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": preview})
}

func (h *ThreatHandler) Incidents(w http.ResponseWriter, _ *http.Request) {
	incidents := h.portal.Incidents()
	respondJSON(w, http.StatusOK, map[string]any{"data": incidents, "count": len(incidents)})
}

func (h *ThreatHandler) Alerts(w http.ResponseWriter, _ *http.Request) {
	alerts := h.portal.Alerts()
	respondJSON(w, http.StatusOK, map[string]any{"data": alerts, "count": len(alerts)})
}

func (h *ThreatHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.portal.Status(r.Context())
	if err != nil {
		util.Error("status page failed", util.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Could not load status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": status})
}

func parseRegion(q map[string][]string) (*geomap.BBox, bool) {
	get := func(key string) (float64, bool) {
		values := q[key]
		if len(values) == 0 {
			return 0, false
		}
		v, err := strconv.ParseFloat(values[0], 64)
		return v, err == nil
	}
	minLat, ok1 := get("minLat")
	maxLat, ok2 := get("maxLat")
	minLon, ok3 := get("minLon")
	maxLon, ok4 := get("maxLon")
	if !(ok1 && ok2 && ok3 && ok4) {
		return nil, false
	}
	return &geomap.BBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}, true
}
