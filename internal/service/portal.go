package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"portal-api/internal/model"
	"portal-api/internal/store"
	"portal-api/internal/util"
)

// SOCFilter narrows the SOC preview. Empty fields match everything.
type SOCFilter struct {
	Severity string
	Source   string
	Status   string
	Mitre    string
}

// SOCKPIs are the headline numbers on the SOC preview panel.
type SOCKPIs struct {
	OpenIncidents  int `json:"openIncidents"`
	MTTRMinutes    int `json:"mttrMinutes"`
	ActiveAnalysts int `json:"activeAnalysts"`
}

// SOCPreset is a canned filter combination offered by the UI.
type SOCPreset struct {
	Label    string `json:"label"`
	Severity string `json:"severity,omitempty"`
	Status   string `json:"status,omitempty"`
}

// TimelineEntry is one row in the merged incident/alert timeline.
type TimelineEntry struct {
	At       string `json:"at"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// SOCPreview is the payload behind GET /api/soc-preview.
type SOCPreview struct {
	Incidents []model.Incident       `json:"incidents"`
	Alerts    []model.Alert          `json:"alerts"`
	Threats   []model.ThreatFeedItem `json:"threats"`
	KPIs      SOCKPIs                `json:"kpis"`
	Chart     []int                  `json:"chart"`
	Timeline  []TimelineEntry        `json:"timeline"`
	Presets   []SOCPreset            `json:"presets"`
}

// OverviewTotals are all-time counters shown above the admin tables, which
// are themselves capped at recent rows.
type OverviewTotals struct {
	Bookings       int `json:"bookings"`
	ActiveSessions int `json:"activeSessions"`
}

// AdminOverview is the payload behind GET /api/admin/overview.
type AdminOverview struct {
	Slots         []model.DemoSlot       `json:"slots"`
	Bookings      []model.DemoBooking    `json:"bookings"`
	Leads         []model.Lead           `json:"leads"`
	Incidents     []model.StatusIncident `json:"incidents"`
	ThreatSources []string               `json:"threatSources"`
	Totals        OverviewTotals         `json:"totals"`
}

// StatusPage is the payload behind GET /api/status.
type StatusPage struct {
	Overall    string                 `json:"overall"`
	Components []model.StatusSnapshot `json:"components"`
	Incidents  []model.StatusIncident `json:"incidents"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Static SOC sample data shown on the marketing preview. Incident and alert
// rows are illustrative; the threat table is backed by the real feed store.
var previewIncidents = []model.Incident{
	{ID: "INC-1001", Severity: model.SeverityHigh, Status: "investigating",
		Title:         "Suspicious PowerShell activity on finance workstation",
		AffectedAsset: "FIN-WS-014", DetectedAt: "2026-02-09T10:15:00Z"},
	{ID: "INC-1002", Severity: model.SeverityMedium, Status: "contained",
		Title:         "Repeated failed MFA attempts",
		AffectedAsset: "AzureAD Tenant", DetectedAt: "2026-02-10T08:30:00Z"},
}

var previewAlerts = []model.Alert{
	{ID: "ALT-2201", Level: model.SeverityCritical, Source: "EDR",
		Summary: "Ransomware canary triggered", Timestamp: "2026-02-10T07:10:00Z"},
	{ID: "ALT-2202", Level: model.SeverityLow, Source: "ITDR",
		Summary: "Impossible travel login detected", Timestamp: "2026-02-10T12:45:00Z"},
}

var socPresets = []SOCPreset{
	{Label: "All activity"},
	{Label: "Critical only", Severity: model.SeverityCritical},
	{Label: "Open incidents", Status: "investigating"},
	{Label: "Contained", Status: "contained"},
}

// PortalService serves the read-side aggregates: SOC preview, admin
// overview and the public status page.
type PortalService struct {
	store *store.Store
}

func NewPortalService(st *store.Store) *PortalService {
	return &PortalService{store: st}
}

// Incidents returns the SOC sample incidents.
func (p *PortalService) Incidents() []model.Incident {
	return previewIncidents
}

// Alerts returns the SOC sample alerts.
func (p *PortalService) Alerts() []model.Alert {
	return previewAlerts
}

// SOCPreview assembles the filtered preview. Unknown filter values simply
// match nothing; they never error.
func (p *PortalService) SOCPreview(ctx context.Context, filter SOCFilter) (SOCPreview, error) {
	threats, err := p.store.ListThreatFeedItems(ctx, store.ThreatFeedFilter{
		Severity: filter.Severity,
		Source:   filter.Source,
		Status:   filter.Status,
		Mitre:    filter.Mitre,
	})
	if err != nil {
		return SOCPreview{}, fmt.Errorf("list threat feed: %w", err)
	}

	incidents := filterIncidents(previewIncidents, filter)
	alerts := filterAlerts(previewAlerts, filter)

	open := 0
	for _, incident := range incidents {
		if incident.Status != "resolved" {
			open++
		}
	}

	return SOCPreview{
		Incidents: incidents,
		Alerts:    alerts,
		Threats:   threats,
		KPIs: SOCKPIs{
			OpenIncidents:  open,
			MTTRMinutes:    34,
			ActiveAnalysts: 6,
		},
		Chart:    severityChart(threats),
		Timeline: buildTimeline(incidents, alerts),
		Presets:  socPresets,
	}, nil
}

// Overview aggregates the admin dashboard data.
func (p *PortalService) Overview(ctx context.Context) (AdminOverview, error) {
	slots, err := p.store.ListDemoSlots(ctx)
	if err != nil {
		return AdminOverview{}, fmt.Errorf("list slots: %w", err)
	}
	bookings, err := p.store.ListDemoBookings(ctx, 50)
	if err != nil {
		return AdminOverview{}, fmt.Errorf("list bookings: %w", err)
	}
	leads, err := p.store.ListLeads(ctx, 50)
	if err != nil {
		return AdminOverview{}, fmt.Errorf("list leads: %w", err)
	}
	incidents, err := p.store.ListStatusIncidents(ctx, 20)
	if err != nil {
		return AdminOverview{}, fmt.Errorf("list incidents: %w", err)
	}
	sources, err := p.store.ThreatFeedSources(ctx)
	if err != nil {
		return AdminOverview{}, fmt.Errorf("list threat sources: %w", err)
	}
	totalBookings, err := p.store.CountDemoBookings(ctx)
	if err != nil {
		return AdminOverview{}, fmt.Errorf("count bookings: %w", err)
	}
	activeSessions, err := p.store.CountActiveSessions(ctx)
	if err != nil {
		return AdminOverview{}, fmt.Errorf("count sessions: %w", err)
	}
	return AdminOverview{
		Slots:         slots,
		Bookings:      bookings,
		Leads:         leads,
		Incidents:     incidents,
		ThreatSources: sources,
		Totals: OverviewTotals{
			Bookings:       totalBookings,
			ActiveSessions: activeSessions,
		},
	}, nil
}

// Status builds the public status page. Overall is the worst component
// state: operational < degraded < outage.
func (p *PortalService) Status(ctx context.Context) (StatusPage, error) {
	components, err := p.store.LatestStatusSnapshots(ctx)
	if err != nil {
		return StatusPage{}, fmt.Errorf("load status snapshots: %w", err)
	}
	incidents, err := p.store.ListStatusIncidents(ctx, 10)
	if err != nil {
		util.Warn("load status incidents failed", util.ErrorField(err))
		incidents = nil
	}

	overall := "operational"
	for _, c := range components {
		switch c.Status {
		case "outage":
			overall = "outage"
		case "degraded":
			if overall == "operational" {
				overall = "degraded"
			}
		}
	}

	return StatusPage{
		Overall:    overall,
		Components: components,
		Incidents:  incidents,
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

func filterIncidents(in []model.Incident, f SOCFilter) []model.Incident {
	out := make([]model.Incident, 0, len(in))
	for _, incident := range in {
		if f.Severity != "" && incident.Severity != f.Severity {
			continue
		}
		if f.Status != "" && incident.Status != f.Status {
			continue
		}
		out = append(out, incident)
	}
	return out
}

func filterAlerts(in []model.Alert, f SOCFilter) []model.Alert {
	out := make([]model.Alert, 0, len(in))
	for _, alert := range in {
		if f.Severity != "" && alert.Level != f.Severity {
			continue
		}
		if f.Source != "" && !strings.EqualFold(alert.Source, f.Source) {
			continue
		}
		out = append(out, alert)
	}
	return out
}

// severityChart buckets threats into the five severities in fixed order, so
// the preview bar chart is stable.
func severityChart(threats []model.ThreatFeedItem) []int {
	counts := make(map[string]int)
	for _, t := range threats {
		counts[t.Severity]++
	}
	chart := make([]int, len(model.Severities))
	for i, severity := range model.Severities {
		chart[i] = counts[severity]
	}
	return chart
}

func buildTimeline(incidents []model.Incident, alerts []model.Alert) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(incidents)+len(alerts))
	for _, incident := range incidents {
		entries = append(entries, TimelineEntry{
			At: incident.DetectedAt, Kind: "incident",
			Severity: incident.Severity, Text: incident.Title,
		})
	}
	for _, alert := range alerts {
		entries = append(entries, TimelineEntry{
			At: alert.Timestamp, Kind: "alert",
			Severity: alert.Level, Text: alert.Summary,
		})
	}
	// RFC3339 sorts lexicographically; newest first.
	sort.Slice(entries, func(i, j int) bool { return entries[i].At > entries[j].At })
	return entries
}
