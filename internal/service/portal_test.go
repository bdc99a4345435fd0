package service

import (
	"context"
	"testing"

	"portal-api/internal/config"
	"portal-api/internal/model"
	"portal-api/internal/store"
)

func newTestPortalService(t *testing.T) *PortalService {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if err := st.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	cfg := &config.Config{}
	cfg.Auth.SeedAdminEmail = "admin@example.test"
	cfg.Auth.SeedAdminPassword = "seed-password-1"
	if err := st.Seed(ctx, cfg); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewPortalService(st)
}

func TestSOCPreviewUnfiltered(t *testing.T) {
	svc := newTestPortalService(t)

	preview, err := svc.SOCPreview(context.Background(), SOCFilter{})
	if err != nil {
		t.Fatalf("soc preview: %v", err)
	}
	if len(preview.Incidents) != 2 || len(preview.Alerts) != 2 {
		t.Fatalf("expected 2 incidents and 2 alerts, got %d/%d",
			len(preview.Incidents), len(preview.Alerts))
	}
	if len(preview.Threats) == 0 {
		t.Fatal("expected seeded threat feed items")
	}
	if preview.KPIs.OpenIncidents != 2 {
		t.Fatalf("expected 2 open incidents, got %d", preview.KPIs.OpenIncidents)
	}
	if len(preview.Chart) != len(model.Severities) {
		t.Fatalf("chart must have one bucket per severity, got %d", len(preview.Chart))
	}
	if len(preview.Timeline) != 4 {
		t.Fatalf("expected 4 timeline entries, got %d", len(preview.Timeline))
	}
	for i := 1; i < len(preview.Timeline); i++ {
		if preview.Timeline[i].At > preview.Timeline[i-1].At {
			t.Fatal("timeline not sorted newest-first")
		}
	}
	if len(preview.Presets) == 0 {
		t.Fatal("expected filter presets")
	}
}

func TestSOCPreviewSeverityFilter(t *testing.T) {
	svc := newTestPortalService(t)

	preview, err := svc.SOCPreview(context.Background(), SOCFilter{Severity: model.SeverityHigh})
	if err != nil {
		t.Fatalf("soc preview: %v", err)
	}
	for _, incident := range preview.Incidents {
		if incident.Severity != model.SeverityHigh {
			t.Fatalf("incident %s leaked through severity filter", incident.ID)
		}
	}
	for _, alert := range preview.Alerts {
		if alert.Level != model.SeverityHigh {
			t.Fatalf("alert %s leaked through severity filter", alert.ID)
		}
	}
	for _, threat := range preview.Threats {
		if threat.Severity != model.SeverityHigh {
			t.Fatalf("threat %s leaked through severity filter", threat.ID)
		}
	}
}

func TestOverviewAggregates(t *testing.T) {
	svc := newTestPortalService(t)

	overview, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(overview.Slots) != 3 {
		t.Fatalf("expected 3 seeded slots, got %d", len(overview.Slots))
	}
	if len(overview.Incidents) == 0 {
		t.Fatal("expected seeded status incidents")
	}
	if len(overview.ThreatSources) == 0 {
		t.Fatal("expected threat sources from seed data")
	}
}

func TestStatusOverallReflectsWorstComponent(t *testing.T) {
	svc := newTestPortalService(t)
	ctx := context.Background()

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Overall != "operational" {
		t.Fatalf("expected operational from seed data, got %q", status.Overall)
	}
	if len(status.Components) == 0 {
		t.Fatal("expected seeded status components")
	}
}
