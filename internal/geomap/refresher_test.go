package geomap

import (
	"context"
	"testing"
	"time"

	"portal-api/internal/config"
	"portal-api/internal/threatintel"
)

func TestEffectiveIntervalScalesWithPlayback(t *testing.T) {
	intel := threatintel.NewService(config.ThreatIntelConfig{
		CacheTTL:        time.Minute,
		RefreshInterval: 40 * time.Second,
	}, nil)
	r := NewRefresher(intel)

	if got := r.EffectiveInterval(); got != 40*time.Second {
		t.Fatalf("expected 40s base interval, got %v", got)
	}

	r.SetPlayback(2)
	if got := r.EffectiveInterval(); got != 20*time.Second {
		t.Fatalf("playback 2x should halve the interval, got %v", got)
	}

	r.SetPlayback(0)
	if got := r.EffectiveInterval(); got != 20*time.Second {
		t.Fatalf("non-positive multiplier must be ignored, got %v", got)
	}

	r.SetInterval(10 * time.Second)
	if got := r.EffectiveInterval(); got != 5*time.Second {
		t.Fatalf("new cadence with 2x playback should give 5s, got %v", got)
	}

	// Intervals never drop below one second regardless of multiplier.
	r.SetPlayback(100)
	if got := r.EffectiveInterval(); got != time.Second {
		t.Fatalf("expected 1s floor, got %v", got)
	}
}

func TestAdoptCadenceFromIngestionMeta(t *testing.T) {
	intel := threatintel.NewService(config.ThreatIntelConfig{
		CacheTTL:        time.Minute,
		RefreshInterval: 40 * time.Second,
	}, nil)
	r := NewRefresher(intel)

	r.adoptCadence(threatintel.Meta{RefreshMs: 90_000})
	if got := r.Interval(); got != 90*time.Second {
		t.Fatalf("expected 90s base cadence from meta, got %v", got)
	}
	select {
	case <-r.rebuild:
	default:
		t.Fatal("cadence change must signal a ticker rebuild")
	}

	// An identical or absent cadence leaves the loop alone.
	r.adoptCadence(threatintel.Meta{RefreshMs: 90_000})
	r.adoptCadence(threatintel.Meta{})
	select {
	case <-r.rebuild:
		t.Fatal("unchanged cadence must not signal a rebuild")
	default:
	}
	if got := r.Interval(); got != 90*time.Second {
		t.Fatalf("absent cadence must not reset the interval, got %v", got)
	}
}

func TestRunRebuildsTickerOnCadenceChange(t *testing.T) {
	intel := threatintel.NewService(config.ThreatIntelConfig{
		CacheTTL:        time.Minute,
		RefreshInterval: time.Hour,
	}, nil)
	r := NewRefresher(intel)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// With an hour-long ticker nothing fires unless the cadence change is
	// picked up and the ticker rebuilt. The effective interval floors at one
	// second, so after a little over that a single GetGeoEvents call must
	// observe the warmed cache instead of performing a cold fetch.
	time.Sleep(20 * time.Millisecond)
	r.SetInterval(10 * time.Millisecond)
	time.Sleep(1300 * time.Millisecond)

	_, meta := intel.GetGeoEvents(ctx)
	if meta.Source != threatintel.SourceCache {
		t.Fatalf("expected the refresher to have warmed the cache, got source %q", meta.Source)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop on context cancel")
	}
}
