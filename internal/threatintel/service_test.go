package threatintel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portal-api/internal/config"
)

func TestGetGeoEventsServesFromCache(t *testing.T) {
	svc := NewService(config.ThreatIntelConfig{CacheTTL: time.Minute}, nil)
	ctx := context.Background()

	first, firstMeta := svc.GetGeoEvents(ctx)
	if firstMeta.Source != SourceMock {
		t.Fatalf("expected source %q on cold fetch, got %q", SourceMock, firstMeta.Source)
	}
	if len(first) == 0 {
		t.Fatal("expected synthetic events on cold fetch")
	}

	second, secondMeta := svc.GetGeoEvents(ctx)
	if secondMeta.Source != SourceCache {
		t.Fatalf("expected source %q on warm fetch, got %q", SourceCache, secondMeta.Source)
	}
	if !secondMeta.LastUpdated.Equal(firstMeta.LastUpdated) {
		t.Fatalf("cache hit must keep the original timestamp: %v vs %v",
			firstMeta.LastUpdated, secondMeta.LastUpdated)
	}
	if len(second) != len(first) {
		t.Fatalf("cache hit changed the batch: %d vs %d events", len(second), len(first))
	}
}

func TestGetGeoEventsRefetchesAfterTTL(t *testing.T) {
	svc := NewService(config.ThreatIntelConfig{CacheTTL: 10 * time.Millisecond}, nil)
	ctx := context.Background()

	_, firstMeta := svc.GetGeoEvents(ctx)
	time.Sleep(25 * time.Millisecond)
	_, secondMeta := svc.GetGeoEvents(ctx)

	if secondMeta.Source == SourceCache {
		t.Fatal("expected a fresh fetch after TTL expiry")
	}
	if !secondMeta.LastUpdated.After(firstMeta.LastUpdated) {
		t.Fatal("expected a newer timestamp after refetch")
	}
}

func TestFailingFeedFallsBackToMock(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer upstream.Close()

	svc := NewService(config.ThreatIntelConfig{
		FeedURL:  upstream.URL,
		CacheTTL: time.Minute,
	}, nil)

	events, meta := svc.GetGeoEvents(context.Background())
	if meta.Source != SourceMockFallback {
		t.Fatalf("expected source %q, got %q", SourceMockFallback, meta.Source)
	}
	if len(events) == 0 {
		t.Fatal("fallback must still produce events")
	}
}

func TestLiveFeedServed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"E-1","label":"Test flow","severity":"high",
			 "origin":{"label":"Lagos","lat":6.52,"lon":3.37},
			 "target":{"label":"London","lat":51.5,"lon":-0.12}},
			{"id":"E-2","severity":"weird",
			 "source":{"city":"Nairobi","latitude":"-1.29","longitude":"36.82"},
			 "destination":{"name":"Tokyo","lat":35.67,"lng":139.65}},
			{"id":"E-3","origin":{"lat":999,"lon":3.3},
			 "target":{"lat":51.5,"lon":-0.12}}
		]}`))
	}))
	defer upstream.Close()

	svc := NewService(config.ThreatIntelConfig{
		FeedURL:  upstream.URL,
		CacheTTL: time.Minute,
	}, nil)

	events, meta := svc.GetGeoEvents(context.Background())
	if meta.Source != SourceLive {
		t.Fatalf("expected source %q, got %q", SourceLive, meta.Source)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events (third has invalid latitude), got %d", len(events))
	}
	if events[0].Severity != "high" {
		t.Fatalf("expected severity high, got %q", events[0].Severity)
	}
	if events[1].Severity != "low" {
		t.Fatalf("unknown severity should clamp to low, got %q", events[1].Severity)
	}
	if events[1].Origin.Lat != -1.29 {
		t.Fatalf("string coordinates should be coerced, got %v", events[1].Origin.Lat)
	}
	if meta.Count != 2 {
		t.Fatalf("meta count mismatch: %d", meta.Count)
	}
}
