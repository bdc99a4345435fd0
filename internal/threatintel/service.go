package threatintel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"portal-api/internal/config"
	"portal-api/internal/metrics"
	"portal-api/internal/model"
	"portal-api/internal/store"
	"portal-api/internal/util"
)

// Source labels reported in the response meta.
const (
	SourceLive         = "live"
	SourceMock         = "mock"
	SourceMockFallback = "mock-fallback"
	SourceCache        = "cache"
)

// Meta describes where a batch of geo events came from and how fresh it is.
type Meta struct {
	Source      string    `json:"source"`
	RefreshMs   int64     `json:"refreshMs"`
	LastUpdated time.Time `json:"lastUpdated"`
	Count       int       `json:"count"`
}

// GeoSource is one upstream in the fetch chain.
type GeoSource interface {
	Name() string
	Fetch(ctx context.Context) ([]model.ThreatEvent, error)
}

type cached struct {
	events []model.ThreatEvent
	meta   Meta
}

// Service serves geo threat events from a short-lived cache, falling through
// a chain of upstream sources on miss: live feed, then MISP, then the
// synthetic generator (which never fails).
type Service struct {
	cfg   config.ThreatIntelConfig
	feed  *FeedSource
	misp  *MISPClient
	mock  *Generator
	store *store.Store

	ttl   time.Duration
	group singleflight.Group

	mu    sync.RWMutex
	entry *cached
}

func NewService(cfg config.ThreatIntelConfig, st *store.Store) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	s := &Service{
		cfg:   cfg,
		mock:  NewGenerator(),
		misp:  NewMISPClient(cfg),
		store: st,
		ttl:   ttl,
	}
	if cfg.FeedURL != "" {
		s.feed = NewFeedSource(cfg.FeedURL, cfg.FeedAPIKey, cfg.MISPTimeout)
	}
	return s
}

// GetGeoEvents returns the current batch of threat flows. Cache hits carry
// Source "cache" and the original LastUpdated timestamp. Concurrent misses
// are collapsed into a single upstream fetch.
func (s *Service) GetGeoEvents(ctx context.Context) ([]model.ThreatEvent, Meta) {
	s.mu.RLock()
	entry := s.entry
	s.mu.RUnlock()

	if entry != nil && time.Since(entry.meta.LastUpdated) < s.ttl {
		meta := entry.meta
		meta.Source = SourceCache
		metrics.ThreatFetches.WithLabelValues(SourceCache, "hit").Inc()
		return entry.events, meta
	}

	result, _, _ := s.group.Do("geo-events", func() (any, error) {
		// Re-check under the flight: another caller may have refreshed
		// while this one waited.
		s.mu.RLock()
		current := s.entry
		s.mu.RUnlock()
		if current != nil && time.Since(current.meta.LastUpdated) < s.ttl {
			return current, nil
		}
		return s.refresh(ctx), nil
	})

	fresh := result.(*cached)
	meta := fresh.meta
	if entry != nil && fresh == entry {
		meta.Source = SourceCache
	}
	return fresh.events, meta
}

// Refresh forces an upstream fetch, bypassing the TTL. Used by the geomap
// refresher to warm the cache on its own cadence.
func (s *Service) Refresh(ctx context.Context) Meta {
	result, _, _ := s.group.Do("geo-refresh", func() (any, error) {
		return s.refresh(ctx), nil
	})
	return result.(*cached).meta
}

// RefreshInterval is the cadence the background warmer should run at.
func (s *Service) RefreshInterval() time.Duration {
	if s.cfg.RefreshInterval > 0 {
		return s.cfg.RefreshInterval
	}
	return s.ttl
}

// MISPStatus exposes the MISP connection state for the status endpoint.
func (s *Service) MISPStatus() MISPStatus {
	return s.misp.Status()
}

func (s *Service) refresh(ctx context.Context) *cached {
	events, source := s.fetchChain(ctx)
	entry := &cached{
		events: events,
		meta: Meta{
			Source:      source,
			RefreshMs:   s.RefreshInterval().Milliseconds(),
			LastUpdated: time.Now().UTC(),
			Count:       len(events),
		},
	}
	s.mu.Lock()
	s.entry = entry
	s.mu.Unlock()
	return entry
}

// fetchChain tries the live feed, then MISP, then the generator. A chain that
// bottoms out after a configured source failed reports "mock-fallback" so the
// degradation is visible downstream.
func (s *Service) fetchChain(ctx context.Context) ([]model.ThreatEvent, string) {
	liveAttempted := false

	if s.feed != nil {
		liveAttempted = true
		events, err := s.feed.Fetch(ctx)
		if err == nil {
			metrics.ThreatFetches.WithLabelValues(SourceLive, "ok").Inc()
			return events, SourceLive
		}
		metrics.ThreatFetches.WithLabelValues(SourceLive, "error").Inc()
		util.Warn("live threat feed unavailable", util.ErrorField(err))
	}

	if s.misp.Configured() {
		liveAttempted = true
		intel, err := s.misp.FetchIntel(ctx)
		if err == nil && len(intel.GeoEvents) > 0 {
			metrics.ThreatFetches.WithLabelValues(SourceLive, "ok").Inc()
			s.persistFeedItems(ctx, intel.FeedItems)
			return intel.GeoEvents, SourceLive
		}
		metrics.ThreatFetches.WithLabelValues(SourceLive, "error").Inc()
		if err != nil {
			util.Warn("MISP fetch failed", util.ErrorField(err))
		}
	}

	events, _ := s.mock.Fetch(ctx)
	source := SourceMock
	if liveAttempted {
		source = SourceMockFallback
	}
	metrics.ThreatFetches.WithLabelValues(source, "ok").Inc()
	return events, source
}

func (s *Service) persistFeedItems(ctx context.Context, items []model.ThreatFeedItem) {
	if s.store == nil {
		return
	}
	for _, item := range items {
		if err := s.store.UpsertThreatFeedItem(ctx, item); err != nil {
			util.Warn("persist MISP feed item failed",
				util.String("id", item.ID), util.ErrorField(err))
		}
	}
}
