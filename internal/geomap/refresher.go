package geomap

import (
	"context"
	"sync"
	"time"

	"portal-api/internal/threatintel"
	"portal-api/internal/util"
)

// Refresher keeps the ingestion cache warm on the cadence the ingestion
// layer reports. When the cadence (or the playback multiplier) changes, the
// ticker is stopped and replaced rather than reused, so intervals never
// drift from their configured value.
type Refresher struct {
	intel *threatintel.Service

	mu       sync.Mutex
	interval time.Duration
	playback float64
	rebuild  chan struct{}
}

func NewRefresher(intel *threatintel.Service) *Refresher {
	return &Refresher{
		intel:    intel,
		interval: intel.RefreshInterval(),
		playback: 1.0,
		rebuild:  make(chan struct{}, 1),
	}
}

// SetPlayback scales the refresh cadence. A multiplier of 2 halves the
// interval. Non-positive values are ignored.
func (r *Refresher) SetPlayback(multiplier float64) {
	if multiplier <= 0 {
		return
	}
	r.mu.Lock()
	changed := r.playback != multiplier
	r.playback = multiplier
	r.mu.Unlock()
	if changed {
		r.signalRebuild()
	}
}

// SetInterval adopts a new base cadence, typically from ingestion meta.
func (r *Refresher) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.mu.Lock()
	changed := r.interval != interval
	r.interval = interval
	r.mu.Unlock()
	if changed {
		r.signalRebuild()
	}
}

// Playback returns the current playback multiplier.
func (r *Refresher) Playback() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playback
}

// Interval returns the current base cadence.
func (r *Refresher) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// adoptCadence folds the cadence reported by an ingestion refresh back into
// the loop, so cadence changes take effect without a restart.
func (r *Refresher) adoptCadence(meta threatintel.Meta) {
	if meta.RefreshMs > 0 {
		r.SetInterval(time.Duration(meta.RefreshMs) * time.Millisecond)
	}
}

// EffectiveInterval is the base cadence divided by the playback multiplier,
// floored at one second.
func (r *Refresher) EffectiveInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	effective := time.Duration(float64(r.interval) / r.playback)
	if effective < time.Second {
		effective = time.Second
	}
	return effective
}

// Run refreshes on the effective cadence until ctx is cancelled. Each
// cadence change tears the old ticker down and starts a fresh one.
func (r *Refresher) Run(ctx context.Context) {
	for {
		interval := r.EffectiveInterval()
		ticker := time.NewTicker(interval)
		util.Debug("threat refresher ticker built", util.Duration("interval", interval))

		if !r.loop(ctx, ticker) {
			ticker.Stop()
			return
		}
		ticker.Stop()
	}
}

// loop runs one ticker generation; it returns false on shutdown and true
// when the ticker must be rebuilt.
func (r *Refresher) loop(ctx context.Context, ticker *time.Ticker) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.rebuild:
			return true
		case <-ticker.C:
			meta := r.intel.Refresh(ctx)
			r.adoptCadence(meta)
			util.Debug("threat cache refreshed",
				util.String("source", meta.Source), util.Int("count", meta.Count))
		}
	}
}

func (r *Refresher) signalRebuild() {
	select {
	case r.rebuild <- struct{}{}:
	default:
	}
}
