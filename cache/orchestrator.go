package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/sundial-audio/yearkeeper/models"
)

// InvalidationEvent is emitted whenever a track edit should purge stale
// cache entries downstream.
type InvalidationEvent struct {
	Artist string
	Album  string
}

// Orchestrator is the single entry point the rest of the pipeline uses
// to reach the three specialized caches, so callers never need to know
// which cache backs a given lookup.
type Orchestrator struct {
	Generic      *GenericCache
	AlbumYear    *AlbumYearCache
	APIResponses *APIResponseCache

	negativeTTL time.Duration

	invalidations chan InvalidationEvent
	logger        *log.Logger
}

// NewOrchestrator wires the three caches from viper-resolved paths and
// intervals, read from the "caching.*" configuration keys plus the
// top-level generic_cache_file and album_years_cache_file paths.
func NewOrchestrator() (*Orchestrator, error) {
	generic, err := NewGenericCache(
		viper.GetInt("caching.generic_cache_max_entries"),
		time.Duration(viper.GetInt("caching.cleanup_interval_seconds"))*time.Second,
		viper.GetString("generic_cache_file"),
	)
	if err != nil {
		return nil, fmt.Errorf("cache: building orchestrator: %w", err)
	}

	return &Orchestrator{
		Generic:       generic,
		AlbumYear:     NewAlbumYearCache(viper.GetString("album_years_cache_file")),
		APIResponses:  NewAPIResponseCache(viper.GetString("caching.api_result_cache_path")),
		negativeTTL:   time.Duration(viper.GetInt64("caching.negative_result_ttl")) * time.Second,
		invalidations: make(chan InvalidationEvent, 64),
		logger:        log.New(os.Stdout, "cache[orchestrator]: ", log.LstdFlags|log.Lmsgprefix),
	}, nil
}

// NegativeTTL returns the configured TTL applied to a negative API
// lookup, so callers (e.g. the API Orchestrator) can pass it straight
// into PutAPIResult.
func (o *Orchestrator) NegativeTTL() time.Duration {
	return o.negativeTTL
}

// LoadAll reads every cache from disk, logging and continuing past
// individual failures.
func (o *Orchestrator) LoadAll() {
	if err := o.Generic.LoadFromDisk(); err != nil {
		o.logger.Printf("generic cache load failed: %v", err)
	}
	if err := o.AlbumYear.LoadFromDisk(); err != nil {
		o.logger.Printf("album-year cache load failed: %v", err)
	}
	if err := o.APIResponses.LoadFromDisk(); err != nil {
		o.logger.Printf("api-response cache load failed: %v", err)
	}
}

// SaveAll flushes every cache to disk. The first error is returned but
// every cache is still attempted.
func (o *Orchestrator) SaveAll() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(o.Generic.SaveToDisk())
	record(o.AlbumYear.SaveToDisk())
	record(o.APIResponses.SaveToDisk())
	return firstErr
}

// StartBackgroundSweep launches the Generic Cache's TTL sweep and a
// periodic full save, both bound to ctx.
func (o *Orchestrator) StartBackgroundSweep(ctx context.Context) {
	o.Generic.StartCleanup(ctx)

	interval := time.Duration(viper.GetInt("caching.album_cache_sync_interval")) * time.Second
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.SaveAll(); err != nil {
					o.logger.Printf("periodic save failed: %v", err)
				}
			}
		}
	}()
}

// Shutdown stops the background sweep and performs a final save.
func (o *Orchestrator) Shutdown() error {
	o.Generic.StopCleanup()
	return o.SaveAll()
}

// GetRawResponse and PutRawResponse expose the Generic Cache to the
// HTTP executor, translating to/from map[string]any so callers
// outside this package never handle json.RawMessage directly.
func (o *Orchestrator) GetRawResponse(key string) (map[string]any, bool) {
	raw, ok := o.Generic.Get(key)
	if !ok {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func (o *Orchestrator) PutRawResponse(key string, value map[string]any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		o.logger.Printf("encoding raw response for key %s: %v", key, err)
		return
	}
	o.Generic.Set(key, raw, ttl)
}

// PutAPIResult stores a provider verdict, applying the orchestrator's
// configured negative-result TTL.
func (o *Orchestrator) PutAPIResult(result models.CachedApiResult) {
	o.APIResponses.Set(result, o.negativeTTL)
}

// InvalidateForTrack purges every cache entry keyed off a track's
// identity across all three caches: the Generic cache's full-snapshot
// and per-artist listings, the Album-Year verdict, and every provider's
// API-Response verdict. Called when a track is edited or removed out
// from under the pipeline. originalArtist may be empty when the track
// carries no separate original-artist tag.
func (o *Orchestrator) InvalidateForTrack(artist, originalArtist, album string, sources []string) {
	o.Generic.Invalidate("tracks_all")

	candidates := make(map[string]struct{})
	if artist != "" {
		candidates[artist] = struct{}{}
	}
	if originalArtist != "" {
		candidates[originalArtist] = struct{}{}
	}
	for candidate := range candidates {
		o.Generic.Invalidate("tracks_" + candidate)
	}

	if artist == "" || album == "" {
		return
	}

	o.AlbumYear.Invalidate(artist, album)
	o.APIResponses.InvalidateAllSources(artist, album, sources)

	select {
	case o.invalidations <- InvalidationEvent{Artist: artist, Album: album}:
	default:
		o.logger.Printf("invalidation event channel full, dropping event for %s/%s", artist, album)
	}
}

// Invalidations exposes the invalidation event stream for subscribers
// (e.g. a future cache-metrics consumer) that want to react to track
// edits without polling.
func (o *Orchestrator) Invalidations() <-chan InvalidationEvent {
	return o.invalidations
}
