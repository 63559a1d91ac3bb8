// Package batch implements the Batch Processor:
// groups tracks by album, runs the Year Decision Engine per album, and
// writes back the resulting year with bounded concurrency and retry.
package batch

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/sundial-audio/yearkeeper/library"
	"github.com/sundial-audio/yearkeeper/models"
)

// Decider is the narrow contract the Batch Processor needs from the Year
// Decision Engine (decision.Determinator satisfies this).
type Decider interface {
	Decide(ctx context.Context, group *models.AlbumGroup, force bool) models.YearDecision
}

// ChangeLogWriter is the narrow contract the Batch Processor needs from
// the Changelog Store (store.Store satisfies this).
type ChangeLogWriter interface {
	Record(entry models.ChangeLogEntry) error
}

// CacheInvalidator is the narrow contract the Batch Processor needs from
// the cache Orchestrator (cache.Orchestrator satisfies this): purging
// every cache tier keyed off a track whose year was just rewritten.
type CacheInvalidator interface {
	InvalidateForTrack(artist, originalArtist, album string, sources []string)
}

const maxRetryDelaySeconds = 10.0

// knownProviderSources lists every provider the API-Response cache ever
// keys a verdict under, so a track-edit invalidation clears all of them
// regardless of which one last answered for this album.
var knownProviderSources = []string{"musicbrainz", "discogs", "lastfm", "itunes"}

// Config carries every threshold the Batch Processor reads from batch_processing and
// year_retrieval.processing.
type Config struct {
	BatchSize            int
	DelayBetweenBatches  time.Duration
	AdaptiveDelay        bool
	ConcurrencyLimit     int
	TrackRetryAttempts   int
	TrackRetryDelay      time.Duration
	Force                bool
}

// Processor wires the Decider, Library Client, and Changelog Store
// together into one album-group processing pipeline.
type Processor struct {
	decider     Decider
	lib         library.Client
	changelog   ChangeLogWriter
	invalidator CacheInvalidator
	cfg         Config
	logger      *log.Logger
}

// NewProcessor wires the Decider, Library Client, Changelog Store, and
// cache Orchestrator together into one album-group processing pipeline.
// invalidator may be nil, in which case a processed album's caches are
// left untouched (used by callers that don't run a cache layer, e.g.
// tests).
func NewProcessor(decider Decider, lib library.Client, changelog ChangeLogWriter, invalidator CacheInvalidator, cfg Config) *Processor {
	return &Processor{
		decider:     decider,
		lib:         lib,
		changelog:   changelog,
		invalidator: invalidator,
		cfg:         cfg,
		logger:      log.New(os.Stdout, "batch: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Run groups tracks by album and processes every group, choosing
// sequential or concurrent execution: sequential only when
// adaptive_delay is false and the concurrency limit is exactly 1.
func (p *Processor) Run(ctx context.Context, tracks []models.Track) error {
	groups := models.GroupTracksByAlbum(tracks)
	if len(groups) == 0 {
		return nil
	}

	if !p.cfg.AdaptiveDelay && p.cfg.ConcurrencyLimit == 1 {
		return p.runSequential(ctx, groups)
	}
	return p.runConcurrent(ctx, groups)
}

// runSequential processes batches of BatchSize albums one at a time,
// with a fixed delay between batches.
func (p *Processor) runSequential(ctx context.Context, groups []*models.AlbumGroup) error {
	batchSize := p.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(groups); start += batchSize {
		end := start + batchSize
		if end > len(groups) {
			end = len(groups)
		}
		for _, g := range groups[start:end] {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.processAlbum(ctx, g)
		}

		if end < len(groups) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.DelayBetweenBatches):
			}
		}
	}
	return nil
}

// runConcurrent processes every album through a bounded semaphore, with
// a shared Progress counter logging periodically.
func (p *Processor) runConcurrent(ctx context.Context, groups []*models.AlbumGroup) error {
	limit := p.cfg.ConcurrencyLimit
	if limit < 1 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	progress := NewProgress(len(groups), p.logger)

	var wg sync.WaitGroup
	for _, g := range groups {
		if ctx.Err() != nil {
			break
		}
		g := g
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Printf("recovered panic processing album %s/%s: %v", g.Key.Artist, g.Key.Album, r)
				}
			}()
			p.processAlbum(ctx, g)
			progress.Increment()
		}()
	}
	wg.Wait()
	return nil
}

// processAlbum runs the decision engine for one album and, if it
// produced a year, writes it back to every track that needs it.
func (p *Processor) processAlbum(ctx context.Context, group *models.AlbumGroup) {
	decision := p.decider.Decide(ctx, group, p.cfg.Force)
	if decision.Year == "" {
		return
	}

	updates := p.tracksNeedingUpdate(group, decision.Year)
	if len(updates) == 0 {
		return
	}

	for i := range updates {
		t := updates[i]
		oldYear := t.Year
		if err := p.updateWithRetry(ctx, t.ID, decision.Year); err != nil {
			p.logger.Printf("failed to update year for track %s (%s - %s): %v", t.ID, group.Key.Artist, group.Key.Album, err)
			continue
		}

		t.Year = decision.Year
		if p.invalidator != nil {
			p.invalidator.InvalidateForTrack(group.Key.Artist, t.Artist, group.Key.Album, knownProviderSources)
		}
		if p.changelog != nil {
			entry := models.ChangeLogEntry{
				Timestamp: time.Now(),
				ChangeType: "year_update",
				TrackID:    t.ID,
				Artist:     group.Key.Artist,
				AlbumName:  group.Key.Album,
				TrackName:  t.Name,
				OldYear:    oldYear,
				NewYear:    decision.Year,
			}
			if err := p.changelog.Record(entry); err != nil {
				p.logger.Printf("failed to record changelog entry for track %s: %v", t.ID, err)
			}
		}
	}
}

// tracksNeedingUpdate excludes read-only tracks (P8) and tracks already
// matching the target year.
func (p *Processor) tracksNeedingUpdate(group *models.AlbumGroup, targetYear string) []*models.Track {
	var out []*models.Track
	for i := range group.Tracks {
		t := &group.Tracks[i]
		if !t.TrackStatus.Writable() {
			continue
		}
		if t.Year == targetYear {
			continue
		}
		out = append(out, t)
	}
	return out
}

// updateWithRetry calls the Library Client's UpdateProperty with up to
// TrackRetryAttempts tries, exponential backoff capped at
// maxRetryDelaySeconds with jitter. A call returning "no change" (old
// == new) still counts as success.
func (p *Processor) updateWithRetry(ctx context.Context, trackID, year string) error {
	attempts := p.cfg.TrackRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err := p.lib.UpdateProperty(ctx, trackID, "year", year)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		delay := p.backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return errors.New("update failed after retries: " + lastErr.Error())
}

// backoffDelay computes the attempt-th exponential backoff delay from
// TrackRetryDelay, capped at maxRetryDelaySeconds, with ±jitter to avoid
// a thundering herd of simultaneous retries.
func (p *Processor) backoffDelay(attempt int) time.Duration {
	base := p.cfg.TrackRetryDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	capped := time.Duration(maxRetryDelaySeconds * float64(time.Second))
	if delay > capped {
		delay = capped
	}

	jitter := time.Duration(rand.Float64()*0.2*float64(delay)) - time.Duration(0.1*float64(delay))
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}
