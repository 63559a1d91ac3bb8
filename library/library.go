// Package library declares the external contract the core pipeline
// needs from a music library backend, plus a
// dry-run wrapper any real implementation can be decorated with.
package library

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/sundial-audio/yearkeeper/models"
)

// PropertyUpdate describes one field change on one track.
type PropertyUpdate struct {
	TrackID  string
	Property string // "genre", "year", "name", "album", "artist", "album_artist"
	Value    string
}

// UpdateResult is what a single property update returns: the value
// before and after the call (old==new on a no-op write).
type UpdateResult struct {
	Old string
	New string
}

// BatchUpdateResult is the outcome of a BatchUpdateTracks call.
type BatchUpdateResult struct {
	SuccessCount int
	FailureCount int
	Results      map[string]UpdateResult
	Errors       map[string]error
}

// FetchOptions windows a Client.FetchTracks call.
type FetchOptions struct {
	Artist      string
	Offset      int
	Limit       int
	MinDateAdded time.Time
}

// Client is the narrow contract the Batch Processor (C9) and the
// orchestrator-owned snapshot/delta helpers (C11) consume. The core
// tolerates more than one implementation: a stable baseline, an
// optimized native bridge, and the DryRun wrapper below.
type Client interface {
	FetchAllTrackIDs(ctx context.Context) ([]string, error)
	FetchTracksByIDs(ctx context.Context, ids []string) ([]models.Track, error)
	FetchTracks(ctx context.Context, opts FetchOptions) ([]models.Track, error)
	UpdateProperty(ctx context.Context, trackID, property, value string) (UpdateResult, error)
	BatchUpdateTracks(ctx context.Context, updates []PropertyUpdate) (BatchUpdateResult, error)
}

// DryRun wraps a Client so every mutating call is logged and recorded
// instead of performed: intended actions are captured without being
// applied.
type DryRun struct {
	inner   Client
	logger  *log.Logger
	Actions []PropertyUpdate
}

// NewDryRun wraps inner; read operations pass through untouched.
func NewDryRun(inner Client) *DryRun {
	return &DryRun{
		inner:  inner,
		logger: log.New(os.Stdout, "library[dry-run]: ", log.LstdFlags|log.Lmsgprefix),
	}
}

func (d *DryRun) FetchAllTrackIDs(ctx context.Context) ([]string, error) {
	return d.inner.FetchAllTrackIDs(ctx)
}

func (d *DryRun) FetchTracksByIDs(ctx context.Context, ids []string) ([]models.Track, error) {
	return d.inner.FetchTracksByIDs(ctx, ids)
}

func (d *DryRun) FetchTracks(ctx context.Context, opts FetchOptions) ([]models.Track, error) {
	return d.inner.FetchTracks(ctx, opts)
}

// UpdateProperty records the intended update and returns it as both old
// and new, since nothing was actually written.
func (d *DryRun) UpdateProperty(ctx context.Context, trackID, property, value string) (UpdateResult, error) {
	d.logger.Printf("dry-run: would set %s.%s = %q", trackID, property, value)
	d.Actions = append(d.Actions, PropertyUpdate{TrackID: trackID, Property: property, Value: value})
	return UpdateResult{Old: value, New: value}, nil
}

// BatchUpdateTracks records every update as a success without writing
// anything.
func (d *DryRun) BatchUpdateTracks(ctx context.Context, updates []PropertyUpdate) (BatchUpdateResult, error) {
	result := BatchUpdateResult{
		Results: make(map[string]UpdateResult, len(updates)),
		Errors:  make(map[string]error),
	}
	for _, u := range updates {
		d.logger.Printf("dry-run: would set %s.%s = %q", u.TrackID, u.Property, u.Value)
		d.Actions = append(d.Actions, u)
		result.Results[u.TrackID] = UpdateResult{Old: u.Value, New: u.Value}
		result.SuccessCount++
	}
	return result, nil
}
