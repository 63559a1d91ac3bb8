package library

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sundial-audio/yearkeeper/models"
)

// jsonTrack is the on-disk shape of one track in a JSONClient library
// file: plain strings/RFC3339 timestamps, no Go-specific types, so the
// file can be hand-edited or produced by another tool.
type jsonTrack struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artist       string            `json:"artist"`
	AlbumArtist  string            `json:"album_artist,omitempty"`
	Album        string            `json:"album"`
	Genre        string            `json:"genre,omitempty"`
	Year         string            `json:"year,omitempty"`
	ReleaseYear  string            `json:"release_year,omitempty"`
	DateAdded    time.Time         `json:"date_added,omitempty"`
	LastModified time.Time         `json:"last_modified,omitempty"`
	TrackStatus  string            `json:"track_status,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
}

func fromJSON(t jsonTrack) models.Track {
	status := models.TrackStatus(t.TrackStatus)
	if status == "" {
		status = models.StatusSubscription
	}
	return models.Track{
		ID:           t.ID,
		Name:         t.Name,
		Artist:       t.Artist,
		AlbumArtist:  t.AlbumArtist,
		Album:        t.Album,
		Genre:        t.Genre,
		Year:         t.Year,
		ReleaseYear:  t.ReleaseYear,
		DateAdded:    t.DateAdded,
		LastModified: t.LastModified,
		TrackStatus:  status,
		Extras:       t.Extras,
	}
}

func toJSON(t models.Track) jsonTrack {
	return jsonTrack{
		ID:           t.ID,
		Name:         t.Name,
		Artist:       t.Artist,
		AlbumArtist:  t.AlbumArtist,
		Album:        t.Album,
		Genre:        t.Genre,
		Year:         t.Year,
		ReleaseYear:  t.ReleaseYear,
		DateAdded:    t.DateAdded,
		LastModified: t.LastModified,
		TrackStatus:  string(t.TrackStatus),
		Extras:       t.Extras,
	}
}

// JSONClient is a stable-baseline library.Client implementation: a
// flat JSON file of tracks, read into memory at construction and
// rewritten atomically (temp file + rename, same directory) after
// every mutating call. Same durability shape as cache.atomicWriteJSON
// and snapshot.Manager's writer, kept independent per those packages'
// existing choice to duplicate the helper rather than share it.
type JSONClient struct {
	mu     sync.Mutex
	path   string
	tracks map[string]models.Track
	order  []string
	logger *log.Logger
}

// NewJSONClient loads path (an array of jsonTrack) into memory. A
// missing file is treated as an empty library, not an error, so a fresh
// deployment can start from nothing.
func NewJSONClient(path string) (*JSONClient, error) {
	c := &JSONClient{
		path:   path,
		tracks: make(map[string]models.Track),
		logger: log.New(os.Stdout, "library[json]: ", log.LstdFlags|log.Lmsgprefix),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("library: reading %s: %w", path, err)
	}

	var raw []jsonTrack
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("library: decoding %s: %w", path, err)
	}
	for _, jt := range raw {
		c.tracks[jt.ID] = fromJSON(jt)
		c.order = append(c.order, jt.ID)
	}
	return c, nil
}

func (c *JSONClient) FetchAllTrackIDs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids, nil
}

func (c *JSONClient) FetchTracksByIDs(ctx context.Context, ids []string) ([]models.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := c.tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *JSONClient) FetchTracks(ctx context.Context, opts FetchOptions) ([]models.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.Track
	for _, id := range c.order {
		t := c.tracks[id]
		if opts.Artist != "" && t.Artist != opts.Artist {
			continue
		}
		if !opts.MinDateAdded.IsZero() && t.DateAdded.Before(opts.MinDateAdded) {
			continue
		}
		out = append(out, t)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// UpdateProperty mutates one field on one track and persists the whole
// library file. Read-only tracks (P8) are rejected without writing.
func (c *JSONClient) UpdateProperty(ctx context.Context, trackID, property, value string) (UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tracks[trackID]
	if !ok {
		return UpdateResult{}, fmt.Errorf("library: unknown track %q", trackID)
	}
	if !t.TrackStatus.Writable() {
		return UpdateResult{}, fmt.Errorf("library: track %q is read-only (status %q)", trackID, t.TrackStatus)
	}

	old, err := setProperty(&t, property, value)
	if err != nil {
		return UpdateResult{}, err
	}
	t.LastModified = time.Now()
	c.tracks[trackID] = t

	if err := c.saveLocked(); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Old: old, New: value}, nil
}

// BatchUpdateTracks applies every update, tolerating per-track failures
// so one bad track ID never fails the whole batch: a per-track failure
// is recorded, not fatal. The library file is persisted once at the
// end.
func (c *JSONClient) BatchUpdateTracks(ctx context.Context, updates []PropertyUpdate) (BatchUpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := BatchUpdateResult{
		Results: make(map[string]UpdateResult, len(updates)),
		Errors:  make(map[string]error),
	}

	dirty := false
	for _, u := range updates {
		t, ok := c.tracks[u.TrackID]
		if !ok {
			result.Errors[u.TrackID] = fmt.Errorf("library: unknown track %q", u.TrackID)
			result.FailureCount++
			continue
		}
		if !t.TrackStatus.Writable() {
			result.Errors[u.TrackID] = fmt.Errorf("library: track %q is read-only (status %q)", u.TrackID, t.TrackStatus)
			result.FailureCount++
			continue
		}
		old, err := setProperty(&t, u.Property, u.Value)
		if err != nil {
			result.Errors[u.TrackID] = err
			result.FailureCount++
			continue
		}
		t.LastModified = time.Now()
		c.tracks[u.TrackID] = t
		result.Results[u.TrackID] = UpdateResult{Old: old, New: u.Value}
		result.SuccessCount++
		dirty = true
	}

	if dirty {
		if err := c.saveLocked(); err != nil {
			return result, err
		}
	}
	return result, nil
}

func setProperty(t *models.Track, property, value string) (string, error) {
	switch property {
	case "genre":
		old := t.Genre
		t.Genre = value
		return old, nil
	case "year":
		old := t.Year
		t.Year = value
		return old, nil
	case "name":
		old := t.Name
		t.Name = value
		return old, nil
	case "album":
		old := t.Album
		t.Album = value
		return old, nil
	case "artist":
		old := t.Artist
		t.Artist = value
		return old, nil
	case "album_artist":
		old := t.AlbumArtist
		t.AlbumArtist = value
		return old, nil
	default:
		return "", fmt.Errorf("library: unsupported property %q", property)
	}
}

// saveLocked rewrites the whole library file atomically. Callers must
// hold c.mu.
func (c *JSONClient) saveLocked() error {
	dir := filepath.Dir(c.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("library: creating %s: %w", dir, err)
		}
	}

	raw := make([]jsonTrack, 0, len(c.order))
	for _, id := range c.order {
		raw = append(raw, toJSON(c.tracks[id]))
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("library: encoding %s: %w", c.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-library-*")
	if err != nil {
		return fmt.Errorf("library: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("library: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("library: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("library: renaming into place: %w", err)
	}
	return nil
}

var _ Client = (*JSONClient)(nil)
