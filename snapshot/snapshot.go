// Package snapshot implements the Snapshot & Delta component: a
// persisted full-library snapshot served in place of a full fetch
// when fresh, with a delta window computed and merged in when it
// isn't.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sundial-audio/yearkeeper/library"
	"github.com/sundial-audio/yearkeeper/models"
)

// persisted is the on-disk snapshot format. GenerationID lets a
// crash-recovery read tell two concurrently-written snapshots apart.
type persisted struct {
	GenerationID       string         `json:"generation_id"`
	Timestamp          time.Time      `json:"timestamp"`
	LastDeltaTimestamp time.Time      `json:"last_delta_timestamp"`
	Tracks             []models.Track `json:"tracks"`
}

// Config carries the snapshot thresholds, read from caching.library_snapshot.
type Config struct {
	Enabled       bool
	DeltaEnabled  bool
	Path          string
	MaxAge        time.Duration
	Compress      bool
	CompressLevel int
	// IDsBatchSize bounds how many track IDs are resolved per
	// FetchTracksByIDs call during a full-library bootstrap.
	IDsBatchSize int
}

// Manager owns the on-disk snapshot and the delta-window bookkeeping
// that keeps it current.
type Manager struct {
	lib    library.Client
	cfg    Config
	logger *log.Logger
}

func NewManager(lib library.Client, cfg Config) *Manager {
	return &Manager{
		lib:    lib,
		cfg:    cfg,
		logger: log.New(os.Stdout, "snapshot: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Load serves the on-disk snapshot if fresh, else
// (when delta is enabled) fetch and merge the delta window, else fall
// back to a full bootstrap fetch.
func (m *Manager) Load(ctx context.Context, now time.Time) ([]models.Track, error) {
	if !m.cfg.Enabled {
		return m.fullFetch(ctx)
	}

	existing, err := m.read()
	if err != nil && !os.IsNotExist(err) {
		m.logger.Printf("failed to read snapshot, falling back to full fetch: %v", err)
	}

	if existing != nil && now.Sub(existing.Timestamp) <= m.cfg.MaxAge {
		return existing.Tracks, nil
	}

	if existing == nil {
		tracks, err := m.fullFetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.write(persisted{
			GenerationID:       uuid.NewString(),
			Timestamp:          now,
			LastDeltaTimestamp: now,
			Tracks:             tracks,
		}); err != nil {
			m.logger.Printf("failed to persist snapshot: %v", err)
		}
		return tracks, nil
	}

	if !m.cfg.DeltaEnabled {
		tracks, err := m.fullFetch(ctx)
		if err != nil {
			m.logger.Printf("full refetch failed, serving stale snapshot: %v", err)
			return existing.Tracks, nil
		}
		if err := m.write(persisted{
			GenerationID:       uuid.NewString(),
			Timestamp:          now,
			LastDeltaTimestamp: now,
			Tracks:             tracks,
		}); err != nil {
			m.logger.Printf("failed to persist snapshot: %v", err)
		}
		return tracks, nil
	}

	window := existing.Timestamp
	if existing.LastDeltaTimestamp.After(window) {
		window = existing.LastDeltaTimestamp
	}

	delta, err := m.lib.FetchTracks(ctx, library.FetchOptions{MinDateAdded: window})
	if err != nil {
		m.logger.Printf("delta fetch failed, serving stale snapshot: %v", err)
		return existing.Tracks, nil
	}

	merged := mergeTracks(existing.Tracks, delta)
	if err := m.write(persisted{
		GenerationID:       uuid.NewString(),
		Timestamp:          existing.Timestamp,
		LastDeltaTimestamp: now,
		Tracks:             merged,
	}); err != nil {
		m.logger.Printf("failed to persist merged snapshot: %v", err)
	}
	return merged, nil
}

// mergeTracks merges delta into base by ID; a delta entry overrides the
// base entry with the same ID, and new IDs are appended.
func mergeTracks(base, delta []models.Track) []models.Track {
	index := make(map[string]int, len(base))
	merged := make([]models.Track, len(base))
	copy(merged, base)
	for i, t := range merged {
		index[t.ID] = i
	}
	for _, t := range delta {
		if i, ok := index[t.ID]; ok {
			merged[i] = t
		} else {
			index[t.ID] = len(merged)
			merged = append(merged, t)
		}
	}
	return merged
}

// fullFetch bootstraps the entire library via the ID-then-detail path,
// batched at IDsBatchSize per call.
func (m *Manager) fullFetch(ctx context.Context) ([]models.Track, error) {
	ids, err := m.lib.FetchAllTrackIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching all track ids: %w", err)
	}

	batchSize := m.cfg.IDsBatchSize
	if batchSize < 1 {
		batchSize = 200
	}

	var tracks []models.Track
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := m.lib.FetchTracksByIDs(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("fetching tracks %d-%d: %w", start, end, err)
		}
		tracks = append(tracks, batch...)
	}
	return tracks, nil
}

func (m *Manager) read() (*persisted, error) {
	raw, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		return nil, err
	}
	if m.cfg.Compress {
		raw, err = gunzip(raw)
		if err != nil {
			return nil, err
		}
	}
	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// write persists p atomically: a temp file in the same directory,
// renamed over the target (P4).
func (m *Manager) write(p persisted) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if m.cfg.Compress {
		raw, err = gzipBytes(raw, m.cfg.CompressLevel)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(m.cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, m.cfg.Path)
}

func gzipBytes(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
