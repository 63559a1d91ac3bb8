// Package pending implements the durable "needs human or future
// recheck" queue: albums the decision engine
// couldn't resolve confidently get parked here with a reason and an
// attempt counter, instead of being retried on every run.
package pending

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

const csvTimeLayout = "2006-01-02 15:04:05"

// persistCoalesceWindow bounds how often a burst of mark/remove calls
// (e.g. a batch run parking dozens of albums in a row) forces a disk
// write: at most one immediate write per window, with any writes it
// absorbs picked up by the next allowed call or an explicit Flush.
const persistCoalesceWindow = 2 * time.Second

// key hashes (artist, album) to the stable pending:<artist>|<album>
// digest used throughout this package.
func key(artist, album string) string {
	raw := "pending:" + textnorm.Normalize(artist) + "|" + textnorm.Normalize(album)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Store is the in-memory map (keyed by the stable hash above) backed by
// a CSV file, guarded by a single mutex.
type Store struct {
	mu      sync.Mutex
	entries map[string]models.PendingAlbumEntry
	path    string

	defaultRecheckDays     int
	prereleaseRecheckDays  int
	autoVerifyDays         int
	autoVerifyMarkerPath   string

	persistLimiter *rate.Limiter
	dirty          bool

	logger *log.Logger
}

// New constructs a Store backed by path, defaulting recheck windows from
// the supplied configuration values (from "year_retrieval.processing"
// and "pending_verification").
func New(path string, defaultRecheckDays, prereleaseRecheckDays, autoVerifyDays int) *Store {
	return &Store{
		entries:               make(map[string]models.PendingAlbumEntry),
		path:                  path,
		defaultRecheckDays:    defaultRecheckDays,
		prereleaseRecheckDays: prereleaseRecheckDays,
		autoVerifyDays:        autoVerifyDays,
		autoVerifyMarkerPath:  path + ".last_auto_verify",
		persistLimiter:        rate.NewLimiter(rate.Every(persistCoalesceWindow), 1),
		logger:                log.New(os.Stdout, "pending: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// recheckMetadata is the JSON payload carried in PendingAlbumEntry.Metadata.
type recheckMetadata struct {
	RecheckDays int               `json:"recheck_days,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// MarkForVerification records (artist, album) as needing a later
// recheck. A second mark for the same pair merges metadata and
// increments AttemptCount rather than creating a duplicate row (P2).
// recheckDays of 0 means "use the reason-appropriate default".
func (s *Store) MarkForVerification(artist, album string, reason models.PendingReason, extra map[string]string, recheckDays int) {
	if recheckDays <= 0 {
		if reason == models.ReasonPrerelease {
			recheckDays = s.prereleaseRecheckDays
		} else {
			recheckDays = s.defaultRecheckDays
		}
	}

	k := key(artist, album)

	s.mu.Lock()
	entry, exists := s.entries[k]
	if !exists {
		entry = models.PendingAlbumEntry{Artist: artist, Album: album}
	}
	entry.Reason = reason
	entry.Timestamp = time.Now().Unix()
	entry.AttemptCount++

	meta := recheckMetadata{RecheckDays: recheckDays}
	if len(entry.Metadata) > 0 {
		var prior recheckMetadata
		if err := json.Unmarshal([]byte(entry.Metadata), &prior); err == nil && prior.Extra != nil {
			meta.Extra = prior.Extra
		}
	}
	if meta.Extra == nil {
		meta.Extra = make(map[string]string)
	}
	for k2, v := range extra {
		meta.Extra[k2] = v
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		s.logger.Printf("encoding metadata for %s/%s: %v", artist, album, err)
		encoded = []byte("{}")
	}
	entry.Metadata = string(encoded)

	s.entries[k] = entry
	s.mu.Unlock()

	s.schedulePersist()
}

// IsVerificationNeeded reports whether (artist, album) is due for
// recheck: absent from the store counts as "not pending", so callers
// should check presence separately when that distinction matters.
func (s *Store) IsVerificationNeeded(artist, album string) bool {
	s.mu.Lock()
	entry, ok := s.entries[key(artist, album)]
	s.mu.Unlock()
	if !ok {
		return false
	}

	recheckDays := s.defaultRecheckDays
	var meta recheckMetadata
	if err := json.Unmarshal([]byte(entry.Metadata), &meta); err == nil && meta.RecheckDays > 0 {
		recheckDays = meta.RecheckDays
	}

	due := time.Unix(entry.Timestamp, 0).Add(time.Duration(recheckDays) * 24 * time.Hour)
	return !time.Now().Before(due)
}

// RemoveFromPending drops (artist, album) from the queue. A no-op if
// absent.
func (s *Store) RemoveFromPending(artist, album string) {
	k := key(artist, album)
	s.mu.Lock()
	_, existed := s.entries[k]
	if existed {
		delete(s.entries, k)
	}
	s.mu.Unlock()

	if existed {
		s.schedulePersist()
	}
}

// GetAllPendingAlbums returns every pending entry, ordered by artist then
// album for deterministic output.
func (s *Store) GetAllPendingAlbums() []models.PendingAlbumEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(nil)
}

// GetPendingAlbumsByReason filters to entries with the given reason.
func (s *Store) GetPendingAlbumsByReason(reason models.PendingReason) []models.PendingAlbumEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(&reason)
}

func (s *Store) sortedLocked(reason *models.PendingReason) []models.PendingAlbumEntry {
	out := make([]models.PendingAlbumEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if reason != nil && e.Reason != *reason {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Artist != out[j].Artist {
			return out[i].Artist < out[j].Artist
		}
		return out[i].Album < out[j].Album
	})
	return out
}

// GenerateProblematicAlbumsReport writes a CSV of entries whose
// AttemptCount is at least minAttempts to reportPath, atomically.
func (s *Store) GenerateProblematicAlbumsReport(reportPath string, minAttempts int) error {
	s.mu.Lock()
	rows := [][]string{{"artist", "album", "reason", "attempt_count", "timestamp"}}
	for _, e := range s.sortedLocked(nil) {
		if e.AttemptCount < minAttempts {
			continue
		}
		rows = append(rows, []string{
			e.Artist, e.Album, string(e.Reason),
			strconv.Itoa(e.AttemptCount),
			time.Unix(e.Timestamp, 0).UTC().Format(csvTimeLayout),
		})
	}
	s.mu.Unlock()

	return writeCSVAtomic(reportPath, rows)
}

// ShouldAutoVerify reports whether autoVerifyDays have elapsed since the
// last recorded auto-verify sweep (or true if none has ever run).
func (s *Store) ShouldAutoVerify() bool {
	data, err := os.ReadFile(s.autoVerifyMarkerPath)
	if err != nil {
		return true
	}
	unixSeconds, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return true
	}
	last := time.Unix(unixSeconds, 0)
	return time.Since(last) >= time.Duration(s.autoVerifyDays)*24*time.Hour
}

// UpdateVerificationTimestamp stamps the auto-verify marker file with
// the current time.
func (s *Store) UpdateVerificationTimestamp() error {
	return atomicWriteBytes(s.autoVerifyMarkerPath, []byte(strconv.FormatInt(time.Now().Unix(), 10)))
}

// schedulePersist writes immediately if the coalescing limiter has
// budget, otherwise marks the store dirty so a later call (or Flush)
// picks up the write instead of every mutation hitting disk.
func (s *Store) schedulePersist() {
	if s.persistLimiter.Allow() {
		if err := s.persist(); err != nil {
			s.logger.Printf("persist failed: %v", err)
		}
		return
	}
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Flush forces a write if a coalesced mutation is still pending. Callers
// should invoke this before shutdown so a debounced change is never
// silently dropped.
func (s *Store) Flush() error {
	s.mu.Lock()
	dirty := s.dirty
	s.dirty = false
	s.mu.Unlock()
	if !dirty {
		return nil
	}
	return s.persist()
}

func (s *Store) persist() error {
	s.mu.Lock()
	rows := [][]string{{"artist", "album", "timestamp", "reason", "metadata", "attempt_count"}}
	for _, e := range s.sortedLocked(nil) {
		rows = append(rows, []string{
			e.Artist, e.Album,
			time.Unix(e.Timestamp, 0).UTC().Format(csvTimeLayout),
			string(e.Reason), e.Metadata, strconv.Itoa(e.AttemptCount),
		})
	}
	s.mu.Unlock()

	return writeCSVAtomic(s.path, rows)
}

// LoadFromDisk reads the CSV, populating the in-memory map. A missing or
// unparseable file logs and leaves the store empty rather than raising.
func (s *Store) LoadFromDisk() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		s.logger.Printf("read failure, starting empty: %v", err)
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		s.logger.Printf("parse failure, starting empty: %v", err)
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows[1:] {
		if len(row) != 6 {
			continue
		}
		ts, err := time.Parse(csvTimeLayout, row[2])
		if err != nil {
			continue
		}
		attempts, err := strconv.Atoi(row[5])
		if err != nil {
			continue
		}
		entry := models.PendingAlbumEntry{
			Artist:       row[0],
			Album:        row[1],
			Timestamp:    ts.Unix(),
			Reason:       models.PendingReason(row[3]),
			Metadata:     row[4],
			AttemptCount: attempts,
		}
		s.entries[key(row[0], row[1])] = entry
	}
	return nil
}

func writeCSVAtomic(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("pending: writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return atomicWriteBytes(path, buf.Bytes())
}

func atomicWriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
