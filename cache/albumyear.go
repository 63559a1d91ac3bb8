package cache

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

// albumYearKey hashes (artist, album) into the lookup key.
func albumYearKey(artist, album string) string {
	return HashKey(textnorm.Normalize(artist) + "|" + textnorm.Normalize(album))
}

// AlbumYearCache is keyed by SHA-256(normalize(artist)+"|"+normalize(album))
// and persists to CSV with header "artist,album,year,timestamp".
type AlbumYearCache struct {
	mu      sync.RWMutex
	entries map[string]models.AlbumCacheEntry
	path    string
	logger  *log.Logger
}

func NewAlbumYearCache(path string) *AlbumYearCache {
	return &AlbumYearCache{
		entries: make(map[string]models.AlbumCacheEntry),
		path:    path,
		logger:  log.New(os.Stdout, "cache[album-year]: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Get looks up (artist, album). A hash collision — the stored row's
// (artist, album) doesn't match the request — is treated as a miss and
// the stored entry is left untouched (P3).
func (c *AlbumYearCache) Get(artist, album string) (models.AlbumCacheEntry, bool) {
	key := albumYearKey(artist, album)

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return models.AlbumCacheEntry{}, false
	}
	if textnorm.Normalize(entry.Artist) != textnorm.Normalize(artist) || textnorm.Normalize(entry.Album) != textnorm.Normalize(album) {
		return models.AlbumCacheEntry{}, false
	}
	return entry, true
}

// Set stores (artist, album) -> year, replacing any prior entry for the
// same key.
func (c *AlbumYearCache) Set(artist, album, year string) {
	key := albumYearKey(artist, album)
	entry := models.AlbumCacheEntry{
		Artist:    artist,
		Album:     album,
		Year:      year,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Invalidate drops the cached year for (artist, album), if any.
func (c *AlbumYearCache) Invalidate(artist, album string) {
	key := albumYearKey(artist, album)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// SaveToDisk writes the CSV atomically (temp file + rename, same dir).
func (c *AlbumYearCache) SaveToDisk() error {
	c.mu.RLock()
	rows := make([][]string, 0, len(c.entries)+1)
	rows = append(rows, []string{"artist", "album", "year", "timestamp"})
	for _, e := range c.entries {
		rows = append(rows, []string{e.Artist, e.Album, e.Year, strconv.FormatFloat(e.Timestamp, 'f', 6, 64)})
	}
	c.mu.RUnlock()

	return writeCSVAtomic(c.path, rows)
}

// LoadFromDisk reads the CSV; a read failure logs and leaves the cache
// empty rather than raising.
func (c *AlbumYearCache) LoadFromDisk() error {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		c.logger.Printf("read failure, starting empty: %v", err)
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		c.logger.Printf("parse failure, starting empty: %v", err)
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows[1:] {
		if len(row) != 4 {
			continue
		}
		ts, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			continue
		}
		entry := models.AlbumCacheEntry{Artist: row[0], Album: row[1], Year: row[2], Timestamp: ts}
		c.entries[albumYearKey(row[0], row[1])] = entry
	}
	return nil
}

func writeCSVAtomic(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("cache: writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return atomicWriteBytes(path, buf.Bytes())
}
