package cache

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

// apiResponseKey hashes (source, artist, album) into the lookup key.
func apiResponseKey(source, artist, album string) string {
	return HashKey(textnorm.Normalize(source) + ":" + textnorm.Normalize(artist) + "|" + textnorm.Normalize(album))
}

type apiResponseEntry struct {
	Result    models.CachedApiResult `json:"result"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"` // nil means "never expires"
}

// APIResponseCache stores one verdict per (source, artist, album),
// distinct from the Generic Cache's raw-HTTP-response keyspace:
// this cache holds the provider's resolved CachedApiResult, not the raw
// JSON body the HTTP executor fetched on the way to producing it.
// Successful lookups persist indefinitely; negative lookups expire per
// the configured negative-result TTL so a once-missing album is
// retried eventually.
type APIResponseCache struct {
	mu      sync.RWMutex
	entries map[string]apiResponseEntry
	path    string
	logger  *log.Logger
}

func NewAPIResponseCache(path string) *APIResponseCache {
	return &APIResponseCache{
		entries: make(map[string]apiResponseEntry),
		path:    path,
		logger:  log.New(os.Stdout, "cache[api-response]: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Get returns the cached verdict for (source, artist, album) if present
// and, for negative results, unexpired.
func (c *APIResponseCache) Get(source, artist, album string) (models.CachedApiResult, bool) {
	key := apiResponseKey(source, artist, album)

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return models.CachedApiResult{}, false
	}
	if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
		return models.CachedApiResult{}, false
	}
	return entry.Result, true
}

// Set stores result, expiring at negativeTTL from now when result.Year
// is empty (a negative lookup) and never expiring for a positive one.
func (c *APIResponseCache) Set(result models.CachedApiResult, negativeTTL time.Duration) {
	key := apiResponseKey(result.Source, result.Artist, result.Album)

	var expires *time.Time
	if result.Year == "" {
		t := time.Now().Add(negativeTTL)
		expires = &t
	}

	c.mu.Lock()
	c.entries[key] = apiResponseEntry{Result: result, ExpiresAt: expires}
	c.mu.Unlock()
}

// Invalidate drops any cached verdict for (source, artist, album),
// called when a track's metadata is edited out from under the cache
// (track-removal/modification invalidation).
func (c *APIResponseCache) Invalidate(source, artist, album string) {
	key := apiResponseKey(source, artist, album)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAllSources drops every provider's cached verdict for
// (artist, album), used when a track is removed or its album/artist
// tag is rewritten.
func (c *APIResponseCache) InvalidateAllSources(artist, album string, sources []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, source := range sources {
		delete(c.entries, apiResponseKey(source, artist, album))
	}
}

func (c *APIResponseCache) SaveToDisk() error {
	c.mu.RLock()
	out := make(map[string]apiResponseEntry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	c.mu.RUnlock()
	return atomicWriteJSON(c.path, out)
}

func (c *APIResponseCache) LoadFromDisk() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		c.logger.Printf("read failure, starting empty: %v", err)
		return nil
	}

	var in map[string]apiResponseEntry
	if err := json.Unmarshal(data, &in); err != nil {
		c.logger.Printf("parse failure, starting empty: %v", err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = in
	return nil
}

// Stats reports entry counts for the reporting HTTP surface.
type APIResponseStats struct {
	Entries  int
	Positive int
	Negative int
}

func (c *APIResponseCache) Stats() APIResponseStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := APIResponseStats{Entries: len(c.entries)}
	for _, e := range c.entries {
		if e.Result.Year == "" {
			stats.Negative++
		} else {
			stats.Positive++
		}
	}
	return stats
}
