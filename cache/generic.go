// Package cache implements three specialized caches (Generic,
// Album-Year, API-Response) behind one Orchestrator facade.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// genericEntry pairs a cached value with its expiry, since the
// underlying LRU structure only gives us eviction-by-size for free.
// TTL is layered on top via a background sweeper.
type genericEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// GenericCache is an in-memory LRU with per-entry TTL, bounded by
// maxEntries. A background sweep removes expired entries every
// cleanupInterval; Get also lazily evicts an expired entry on access.
type GenericCache struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, genericEntry]
	path     string
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	hits, misses int64

	logger *log.Logger
}

// NewGenericCache constructs a GenericCache bounded at maxEntries,
// sweeping for expired entries every cleanupInterval. diskPath may be
// empty to disable persistence.
func NewGenericCache(maxEntries int, cleanupInterval time.Duration, diskPath string) (*GenericCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	l, err := lru.New[string, genericEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: building generic LRU: %w", err)
	}
	gc := &GenericCache{
		lru:      l,
		path:     diskPath,
		interval: cleanupInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   log.New(os.Stdout, "cache[generic]: ", log.LstdFlags|log.Lmsgprefix),
	}
	return gc, nil
}

// HashKey normalizes an arbitrary cache key (a map is accepted in
// addition to a string) to a stable SHA-256 hex digest: strings are used
// as is, a map[string]string becomes its sorted "k=v;" pairs, other
// values are JSON-encoded (fmt "%v" if encoding fails), and the parts
// are joined with "|" before hashing.
func HashKey(parts ...any) string {
	normalized := make([]string, 0, len(parts))
	for _, p := range parts {
		normalized = append(normalized, normalizeKeyPart(p))
	}
	joined := ""
	for i, n := range normalized {
		if i > 0 {
			joined += "|"
		}
		joined += n
	}
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func normalizeKeyPart(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := ""
		for _, k := range keys {
			out += k + "=" + v[k] + ";"
		}
		return out
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *GenericCache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.Value, true
}

// Set inserts or replaces key with ttl. Inserting beyond capacity evicts
// the least-recently-used entry; updating an existing key never evicts.
func (c *GenericCache) Set(key string, value json.RawMessage, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, genericEntry{Value: value, ExpiresAt: time.Now().Add(ttl)})
}

// Invalidate drops key if present. A miss is a no-op.
func (c *GenericCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// StartCleanup launches the background sweep; it is cancellable via
// ctx and awaited during shutdown.
func (c *GenericCache) StartCleanup(ctx context.Context) {
	if c.interval <= 0 {
		close(c.doneCh)
		return
	}
	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// StopCleanup requests the sweep goroutine stop and waits for it.
func (c *GenericCache) StopCleanup() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	<-c.doneCh
}

func (c *GenericCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if ok && now.After(entry.ExpiresAt) {
			c.lru.Remove(key)
		}
	}
}

// diskFormat is the on-disk JSON shape: map of key -> {value, expires_at}.
type diskFormat map[string]genericEntry

// SaveToDisk persists all unexpired entries as JSON.
func (c *GenericCache) SaveToDisk() error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	out := make(diskFormat, c.lru.Len())
	now := time.Now()
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if ok && now.Before(entry.ExpiresAt) {
			out[key] = entry
		}
	}
	c.mu.Unlock()

	return atomicWriteJSON(c.path, out)
}

// LoadFromDisk populates the cache from a prior SaveToDisk, skipping
// expired entries.
func (c *GenericCache) LoadFromDisk() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		c.logger.Printf("read failure, starting empty: %v", err)
		return nil
	}

	var in diskFormat
	if err := json.Unmarshal(data, &in); err != nil {
		c.logger.Printf("parse failure, starting empty: %v", err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, entry := range in {
		if now.Before(entry.ExpiresAt) {
			c.lru.Add(key, entry)
		}
	}
	return nil
}

// Stats reports hit/miss counters for the reporting HTTP surface.
type GenericStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

func (c *GenericCache) Stats() GenericStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return GenericStats{Entries: c.lru.Len(), Hits: c.hits, Misses: c.misses}
}
