// Package cache keeps recent indexer results so repeated queries within the
// TTL are answered without touching the site.
package cache

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/litescript/ls-indexer/internal/release"
)

// DefaultTTL is how long results stay valid.
const DefaultTTL = 9 * time.Minute

// ErrClosed is returned by a cache or store after Close.
var ErrClosed = errors.New("cache closed")

const keySep = "\x00"

// Entry is one cached result set.
type Entry struct {
	Results  []release.Release
	StoredAt time.Time
}

// Store is an optional second tier behind the in-memory map.
type Store interface {
	Get(key string) (Entry, bool, error)
	Put(key string, e Entry) error
	DeletePrefix(prefix string) (int, error)
	Close() error
}

// Options configures a ResultCache.
type Options struct {
	TTL   time.Duration
	Store Store
}

// ResultCache is safe for concurrent use. One mutex guards the whole map.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]Entry
	store   Store
	closed  bool
}

// New creates a cache. A zero TTL uses DefaultTTL.
func New(opts Options) *ResultCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &ResultCache{
		ttl:     opts.TTL,
		now:     time.Now,
		entries: make(map[string]Entry),
		store:   opts.Store,
	}
}

// SetClock replaces the time source. Tests only.
func (c *ResultCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// TTL returns the configured time to live.
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

func entryKey(indexerKey, queryKey string) string {
	return indexerKey + keySep + queryKey
}

// CacheResults stores a private copy of results, replacing any previous entry.
func (c *ResultCache) CacheResults(indexerKey, queryKey string, results []release.Release) error {
	key := entryKey(indexerKey, queryKey)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cleanExpiredLocked()
	entry := Entry{Results: release.CloneAll(results), StoredAt: c.now()}
	if entry.Results == nil {
		entry.Results = []release.Release{}
	}
	c.entries[key] = entry
	store := c.store
	c.mu.Unlock()

	if store != nil {
		return store.Put(key, entry)
	}
	return nil
}

// Search returns a copy of the unexpired entry for the pair.
func (c *ResultCache) Search(indexerKey, queryKey string) ([]release.Release, bool) {
	key := entryKey(indexerKey, queryKey)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	c.cleanExpiredLocked()
	if entry, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return release.CloneAll(entry.Results), true
	}
	store := c.store
	now := c.now()
	c.mu.Unlock()

	if store == nil {
		return nil, false
	}
	entry, ok, err := store.Get(key)
	if err != nil || !ok || !c.fresh(entry, now) {
		return nil, false
	}

	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && !c.closed {
		c.entries[key] = entry
	}
	c.mu.Unlock()

	return release.CloneAll(entry.Results), true
}

func (c *ResultCache) fresh(e Entry, now time.Time) bool {
	return now.Sub(e.StoredAt) < c.ttl
}

// CleanExpired drops entries older than the TTL and returns how many went.
func (c *ResultCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanExpiredLocked()
}

func (c *ResultCache) cleanExpiredLocked() int {
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !c.fresh(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Invalidate drops every entry belonging to indexerKey, including the
// persistent tier.
func (c *ResultCache) Invalidate(indexerKey string) (int, error) {
	prefix := indexerKey + keySep

	c.mu.Lock()
	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	store := c.store
	c.mu.Unlock()

	if store != nil {
		if _, err := store.DeletePrefix(prefix); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Len reports the number of in-memory entries, expired ones included until
// the next clean.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases the persistent tier. Further inserts fail with ErrClosed.
func (c *ResultCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.entries = make(map[string]Entry)
	store := c.store
	c.mu.Unlock()

	if store != nil {
		return store.Close()
	}
	return nil
}
