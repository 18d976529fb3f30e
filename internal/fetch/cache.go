package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eventqual/internal/logging"
)

type cacheEntry struct {
	page      Page
	createdAt time.Time
	expiresAt time.Time
}

// Cache keeps fetched pages for a TTL and collapses concurrent fetches of
// the same URL into one upstream call.
type Cache struct {
	next       Fetcher
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// NewCache wraps next. A non-positive ttl disables caching but keeps
// request collapsing.
func NewCache(next Fetcher, ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &Cache{
		next:       next,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
}

// Name returns the wrapped fetcher's name.
func (c *Cache) Name() string { return c.next.Name() }

// Fetch returns a cached page or fetches it once for all concurrent callers.
// Concurrent callers share the first caller's context.
func (c *Cache) Fetch(ctx context.Context, pageURL string) (Page, error) {
	if page, ok := c.get(pageURL); ok {
		logging.FetchDebug("Cache hit: %s", pageURL)
		return page, nil
	}

	v, err, shared := c.group.Do(pageURL, func() (any, error) {
		page, err := c.next.Fetch(ctx, pageURL)
		if err != nil {
			return Page{}, err
		}
		c.set(pageURL, page)
		return page, nil
	})
	if shared {
		logging.FetchDebug("Shared in-flight fetch: %s", pageURL)
	}
	if err != nil {
		return Page{}, err
	}
	return v.(Page), nil
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

func (c *Cache) get(key string) (Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return Page{}, false
	}
	return e.page, true
}

func (c *Cache) set(key string, page Page) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	now := c.now()
	c.entries[key] = cacheEntry{page: page, createdAt: now, expiresAt: now.Add(c.ttl)}
}

// evictLocked drops expired entries, or the oldest one when none expired.
func (c *Cache) evictLocked() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	removed := false
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed = true
			continue
		}
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	if !removed && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
