package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"secondhand-aggregator/models"
	"secondhand-aggregator/utils"
)

// DefaultCacheTTL is used by Set when no TTL is given.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	value        *models.SearchResponse
	createdAt    time.Time
	expiresAt    time.Time
	lastAccessed time.Time
	hits         int
}

// CacheStats summarizes the cache for the stats endpoint.
type CacheStats struct {
	Size      int `json:"size"`
	TotalHits int `json:"totalHits"`
	Expired   int `json:"expired"`
	Active    int `json:"active"`
}

// ResultCache keeps finished search responses in memory until their TTL runs
// out. Values are copied in and out, so callers may modify what they get.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	defaultTTL time.Duration
	now        func() time.Time
}

func NewResultCache(defaultTTL time.Duration) *ResultCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultCacheTTL
	}
	return &ResultCache{
		entries:    make(map[string]*cacheEntry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns a live entry and counts the hit. An expired entry is evicted
// and reported as a miss.
func (c *ResultCache) Get(key string) (*models.SearchResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := c.now()
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	e.hits++
	e.lastAccessed = now
	return e.value.Clone(), true
}

// Set stores v under key for ttl, or for the default TTL when ttl <= 0.
func (c *ResultCache) Set(key string, v *models.SearchResponse, ttl time.Duration) {
	if v == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &cacheEntry{
		value:        v.Clone(),
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
}

func (c *ResultCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Cleanup removes expired entries and returns how many went.
func (c *ResultCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	st := CacheStats{Size: len(c.entries)}
	for _, e := range c.entries {
		st.TotalHits += e.hits
		if !now.Before(e.expiresAt) {
			st.Expired++
		}
	}
	st.Active = st.Size - st.Expired
	return st
}

// Keys lists every stored key, expired or not, in sorted order.
func (c *ResultCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StartSweeper runs Cleanup every interval until ctx is done.
func (c *ResultCache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.Cleanup(); removed > 0 {
					utils.Info("[cache] cleaned up %d expired entries", removed)
				}
			}
		}
	}()
}
