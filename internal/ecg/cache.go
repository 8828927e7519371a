package ecg

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// WindowID identifies a sample range of a record.
type WindowID struct {
	Record string
	Start  int // first sample, inclusive
	End    int // last sample, exclusive
}

// CacheKey identifies one evaluation. Config is Config.Fingerprint().
type CacheKey struct {
	Window WindowID
	FS     float64
	Config string
	Lead   string // requested lead label, empty for automatic selection
	Invert bool
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s[%d:%d]@%g|%s|lead=%s|inv=%t",
		k.Window.Record, k.Window.Start, k.Window.End, k.FS, k.Config, k.Lead, k.Invert)
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Cache memoises lead results for interactive use, where the same window is
// re-evaluated as display parameters change. Entries never expire; when
// maxEntries is positive the oldest entry is evicted first. Concurrent
// misses for the same key share a single computation. Cached results are
// shared between callers and must not be modified.
type Cache struct {
	maxEntries int
	flight     singleflight.Group

	mu      sync.Mutex
	entries map[CacheKey]LeadResult
	order   []CacheKey
	stats   CacheStats
}

// NewCache returns an empty cache. maxEntries <= 0 disables the bound.
func NewCache(maxEntries int) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[CacheKey]LeadResult),
	}
}

// Get returns the cached result for key, calling compute on a miss. Errors
// are returned to every waiting caller and are not cached.
func (c *Cache) Get(key CacheKey, compute func() (LeadResult, error)) (LeadResult, error) {
	c.mu.Lock()
	if r, ok := c.entries[key]; ok {
		c.stats.Hits++
		c.mu.Unlock()
		return r, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	v, err, shared := c.flight.Do(key.String(), func() (interface{}, error) {
		c.mu.Lock()
		if r, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return r, nil
		}
		c.mu.Unlock()

		r, err := compute()
		if err != nil {
			return LeadResult{}, err
		}
		c.put(key, r)
		return r, nil
	})
	if shared {
		Tracef("cache: coalesced %s", key)
	}
	if err != nil {
		return LeadResult{}, err
	}
	return v.(LeadResult), nil
}

func (c *Cache) put(key CacheKey, r LeadResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = r
	for c.maxEntries > 0 && len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		c.stats.Evictions++
	}
}

// Invalidate drops every entry for recordID and returns how many were removed.
func (c *Cache) Invalidate(recordID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	removed := 0
	for _, k := range c.order {
		if k.Window.Record == recordID {
			delete(c.entries, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
	if removed > 0 {
		Diagf("cache: invalidated %d entries for %s", removed, recordID)
	}
	return removed
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}
