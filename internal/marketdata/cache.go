package marketdata

import (
	"sync"
	"time"
)

// Cache TTLs per the spot staleness policy: entries younger than freshTTL
// are served without I/O; on upstream failure entries up to staleTTL are
// still usable.
const (
	freshTTL = 5 * time.Minute
	staleTTL = 10 * time.Minute
)

// SpotCache is the process-wide one-slot cache for the latest spot price.
// It is passed as a handle through the engine root rather than hidden in a
// package global.
type SpotCache struct {
	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
}

// NewSpotCache returns an empty cache.
func NewSpotCache() *SpotCache {
	return &SpotCache{}
}

// Fresh returns the cached price if it is younger than the fresh TTL.
func (c *SpotCache) Fresh(now time.Time) (float64, bool) {
	return c.get(now, freshTTL)
}

// Stale returns the cached price if it is younger than the stale TTL.
// Only consulted after an upstream failure.
func (c *SpotCache) Stale(now time.Time) (float64, bool) {
	return c.get(now, staleTTL)
}

func (c *SpotCache) get(now time.Time, ttl time.Duration) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchedAt.IsZero() || now.Sub(c.fetchedAt) >= ttl {
		return 0, false
	}
	return c.price, true
}

// Put replaces the cache entry.
func (c *SpotCache) Put(price float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.price = price
	c.fetchedAt = now
}
