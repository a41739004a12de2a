package provider

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aurumdesk/riskgate/internal/metrics"
	"github.com/aurumdesk/riskgate/models"
)

// Cache is a TTL cache for provider results keyed by
// (provider, symbol, timeframe, start, end). One in-flight fetch per key:
// a second caller for the same key awaits the first's result instead of
// issuing a duplicate provider call.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	group   singleflight.Group
	clock   func() time.Time
}

type cacheEntry struct {
	bars     []models.PriceBar
	prov     models.Provenance
	storedAt time.Time
}

type cachedResult struct {
	bars []models.PriceBar
	prov models.Provenance
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// Key builds the canonical cache key for a bar request.
func Key(providerName, symbol string, tf models.Timeframe, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", providerName, symbol, tf, start.Unix(), end.Unix())
}

// GetOrFetch returns a fresh cached value or runs fetch, storing its result.
// forceRefresh bypasses the lookup but still stores. Synthetic results are
// never cached so a recovered live provider wins the next call. Errors leave
// the cache untouched (no partial writes).
func (c *Cache) GetOrFetch(key string, forceRefresh bool, fetch func() ([]models.PriceBar, models.Provenance, error)) ([]models.PriceBar, models.Provenance, error) {
	if !forceRefresh {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.clock().Sub(entry.storedAt) < c.ttl {
			metrics.CacheEvents.WithLabelValues(metrics.EventHit).Inc()
			return entry.bars, entry.prov, nil
		}
		metrics.CacheEvents.WithLabelValues(metrics.EventMiss).Inc()
	} else {
		metrics.CacheEvents.WithLabelValues(metrics.EventRefresh).Inc()
	}

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		bars, prov, err := fetch()
		if err != nil {
			return nil, err
		}
		if !prov.Synthetic {
			c.mu.Lock()
			c.entries[key] = cacheEntry{bars: bars, prov: prov, storedAt: c.clock()}
			c.mu.Unlock()
		}
		return cachedResult{bars: bars, prov: prov}, nil
	})
	if err != nil {
		return nil, models.Provenance{}, err
	}
	if shared {
		metrics.CacheEvents.WithLabelValues(metrics.EventCoalesced).Inc()
	}

	cached := result.(cachedResult)
	return cached.bars, cached.prov, nil
}

// Purge drops expired entries. Called opportunistically by the chain.
func (c *Cache) Purge() {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
