package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CandleSource is anything that can fetch a candle series
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// SharedCache is a cross-process cache. cache.CacheService satisfies it.
type SharedCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Provider wraps a CandleSource with a per-interval TTL cache and, when
// configured, a shared cache consulted on local misses
type Provider struct {
	source CandleSource
	cache  *CandleCache
	shared SharedCache
}

// pruneThreshold is the entry count past which Set drops expired entries
const pruneThreshold = 256

// CandleCache provides caching for candle data
type CandleCache struct {
	data map[string]*cacheEntry
	mu   sync.RWMutex
}

type cacheEntry struct {
	candles   []Candle
	expiresAt time.Time
}

// NewProvider creates a caching candle provider. shared may be nil.
func NewProvider(source CandleSource, shared SharedCache) *Provider {
	return &Provider{
		source: source,
		cache:  NewCandleCache(),
		shared: shared,
	}
}

// NewCandleCache creates a new candle cache
func NewCandleCache() *CandleCache {
	return &CandleCache{
		data: make(map[string]*cacheEntry),
	}
}

// GetCandles fetches candles with caching
func (p *Provider) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	cacheKey := fmt.Sprintf("%s:%s:%d", symbol, interval, limit)

	if cached := p.cache.Get(cacheKey); cached != nil {
		return cached, nil
	}

	ttl := CacheTTL(interval)
	if p.shared != nil {
		var candles []Candle
		if err := p.shared.GetJSON(ctx, SharedCandleKey(cacheKey), &candles); err == nil && len(candles) > 0 {
			p.cache.Set(cacheKey, candles, ttl)
			return candles, nil
		}
	}

	candles, err := p.source.GetCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	p.cache.Set(cacheKey, candles, ttl)
	if p.shared != nil {
		// a failed shared write only costs the next process a fetch
		_ = p.shared.Set(ctx, SharedCandleKey(cacheKey), candles, ttl)
	}
	return candles, nil
}

// SharedCandleKey namespaces a provider cache key in the shared cache
func SharedCandleKey(key string) string {
	return "ict:candles:" + key
}

// CacheTTL returns the cache lifetime for an interval
func CacheTTL(interval string) time.Duration {
	switch interval {
	case "1m":
		return 30 * time.Second
	case "5m":
		return 2 * time.Minute
	case "15m":
		return 5 * time.Minute
	case "1h":
		return 30 * time.Minute
	case "4h":
		return 2 * time.Hour
	case "1d":
		return 12 * time.Hour
	default:
		return 1 * time.Minute
	}
}

// Get retrieves cached candles if not expired
func (c *CandleCache) Get(key string) []Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.candles
}

// Set stores candles in cache with expiration
func (c *CandleCache) Set(key string, candles []Candle, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.data) >= pruneThreshold {
		c.prune()
	}
	c.data[key] = &cacheEntry{
		candles:   candles,
		expiresAt: time.Now().Add(ttl),
	}
}

// Len returns the number of cached series, expired ones included
func (c *CandleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// prune removes expired entries. Callers hold the write lock.
func (c *CandleCache) prune() {
	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}
