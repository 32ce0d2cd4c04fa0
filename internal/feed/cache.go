package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"tradelab/types"

	"golang.org/x/sync/singleflight"
)

var _ Provider = (*Cache)(nil)

// Cache memoizes another provider for the life of the process. Concurrent
// misses on one key share a single upstream fetch, and readers only ever see
// complete series. Failures are not cached.
type Cache struct {
	next     Provider
	observer fetchObserver
	log      *slog.Logger

	mu      sync.RWMutex
	entries map[string][]types.Candle
	group   singleflight.Group
}

// NewCache wraps next. observer may be nil.
func NewCache(next Provider, observer fetchObserver, logger *slog.Logger) *Cache {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		next:     next,
		observer: observer,
		log:      logger.With("component", "cache"),
		entries:  make(map[string][]types.Candle),
	}
}

func cacheKey(symbol string, interval types.Interval, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", symbol, interval, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
}

func (c *Cache) Fetch(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	symbol = normalizeSymbol(symbol)
	interval = normalizeInterval(interval)
	key := cacheKey(symbol, interval, start, end)

	if bars, ok := c.lookup(key); ok {
		c.observer.CacheHit("memory")
		return slices.Clone(bars), nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		if bars, ok := c.lookup(key); ok {
			return bars, nil
		}
		c.observer.CacheMiss("memory")
		bars, err := c.next.Fetch(ctx, symbol, interval, start, end)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = bars
		c.mu.Unlock()
		c.log.Debug("cached series", "symbol", symbol, "interval", interval, "bars", len(bars))
		return bars, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("joined in-flight fetch", "symbol", symbol)
	}
	return slices.Clone(v.([]types.Candle)), nil
}

func (c *Cache) lookup(key string) ([]types.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bars, ok := c.entries[key]
	return bars, ok
}

// Len is the number of cached series.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
