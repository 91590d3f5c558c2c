package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 5 * time.Minute

// Cache wraps a Store with JSON encoding and hit/miss counters. A nil *Cache
// is valid and disables caching: every Fetch calls the loader.
//
// Backend failures never fail a read; they are logged and the loader is used.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64

	// gen is bumped by every invalidation. A load that overlaps one is not
	// kept, so a read racing a write cannot cache the old value.
	gen atomic.Uint64

	onLookup func(hit bool)
}

func New(store Store, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// OnLookup registers a callback invoked after every lookup. Used to feed
// Prometheus counters.
func (c *Cache) OnLookup(fn func(hit bool)) {
	if c != nil {
		c.onLookup = fn
	}
}

// TTL returns the default entry lifetime.
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

func (c *Cache) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}

// Fetch returns the cached value for key or calls load, caching its result.
// Loader errors are returned as-is and nothing is cached.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if c == nil || c.store == nil {
		return load(ctx)
	}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.errs.Add(1)
		c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}
	if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			c.record(true)
			return v, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}
	c.record(false)

	gen := c.gen.Load()
	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	raw, err = json.Marshal(v)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return v, nil
	}
	if c.gen.Load() != gen {
		return v, nil
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.errs.Add(1)
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	if c.gen.Load() != gen {
		// An invalidation landed between the check and the write.
		_ = c.store.Delete(ctx, key)
	}
	return v, nil
}

// Invalidate removes keys. Errors are logged, not returned: a stale entry
// expires with its TTL anyway.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.store == nil || len(keys) == 0 {
		return
	}
	c.gen.Add(1)
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.errs.Add(1)
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidate failed")
	}
}

// InvalidatePrefix removes every key starting with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	if c == nil || c.store == nil {
		return
	}
	c.gen.Add(1)
	if err := c.store.DeletePrefix(ctx, prefix); err != nil {
		c.errs.Add(1)
		c.logger.Warn().Err(err).Str("prefix", prefix).Msg("cache invalidate failed")
	}
}

// Stats is reported on the metrics endpoint.
type Stats struct {
	Enabled bool    `json:"enabled"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

func (c *Cache) Stats() Stats {
	if c == nil || c.store == nil {
		return Stats{}
	}
	st := Stats{
		Enabled: true,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errs.Load(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}
