// Package cache is the process-local, read-through TTL cache in front of the
// data API. Entries live in memory only and are lost on restart.
//
// Typical usage:
//
//	c := cache.New(cache.Options{DefaultTTL: time.Hour}, logger)
//	go c.Run(ctx)
//	page, err := cache.GetOrSet(ctx, c, cache.DataKey("news", params), load, cache.TTLMedium)
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrFull is returned by Set when MaxKeys live entries exist and key is new.
var ErrFull = errors.New("cache: max keys reached")

// Standard TTLs.
const (
	TTLShort    = 5 * time.Minute
	TTLMedium   = 30 * time.Minute
	TTLLong     = time.Hour
	TTLVeryLong = 24 * time.Hour
)

// Options tunes the cache.
type Options struct {
	// DefaultTTL applies when Set is called with ttl <= 0. Default: 1h.
	DefaultTTL time.Duration
	// MaxKeys bounds the number of live entries. Default: 1000.
	MaxKeys int
	// CheckPeriod is the background sweep interval. Default: 10m.
	CheckPeriod time.Duration
}

func (o *Options) defaults() {
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = TTLLong
	}
	if o.MaxKeys <= 0 {
		o.MaxKeys = 1000
	}
	if o.CheckPeriod <= 0 {
		o.CheckPeriod = 10 * time.Minute
	}
}

// Entry is a cached value and its metadata.
type Entry struct {
	Key        string        `json:"key"`
	Value      any           `json:"-"`
	TTL        time.Duration `json:"ttl"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
	AccessedAt time.Time     `json:"accessed_at"`
}

func (e *Entry) expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }

// Stats are point-in-time counters.
type Stats struct {
	Keys    int   `json:"keys"`
	MaxKeys int   `json:"max_keys"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Evicted int64 `json:"evicted"`
}

// Cache is safe for concurrent use.
type Cache struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	evicted atomic.Int64
}

// New creates a cache. A nil logger falls back to slog.Default().
func New(opts Options, logger *slog.Logger) *Cache {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
}

// Get returns the live value under key.
func (c *Cache) Get(key string) (any, bool) {
	now := c.now()
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.expired(now) {
		delete(c.entries, key)
		c.evicted.Add(1)
		ok = false
	}
	if ok {
		e.AccessedAt = now
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		c.logger.Debug("cache: miss", "key", key)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache: hit", "key", key)
	return e.Value, true
}

// Set stores v under key for ttl (DefaultTTL when ttl <= 0). Overwriting an
// existing key always succeeds; a new key fails with ErrFull once MaxKeys
// live entries exist.
func (c *Cache) Set(key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.opts.MaxKeys {
		c.sweepLocked(now)
		if len(c.entries) >= c.opts.MaxKeys {
			c.logger.Warn("cache: full", "key", key, "max_keys", c.opts.MaxKeys)
			return ErrFull
		}
	}
	c.entries[key] = &Entry{
		Key:        key,
		Value:      v,
		TTL:        ttl,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		AccessedAt: now,
	}
	c.sets.Add(1)
	c.logger.Debug("cache: set", "key", key, "ttl", ttl)
	return nil
}

// Del removes key and reports whether a live entry was removed.
func (c *Cache) Del(key string) bool {
	now := c.now()
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		ok = !e.expired(now)
	}
	c.mu.Unlock()
	if ok {
		c.logger.Debug("cache: delete", "key", key)
	}
	return ok
}

// Has reports whether a live entry exists under key. It does not count as
// a hit or miss.
func (c *Cache) Has(key string) bool {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && !e.expired(now)
}

// Keys lists live keys in sorted order.
func (c *Cache) Keys() []string {
	now := c.now()
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if !e.expired(now) {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Entry returns a copy of the live entry under key.
func (c *Cache) Entry(key string) (Entry, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		return Entry{}, false
	}
	return *e, true
}

// Flush removes every entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
	c.logger.Info("cache: flushed", "keys", n)
}

// InvalidatePattern deletes every key containing substr and returns how
// many were deleted.
func (c *Cache) InvalidatePattern(substr string) int {
	c.mu.Lock()
	n := 0
	for k := range c.entries {
		if strings.Contains(k, substr) {
			delete(c.entries, k)
			n++
		}
	}
	c.mu.Unlock()
	c.logger.Debug("cache: invalidated", "pattern", substr, "keys", n)
	return n
}

// EvictOlderThan deletes entries created more than age ago, regardless of
// their TTL.
func (c *Cache) EvictOlderThan(age time.Duration) int {
	cutoff := c.now().Add(-age)
	c.mu.Lock()
	n := 0
	for k, e := range c.entries {
		if e.CreatedAt.Before(cutoff) {
			delete(c.entries, k)
			n++
		}
	}
	c.mu.Unlock()
	c.evicted.Add(int64(n))
	return n
}

// Sweep deletes expired entries and returns how many were deleted.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

func (c *Cache) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	c.evicted.Add(int64(n))
	return n
}

// Run sweeps expired entries every CheckPeriod until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.CheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("cache: sweep", "expired", n)
			}
		}
	}
}

// Stats returns point-in-time counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Keys:    n,
		MaxKeys: c.opts.MaxKeys,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Evicted: c.evicted.Load(),
	}
}

// GetOrSet returns the cached value under key, or calls produce, caches its
// result for ttl and returns it. A producer error is returned and nothing is
// cached. A cached value of another type counts as a miss. Failing to store
// the produced value (ErrFull) is logged and the value still returned.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, produce func(context.Context) (T, error), ttl time.Duration) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := produce(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.Set(key, v, ttl); err != nil {
		c.logger.Warn("cache: store produced value", "key", key, "error", err)
	}
	return v, nil
}
