// Package cache keeps the last provider result per track and race mode.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/pkg/metrics"
)

const defaultTTL = 10 * time.Minute

// Entry is one cached provider result set.
type Entry struct {
	Records   []model.RawRecord
	FetchedAt time.Time
}

// Stats counts cache outcomes since construction.
type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	StaleServed uint64 `json:"stale_served"`
}

// Cache is a copy-on-write map safe for concurrent use. Entries are never evicted;
// staleness is checked on read.
type Cache struct {
	ttl   time.Duration
	clock func() time.Time

	entries atomic.Pointer[map[model.CacheKey]Entry]
	group   singleflight.Group

	hits, misses, stale atomic.Uint64
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{ttl: defaultTTL, clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	empty := make(map[model.CacheKey]Entry)
	c.entries.Store(&empty)
	return c
}

// Get returns the entry for key, fresh or not.
func (c *Cache) Get(key model.CacheKey) (Entry, bool) {
	e, ok := (*c.entries.Load())[key]
	return e, ok
}

// Lookup returns a fresh entry for key and records a hit or a miss.
func (c *Cache) Lookup(key model.CacheKey) (Entry, bool) {
	e, ok := c.Get(key)
	if ok && c.IsFresh(e) {
		c.hits.Add(1)
		metrics.RecordCacheLookup(metrics.CacheHit)
		return e, true
	}
	c.misses.Add(1)
	metrics.RecordCacheLookup(metrics.CacheMiss)
	return Entry{}, false
}

// Put stores e under key, replacing any previous entry.
func (c *Cache) Put(key model.CacheKey, e Entry) {
	for {
		old := c.entries.Load()
		next := make(map[model.CacheKey]Entry, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[key] = e
		if c.entries.CompareAndSwap(old, &next) {
			metrics.UpdateCacheEntries(len(next))
			return
		}
	}
}

// IsFresh reports whether e is younger than the TTL.
func (c *Cache) IsFresh(e Entry) bool {
	return c.clock().Sub(e.FetchedAt) < c.ttl
}

// MarkStaleServed counts an expired entry served in place of a failed refresh.
func (c *Cache) MarkStaleServed() {
	c.stale.Add(1)
	metrics.RecordCacheLookup(metrics.CacheStaleServed)
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	return len(*c.entries.Load())
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		StaleServed: c.stale.Load(),
	}
}

// Do runs fetch once per key among concurrent callers and stores a successful result.
// fetch runs on a context detached from ctx so a cancelled caller still warms the cache;
// ctx only bounds how long this caller waits.
func (c *Cache) Do(ctx context.Context, key model.CacheKey, fetch func(context.Context) ([]model.RawRecord, error)) (Entry, error) {
	ch := c.group.DoChan(key.String(), func() (any, error) {
		records, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return Entry{}, err
		}
		e := Entry{Records: records, FetchedAt: c.clock()}
		c.Put(key, e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	}
}
