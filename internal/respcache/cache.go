// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package respcache caches HTTP responses with TTL expiry, LRU eviction
// and ETag support. Reads never wait on writers beyond the map read lock;
// all mutations are serialized through one LOW-priority timeout lock.
package respcache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/syncx"
)

// Entry is one cached response.
type Entry struct {
	Content    []byte
	StatusCode int
	Headers    map[string]string
	MediaType  string
	ExpiresAt  time.Time
	ETag       string
}

// Stats is a point-in-time copy of cache counters.
type Stats struct {
	Entries    int   `json:"entries"`
	MaxEntries int   `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Expired    int64 `json:"expired_removed"`
}

// ResponseCache is a bounded TTL+LRU response cache.
type ResponseCache struct {
	maxEntries int
	defaultTTL time.Duration

	mu         sync.RWMutex
	cache      map[string]Entry
	accessTime map[string]time.Time
	expiresAt  map[string]time.Time
	etags      map[string]string

	writeLock *syncx.TimeoutLock

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	expired   atomic.Int64

	log      zerolog.Logger
	stopOnce sync.Once
	stop     chan struct{}
}

const writeLockTimeout = 5 * time.Second

// New returns a cache bounded at maxEntries (default 1000) with the given
// default TTL (default 600s).
func New(maxEntries int, defaultTTL time.Duration, locks *syncx.Manager, log zerolog.Logger) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 600 * time.Second
	}
	return &ResponseCache{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		cache:      make(map[string]Entry),
		accessTime: make(map[string]time.Time),
		expiresAt:  make(map[string]time.Time),
		etags:      make(map[string]string),
		writeLock:  locks.NewLock("response_cache_write", syncx.PriorityLow, writeLockTimeout),
		log:        log.With().Str("component", "respcache").Logger(),
		stop:       make(chan struct{}),
	}
}

// Get returns the entry for key iff it exists and has not expired.
// Expired entries are left for the cleanup pass; the access time update is
// best-effort and never blocks the read path.
func (c *ResponseCache) Get(key string) (Entry, bool) {
	now := time.Now()
	c.mu.RLock()
	entry, ok := c.cache[key]
	exp, hasExp := c.expiresAt[key]
	c.mu.RUnlock()

	if !ok || !hasExp || !now.Before(exp) {
		c.misses.Add(1)
		return Entry{}, false
	}

	if c.mu.TryLock() {
		c.accessTime[key] = now
		c.mu.Unlock()
	}
	c.hits.Add(1)
	return entry, true
}

// ETagFor returns the stored ETag for key, if any.
func (c *ResponseCache) ETagFor(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tag, ok := c.etags[key]
	return tag, ok && tag != ""
}

// Set stores an entry under the exclusive write lock. At capacity it first
// sweeps expired entries, then evicts the least recently used. A write-lock
// timeout drops the write; responses are cacheable, never mandatory.
func (c *ResponseCache) Set(key string, entry Entry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	acquired := c.writeLock.WithLock(writeLockTimeout, func() {
		now := time.Now()
		c.mu.Lock()
		defer c.mu.Unlock()

		if _, exists := c.cache[key]; !exists && len(c.cache) >= c.maxEntries {
			c.sweepExpiredLocked(now)
			for len(c.cache) >= c.maxEntries {
				c.evictLRULocked()
			}
		}
		entry.ExpiresAt = now.Add(ttl)
		c.cache[key] = entry
		c.accessTime[key] = now
		c.expiresAt[key] = entry.ExpiresAt
		if entry.ETag != "" {
			c.etags[key] = entry.ETag
		}
	})
	if !acquired {
		c.log.Warn().Str("key", key).Msg("response cache write lock timeout, dropping entry")
	}
}

// Delete removes key from the cache and every auxiliary map.
func (c *ResponseCache) Delete(key string) {
	c.writeLock.WithLock(writeLockTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.removeLocked(key)
	})
}

// Clear empties the cache.
func (c *ResponseCache) Clear() {
	c.writeLock.WithLock(writeLockTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cache = make(map[string]Entry)
		c.accessTime = make(map[string]time.Time)
		c.expiresAt = make(map[string]time.Time)
		c.etags = make(map[string]string)
	})
}

// CleanupExpired removes every expired entry and returns how many went.
func (c *ResponseCache) CleanupExpired() int {
	removed := 0
	c.writeLock.WithLock(writeLockTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		removed = c.sweepExpiredLocked(time.Now())
	})
	return removed
}

// StartCleanup launches the periodic cleanup worker (default 60s).
func (c *ResponseCache) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.CleanupExpired(); n > 0 {
					c.log.Debug().Int("removed", n).Msg("expired cache entries removed")
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// StopCleanup terminates the cleanup worker.
func (c *ResponseCache) StopCleanup() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Stats returns a copy of the cache counters.
func (c *ResponseCache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.cache)
	c.mu.RUnlock()
	return Stats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		Expired:    c.expired.Load(),
	}
}

func (c *ResponseCache) sweepExpiredLocked(now time.Time) int {
	removed := 0
	for key, exp := range c.expiresAt {
		if !now.Before(exp) {
			c.removeLocked(key)
			removed++
		}
	}
	c.expired.Add(int64(removed))
	return removed
}

func (c *ResponseCache) evictLRULocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, at := range c.accessTime {
		if first || at.Before(oldest) {
			oldestKey, oldest = key, at
			first = false
		}
	}
	if !first {
		c.removeLocked(oldestKey)
		c.evictions.Add(1)
	}
}

func (c *ResponseCache) removeLocked(key string) {
	delete(c.cache, key)
	delete(c.accessTime, key)
	delete(c.expiresAt, key)
	delete(c.etags, key)
}
