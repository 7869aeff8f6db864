// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package respcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/syncx"
)

func newTestCache(max int, ttl time.Duration) *ResponseCache {
	return New(max, ttl, syncx.NewManager(zerolog.Nop()), zerolog.Nop())
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestCache(10, time.Minute)
	entry := Entry{Content: []byte("body"), StatusCode: 200, MediaType: "application/json", ETag: "abc"}

	c.Set("k", entry, 0)
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got.Content) != "body" || got.StatusCode != 200 {
		t.Errorf("unexpected entry: %+v", got)
	}
	if tag, ok := c.ETagFor("k"); !ok || tag != "abc" {
		t.Errorf("expected etag abc, got %q (%v)", tag, ok)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(10, time.Minute)
	c.Set("k", Entry{Content: []byte("v")}, 30*time.Millisecond)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestExpiredNotRemovedInline(t *testing.T) {
	c := newTestCache(10, time.Minute)
	c.Set("k", Entry{Content: []byte("v")}, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	c.Get("k")
	if c.Stats().Entries != 1 {
		t.Error("expired entry should remain until cleanup")
	}
	if removed := c.CleanupExpired(); removed != 1 {
		t.Errorf("expected cleanup to remove 1, got %d", removed)
	}
	if c.Stats().Entries != 0 {
		t.Error("entry should be gone after cleanup")
	}
}

func TestLRUEviction(t *testing.T) {
	c := newTestCache(3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), Entry{Content: []byte{byte(i)}}, time.Minute)
		time.Sleep(2 * time.Millisecond) // distinct access times
	}
	// Touch k0 so k1 becomes least recently used.
	c.Get("k0")
	time.Sleep(2 * time.Millisecond)

	c.Set("k3", Entry{Content: []byte("new")}, time.Minute)

	if _, ok := c.Get("k1"); ok {
		t.Error("expected LRU entry k1 to be evicted")
	}
	for _, key := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestEvictionPrefersExpiredSweep(t *testing.T) {
	c := newTestCache(2, time.Minute)
	c.Set("short", Entry{}, 10*time.Millisecond)
	c.Set("long", Entry{}, time.Minute)
	time.Sleep(20 * time.Millisecond)

	c.Set("new", Entry{}, time.Minute)
	if _, ok := c.Get("long"); !ok {
		t.Error("unexpired entry evicted although an expired one was available")
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("new entry missing")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := newTestCache(10, time.Minute)
	c.Set("a", Entry{}, time.Minute)
	c.Set("b", Entry{ETag: "x"}, time.Minute)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry still present")
	}
	c.Clear()
	if c.Stats().Entries != 0 {
		t.Error("clear left entries behind")
	}
	if _, ok := c.ETagFor("b"); ok {
		t.Error("clear left etag behind")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(100, time.Minute)
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%50)
				if i%3 == 0 {
					c.Set(key, Entry{Content: []byte(key)}, time.Minute)
				} else {
					c.Get(key)
				}
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
