// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// resultCacheCap bounds entries per namespace; oldest-insertion wins is
// good enough for a per-process detection memo.
const resultCacheCap = 512

// ResultCache memoizes per-chunk detection results, one namespace per
// engine so cache keys never collide across models.
type ResultCache struct {
	mu    sync.RWMutex
	byNS  map[string]map[string][]document.Entity
	order map[string][]string
}

// NewResultCache returns an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{
		byNS:  make(map[string]map[string][]document.Entity),
		order: make(map[string][]string),
	}
}

// TextKey hashes the text together with the sorted requested entity list.
func TextKey(text string, entities []string) string {
	sorted := append([]string(nil), entities...)
	sort.Strings(sorted)
	sum := md5.Sum([]byte(text + "|" + strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached entities for (namespace, key).
func (c *ResultCache) Get(namespace, key string) ([]document.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ns, ok := c.byNS[namespace]
	if !ok {
		return nil, false
	}
	entities, ok := ns[key]
	if !ok {
		return nil, false
	}
	return append([]document.Entity(nil), entities...), true
}

// Set stores entities under (namespace, key), evicting the oldest entry
// of that namespace at capacity.
func (c *ResultCache) Set(namespace, key string, entities []document.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ns, ok := c.byNS[namespace]
	if !ok {
		ns = make(map[string][]document.Entity)
		c.byNS[namespace] = ns
	}
	if _, exists := ns[key]; !exists {
		if len(ns) >= resultCacheCap {
			oldest := c.order[namespace][0]
			c.order[namespace] = c.order[namespace][1:]
			delete(ns, oldest)
		}
		c.order[namespace] = append(c.order[namespace], key)
	}
	ns[key] = append([]document.Entity(nil), entities...)
}

// Clear drops every namespace.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byNS = make(map[string]map[string][]document.Entity)
	c.order = make(map[string][]string)
}
