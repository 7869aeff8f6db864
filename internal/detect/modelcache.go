// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/syncx"
)

// modelLockTimeout bounds model initialization; loading large weights can
// legitimately take minutes.
const modelLockTimeout = 600 * time.Second

// cachedModel is one loaded model plus its load time.
type cachedModel struct {
	model    Model
	initTime time.Duration
	loadedAt time.Time
}

// ModelCache shares loaded models across detector singletons. Concurrent
// loads of the same key collapse into one via singleflight; the model lock
// keeps initialization ahead of analyzer traffic in the lock hierarchy.
type ModelCache struct {
	mu     sync.RWMutex
	models map[string]cachedModel

	group singleflight.Group
	lock  *syncx.TimeoutLock
	log   zerolog.Logger
}

// NewModelCache returns an empty cache using the manager's HIGH-priority
// model lock.
func NewModelCache(locks *syncx.Manager, log zerolog.Logger) *ModelCache {
	return &ModelCache{
		models: make(map[string]cachedModel),
		lock:   locks.NewLock("model_init", syncx.PriorityHigh, modelLockTimeout),
		log:    log.With().Str("component", "model_cache").Logger(),
	}
}

// ModelKey builds the cache key from the model name, the local-files flag
// and the sorted default entity list.
func ModelKey(modelName string, localFilesOnly bool, entities []string) string {
	sorted := append([]string(nil), entities...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%t|%s", modelName, localFilesOnly, strings.Join(sorted, ","))
}

// Get returns the cached model for key, if loaded.
func (c *ModelCache) Get(key string) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[key]
	if !ok {
		return nil, false
	}
	return m.model, true
}

// LoadOrInit returns the cached model for key or runs loader exactly once
// per key, even under concurrent callers. The loader runs under the
// HIGH-priority model lock.
func (c *ModelCache) LoadOrInit(key string, loader func() (Model, error)) (Model, time.Duration, error) {
	if m, ok := c.get(key); ok {
		return m.model, m.initTime, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if m, ok := c.get(key); ok {
			return m, nil
		}
		if !c.lock.Acquire(modelLockTimeout) {
			return nil, fmt.Errorf("detect: model lock timeout for %s", key)
		}
		defer c.lock.Release()
		// Double-checked: a sibling may have finished while we waited.
		if m, ok := c.get(key); ok {
			return m, nil
		}

		start := time.Now()
		model, err := loader()
		if err != nil {
			return nil, err
		}
		m := cachedModel{model: model, initTime: time.Since(start), loadedAt: time.Now()}
		c.mu.Lock()
		c.models[key] = m
		c.mu.Unlock()
		c.log.Info().Str("key", key).Dur("init_time", m.initTime).Msg("model loaded")
		return m, nil
	})
	if err != nil {
		return nil, 0, err
	}
	m := v.(cachedModel)
	return m.model, m.initTime, nil
}

func (c *ModelCache) get(key string) (cachedModel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[key]
	return m, ok
}

// Clear drops every cached model. The memory monitor calls this during
// emergency cleanup.
func (c *ModelCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = make(map[string]cachedModel)
}

// Len reports the number of loaded models.
func (c *ModelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// localModelPresent reports whether dir holds a weights file and one of
// the recognized config file names.
func localModelPresent(dir, weightsFile string, configNames []string) bool {
	if dir == "" {
		return false
	}
	if _, err := os.Stat(filepath.Join(dir, weightsFile)); err != nil {
		return false
	}
	for _, name := range configNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
