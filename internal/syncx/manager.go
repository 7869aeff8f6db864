// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syncx

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LockStats is a point-in-time copy of the manager's counters.
type LockStats struct {
	Acquisitions  int64         `json:"acquisitions"`
	Timeouts      int64         `json:"timeouts"`
	Contentions   int64         `json:"contentions"`
	TotalWait     time.Duration `json:"total_wait_ns"`
	MaxWait       time.Duration `json:"max_wait_ns"`
	ActiveHolders int64         `json:"active_holders"`
}

type lockStatistics struct {
	acquisitions  atomic.Int64
	timeouts      atomic.Int64
	contentions   atomic.Int64
	totalWaitNano atomic.Int64
	maxWaitNano   atomic.Int64
	activeHolders atomic.Int64
}

func (s *lockStatistics) recordWait(d time.Duration) {
	s.acquisitions.Add(1)
	s.totalWaitNano.Add(int64(d))
	for {
		max := s.maxWaitNano.Load()
		if int64(d) <= max || s.maxWaitNano.CompareAndSwap(max, int64(d)) {
			return
		}
	}
}

// Manager creates locks and semaphores, tracks which global locks each
// goroutine holds, and aggregates lock statistics. One Manager is owned by
// the application context; there are no package globals.
type Manager struct {
	mu       sync.Mutex
	held     map[int64][]*TimeoutLock // owner goroutine -> ordered global locks
	instance map[int64]int            // owner goroutine -> instance lock count
	stats    *lockStatistics
	log      zerolog.Logger
}

// NewManager returns an empty lock manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		held:     make(map[int64][]*TimeoutLock),
		instance: make(map[int64]int),
		stats:    &lockStatistics{},
		log:      log.With().Str("component", "lockmanager").Logger(),
	}
}

// NewLock creates a global lock participating in hierarchy checking.
func (m *Manager) NewLock(name string, priority Priority, defaultTimeout time.Duration) *TimeoutLock {
	return m.newLock(name, priority, defaultTimeout, false)
}

// NewInstanceLock creates a per-object lock exempt from hierarchy checks,
// permitting concurrent per-object locking without global contention.
func (m *Manager) NewInstanceLock(name string, priority Priority, defaultTimeout time.Duration) *TimeoutLock {
	return m.newLock(name, priority, defaultTimeout, true)
}

func (m *Manager) newLock(name string, priority Priority, defaultTimeout time.Duration, instance bool) *TimeoutLock {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &TimeoutLock{
		name:           name,
		priority:       priority,
		instance:       instance,
		defaultTimeout: defaultTimeout,
		ch:             make(chan struct{}, 1),
		mgr:            m,
		log:            m.log,
	}
}

// violatesHierarchy reports whether the owner already holds a global lock
// of numerically greater (i.e. lower) priority than p, which would invert
// the acquisition order.
func (m *Manager) violatesHierarchy(gid int64, p Priority) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.held[gid] {
		if l.priority > p {
			return true, l.name
		}
	}
	return false, ""
}

func (m *Manager) recordAcquire(gid int64, l *TimeoutLock, wait time.Duration) {
	m.stats.recordWait(wait)
	m.stats.activeHolders.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.instance {
		m.instance[gid]++
		return
	}
	m.held[gid] = append(m.held[gid], l)
}

func (m *Manager) recordRelease(gid int64, l *TimeoutLock) {
	m.stats.activeHolders.Add(-1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.instance {
		if m.instance[gid] > 1 {
			m.instance[gid]--
		} else {
			delete(m.instance, gid)
		}
		return
	}
	locks := m.held[gid]
	for i := len(locks) - 1; i >= 0; i-- {
		if locks[i] == l {
			locks = append(locks[:i], locks[i+1:]...)
			break
		}
	}
	if len(locks) == 0 {
		delete(m.held, gid)
	} else {
		m.held[gid] = locks
	}
}

// Stats returns a copy of the aggregate lock statistics.
func (m *Manager) Stats() LockStats {
	return LockStats{
		Acquisitions:  m.stats.acquisitions.Load(),
		Timeouts:      m.stats.timeouts.Load(),
		Contentions:   m.stats.contentions.Load(),
		TotalWait:     time.Duration(m.stats.totalWaitNano.Load()),
		MaxWait:       time.Duration(m.stats.maxWaitNano.Load()),
		ActiveHolders: m.stats.activeHolders.Load(),
	}
}
