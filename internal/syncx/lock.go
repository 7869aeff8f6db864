// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package syncx provides the priority-aware locks and semaphores used
// across the service: timeout-bounded acquisition, a lock hierarchy that
// refuses priority inversion, and usage statistics for observability.
package syncx

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Priority orders locks in the global acquisition hierarchy.
// Lower values are acquired first; acquiring a lower value while holding a
// higher one is refused.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	case PriorityBackground:
		return "BACKGROUND"
	}
	return "UNKNOWN"
}

// TimeoutLock is a mutual-exclusion lock whose acquisition is always
// bounded by a timeout. Global locks participate in the manager's
// hierarchy checking; instance locks are exempt and may be held
// concurrently with anything.
type TimeoutLock struct {
	name           string
	priority       Priority
	instance       bool
	defaultTimeout time.Duration

	ch     chan struct{} // capacity 1; full while held
	holder atomic.Int64  // goroutine id of current holder, 0 when free
	mgr    *Manager
	log    zerolog.Logger
}

// Name returns the lock's name as used in logs and statistics.
func (l *TimeoutLock) Name() string { return l.name }

// Priority returns the lock's hierarchy priority.
func (l *TimeoutLock) Priority() Priority { return l.priority }

// IsInstanceLock reports whether the lock is exempt from hierarchy checks.
func (l *TimeoutLock) IsInstanceLock() bool { return l.instance }

// DefaultTimeout returns the timeout used when Acquire is given zero.
func (l *TimeoutLock) DefaultTimeout() time.Duration { return l.defaultTimeout }

// Acquire blocks up to timeout (or the default when timeout <= 0) and
// reports whether the lock was obtained. A refused hierarchy acquisition
// counts and behaves as a timeout; it never raises.
func (l *TimeoutLock) Acquire(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = l.defaultTimeout
	}
	gid := goroutineID()

	if l.mgr != nil && !l.instance {
		if bad, heldName := l.mgr.violatesHierarchy(gid, l.priority); bad {
			l.mgr.stats.timeouts.Add(1)
			l.log.Warn().
				Str("lock", l.name).
				Str("priority", l.priority.String()).
				Str("held", heldName).
				Msg("lock acquisition refused: would invert priority hierarchy")
			return false
		}
	}

	if l.holder.Load() != 0 {
		l.mgr.stats.contentions.Add(1)
	}

	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
	case <-timer.C:
		l.mgr.stats.timeouts.Add(1)
		return false
	}

	wait := time.Since(start)
	l.holder.Store(gid)
	l.mgr.recordAcquire(gid, l, wait)
	return true
}

// Release releases the lock. Releasing a lock that is not held is logged
// and otherwise ignored.
func (l *TimeoutLock) Release() {
	gid := goroutineID()
	select {
	case <-l.ch:
	default:
		l.log.Error().Str("lock", l.name).Msg("release of unheld lock")
		return
	}
	l.holder.Store(0)
	l.mgr.recordRelease(gid, l)
}

// WithLock is the scoped form of Acquire: when the lock is obtained, fn
// runs and the lock is released on every exit path, including panics.
// The return value is the acquisition boolean; fn does not run on false.
func (l *TimeoutLock) WithLock(timeout time.Duration, fn func()) bool {
	if !l.Acquire(timeout) {
		return false
	}
	defer l.Release()
	fn()
	return true
}

// goroutineID extracts the current goroutine's id from the runtime stack
// header. Only used for lock bookkeeping, never for scheduling.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Header looks like "goroutine 12345 [running]:".
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
