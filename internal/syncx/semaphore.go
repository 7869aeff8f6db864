// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syncx

import (
	"context"
	"sync/atomic"
	"time"
)

// Semaphore bounds concurrency with timeout-limited acquisition. Release
// never blocks and saturates at the initial permit count.
type Semaphore struct {
	name    string
	permits chan struct{}
	size    int
	value   atomic.Int64 // approximate remaining permits, for observability
}

// NewSemaphore returns a semaphore with size permits available.
func NewSemaphore(name string, size int) *Semaphore {
	if size < 1 {
		size = 1
	}
	s := &Semaphore{
		name:    name,
		permits: make(chan struct{}, size),
		size:    size,
	}
	s.value.Store(int64(size))
	return s
}

// Acquire takes a permit, blocking up to timeout. It reports whether a
// permit was obtained.
func (s *Semaphore) Acquire(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.permits <- struct{}{}:
		s.value.Add(-1)
		return true
	case <-timer.C:
		return false
	}
}

// AcquireContext takes a permit, blocking until the context is done.
func (s *Semaphore) AcquireContext(ctx context.Context) bool {
	select {
	case s.permits <- struct{}{}:
		s.value.Add(-1)
		return true
	case <-ctx.Done():
		return false
	}
}

// Release returns a permit. Extra releases are dropped so the value never
// exceeds the initial size.
func (s *Semaphore) Release() {
	select {
	case <-s.permits:
		s.value.Add(1)
	default:
	}
}

// CurrentValue returns the approximate number of remaining permits.
func (s *Semaphore) CurrentValue() int {
	v := s.value.Load()
	if v < 0 {
		return 0
	}
	return int(v)
}

// Size returns the semaphore's capacity.
func (s *Semaphore) Size() int { return s.size }
