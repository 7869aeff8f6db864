// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syncx

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager() *Manager {
	return NewManager(zerolog.Nop())
}

func TestAcquireRelease(t *testing.T) {
	m := newTestManager()
	l := m.NewLock("test", PriorityMedium, time.Second)

	if !l.Acquire(time.Second) {
		t.Fatal("expected acquisition to succeed")
	}
	l.Release()

	stats := m.Stats()
	if stats.Acquisitions != 1 {
		t.Errorf("expected 1 acquisition, got %d", stats.Acquisitions)
	}
	if stats.ActiveHolders != 0 {
		t.Errorf("expected 0 active holders, got %d", stats.ActiveHolders)
	}
}

func TestAcquireTimeout(t *testing.T) {
	m := newTestManager()
	l := m.NewLock("busy", PriorityMedium, time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	release := make(chan struct{})
	go func() {
		defer wg.Done()
		if !l.Acquire(time.Second) {
			t.Error("holder failed to acquire")
			return
		}
		<-release
		l.Release()
	}()

	// Wait until the other goroutine holds the lock.
	deadline := time.Now().Add(time.Second)
	for l.holder.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if l.Acquire(50 * time.Millisecond) {
		t.Fatal("expected acquisition to time out while held elsewhere")
	}
	close(release)
	wg.Wait()

	if m.Stats().Timeouts != 1 {
		t.Errorf("expected 1 timeout, got %d", m.Stats().Timeouts)
	}
}

func TestHierarchyRefusal(t *testing.T) {
	m := newTestManager()
	low := m.NewLock("low", PriorityLow, time.Second)
	high := m.NewLock("high", PriorityHigh, time.Second)

	if !low.Acquire(time.Second) {
		t.Fatal("low acquisition failed")
	}
	defer low.Release()

	// Holding LOW, acquiring HIGH would invert the hierarchy.
	if high.Acquire(100 * time.Millisecond) {
		high.Release()
		t.Fatal("expected hierarchy violation to be refused")
	}
	if m.Stats().Timeouts != 1 {
		t.Errorf("refusal should count as timeout, got %d", m.Stats().Timeouts)
	}
}

func TestHierarchyAllowsDescending(t *testing.T) {
	m := newTestManager()
	high := m.NewLock("high", PriorityHigh, time.Second)
	low := m.NewLock("low", PriorityLow, time.Second)

	if !high.Acquire(time.Second) {
		t.Fatal("high acquisition failed")
	}
	if !low.Acquire(time.Second) {
		t.Fatal("descending acquisition should be permitted")
	}
	low.Release()
	high.Release()
}

func TestInstanceLockExemptFromHierarchy(t *testing.T) {
	m := newTestManager()
	low := m.NewLock("low", PriorityLow, time.Second)
	inst := m.NewInstanceLock("inst", PriorityCritical, time.Second)

	if !low.Acquire(time.Second) {
		t.Fatal("low acquisition failed")
	}
	defer low.Release()

	if !inst.Acquire(time.Second) {
		t.Fatal("instance lock must bypass hierarchy checks")
	}
	inst.Release()
}

func TestReleaseUnheldIsSwallowed(t *testing.T) {
	m := newTestManager()
	l := m.NewLock("loose", PriorityMedium, time.Second)
	// Must not panic.
	l.Release()
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	m := newTestManager()
	l := m.NewLock("scoped", PriorityMedium, time.Second)

	func() {
		defer func() { recover() }()
		l.WithLock(time.Second, func() { panic("boom") })
	}()

	if !l.Acquire(100 * time.Millisecond) {
		t.Fatal("lock not released after panic inside WithLock")
	}
	l.Release()
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore("pool", 2)
	if s.CurrentValue() != 2 {
		t.Fatalf("expected 2 permits, got %d", s.CurrentValue())
	}
	if !s.Acquire(time.Second) || !s.Acquire(time.Second) {
		t.Fatal("expected both permits")
	}
	if s.CurrentValue() != 0 {
		t.Errorf("expected 0 permits remaining, got %d", s.CurrentValue())
	}
	if s.Acquire(20 * time.Millisecond) {
		t.Fatal("expected third acquisition to time out")
	}
	s.Release()
	s.Release()
	s.Release() // extra release must saturate, not grow
	if s.CurrentValue() != 2 {
		t.Errorf("expected saturation at 2, got %d", s.CurrentValue())
	}
}

func TestContentionCounting(t *testing.T) {
	m := newTestManager()
	l := m.NewLock("contended", PriorityMedium, time.Second)

	if !l.Acquire(time.Second) {
		t.Fatal("acquire failed")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Acquire(10 * time.Millisecond)
	}()
	<-done
	l.Release()

	if m.Stats().Contentions == 0 {
		t.Error("expected contention to be recorded")
	}
}
