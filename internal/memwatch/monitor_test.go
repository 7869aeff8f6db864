// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memwatch

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSampleUpdatesStats(t *testing.T) {
	m := NewMonitor(Options{CheckInterval: time.Hour}, zerolog.Nop())
	m.Sample()
	m.Sample()

	stats := m.Stats()
	if stats.ChecksCount != 2 {
		t.Fatalf("expected 2 checks, got %d", stats.ChecksCount)
	}
	if stats.CurrentUsage < 0 {
		t.Errorf("usage must be non-negative, got %f", stats.CurrentUsage)
	}
	if stats.PeakUsage < stats.CurrentUsage {
		t.Errorf("peak %f below current %f", stats.PeakUsage, stats.CurrentUsage)
	}
	if stats.AverageUsage <= 0 && stats.CurrentUsage > 0 {
		t.Errorf("average not updated: %f", stats.AverageUsage)
	}
}

func TestDefaultThresholds(t *testing.T) {
	m := NewMonitor(Options{}, zerolog.Nop())
	stats := m.Stats()
	if stats.Threshold != 80 || stats.CriticalThreshold != 90 || stats.BatchThreshold != 70 {
		t.Errorf("unexpected default thresholds: %+v", stats)
	}
}

func TestCleanupClearsCache(t *testing.T) {
	m := NewMonitor(Options{Threshold: 0.000001, CriticalThreshold: 200, MinGCInterval: time.Nanosecond}, zerolog.Nop())
	cleared := false
	m.SetCacheClearer(func() { cleared = true })

	// Any real process exceeds a near-zero threshold.
	m.Sample()
	if !cleared {
		t.Error("expected cache clearer to run on threshold breach")
	}
	if m.Stats().RegularCleanups != 1 {
		t.Errorf("expected 1 regular cleanup, got %d", m.Stats().RegularCleanups)
	}
}

func TestMinGCIntervalRespected(t *testing.T) {
	m := NewMonitor(Options{Threshold: 0.000001, CriticalThreshold: 200, MinGCInterval: time.Hour}, zerolog.Nop())
	count := 0
	m.SetCacheClearer(func() { count++ })

	m.Sample()
	m.Sample()
	if count != 1 {
		t.Errorf("expected a single cleanup within the GC interval, got %d", count)
	}
}

func TestTrackFuncPropagatesError(t *testing.T) {
	m := NewMonitor(Options{}, zerolog.Nop())
	want := errors.New("boom")
	if got := m.TrackFunc("op", 1, func() error { return want }); !errors.Is(got, want) {
		t.Errorf("expected error passthrough, got %v", got)
	}
}

func TestStartStop(t *testing.T) {
	m := NewMonitor(Options{CheckInterval: 10 * time.Millisecond}, zerolog.Nop())
	m.Start()
	time.Sleep(35 * time.Millisecond)
	m.Stop()
	if m.Stats().ChecksCount == 0 {
		t.Error("expected background samples")
	}
}
