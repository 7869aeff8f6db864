// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memwatch samples process memory pressure in the background and
// triggers cleanup (GC, response-cache clearing) when thresholds are
// crossed. Thresholds can adapt to the machine the service runs on.
package memwatch

import (
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Options configures the monitor. Zero values take the documented defaults.
type Options struct {
	Threshold          float64       // regular cleanup trigger, percent (default 80)
	CriticalThreshold  float64       // emergency cleanup trigger, percent (default 90)
	BatchThreshold     float64       // batch-sizing advisory threshold, percent (default 70)
	CheckInterval      time.Duration // sample interval (default 5s)
	AdaptiveThresholds bool
	MinGCInterval      time.Duration // default 30s
}

// Stats is a point-in-time copy of the monitor's counters.
type Stats struct {
	CurrentUsage         float64 `json:"current_usage"`
	PeakUsage            float64 `json:"peak_usage"`
	AverageUsage         float64 `json:"average_usage"`
	ChecksCount          int64   `json:"checks_count"`
	AvailableMemoryMB    float64 `json:"available_memory_mb"`
	Threshold            float64 `json:"memory_threshold"`
	CriticalThreshold    float64 `json:"critical_threshold"`
	BatchThreshold       float64 `json:"batch_memory_threshold"`
	ThresholdAdjustments int64   `json:"system_threshold_adjustments"`
	EmergencyCleanups    int64   `json:"emergency_cleanups"`
	RegularCleanups      int64   `json:"regular_cleanups"`
}

// Monitor continuously samples process RSS as a percentage of system
// memory. One Monitor is owned by the application context.
type Monitor struct {
	opts Options
	log  zerolog.Logger

	mu           sync.Mutex
	stats        Stats
	lastGC       time.Time
	cacheClearer func()
	funcHistory  map[string][]float64 // per-function memory-increase samples, MB

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor returns a monitor; call Start to begin sampling.
func NewMonitor(opts Options, log zerolog.Logger) *Monitor {
	if opts.Threshold <= 0 {
		opts.Threshold = 80
	}
	if opts.CriticalThreshold <= 0 {
		opts.CriticalThreshold = 90
	}
	if opts.BatchThreshold <= 0 {
		opts.BatchThreshold = 70
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 5 * time.Second
	}
	if opts.MinGCInterval <= 0 {
		opts.MinGCInterval = 30 * time.Second
	}
	m := &Monitor{
		opts:        opts,
		log:         log.With().Str("component", "memwatch").Logger(),
		funcHistory: make(map[string][]float64),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	m.stats.Threshold = opts.Threshold
	m.stats.CriticalThreshold = opts.CriticalThreshold
	m.stats.BatchThreshold = opts.BatchThreshold
	return m
}

// SetCacheClearer registers the hook invoked during cleanup, typically the
// response cache's Clear.
func (m *Monitor) SetCacheClearer(fn func()) {
	m.mu.Lock()
	m.cacheClearer = fn
	m.mu.Unlock()
}

// Start launches the background sampling worker.
func (m *Monitor) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.opts.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sample()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop terminates the sampling worker.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// Sample takes one measurement and applies the cleanup policy. Exposed so
// batch operations can force a check between batches.
func (m *Monitor) Sample() {
	usage, availMB := readUsage()

	m.mu.Lock()
	m.stats.CurrentUsage = usage
	if usage > m.stats.PeakUsage {
		m.stats.PeakUsage = usage
	}
	m.stats.ChecksCount++
	// Incremental average.
	n := float64(m.stats.ChecksCount)
	m.stats.AverageUsage += (usage - m.stats.AverageUsage) / n
	m.stats.AvailableMemoryMB = availMB

	if m.opts.AdaptiveThresholds && m.stats.ChecksCount%60 == 0 {
		m.adjustThresholdsLocked()
	}
	critical := usage >= m.stats.CriticalThreshold
	regular := usage >= m.stats.Threshold
	canGC := time.Since(m.lastGC) >= m.opts.MinGCInterval
	clearer := m.cacheClearer
	m.mu.Unlock()

	switch {
	case critical && canGC:
		m.emergencyCleanup(usage, clearer)
	case regular && canGC:
		m.regularCleanup(usage, clearer)
	}
}

// adjustThresholdsLocked recomputes thresholds from current system state:
// small or stressed machines get lower thresholds, large idle ones higher.
func (m *Monitor) adjustThresholdsLocked() {
	totalMB, usedPct := readSystemMemory()
	base := 80.0
	switch {
	case totalMB < 2048:
		base = 70
	case totalMB < 4096:
		base = 75
	case totalMB > 16384:
		base = 85
	}
	if usedPct > 75 {
		base -= 5
	}
	if base < 50 {
		base = 50
	}
	if base != m.stats.Threshold {
		m.stats.Threshold = base
		m.stats.CriticalThreshold = base + 10
		if m.stats.CriticalThreshold > 95 {
			m.stats.CriticalThreshold = 95
		}
		m.stats.BatchThreshold = base - 10
		m.stats.ThresholdAdjustments++
	}
}

func (m *Monitor) emergencyCleanup(usage float64, clearer func()) {
	m.log.Error().Float64("usage_pct", usage).Msg("critical memory pressure, emergency cleanup")
	if clearer != nil {
		clearer()
	}
	runtime.GC()
	debug.FreeOSMemory()
	m.mu.Lock()
	m.lastGC = time.Now()
	m.stats.EmergencyCleanups++
	m.mu.Unlock()
}

func (m *Monitor) regularCleanup(usage float64, clearer func()) {
	m.log.Warn().Float64("usage_pct", usage).Msg("memory threshold exceeded, running cleanup")
	if clearer != nil {
		clearer()
	}
	runtime.GC()
	m.mu.Lock()
	m.lastGC = time.Now()
	m.stats.RegularCleanups++
	m.mu.Unlock()
}

// Stats returns a copy of the monitor's counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// CurrentUsage returns the latest sampled usage percentage, sampling once
// if the background worker has not run yet.
func (m *Monitor) CurrentUsage() float64 {
	m.mu.Lock()
	u, n := m.stats.CurrentUsage, m.stats.ChecksCount
	m.mu.Unlock()
	if n == 0 {
		u, _ = readUsage()
	}
	return u
}

// BatchThreshold returns the advisory threshold used when sizing batches.
func (m *Monitor) BatchThreshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.BatchThreshold
}

// TrackFunc runs fn while watching its memory footprint. When the heap
// increase exceeds an adaptive threshold derived from the function's
// history (floored at thresholdMB), a GC is run with severity matching
// current usage.
func (m *Monitor) TrackFunc(name string, thresholdMB float64, fn func() error) error {
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	err := fn()

	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	increaseMB := float64(int64(after.HeapAlloc)-int64(before.HeapAlloc)) / (1024 * 1024)
	if increaseMB < 0 {
		increaseMB = 0
	}

	m.mu.Lock()
	hist := append(m.funcHistory[name], increaseMB)
	if len(hist) > 20 {
		hist = hist[len(hist)-20:]
	}
	m.funcHistory[name] = hist
	var sum float64
	for _, v := range hist {
		sum += v
	}
	adaptive := sum / float64(len(hist)) * 1.5
	if adaptive < thresholdMB {
		adaptive = thresholdMB
	}
	m.mu.Unlock()

	if increaseMB > adaptive {
		usage := m.CurrentUsage()
		m.log.Debug().Str("func", name).Float64("increase_mb", increaseMB).Msg("memory-heavy call, collecting")
		runtime.GC()
		if usage >= m.opts.CriticalThreshold {
			debug.FreeOSMemory()
		}
	}
	return err
}

// readUsage returns process RSS as a percent of total system memory and
// the free system memory in MB.
func readUsage() (pct float64, availMB float64) {
	totalMB, _ := readSystemMemory()
	rssMB := readProcessRSSMB()
	if totalMB > 0 {
		pct = rssMB / totalMB * 100
	}
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err == nil {
		availMB = float64(si.Freeram) * float64(si.Unit) / (1024 * 1024)
	}
	return pct, availMB
}

func readSystemMemory() (totalMB, usedPct float64) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, 0
	}
	total := float64(si.Totalram) * float64(si.Unit)
	free := float64(si.Freeram) * float64(si.Unit)
	totalMB = total / (1024 * 1024)
	if total > 0 {
		usedPct = (total - free) / total * 100
	}
	return totalMB, usedPct
}

// readProcessRSSMB reads resident set size from /proc/self/statm, falling
// back to the Go heap when procfs is unavailable.
func readProcessRSSMB() float64 {
	data, err := os.ReadFile("/proc/self/statm")
	if err == nil {
		fields := strings.Fields(string(data))
		if len(fields) >= 2 {
			if pages, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				return float64(pages*int64(os.Getpagesize())) / (1024 * 1024)
			}
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapSys) / (1024 * 1024)
}
