// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package parallel is the bounded-concurrency fan-out core: per-item and
// batch timeouts, index-preserving partial results, progress reporting and
// memory-pressure-aware worker sizing.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/memwatch"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/syncx"
)

// Options configures one fan-out operation.
type Options struct {
	// MaxWorkers fixes the worker count when Adaptive is false (clamped to
	// the item count). When zero or Adaptive, the count is computed from
	// CPU count and memory pressure.
	MaxWorkers int
	Adaptive   bool

	// MinWorkers/MaxWorkersCap clamp the adaptive computation (defaults 2..8).
	MinWorkers    int
	MaxWorkersCap int

	// MemoryPerItemMB, when set, further limits workers by available memory.
	MemoryPerItemMB float64

	ItemTimeout  time.Duration // per-item budget (default 600s)
	BatchTimeout time.Duration // whole-operation budget (default 600s)

	OperationID string
	// Progress, when set, is invoked at most every 5 seconds with
	// (completed, total, elapsed).
	Progress func(completed, total int, elapsed time.Duration)
}

// Result pairs an input index with its outcome. OK is false when the item
// failed, panicked or timed out; Value is then the zero value.
type Result[R any] struct {
	Index int
	Value R
	OK    bool
}

// Runner carries the shared collaborators of all fan-out operations.
type Runner struct {
	monitor *memwatch.Monitor
	log     zerolog.Logger
}

// NewRunner returns a runner. monitor may be nil, disabling memory-aware
// worker sizing.
func NewRunner(monitor *memwatch.Monitor, log zerolog.Logger) *Runner {
	return &Runner{monitor: monitor, log: log.With().Str("component", "parallel").Logger()}
}

const progressInterval = 5 * time.Second

// Map runs fn over items with bounded concurrency and returns one result
// per input index, ordered by index. On batch timeout, completed items
// keep their results and the rest report OK=false.
func Map[T, R any](ctx context.Context, r *Runner, items []T, fn func(context.Context, T) (R, error), opts Options) []Result[R] {
	results := make([]Result[R], len(items))
	for i := range results {
		results[i] = Result[R]{Index: i}
	}
	if len(items) == 0 {
		return results
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 600 * time.Second
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 600 * time.Second
	}

	workers := r.workerCount(len(items), opts)
	sem := syncx.NewSemaphore("parallel_"+opts.OperationID, workers)

	batchCtx, cancel := context.WithTimeout(ctx, opts.BatchTimeout)
	defer cancel()

	start := time.Now()
	var completed, failed atomic.Int64

	// Workers publish into slots and set the flag last. The returned slice
	// is written only below, after the flag check, so a worker outliving a
	// batch timeout can never mutate what the caller holds.
	slots := make([]R, len(items))
	flags := make([]atomic.Bool, len(items))

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if !sem.AcquireContext(batchCtx) {
				failed.Add(1)
				return
			}
			defer sem.Release()

			itemCtx, itemCancel := context.WithTimeout(batchCtx, opts.ItemTimeout)
			defer itemCancel()

			value, err := runItem(itemCtx, items[idx], fn)
			if err != nil {
				failed.Add(1)
				completed.Add(1)
				return
			}
			slots[idx] = value
			flags[idx].Store(true)
			completed.Add(1)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if opts.Progress != nil {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
	wait:
		for {
			select {
			case <-done:
				opts.Progress(int(completed.Load()), len(items), time.Since(start))
				break wait
			case <-batchCtx.Done():
				break wait
			case <-ticker.C:
				opts.Progress(int(completed.Load()), len(items), time.Since(start))
			}
		}
	} else {
		select {
		case <-done:
		case <-batchCtx.Done():
		}
	}

	if batchCtx.Err() != nil {
		r.log.Warn().
			Str("operation_id", opts.OperationID).
			Int64("completed", completed.Load()).
			Int("total", len(items)).
			Msg("batch timeout, returning partial results")
	}
	// Only slots whose flag is set were fully published; everything else
	// stays the zero-value failure result.
	for i := range results {
		if flags[i].Load() {
			results[i] = Result[R]{Index: i, Value: slots[i], OK: true}
		}
	}
	if n := failed.Load(); n > 0 {
		r.log.Debug().Str("operation_id", opts.OperationID).Int64("failed", n).Msg("items failed")
	}
	return results
}

// runItem isolates fn so a panic becomes an error for that item only.
func runItem[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (value R, err error) {
	type outcome struct {
		value R
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				var zero R
				ch <- outcome{zero, &PanicError{Value: p}}
			}
		}()
		v, e := fn(ctx, item)
		ch <- outcome{v, e}
	}()
	select {
	case out := <-ch:
		return out.value, out.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// PanicError wraps a recovered panic from a worker item.
type PanicError struct{ Value any }

func (e *PanicError) Error() string { return "panic during parallel item" }

// workerCount computes the worker pool size per Options.
func (r *Runner) workerCount(items int, opts Options) int {
	if opts.MaxWorkers > 0 && !opts.Adaptive {
		if opts.MaxWorkers > items {
			return items
		}
		return opts.MaxWorkers
	}

	min := opts.MinWorkers
	if min <= 0 {
		min = 2
	}
	max := opts.MaxWorkersCap
	if max <= 0 {
		max = 8
	}

	workers := runtime.NumCPU()
	if r.monitor != nil {
		usage := r.monitor.CurrentUsage()
		// Shrink toward the minimum as memory pressure climbs.
		factor := (100 - usage) / 100
		if factor < 0.25 {
			factor = 0.25
		}
		workers = int(float64(workers) * factor)

		if opts.MemoryPerItemMB > 0 {
			if availMB := r.monitor.Stats().AvailableMemoryMB; availMB > 0 {
				byMemory := int(availMB / opts.MemoryPerItemMB)
				if byMemory > 0 && byMemory < workers {
					workers = byMemory
				}
			}
		}
	}
	if workers < min {
		workers = min
	}
	if workers > max {
		workers = max
	}
	if workers > items {
		workers = items
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// PageOutcome is the per-page result of a detection fan-out.
type PageOutcome struct {
	Redaction document.PageRedaction
	Entities  []document.Entity
}

// ProcessPagesInParallel fans out over pages with a local semaphore. A
// page whose fn errors contributes an empty sensitive list rather than
// failing the document.
func ProcessPagesInParallel(ctx context.Context, r *Runner, pages []document.Page,
	fn func(context.Context, document.Page) (PageOutcome, error), maxWorkers int, itemTimeout time.Duration) []PageOutcome {

	opts := Options{MaxWorkers: maxWorkers, Adaptive: maxWorkers <= 0, ItemTimeout: itemTimeout, BatchTimeout: itemTimeout, OperationID: "pages"}
	results := Map(ctx, r, pages, fn, opts)

	outcomes := make([]PageOutcome, len(pages))
	for i, res := range results {
		if res.OK {
			outcomes[i] = res.Value
			continue
		}
		outcomes[i] = PageOutcome{
			Redaction: document.PageRedaction{Page: pages[i].Number, Sensitive: []document.SensitiveSpan{}},
			Entities:  []document.Entity{},
		}
	}
	return outcomes
}

// EntityBatchProcessor is implemented by detectors that can post-process a
// batch of raw entities for one page.
type EntityBatchProcessor interface {
	ProcessEntitiesForPage(ctx context.Context, page int, fullText string, mapping []document.WordOffset,
		entities []document.Entity) ([]document.Entity, []document.SensitiveSpan, error)
}

// ProcessEntitiesInParallel splits entities into fixed-size batches and
// runs the detector's per-page processing over them concurrently,
// concatenating results in batch order. Empty input yields empty output.
func ProcessEntitiesInParallel(ctx context.Context, r *Runner, det EntityBatchProcessor,
	fullText string, mapping []document.WordOffset, entities []document.Entity,
	pageNumber, batchSize int) ([]document.Entity, []document.SensitiveSpan) {

	if len(entities) == 0 {
		return []document.Entity{}, []document.SensitiveSpan{}
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	var batches [][]document.Entity
	for start := 0; start < len(entities); start += batchSize {
		end := start + batchSize
		if end > len(entities) {
			end = len(entities)
		}
		batches = append(batches, entities[start:end])
	}

	type batchOut struct {
		processed []document.Entity
		sensitive []document.SensitiveSpan
	}
	results := Map(ctx, r, batches, func(ctx context.Context, batch []document.Entity) (batchOut, error) {
		processed, sensitive, err := det.ProcessEntitiesForPage(ctx, pageNumber, fullText, mapping, batch)
		if err != nil {
			return batchOut{}, err
		}
		return batchOut{processed, sensitive}, nil
	}, Options{MaxWorkers: 4, OperationID: "entities"})

	var processed []document.Entity
	var sensitive []document.SensitiveSpan
	for _, res := range results {
		if res.OK {
			processed = append(processed, res.Value.processed...)
			sensitive = append(sensitive, res.Value.sensitive...)
		}
	}
	if processed == nil {
		processed = []document.Entity{}
	}
	if sensitive == nil {
		sensitive = []document.SensitiveSpan{}
	}
	return processed, sensitive
}
