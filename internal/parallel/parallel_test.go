// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parallel

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

func newTestRunner() *Runner {
	return NewRunner(nil, zerolog.Nop())
}

func TestMapPreservesIndices(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	results := Map(context.Background(), newTestRunner(), items, func(_ context.Context, n int) (string, error) {
		return strconv.Itoa(n * 2), nil
	}, Options{MaxWorkers: 4})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	seen := make(map[int]bool)
	for i, res := range results {
		if res.Index != i {
			t.Errorf("result %d has index %d", i, res.Index)
		}
		if seen[res.Index] {
			t.Errorf("duplicate index %d", res.Index)
		}
		seen[res.Index] = true
		if !res.OK || res.Value != strconv.Itoa(i*2) {
			t.Errorf("unexpected result at %d: %+v", i, res)
		}
	}
}

func TestMapItemTimeout(t *testing.T) {
	// Five slow items against a 100ms per-item budget: every result empty.
	items := []int{0, 1, 2, 3, 4}
	start := time.Now()
	results := Map(context.Background(), newTestRunner(), items, func(ctx context.Context, n int) (int, error) {
		select {
		case <-time.After(time.Second):
			return n, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, Options{MaxWorkers: 5, ItemTimeout: 100 * time.Millisecond, BatchTimeout: 2 * time.Second})

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeouts should not wait for slow items, took %v", elapsed)
	}
	for i, res := range results {
		if res.OK {
			t.Errorf("item %d should have timed out", i)
		}
		if res.Index != i {
			t.Errorf("index %d mismatched: %d", i, res.Index)
		}
	}
}

func TestMapBatchTimeoutPartialResults(t *testing.T) {
	// One worker: the first item finishes, the slow second one trips the
	// batch deadline, later items never run. Indices must be preserved.
	items := []int{0, 1, 2}
	results := Map(context.Background(), newTestRunner(), items, func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			return n, nil
		}
		select {
		case <-time.After(time.Second):
			return n, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, Options{MaxWorkers: 1, ItemTimeout: time.Second, BatchTimeout: 150 * time.Millisecond})

	if !results[0].OK || results[0].Value != 0 {
		t.Errorf("completed item lost: %+v", results[0])
	}
	if results[1].OK || results[2].OK {
		t.Error("incomplete items must report failure")
	}
}

func TestMapResultsStableAfterBatchTimeout(t *testing.T) {
	// Items completing around the batch deadline race the return path. An
	// OK result must always carry its published value, never a zero one,
	// and the returned slice must not change once Map has returned.
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	results := Map(context.Background(), newTestRunner(), items, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(10*n) * time.Millisecond)
		return n + 100, nil
	}, Options{MaxWorkers: 8, ItemTimeout: time.Second, BatchTimeout: 35 * time.Millisecond})

	snapshot := append([]Result[int](nil), results...)
	for i, res := range snapshot {
		if res.OK && res.Value != i+100 {
			t.Errorf("item %d reported OK with a torn value: %+v", i, res)
		}
		if !res.OK && res.Value != 0 {
			t.Errorf("item %d failed but carries a value: %+v", i, res)
		}
	}

	// Give the stragglers time to finish, then verify nothing moved.
	time.Sleep(200 * time.Millisecond)
	for i := range results {
		if results[i] != snapshot[i] {
			t.Errorf("result %d mutated after return: %+v vs %+v", i, results[i], snapshot[i])
		}
	}
}

func TestMapPanicContained(t *testing.T) {
	items := []int{0, 1, 2}
	results := Map(context.Background(), newTestRunner(), items, func(_ context.Context, n int) (int, error) {
		if n == 1 {
			panic("exploding item")
		}
		return n * 10, nil
	}, Options{MaxWorkers: 3})

	if !results[0].OK || !results[2].OK {
		t.Error("healthy items affected by sibling panic")
	}
	if results[1].OK {
		t.Error("panicked item should report failure")
	}
}

func TestMapEmptyInput(t *testing.T) {
	results := Map(context.Background(), newTestRunner(), nil, func(_ context.Context, n int) (int, error) {
		return n, nil
	}, Options{})
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestProcessPagesErrorYieldsEmptySensitive(t *testing.T) {
	pages := []document.Page{
		{Number: 1, Words: []document.Word{{Text: "a"}}},
		{Number: 2, Words: []document.Word{{Text: "b"}}},
	}
	outcomes := ProcessPagesInParallel(context.Background(), newTestRunner(), pages,
		func(_ context.Context, p document.Page) (PageOutcome, error) {
			if p.Number == 2 {
				return PageOutcome{}, errors.New("page failed")
			}
			return PageOutcome{
				Redaction: document.PageRedaction{Page: p.Number, Sensitive: []document.SensitiveSpan{{EntityType: "EMAIL_H"}}},
			}, nil
		}, 2, time.Second)

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if len(outcomes[0].Redaction.Sensitive) != 1 {
		t.Error("successful page lost its spans")
	}
	if outcomes[1].Redaction.Page != 2 || len(outcomes[1].Redaction.Sensitive) != 0 {
		t.Errorf("failed page should yield empty sensitive list: %+v", outcomes[1].Redaction)
	}
}

type stubBatchProcessor struct {
	calls atomic.Int32
}

func (s *stubBatchProcessor) ProcessEntitiesForPage(_ context.Context, page int, fullText string,
	_ []document.WordOffset, entities []document.Entity) ([]document.Entity, []document.SensitiveSpan, error) {
	s.calls.Add(1)
	spans := make([]document.SensitiveSpan, len(entities))
	for i, e := range entities {
		spans[i] = document.SensitiveSpan{EntityType: e.EntityType, Score: e.Score}
	}
	return entities, spans, nil
}

func TestProcessEntitiesBatching(t *testing.T) {
	entities := make([]document.Entity, 25)
	for i := range entities {
		entities[i] = document.Entity{EntityType: "PERSON-H", Start: i, End: i + 1, Score: 0.9}
	}
	proc := &stubBatchProcessor{}
	processed, sensitive := ProcessEntitiesInParallel(context.Background(), newTestRunner(), proc,
		"text", nil, entities, 1, 10)

	if len(processed) != 25 || len(sensitive) != 25 {
		t.Errorf("expected 25 processed/sensitive, got %d/%d", len(processed), len(sensitive))
	}
}

func TestProcessEntitiesEmptyInput(t *testing.T) {
	processed, sensitive := ProcessEntitiesInParallel(context.Background(), newTestRunner(), &stubBatchProcessor{},
		"", nil, nil, 1, 10)
	if len(processed) != 0 || len(sensitive) != 0 {
		t.Error("empty input must return empty result")
	}
}

func TestProgressCallbackInvoked(t *testing.T) {
	var calls int
	Map(context.Background(), newTestRunner(), []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		return n, nil
	}, Options{MaxWorkers: 3, Progress: func(completed, total int, _ time.Duration) {
		calls++
		if total != 3 {
			t.Errorf("unexpected total %d", total)
		}
	}})
	if calls == 0 {
		t.Error("expected final progress callback")
	}
}
