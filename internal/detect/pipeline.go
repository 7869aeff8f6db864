// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"context"
	"time"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/minimize"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/parallel"
)

// detectOverPages is the page fan-out every engine shares: minimize,
// reconstruct per-page text, run the engine's text function, map entities
// to boxes in batches, merge sorted by page.
func detectOverPages(ctx context.Context, runner *parallel.Runner, data *document.ExtractedData,
	proc parallel.EntityBatchProcessor, textFn func(ctx context.Context, text string) []document.Entity,
	pageTimeout time.Duration, batchSize int) ([]document.Entity, document.RedactionMapping) {

	minimized := minimize.MinimizeExtracted(data, minimize.Options{RequiredFieldsOnly: true})

	outcomes := parallel.ProcessPagesInParallel(ctx, runner, minimized.Pages,
		func(ctx context.Context, page document.Page) (parallel.PageOutcome, error) {
			fullText, offsets := document.FullText(page)
			raw := textFn(ctx, fullText)
			if len(raw) == 0 {
				return parallel.PageOutcome{
					Redaction: document.PageRedaction{Page: page.Number, Sensitive: []document.SensitiveSpan{}},
					Entities:  []document.Entity{},
				}, nil
			}
			processed, sensitive := parallel.ProcessEntitiesInParallel(ctx, runner, proc,
				fullText, offsets, raw, page.Number, batchSize)
			return parallel.PageOutcome{
				Redaction: document.PageRedaction{Page: page.Number, Sensitive: sensitive},
				Entities:  processed,
			}, nil
		}, 0, pageTimeout)

	var entities []document.Entity
	mapping := document.RedactionMapping{Pages: make([]document.PageRedaction, 0, len(outcomes))}
	for _, o := range outcomes {
		entities = append(entities, o.Entities...)
		mapping.Pages = append(mapping.Pages, o.Redaction)
	}
	mapping.SortPages()
	if entities == nil {
		entities = []document.Entity{}
	}
	return entities, mapping
}
