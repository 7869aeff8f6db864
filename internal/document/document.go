// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package document defines the data model shared by the extraction,
// detection and redaction layers: positioned words, pages, detected
// entities and the redaction mapping that drives the rewrite pass.
package document

import (
	"sort"
	"strings"
)

// BoundingBox is an axis-aligned rectangle in PDF points.
// X0 < X1 and Y0 < Y1; Y grows bottom to top as in PDF user space.
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Union returns the smallest box covering both b and other.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	out := b
	if other.X0 < out.X0 {
		out.X0 = other.X0
	}
	if other.Y0 < out.Y0 {
		out.Y0 = other.Y0
	}
	if other.X1 > out.X1 {
		out.X1 = other.X1
	}
	if other.Y1 > out.Y1 {
		out.Y1 = other.Y1
	}
	return out
}

// IsZero reports whether the box is the zero rectangle.
func (b BoundingBox) IsZero() bool {
	return b.X0 == 0 && b.Y0 == 0 && b.X1 == 0 && b.Y1 == 0
}

// A Word is a single positioned word on a page. Immutable after extraction.
type Word struct {
	Text string  `json:"text"`
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
}

// BBox returns the word's bounding box.
func (w Word) BBox() BoundingBox {
	return BoundingBox{X0: w.X0, Y0: w.Y0, X1: w.X1, Y1: w.Y1}
}

// An ImageRef is one image XObject referenced by a page, with its
// intrinsic pixel dimensions. Placement within the page is not tracked;
// callers that need to redact an image add a span covering its area to
// the redaction mapping.
type ImageRef struct {
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// A Page is an ordered sequence of words on one document page.
type Page struct {
	Number int        `json:"page"`
	Words  []Word     `json:"words"`
	Images []ImageRef `json:"images,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// ExtractedData is the positional text of a whole document.
//
// Invariant: len(Pages) + len(EmptyPages) == TotalDocumentPages, and every
// page kept in Pages has at least one word or carries a per-page error.
type ExtractedData struct {
	Pages              []Page            `json:"pages"`
	EmptyPages         []int             `json:"empty_pages"`
	ContentPages       int               `json:"content_pages"`
	TotalDocumentPages int               `json:"total_document_pages"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Valid reports whether the page accounting invariant holds.
func (d *ExtractedData) Valid() bool {
	if len(d.Pages)+len(d.EmptyPages) != d.TotalDocumentPages {
		return false
	}
	for _, p := range d.Pages {
		if len(p.Words) == 0 && p.Error == "" {
			return false
		}
	}
	return true
}

// An Entity is a detected span of sensitive text on one page.
// Start and End are character offsets into the page's reconstructed full
// text, Start < End, Score in [0,1].
type Entity struct {
	EntityType   string  `json:"entity_type"`
	Start        int     `json:"start"`
	End          int     `json:"end"`
	Score        float64 `json:"score"`
	OriginalText string  `json:"original_text"`
}

// A SensitiveSpan is an entity resolved to page coordinates, ready to
// drive the redaction pass.
type SensitiveSpan struct {
	EntityType   string      `json:"entity_type"`
	Score        float64     `json:"score"`
	BBox         BoundingBox `json:"bbox"`
	OriginalText string      `json:"original_text,omitempty"`
}

// PageRedaction lists the sensitive spans found on one page.
type PageRedaction struct {
	Page      int             `json:"page"`
	Sensitive []SensitiveSpan `json:"sensitive"`
}

// RedactionMapping is the per-document redaction plan, ordered by page.
type RedactionMapping struct {
	Pages []PageRedaction `json:"pages"`
}

// SortPages orders the mapping ascending by page number and gives each
// page's sensitive list a stable order (start is gone by this point, so
// order by bbox position, then entity type).
func (m *RedactionMapping) SortPages() {
	sort.Slice(m.Pages, func(i, j int) bool {
		return m.Pages[i].Page < m.Pages[j].Page
	})
}

// A WordOffset ties a word to its [Start,End) character range inside the
// page's reconstructed full text.
type WordOffset struct {
	Word  Word
	Start int
	End   int
}

// FullText reconstructs the page's text as words joined by single spaces
// and returns the offset mapping used to translate detector offsets back
// to word boxes.
func FullText(p Page) (string, []WordOffset) {
	if len(p.Words) == 0 {
		return "", nil
	}
	var sb strings.Builder
	offsets := make([]WordOffset, 0, len(p.Words))
	pos := 0
	for i, w := range p.Words {
		if i > 0 {
			sb.WriteByte(' ')
			pos++
		}
		start := pos
		sb.WriteString(w.Text)
		pos += len(w.Text)
		offsets = append(offsets, WordOffset{Word: w, Start: start, End: pos})
	}
	return sb.String(), offsets
}

// BoxesForRange returns the union bbox of every word whose character range
// intersects [start,end), plus how many words matched.
func BoxesForRange(offsets []WordOffset, start, end int) (BoundingBox, int) {
	var box BoundingBox
	matched := 0
	for _, wo := range offsets {
		if wo.Start < end && start < wo.End {
			if matched == 0 {
				box = wo.Word.BBox()
			} else {
				box = box.Union(wo.Word.BBox())
			}
			matched++
		}
	}
	return box, matched
}
