// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdfproc

import (
	"testing"

	"github.com/Geek0x0/pdf"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

func TestMarkPagesSkippedKeepsAccounting(t *testing.T) {
	// A batch abandoned at page 3 of 4: the remaining pages must still be
	// accounted for, as failed pages, so the document stays valid.
	data := &document.ExtractedData{
		Pages: []document.Page{
			{Number: 1, Words: []document.Word{{Text: "hello"}}},
		},
		EmptyPages:         []int{2},
		TotalDocumentPages: 4,
	}
	markPagesSkipped(data, 3, 4, "page skipped: batch time budget exhausted")

	if len(data.Pages) != 3 {
		t.Fatalf("expected 3 kept pages, got %d", len(data.Pages))
	}
	if !data.Valid() {
		t.Error("page accounting broken after batch abandonment")
	}
	for _, p := range data.Pages[1:] {
		if p.Error == "" {
			t.Errorf("skipped page %d has no error", p.Number)
		}
		if len(p.Words) != 0 {
			t.Errorf("skipped page %d should have no words", p.Number)
		}
	}
	if data.Pages[1].Number != 3 || data.Pages[2].Number != 4 {
		t.Errorf("wrong pages marked: %+v", data.Pages[1:])
	}
}

func TestImagesOnPageWithoutResources(t *testing.T) {
	if images := ImagesOnPage(pdf.Page{}); len(images) != 0 {
		t.Errorf("page without resources reported images: %+v", images)
	}
}
