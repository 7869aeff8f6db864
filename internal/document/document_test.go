// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package document

import "testing"

func threeWordPage() Page {
	return Page{Number: 1, Words: []Word{
		{Text: "Ola", X0: 10, Y0: 700, X1: 30, Y1: 712},
		{Text: "Nordmann", X0: 35, Y0: 700, X1: 90, Y1: 712},
		{Text: "Oslo", X0: 95, Y0: 700, X1: 120, Y1: 712},
	}}
}

func TestFullTextJoinsWithOffsets(t *testing.T) {
	text, offsets := FullText(threeWordPage())
	if text != "Ola Nordmann Oslo" {
		t.Fatalf("text = %q", text)
	}
	if len(offsets) != 3 {
		t.Fatalf("offsets = %d", len(offsets))
	}
	for _, wo := range offsets {
		if got := text[wo.Start:wo.End]; got != wo.Word.Text {
			t.Errorf("offset [%d,%d) addresses %q, want %q", wo.Start, wo.End, got, wo.Word.Text)
		}
	}
}

func TestFullTextEmptyPage(t *testing.T) {
	text, offsets := FullText(Page{Number: 1})
	if text != "" || offsets != nil {
		t.Errorf("empty page: text=%q offsets=%v", text, offsets)
	}
}

func TestBoxesForRangeUnionsIntersectingWords(t *testing.T) {
	_, offsets := FullText(threeWordPage())
	// "Ola Nordmann" covers the first two words.
	box, matched := BoxesForRange(offsets, 0, 12)
	if matched != 2 {
		t.Fatalf("matched = %d, want 2", matched)
	}
	want := BoundingBox{X0: 10, Y0: 700, X1: 90, Y1: 712}
	if box != want {
		t.Errorf("box = %+v, want %+v", box, want)
	}
}

func TestBoxesForRangeNoMatch(t *testing.T) {
	_, offsets := FullText(threeWordPage())
	box, matched := BoxesForRange(offsets, 100, 110)
	if matched != 0 || !box.IsZero() {
		t.Errorf("out-of-range lookup matched %d words: %+v", matched, box)
	}
}

func TestBoundingBoxUnion(t *testing.T) {
	a := BoundingBox{X0: 10, Y0: 10, X1: 20, Y1: 20}
	b := BoundingBox{X0: 5, Y0: 15, X1: 25, Y1: 18}
	got := a.Union(b)
	want := BoundingBox{X0: 5, Y0: 10, X1: 25, Y1: 20}
	if got != want {
		t.Errorf("union = %+v, want %+v", got, want)
	}
}

func TestExtractedDataValid(t *testing.T) {
	data := &ExtractedData{
		Pages:              []Page{threeWordPage()},
		EmptyPages:         []int{2},
		TotalDocumentPages: 2,
	}
	if !data.Valid() {
		t.Error("accounting holds, Valid() = false")
	}

	data.TotalDocumentPages = 3
	if data.Valid() {
		t.Error("page counts disagree, Valid() = true")
	}

	data.TotalDocumentPages = 2
	data.Pages = append(data.Pages, Page{Number: 3})
	data.TotalDocumentPages = 3
	if data.Valid() {
		t.Error("kept page without words, Valid() = true")
	}
}

func TestExtractedDataValidKeepsFailedPages(t *testing.T) {
	// A page that failed to parse has no words but carries an error; it
	// still counts toward the page accounting.
	data := &ExtractedData{
		Pages: []Page{
			threeWordPage(),
			{Number: 2, Error: "page parse failure: damaged content"},
		},
		TotalDocumentPages: 2,
	}
	if !data.Valid() {
		t.Error("failed page should not invalidate the document")
	}

	data.Pages[1].Error = ""
	if data.Valid() {
		t.Error("wordless page without an error must invalidate the document")
	}
}

func TestSortPagesOrdersAscending(t *testing.T) {
	m := RedactionMapping{Pages: []PageRedaction{{Page: 3}, {Page: 1}, {Page: 2}}}
	m.SortPages()
	for i, want := range []int{1, 2, 3} {
		if m.Pages[i].Page != want {
			t.Fatalf("pages out of order: %+v", m.Pages)
		}
	}
}
