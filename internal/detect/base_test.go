// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"testing"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// testPage builds one page whose words sit at predictable coordinates:
// word i spans x [i*50, i*50+40] on the y 700..712 band.
func testPage(words ...string) document.Page {
	p := document.Page{Number: 1}
	for i, w := range words {
		x := float64(i * 50)
		p.Words = append(p.Words, document.Word{Text: w, X0: x, Y0: 700, X1: x + 40, Y1: 712})
	}
	return p
}

func TestStandardizeEntityRecoversText(t *testing.T) {
	full := "call Kari Nordmann today"
	ent, err := StandardizeEntity(RawEntity{Label: "PERSON-H", Start: 5, End: 18, Score: 0.9}, full)
	if err != nil {
		t.Fatalf("StandardizeEntity: %v", err)
	}
	if ent.OriginalText != "Kari Nordmann" {
		t.Errorf("expected recovered text, got %q", ent.OriginalText)
	}
	if ent.EntityType != "PERSON-H" || ent.Score != 0.9 {
		t.Errorf("unexpected entity: %+v", ent)
	}
}

func TestStandardizeEntityRejectsBadOffsets(t *testing.T) {
	for _, raw := range []RawEntity{
		{Start: -1, End: 3},
		{Start: 3, End: 3},
		{Start: 0, End: 100},
	} {
		if _, err := StandardizeEntity(raw, "short text"); err == nil {
			t.Errorf("expected error for %+v", raw)
		}
	}
}

func TestStandardizeEntityClampsScore(t *testing.T) {
	ent, err := StandardizeEntity(RawEntity{Label: "X", Start: 0, End: 4, Score: 1.7, Text: "text"}, "text here")
	if err != nil {
		t.Fatal(err)
	}
	if ent.Score != 1 {
		t.Errorf("expected clamped score 1, got %v", ent.Score)
	}
}

func TestFilterByScoreEntityList(t *testing.T) {
	in := []document.Entity{{Score: 0.9}, {Score: 0.3}, {Score: 0.5}}
	out, err := FilterByScore(in, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	filtered := out.([]document.Entity)
	if len(filtered) != 2 {
		t.Errorf("expected 2 entities, got %d", len(filtered))
	}
	// Idempotent: a second pass changes nothing.
	again, err := FilterByScore(filtered, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.([]document.Entity)) != 2 {
		t.Error("second filter pass removed entities")
	}
}

func TestFilterByScoreMapping(t *testing.T) {
	in := document.RedactionMapping{Pages: []document.PageRedaction{
		{Page: 1, Sensitive: []document.SensitiveSpan{{Score: 0.2}, {Score: 0.8}}},
	}}
	out, err := FilterByScore(in, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	mapping := out.(document.RedactionMapping)
	if len(mapping.Pages[0].Sensitive) != 1 || mapping.Pages[0].Sensitive[0].Score != 0.8 {
		t.Errorf("unexpected mapping: %+v", mapping)
	}
}

func TestFilterByScoreInvalidShape(t *testing.T) {
	if _, err := FilterByScore("not a shape", 0.5); err == nil {
		t.Error("expected error for unsupported shape")
	}
}

func TestProcessSingleEntityMapsBoxes(t *testing.T) {
	page := testPage("Kari", "Nordmann", "Oslo")
	full, offsets := document.FullText(page)

	// "Kari Nordmann" covers the first two words.
	ent := document.Entity{EntityType: "PERSON-H", Start: 0, End: 13, Score: 0.9}
	processed, sensitive := ProcessSingleEntity(ent, full, offsets)
	if len(processed) != 1 || len(sensitive) != 1 {
		t.Fatalf("expected 1/1, got %d/%d", len(processed), len(sensitive))
	}
	box := sensitive[0].BBox
	if box.X0 != 0 || box.X1 != 90 {
		t.Errorf("composite box should span both words: %+v", box)
	}
	if processed[0].OriginalText != "Kari Nordmann" {
		t.Errorf("original text not recovered: %q", processed[0].OriginalText)
	}
}

func TestProcessSingleEntityBadRange(t *testing.T) {
	page := testPage("one")
	full, offsets := document.FullText(page)
	processed, sensitive := ProcessSingleEntity(document.Entity{Start: 50, End: 60}, full, offsets)
	if len(processed) != 0 || len(sensitive) != 0 {
		t.Error("out-of-range entity should yield empty results")
	}
}

func TestDedupeEntitiesKeepsHighestScore(t *testing.T) {
	in := []document.Entity{
		{EntityType: "EMAIL_H", Start: 0, End: 5, Score: 0.6},
		{EntityType: "EMAIL_H", Start: 0, End: 5, Score: 0.9},
		{EntityType: "PHONE_H", Start: 10, End: 15, Score: 0.5},
	}
	out := dedupeEntities(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(out))
	}
	if out[0].Score != 0.9 {
		t.Errorf("expected highest score kept first, got %+v", out[0])
	}
	if out[0].Start > out[1].Start {
		t.Error("output not sorted by start offset")
	}
}
