// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/parallel"
)

func newTestPatternDetector() *PatternDetector {
	return NewPatternDetector(parallel.NewRunner(nil, zerolog.Nop()), zerolog.Nop())
}

func TestPatternScanFindsStructuredIdentifiers(t *testing.T) {
	d := newTestPatternDetector()
	wanted := map[string]bool{"EMAIL_H": true, "NO_FODSELSNUMMER_H": true}
	found := d.scan("mail kari@example.com fnr 010203 45678 done", wanted)

	types := make(map[string]bool)
	for _, e := range found {
		types[e.EntityType] = true
	}
	if !types["EMAIL_H"] || !types["NO_FODSELSNUMMER_H"] {
		t.Errorf("expected email and national id, got %+v", found)
	}
}

func TestPatternScanHonorsWantedSet(t *testing.T) {
	d := newTestPatternDetector()
	found := d.scan("mail kari@example.com", map[string]bool{"PHONE_H": true})
	if len(found) != 0 {
		t.Errorf("unwanted entity types reported: %+v", found)
	}
}

func TestPatternDetectAsyncMapsToBoxes(t *testing.T) {
	d := newTestPatternDetector()
	data := &document.ExtractedData{
		Pages:              []document.Page{testPage("contact", "kari@example.com", "now")},
		ContentPages:       1,
		TotalDocumentPages: 1,
	}

	entities, mapping, err := d.DetectAsync(context.Background(), data, []string{"EMAIL_H"})
	if err != nil {
		t.Fatalf("DetectAsync: %v", err)
	}
	if len(entities) != 1 || entities[0].EntityType != "EMAIL_H" {
		t.Fatalf("expected one email entity, got %+v", entities)
	}
	if len(mapping.Pages) != 1 || len(mapping.Pages[0].Sensitive) != 1 {
		t.Fatalf("expected one mapped span, got %+v", mapping)
	}
	span := mapping.Pages[0].Sensitive[0]
	// The email is the second word: x 50..90.
	if span.BBox.X0 != 50 || span.BBox.X1 != 90 {
		t.Errorf("span box should cover the second word, got %+v", span.BBox)
	}
}

func TestPatternDetectAsyncRejectsUnknownEntity(t *testing.T) {
	d := newTestPatternDetector()
	data := &document.ExtractedData{
		Pages:              []document.Page{testPage("hello")},
		ContentPages:       1,
		TotalDocumentPages: 1,
	}
	if _, _, err := d.DetectAsync(context.Background(), data, []string{"NOT_A_TYPE"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestPatternDetectAsyncToleratesFailedPage(t *testing.T) {
	// One healthy page plus one page that failed to parse: detection must
	// still run over the healthy page instead of rejecting the document.
	d := newTestPatternDetector()
	data := &document.ExtractedData{
		Pages: []document.Page{
			testPage("contact", "kari@example.com", "now"),
			{Number: 2, Error: "page parse failure: damaged content"},
		},
		ContentPages:       1,
		TotalDocumentPages: 2,
	}

	entities, mapping, err := d.DetectAsync(context.Background(), data, []string{"EMAIL_H"})
	if err != nil {
		t.Fatalf("DetectAsync: %v", err)
	}
	if len(entities) != 1 || entities[0].EntityType != "EMAIL_H" {
		t.Fatalf("healthy page not detected: %+v", entities)
	}
	for _, p := range mapping.Pages {
		if p.Page == 2 && len(p.Sensitive) != 0 {
			t.Errorf("failed page reported spans: %+v", p)
		}
	}
}

func TestPatternDetectAsyncInvalidInput(t *testing.T) {
	d := newTestPatternDetector()
	if _, _, err := d.DetectAsync(context.Background(), nil, nil); err == nil {
		t.Error("expected error for nil input")
	}
}
