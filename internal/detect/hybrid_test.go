// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// stubDetector answers fixed results, or fails, or panics.
type stubDetector struct {
	name     string
	entities []document.Entity
	mapping  document.RedactionMapping
	err      error
	panics   bool
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) DetectAsync(_ context.Context, _ *document.ExtractedData, _ []string) ([]document.Entity, document.RedactionMapping, error) {
	if s.panics {
		panic("stub detector exploded")
	}
	if s.err != nil {
		return nil, document.RedactionMapping{}, s.err
	}
	return s.entities, s.mapping, nil
}

func (s *stubDetector) Status() DetectorStatus {
	return DetectorStatus{Engine: s.name, Initialized: true, ModelAvailable: true}
}

func hybridInput() *document.ExtractedData {
	return &document.ExtractedData{
		Pages:              []document.Page{testPage("ord")},
		ContentPages:       1,
		TotalDocumentPages: 1,
	}
}

func TestHybridMergesPerPage(t *testing.T) {
	a := &stubDetector{
		name:     "gliner",
		entities: []document.Entity{{EntityType: "PERSON-H", Start: 0, End: 3}},
		mapping: document.RedactionMapping{Pages: []document.PageRedaction{
			{Page: 1, Sensitive: []document.SensitiveSpan{{EntityType: "PERSON-H"}}},
			{Page: 3, Sensitive: []document.SensitiveSpan{{EntityType: "PERSON-H"}}},
		}},
	}
	b := &stubDetector{
		name:     "presidio",
		entities: []document.Entity{{EntityType: "EMAIL_H", Start: 5, End: 9}},
		mapping: document.RedactionMapping{Pages: []document.PageRedaction{
			{Page: 1, Sensitive: []document.SensitiveSpan{{EntityType: "EMAIL_H"}}},
		}},
	}
	h := NewHybridDetector([]Detector{a, b}, zerolog.Nop())

	entities, mapping, err := h.DetectAsync(context.Background(), hybridInput(), nil)
	if err != nil {
		t.Fatalf("DetectAsync: %v", err)
	}
	if len(entities) != 2 {
		t.Errorf("expected combined entities from both engines, got %d", len(entities))
	}
	if len(mapping.Pages) != 2 || mapping.Pages[0].Page != 1 || mapping.Pages[1].Page != 3 {
		t.Fatalf("pages must be merged and sorted ascending: %+v", mapping.Pages)
	}
	// Page 1 concatenates spans across engines.
	if len(mapping.Pages[0].Sensitive) != 2 {
		t.Errorf("page 1 should hold spans from both engines, got %d", len(mapping.Pages[0].Sensitive))
	}
	if len(mapping.Pages[1].Sensitive) != 1 {
		t.Errorf("page 3 should hold one span, got %d", len(mapping.Pages[1].Sensitive))
	}
}

func TestHybridPartialFailure(t *testing.T) {
	ok := &stubDetector{
		name:     "presidio",
		entities: []document.Entity{{EntityType: "EMAIL_H"}},
		mapping: document.RedactionMapping{Pages: []document.PageRedaction{
			{Page: 1, Sensitive: []document.SensitiveSpan{{EntityType: "EMAIL_H"}}},
		}},
	}
	failing := &stubDetector{name: "gemini", err: errors.New("quota exhausted")}
	h := NewHybridDetector([]Detector{failing, ok}, zerolog.Nop())

	entities, mapping, err := h.DetectAsync(context.Background(), hybridInput(), nil)
	if err != nil {
		t.Fatalf("one failing engine must not fail the run: %v", err)
	}
	if len(entities) != 1 || len(mapping.Pages) != 1 {
		t.Errorf("healthy engine's results lost: %+v / %+v", entities, mapping)
	}
}

func TestHybridPanicContained(t *testing.T) {
	ok := &stubDetector{
		name:     "presidio",
		entities: []document.Entity{{EntityType: "EMAIL_H"}},
	}
	h := NewHybridDetector([]Detector{&stubDetector{name: "gliner", panics: true}, ok}, zerolog.Nop())

	entities, _, err := h.DetectAsync(context.Background(), hybridInput(), nil)
	if err != nil {
		t.Fatalf("panicking engine must not fail the run: %v", err)
	}
	if len(entities) != 1 {
		t.Errorf("expected surviving engine's entities, got %d", len(entities))
	}
}

func TestHybridNoDetectors(t *testing.T) {
	h := NewHybridDetector(nil, zerolog.Nop())
	entities, mapping, err := h.DetectAsync(context.Background(), hybridInput(), nil)
	if err != nil {
		t.Fatalf("DetectAsync: %v", err)
	}
	if len(entities) != 0 || len(mapping.Pages) != 0 {
		t.Error("expected empty results without engines")
	}
}

func TestHybridCapsEngineCount(t *testing.T) {
	var dets []Detector
	for i := 0; i < 6; i++ {
		dets = append(dets, &stubDetector{name: "e"})
	}
	h := NewHybridDetector(dets, zerolog.Nop())
	if len(h.detectors) != maxHybridEngines {
		t.Errorf("expected %d engines, got %d", maxHybridEngines, len(h.detectors))
	}
}
