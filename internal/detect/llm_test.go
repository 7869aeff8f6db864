// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/parallel"
)

func TestParseLLMEntitiesLocatesOccurrences(t *testing.T) {
	text := "Kari og Kari igjen, uten Ola."
	answer := `{"entities":[{"entity_type":"PERSON-H","text":"Kari","score":0.9}]}`
	found := parseLLMEntities(answer, text)
	if len(found) != 2 {
		t.Fatalf("expected both occurrences, got %d: %+v", len(found), found)
	}
	for _, e := range found {
		if text[e.Start:e.End] != "Kari" {
			t.Errorf("offsets wrong: %q", text[e.Start:e.End])
		}
	}
}

func TestParseLLMEntitiesDropsInventedValues(t *testing.T) {
	answer := `{"entities":[{"entity_type":"PERSON-H","text":"Fantomet","score":0.9}]}`
	if found := parseLLMEntities(answer, "ingen navn her"); len(found) != 0 {
		t.Errorf("invented value must be dropped: %+v", found)
	}
}

func TestParseLLMEntitiesToleratesFences(t *testing.T) {
	answer := "```json\n{\"entities\":[{\"entity_type\":\"EMAIL_H\",\"text\":\"a@b.no\",\"score\":0.8}]}\n```"
	if found := parseLLMEntities(answer, "skriv til a@b.no snart"); len(found) != 1 {
		t.Errorf("fenced answer not parsed: %+v", found)
	}
}

func TestParseLLMEntitiesGarbage(t *testing.T) {
	if found := parseLLMEntities("not json at all", "text"); found != nil {
		t.Errorf("expected nil for unparsable answer, got %+v", found)
	}
}

func TestLLMDetectAsyncEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		answer := `{"entities":[{"entity_type":"PERSON-H","text":"Kari","score":0.9}]}`
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": answer}}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	d := NewLLMDetector(LLMOptions{BaseURL: srv.URL, Model: "test", APIKey: "test-key"},
		parallel.NewRunner(nil, zerolog.Nop()), zerolog.Nop())
	data := &document.ExtractedData{
		Pages:              []document.Page{testPage("Hei", "Kari")},
		ContentPages:       1,
		TotalDocumentPages: 1,
	}
	entities, mapping, err := d.DetectAsync(context.Background(), data, []string{"PERSON-H"})
	if err != nil {
		t.Fatalf("DetectAsync: %v", err)
	}
	if len(entities) != 1 || entities[0].OriginalText != "Kari" {
		t.Fatalf("unexpected entities: %+v", entities)
	}
	if len(mapping.Pages) != 1 || len(mapping.Pages[0].Sensitive) != 1 {
		t.Errorf("unexpected mapping: %+v", mapping)
	}
}

func TestLLMDetectAsyncNoEndpoint(t *testing.T) {
	d := NewLLMDetector(LLMOptions{}, parallel.NewRunner(nil, zerolog.Nop()), zerolog.Nop())
	entities, mapping, err := d.DetectAsync(context.Background(), hybridInput(), nil)
	if err != nil {
		t.Fatalf("DetectAsync: %v", err)
	}
	if len(entities) != 0 || len(mapping.Pages) != 0 {
		t.Error("expected empty short-circuit without endpoint")
	}
}
