// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package detect is the pluggable entity-detection framework: a shared
// normalization base, a transformer-backed detector with sentence
// chunking, a rule-based pattern detector, an LLM-backed detector and the
// hybrid orchestrator that runs several engines in parallel.
package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// RawEntity is the engine-native detection form before normalization.
type RawEntity struct {
	Label string  `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Detector is one detection engine.
type Detector interface {
	Name() string
	DetectAsync(ctx context.Context, data *document.ExtractedData, requested []string) ([]document.Entity, document.RedactionMapping, error)
	Status() DetectorStatus
}

// DetectorStatus is a point-in-time snapshot of one engine.
type DetectorStatus struct {
	Engine             string        `json:"engine"`
	Initialized        bool          `json:"initialized"`
	InitializationTime time.Duration `json:"initialization_time_ms"`
	LastUsed           time.Time     `json:"last_used,omitempty"`
	TotalCalls         int64         `json:"total_calls"`
	ModelAvailable     bool          `json:"model_available"`
	ModelDirExists     bool          `json:"model_dir_exists"`
}

// StandardizeEntity converts an engine-native entity into the internal
// shape. The offsets must address fullText; when the engine did not
// supply the matched text it is recovered from the offsets.
func StandardizeEntity(raw RawEntity, fullText string) (document.Entity, error) {
	if raw.Start < 0 || raw.End > len(fullText) || raw.Start >= raw.End {
		return document.Entity{}, fmt.Errorf("detect: offsets [%d,%d) invalid for text of length %d", raw.Start, raw.End, len(fullText))
	}
	text := raw.Text
	if text == "" {
		text = fullText[raw.Start:raw.End]
	}
	if strings.TrimSpace(text) == "" {
		return document.Entity{}, fmt.Errorf("detect: entity text empty after trim")
	}
	score := raw.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return document.Entity{
		EntityType:   raw.Label,
		Start:        raw.Start,
		End:          raw.End,
		Score:        score,
		OriginalText: text,
	}, nil
}

// MapToBoxes maps an entity's character range onto the page's word
// offsets and returns the composite box with the number of words covered.
func MapToBoxes(offsets []document.WordOffset, ent document.Entity) (document.BoundingBox, int) {
	return document.BoxesForRange(offsets, ent.Start, ent.End)
}

// FilterByScore removes items scoring below minScore. It accepts either a
// flat entity list or a redaction mapping and returns the same shape;
// anything else is an error. Applying the filter twice is a no-op.
func FilterByScore(data any, minScore float64) (any, error) {
	switch v := data.(type) {
	case []document.Entity:
		out := make([]document.Entity, 0, len(v))
		for _, e := range v {
			if e.Score >= minScore {
				out = append(out, e)
			}
		}
		return out, nil
	case document.RedactionMapping:
		out := document.RedactionMapping{Pages: make([]document.PageRedaction, 0, len(v.Pages))}
		for _, p := range v.Pages {
			spans := make([]document.SensitiveSpan, 0, len(p.Sensitive))
			for _, s := range p.Sensitive {
				if s.Score >= minScore {
					spans = append(spans, s)
				}
			}
			out.Pages = append(out.Pages, document.PageRedaction{Page: p.Page, Sensitive: spans})
		}
		return out, nil
	case *document.RedactionMapping:
		if v == nil {
			return nil, fmt.Errorf("detect: nil mapping")
		}
		filtered, err := FilterByScore(*v, minScore)
		if err != nil {
			return nil, err
		}
		m := filtered.(document.RedactionMapping)
		return &m, nil
	default:
		return nil, fmt.Errorf("detect: unsupported shape %T for score filter", data)
	}
}

// ProcessSingleEntity maps one entity to its page box. Any failure yields
// empty slices rather than an error so one bad entity never sinks a page.
func ProcessSingleEntity(ent document.Entity, fullText string, offsets []document.WordOffset) ([]document.Entity, []document.SensitiveSpan) {
	if ent.Start < 0 || ent.End > len(fullText) || ent.Start >= ent.End {
		return []document.Entity{}, []document.SensitiveSpan{}
	}
	if ent.OriginalText == "" {
		ent.OriginalText = fullText[ent.Start:ent.End]
	}
	box, covered := MapToBoxes(offsets, ent)
	if covered == 0 || box.IsZero() {
		return []document.Entity{}, []document.SensitiveSpan{}
	}
	span := document.SensitiveSpan{
		EntityType:   ent.EntityType,
		Score:        ent.Score,
		BBox:         box,
		OriginalText: ent.OriginalText,
	}
	return []document.Entity{ent}, []document.SensitiveSpan{span}
}

// dedupeEntities drops exact duplicates and, among same-type entities with
// identical ranges, keeps the highest score. Output is sorted by start
// then entity type, the merge order used everywhere downstream.
func dedupeEntities(entities []document.Entity) []document.Entity {
	type key struct {
		typ        string
		start, end int
	}
	best := make(map[key]document.Entity, len(entities))
	for _, e := range entities {
		k := key{e.EntityType, e.Start, e.End}
		if cur, ok := best[k]; !ok || e.Score > cur.Score {
			best[k] = e
		}
	}
	out := make([]document.Entity, 0, len(best))
	for _, e := range best {
		out = append(out, e)
	}
	sortEntities(out)
	return out
}

func sortEntities(entities []document.Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].EntityType < entities[j].EntityType
	})
}
