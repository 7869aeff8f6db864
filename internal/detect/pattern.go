// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/parallel"
)

// patternRules are the built-in rule-based recognizers. Structured
// identifiers carry a high fixed confidence; looser patterns less.
var patternRules = []struct {
	entityType string
	score      float64
	re         *regexp.Regexp
}{
	{"EMAIL_H", 0.95, regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"PHONE_H", 0.80, regexp.MustCompile(`\+?\d{2,3}[\s\-]?\d{2}[\s\-]?\d{2}[\s\-]?\d{2,4}`)},
	{"NO_FODSELSNUMMER_H", 0.90, regexp.MustCompile(`\b\d{6}\s?\d{5}\b`)},
	{"CREDIT_CARD_H", 0.85, regexp.MustCompile(`\b(?:\d{4}[\s\-]?){3}\d{4}\b`)},
	{"IBAN_H", 0.90, regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`)},
	{"IP_H", 0.85, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{"URL_H", 0.70, regexp.MustCompile(`https?://[^\s)>"]+`)},
	{"DATE_H", 0.60, regexp.MustCompile(`\b\d{1,2}[./]\d{1,2}[./]\d{2,4}\b`)},
	{"POSTAL_CODE_H", 0.60, regexp.MustCompile(`\b\d{4}\s+[A-ZÆØÅ][a-zæøå]+\b`)},
}

// PatternDetector is the rule-based engine. It needs no model and is
// always initialized.
type PatternDetector struct {
	runner *parallel.Runner
	log    zerolog.Logger

	batchSize   int
	pageTimeout time.Duration

	mu         sync.Mutex
	lastUsed   time.Time
	totalCalls int64
	created    time.Time
}

// NewPatternDetector returns a rule-based detector.
func NewPatternDetector(runner *parallel.Runner, log zerolog.Logger) *PatternDetector {
	return &PatternDetector{
		runner:      runner,
		log:         log.With().Str("engine", "presidio").Logger(),
		batchSize:   10,
		pageTimeout: 600 * time.Second,
		created:     time.Now(),
	}
}

// Name implements Detector.
func (d *PatternDetector) Name() string { return "presidio" }

// SupportedEntities lists the entity types the rules cover.
func (d *PatternDetector) SupportedEntities() []string {
	out := make([]string, 0, len(patternRules))
	for _, r := range patternRules {
		out = append(out, r.entityType)
	}
	return out
}

func (d *PatternDetector) validEntity(name string) bool {
	for _, r := range patternRules {
		if r.entityType == name {
			return true
		}
	}
	return false
}

// DetectAsync runs the rule set over every page.
func (d *PatternDetector) DetectAsync(ctx context.Context, data *document.ExtractedData, requested []string) ([]document.Entity, document.RedactionMapping, error) {
	empty := document.RedactionMapping{Pages: []document.PageRedaction{}}
	if data == nil || !data.Valid() {
		return []document.Entity{}, empty, fmt.Errorf("detect: invalid extraction input")
	}

	wanted := make(map[string]bool)
	if len(requested) == 0 {
		for _, r := range patternRules {
			wanted[r.entityType] = true
		}
	} else {
		for _, name := range requested {
			if !d.validEntity(name) {
				return []document.Entity{}, empty, fmt.Errorf("detect: entity %q not supported by engine presidio", name)
			}
			wanted[name] = true
		}
	}

	entities, mapping := detectOverPages(ctx, d.runner, data, d,
		func(_ context.Context, text string) []document.Entity {
			return d.scan(text, wanted)
		}, d.pageTimeout, d.batchSize)

	d.mu.Lock()
	d.totalCalls++
	d.lastUsed = time.Now()
	d.mu.Unlock()
	return entities, mapping, nil
}

// scan applies every wanted rule to the text. Overlapping matches across
// rules are resolved by the dedupe pass.
func (d *PatternDetector) scan(text string, wanted map[string]bool) []document.Entity {
	var found []document.Entity
	for _, rule := range patternRules {
		if !wanted[rule.entityType] {
			continue
		}
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			found = append(found, document.Entity{
				EntityType:   rule.entityType,
				Start:        loc[0],
				End:          loc[1],
				Score:        rule.score,
				OriginalText: text[loc[0]:loc[1]],
			})
		}
	}
	return dedupeEntities(found)
}

// ProcessEntitiesForPage implements the parallel core's batch interface.
func (d *PatternDetector) ProcessEntitiesForPage(_ context.Context, _ int, fullText string,
	offsets []document.WordOffset, entities []document.Entity) ([]document.Entity, []document.SensitiveSpan, error) {

	processed := make([]document.Entity, 0, len(entities))
	sensitive := make([]document.SensitiveSpan, 0, len(entities))
	for _, ent := range entities {
		p, s := ProcessSingleEntity(ent, fullText, offsets)
		processed = append(processed, p...)
		sensitive = append(sensitive, s...)
	}
	return processed, sensitive, nil
}

// Status implements Detector.
func (d *PatternDetector) Status() DetectorStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DetectorStatus{
		Engine:         "presidio",
		Initialized:    true,
		LastUsed:       d.lastUsed,
		TotalCalls:     d.totalCalls,
		ModelAvailable: true,
	}
}
