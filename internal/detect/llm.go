// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/parallel"
)

// LLMOptions configures the LLM-backed engine.
type LLMOptions struct {
	BaseURL string // OpenAI-compatible endpoint root
	Model   string
	APIKey  string

	Timeout     time.Duration // per completion call (default 120s)
	PageTimeout time.Duration // default 600s
	BatchSize   int           // default 10
}

// LLMDetector asks a chat-completion model to list sensitive values in
// the page text. The model returns values, not offsets; every occurrence
// of a returned value is located in the text and mapped.
type LLMDetector struct {
	opts   LLMOptions
	client *http.Client
	runner *parallel.Runner
	log    zerolog.Logger

	mu         sync.Mutex
	lastUsed   time.Time
	totalCalls int64
}

// NewLLMDetector returns an LLM-backed detector.
func NewLLMDetector(opts LLMOptions, runner *parallel.Runner, log zerolog.Logger) *LLMDetector {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 600 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &LLMDetector{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		runner: runner,
		log:    log.With().Str("engine", "gemini").Logger(),
	}
}

// Name implements Detector.
func (d *LLMDetector) Name() string { return "gemini" }

const llmSystemPrompt = `You identify personally identifiable and sensitive information in text.
Answer with a JSON object: {"entities":[{"entity_type":"...","text":"...","score":0.0}]}.
Only report values that literally appear in the input. Use the requested entity types.`

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type llmEntity struct {
	EntityType string  `json:"entity_type"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// DetectAsync runs the model over every page.
func (d *LLMDetector) DetectAsync(ctx context.Context, data *document.ExtractedData, requested []string) ([]document.Entity, document.RedactionMapping, error) {
	empty := document.RedactionMapping{Pages: []document.PageRedaction{}}
	if data == nil || !data.Valid() {
		return []document.Entity{}, empty, fmt.Errorf("detect: invalid extraction input")
	}
	if d.opts.BaseURL == "" {
		// No endpoint configured: short-circuit to empty results.
		return []document.Entity{}, empty, nil
	}

	entities, mapping := detectOverPages(ctx, d.runner, data, d,
		func(ctx context.Context, text string) []document.Entity {
			found, err := d.analyzeText(ctx, text, requested)
			if err != nil {
				d.log.Warn().Err(err).Msg("completion call failed, page yields no entities")
				return nil
			}
			return found
		}, d.opts.PageTimeout, d.opts.BatchSize)

	d.mu.Lock()
	d.totalCalls++
	d.lastUsed = time.Now()
	d.mu.Unlock()
	return entities, mapping, nil
}

// analyzeText asks the model for sensitive values and locates each
// returned value's occurrences in the text.
func (d *LLMDetector) analyzeText(ctx context.Context, text string, requested []string) ([]document.Entity, error) {
	userPrompt := "Entity types: " + strings.Join(requested, ", ") + "\n\nText:\n" + text
	if len(requested) == 0 {
		userPrompt = "Entity types: any sensitive or identifying information\n\nText:\n" + text
	}
	body, err := json.Marshal(chatRequest{
		Model: d.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: llmSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect: encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("detect: build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.opts.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: completion call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect: completion status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("detect: decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("detect: completion returned no choices")
	}
	return parseLLMEntities(out.Choices[0].Message.Content, text), nil
}

// parseLLMEntities decodes the model's JSON answer and locates every
// occurrence of each reported value. Values the model invented are
// dropped.
func parseLLMEntities(answer, text string) []document.Entity {
	answer = strings.TrimSpace(answer)
	// Tolerate fenced answers.
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.TrimPrefix(answer, "```")
	answer = strings.TrimSuffix(answer, "```")

	var parsed struct {
		Entities []llmEntity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(answer), &parsed); err != nil {
		return nil
	}

	var found []document.Entity
	for _, e := range parsed.Entities {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		score := e.Score
		if score <= 0 || score > 1 {
			score = 0.5
		}
		from := 0
		for {
			at := strings.Index(text[from:], e.Text)
			if at < 0 {
				break
			}
			start := from + at
			found = append(found, document.Entity{
				EntityType:   e.EntityType,
				Start:        start,
				End:          start + len(e.Text),
				Score:        score,
				OriginalText: e.Text,
			})
			from = start + len(e.Text)
		}
	}
	return dedupeEntities(found)
}

// ProcessEntitiesForPage implements the parallel core's batch interface.
func (d *LLMDetector) ProcessEntitiesForPage(_ context.Context, _ int, fullText string,
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
func (d *LLMDetector) Status() DetectorStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DetectorStatus{
		Engine:         "gemini",
		Initialized:    d.opts.BaseURL != "",
		LastUsed:       d.lastUsed,
		TotalCalls:     d.totalCalls,
		ModelAvailable: d.opts.BaseURL != "",
	}
}
