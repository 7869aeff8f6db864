// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/parallel"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/syncx"
)

// ErrNoValidEntities is returned when the requested entity list validates
// to nothing.
var ErrNoValidEntities = errors.New("detect: no valid entities requested")

// analyzerLockTimeout bounds one model inference call.
const analyzerLockTimeout = 600 * time.Second

// EngineSpec describes one concrete transformer engine.
type EngineSpec struct {
	EngineName      string
	ModelName       string
	DefaultEntities []string
	ModelDir        string
	CacheNamespace  string
	WeightsFile     string
	ConfigFileNames []string
	// ValidEntity accepts or rejects one requested entity name.
	ValidEntity func(string) bool

	LocalFilesOnly bool
	InferenceURL   string

	Threshold       float64       // default 0.40
	EntityBatchSize int           // default 10
	PageTimeout     time.Duration // default 600s
	MaxChunkChars   int           // default 800
}

func (s *EngineSpec) defaults() {
	if s.Threshold <= 0 {
		s.Threshold = 0.40
	}
	if s.EntityBatchSize <= 0 {
		s.EntityBatchSize = 10
	}
	if s.PageTimeout <= 0 {
		s.PageTimeout = 600 * time.Second
	}
	if s.MaxChunkChars <= 0 {
		s.MaxChunkChars = defaultChunkChars
	}
	if s.WeightsFile == "" {
		s.WeightsFile = "model.safetensors"
	}
	if len(s.ConfigFileNames) == 0 {
		s.ConfigFileNames = []string{"config.json", "gliner_config.json"}
	}
	if s.CacheNamespace == "" {
		s.CacheNamespace = s.EngineName
	}
}

// TransformerDetector runs a transformer model over sentence-chunked page
// text. One instance exists per engine name.
type TransformerDetector struct {
	spec     EngineSpec
	models   *ModelCache
	results  *ResultCache
	analyzer *syncx.TimeoutLock
	runner   *parallel.Runner
	log      zerolog.Logger

	mu          sync.Mutex
	model       Model
	initialized bool
	initFailed  bool
	initTime    time.Duration
	lastUsed    time.Time
	totalCalls  int64
}

var (
	singletonMu sync.Mutex
	singletons  = make(map[string]*TransformerDetector)
)

// NewTransformerDetector returns the singleton detector for the engine
// name, creating it on first use.
func NewTransformerDetector(spec EngineSpec, models *ModelCache, results *ResultCache,
	locks *syncx.Manager, runner *parallel.Runner, log zerolog.Logger) *TransformerDetector {

	singletonMu.Lock()
	defer singletonMu.Unlock()
	if d, ok := singletons[spec.EngineName]; ok {
		return d
	}
	spec.defaults()
	d := &TransformerDetector{
		spec:     spec,
		models:   models,
		results:  results,
		analyzer: locks.NewLock("analyzer_"+spec.EngineName, syncx.PriorityHigh, analyzerLockTimeout),
		runner:   runner,
		log:      log.With().Str("engine", spec.EngineName).Logger(),
	}
	singletons[spec.EngineName] = d
	return d
}

// ResetSingletons drops the engine registry. Test hook.
func ResetSingletons() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singletons = make(map[string]*TransformerDetector)
}

// Name implements Detector.
func (d *TransformerDetector) Name() string { return d.spec.EngineName }

// Initialize loads or reuses the engine's model. Total failure leaves the
// detector uninitialized; detection then short-circuits to empty results.
func (d *TransformerDetector) Initialize(ctx context.Context) error {
	d.mu.Lock()
	if d.initialized {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	key := ModelKey(d.spec.ModelName, d.spec.LocalFilesOnly, d.spec.DefaultEntities)
	model, initTime, err := d.models.LoadOrInit(key, d.loadModel)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.initFailed = true
		d.log.Error().Err(err).Msg("model initialization failed")
		return err
	}
	d.model = model
	d.initialized = true
	d.initFailed = false
	d.initTime = initTime
	return nil
}

// loadModel checks the local model directory and falls back to remote
// inference, retrying with local-files-only disabled. On success the model
// directory is seeded with an engine marker so later starts pass the local
// check.
func (d *TransformerDetector) loadModel() (Model, error) {
	localOnly := d.spec.LocalFilesOnly
	var lastErr error
	for attempt := 0; attempt <= 2; attempt++ {
		if localOnly && !localModelPresent(d.spec.ModelDir, d.spec.WeightsFile, d.spec.ConfigFileNames) {
			lastErr = fmt.Errorf("detect: local model missing in %s", d.spec.ModelDir)
			d.log.Warn().Int("attempt", attempt).Str("dir", d.spec.ModelDir).Msg("local model files missing, retrying without local-files-only")
			localOnly = false
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if d.spec.InferenceURL == "" {
			return nil, fmt.Errorf("detect: engine %s has no inference endpoint", d.spec.EngineName)
		}
		model := NewHTTPModel(d.spec.InferenceURL, d.spec.ModelName, 0)
		d.persistEngineMarker()
		return model, nil
	}
	return nil, lastErr
}

// persistEngineMarker records the resolved engine configuration in the
// model directory.
func (d *TransformerDetector) persistEngineMarker() {
	if d.spec.ModelDir == "" {
		return
	}
	if err := os.MkdirAll(d.spec.ModelDir, 0o755); err != nil {
		d.log.Debug().Err(err).Msg("model dir not writable")
		return
	}
	marker, _ := json.Marshal(map[string]any{
		"engine":    d.spec.EngineName,
		"model":     d.spec.ModelName,
		"entities":  d.spec.DefaultEntities,
		"resolved":  time.Now().UTC().Format(time.RFC3339),
		"inference": d.spec.InferenceURL,
	})
	path := filepath.Join(d.spec.ModelDir, "engine_info.json")
	if err := os.WriteFile(path, marker, 0o644); err != nil {
		d.log.Debug().Err(err).Msg("engine marker not written")
	}
}

// validateRequested resolves and validates the requested entity list.
func (d *TransformerDetector) validateRequested(requested []string) ([]string, error) {
	if len(requested) == 0 {
		requested = d.spec.DefaultEntities
	}
	valid := make([]string, 0, len(requested))
	for _, e := range requested {
		if d.spec.ValidEntity != nil && !d.spec.ValidEntity(e) {
			return nil, fmt.Errorf("detect: entity %q not supported by engine %s", e, d.spec.EngineName)
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return nil, ErrNoValidEntities
	}
	return valid, nil
}

// DetectAsync minimizes the input, validates the entity list and fans out
// over pages. Page mappings come back sorted ascending; entities are
// concatenated in page order.
func (d *TransformerDetector) DetectAsync(ctx context.Context, data *document.ExtractedData, requested []string) ([]document.Entity, document.RedactionMapping, error) {
	empty := document.RedactionMapping{Pages: []document.PageRedaction{}}
	if data == nil || !data.Valid() {
		return []document.Entity{}, empty, fmt.Errorf("detect: invalid extraction input")
	}
	validated, err := d.validateRequested(requested)
	if err != nil {
		return []document.Entity{}, empty, err
	}

	if err := d.Initialize(ctx); err != nil {
		// Uninitialized detectors answer empty rather than failing requests.
		return []document.Entity{}, empty, nil
	}

	entities, mapping := detectOverPages(ctx, d.runner, data, d,
		func(ctx context.Context, text string) []document.Entity {
			return d.processText(ctx, text, validated)
		}, d.spec.PageTimeout, d.spec.EntityBatchSize)

	d.mu.Lock()
	d.totalCalls++
	d.lastUsed = time.Now()
	d.mu.Unlock()
	return entities, mapping, nil
}

// processText runs the model over sentence-grouped chunks of one page's
// text, with a per-chunk result memo.
func (d *TransformerDetector) processText(ctx context.Context, text string, entities []string) []document.Entity {
	if text == "" {
		return nil
	}
	key := TextKey(text, entities)
	if cached, ok := d.results.Get(d.spec.CacheNamespace, key); ok {
		return cached
	}

	d.mu.Lock()
	model := d.model
	d.mu.Unlock()
	if model == nil {
		d.log.Debug().Msg("model not ready, returning empty result")
		return nil
	}

	var found []document.Entity
	for _, ch := range buildChunks(text, d.spec.MaxChunkChars) {
		if ctx.Err() != nil {
			return found
		}
		var raw []RawEntity
		var err error
		ok := d.analyzer.WithLock(analyzerLockTimeout, func() {
			raw, err = model.PredictEntities(ctx, ch.text, entities, d.spec.Threshold)
		})
		if !ok {
			d.log.Warn().Msg("analyzer lock timeout, skipping chunk")
			continue
		}
		if err != nil {
			d.log.Warn().Err(err).Int("offset", ch.offset).Msg("chunk inference failed")
			continue
		}
		for _, r := range raw {
			ent, serr := StandardizeEntity(r, ch.text)
			if serr != nil {
				continue
			}
			ent.Start += ch.offset
			ent.End += ch.offset
			found = append(found, ent)
		}
	}

	found = filterPronounEntities(dedupeEntities(found))
	d.results.Set(d.spec.CacheNamespace, key, found)
	return found
}

// ProcessEntitiesForPage maps one batch of raw entities onto the page.
// Implements the parallel core's batch interface.
func (d *TransformerDetector) ProcessEntitiesForPage(_ context.Context, _ int, fullText string,
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

// SupportedEntities lists the engine's default entity types.
func (d *TransformerDetector) SupportedEntities() []string {
	return append([]string(nil), d.spec.DefaultEntities...)
}

// Status implements Detector.
func (d *TransformerDetector) Status() DetectorStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	dirExists := false
	if d.spec.ModelDir != "" {
		if fi, err := os.Stat(d.spec.ModelDir); err == nil && fi.IsDir() {
			dirExists = true
		}
	}
	return DetectorStatus{
		Engine:             d.spec.EngineName,
		Initialized:        d.initialized,
		InitializationTime: d.initTime,
		LastUsed:           d.lastUsed,
		TotalCalls:         d.totalCalls,
		ModelAvailable:     d.model != nil,
		ModelDirExists:     dirExists,
	}
}
