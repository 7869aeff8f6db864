// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/detect"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// detectResponse is the envelope shared by all single-file detection
// endpoints.
type detectResponse struct {
	Entities         []document.Entity         `json:"entities"`
	RedactionMapping document.RedactionMapping `json:"redaction_mapping"`
	Performance      map[string]any            `json:"performance"`
	FileInfo         map[string]any            `json:"file_info"`
	ModelInfo        map[string]any            `json:"model_info"`
	Debug            map[string]any            `json:"_debug,omitempty"`
}

// detectHandler builds the handler for one engine. The engine key decides
// which detector serves the request; hybrid runs them all.
func (s *Server) detectHandler(engine string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		det := s.detectorFor(engine)
		if det == nil {
			s.writeError(w, http.StatusNotFound, errNotFound,
				"detection engine "+engine+" is not configured", nil)
			return
		}

		start := time.Now()
		up, err := s.readUpload(r)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errValidation, "invalid upload", err)
			return
		}
		if !looksLikePDF(up.Data) {
			s.writeError(w, http.StatusBadRequest, errValidation, "file is not a PDF", nil)
			return
		}
		requested, err := requestedEntities(r)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errValidation, err.Error(), err)
			return
		}
		threshold, hasThreshold, err := thresholdParam(r)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errValidation, err.Error(), err)
			return
		}

		data, err := s.extractor.Extract(r.Context(), bytes.NewReader(up.Data), int64(len(up.Data)))
		if err != nil {
			s.recordEvent(engine+"_detect", nil, time.Since(start), 1, 0, false)
			s.extractionError(w, err)
			return
		}

		entities, mapping, err := det.DetectAsync(r.Context(), data, requested)
		elapsed := time.Since(start)
		if err != nil {
			s.recordEvent(engine+"_detect", nil, elapsed, 1, 0, false)
			s.detectionError(w, engine, err)
			return
		}

		if hasThreshold {
			entities, mapping = applyThreshold(entities, mapping, threshold)
		}
		if boolParam(r, "remove_words") {
			entities, mapping = stripOriginalText(entities, mapping)
		}
		s.recordEvent(engine+"_detect", entityTypeNames(entities), elapsed, 1, len(entities), true)

		s.writeJSON(w, http.StatusOK, detectResponse{
			Entities:         entities,
			RedactionMapping: mapping,
			Performance:      s.performanceInfo(elapsed, data.TotalDocumentPages),
			FileInfo:         fileInfo(up),
			ModelInfo:        modelInfo(det),
		})
	}
}

// detectorFor resolves an engine key, treating "hybrid" specially.
func (s *Server) detectorFor(engine string) detect.Detector {
	if engine == "hybrid" {
		if s.hybrid == nil {
			return nil
		}
		return s.hybrid
	}
	return s.detectors[engine]
}

func (s *Server) detectionError(w http.ResponseWriter, engine string, err error) {
	s.writeError(w, http.StatusUnprocessableEntity, errDetection,
		"detection with engine "+engine+" failed", err)
}

// applyThreshold filters entities and mapping spans below minScore.
func applyThreshold(entities []document.Entity, mapping document.RedactionMapping, minScore float64) ([]document.Entity, document.RedactionMapping) {
	if filtered, err := detect.FilterByScore(entities, minScore); err == nil {
		entities = filtered.([]document.Entity)
	}
	if filtered, err := detect.FilterByScore(mapping, minScore); err == nil {
		mapping = filtered.(document.RedactionMapping)
	}
	return entities, mapping
}

// stripOriginalText blanks the matched text so responses carry positions
// and types only.
func stripOriginalText(entities []document.Entity, mapping document.RedactionMapping) ([]document.Entity, document.RedactionMapping) {
	out := make([]document.Entity, len(entities))
	for i, e := range entities {
		e.OriginalText = ""
		out[i] = e
	}
	pages := make([]document.PageRedaction, len(mapping.Pages))
	for i, p := range mapping.Pages {
		spans := make([]document.SensitiveSpan, len(p.Sensitive))
		for j, sp := range p.Sensitive {
			sp.OriginalText = ""
			spans[j] = sp
		}
		pages[i] = document.PageRedaction{Page: p.Page, Sensitive: spans}
	}
	return out, document.RedactionMapping{Pages: pages}
}

func entityTypeNames(entities []document.Entity) []string {
	seen := make(map[string]bool)
	var types []string
	for _, e := range entities {
		if !seen[e.EntityType] {
			seen[e.EntityType] = true
			types = append(types, e.EntityType)
		}
	}
	return types
}

func modelInfo(det detect.Detector) map[string]any {
	st := det.Status()
	return map[string]any{
		"engine":          st.Engine,
		"initialized":     st.Initialized,
		"model_available": st.ModelAvailable,
		"total_calls":     st.TotalCalls,
	}
}
