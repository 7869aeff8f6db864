// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/detect"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReadiness reports ready once the detection engines answer their
// status calls; an uninitialized transformer engine is degraded, not down.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	engines := make(map[string]bool, len(s.detectors))
	for name, det := range s.detectors {
		engines[name] = det.Status().Initialized
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ready":   true,
		"engines": engines,
	})
}

// handleStatus aggregates the runtime view: memory, locks, caches,
// processing records and per-engine detector state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"service":        "hideme",
		"environment":    s.cfg.Server.Environment,
		"uptime_seconds": time.Since(s.started).Seconds(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if s.monitor != nil {
		body["memory"] = s.monitor.Stats()
	}
	if s.locks != nil {
		body["locks"] = s.locks.Stats()
	}
	if s.respCache != nil {
		body["response_cache"] = s.respCache.Stats()
	}
	if s.keeper != nil {
		body["processing_records"] = s.keeper.Stats()
	}
	body["detectors"] = s.detectorStatuses()

	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) detectorStatuses() map[string]any {
	out := make(map[string]any, len(s.detectors)+1)
	for name, det := range s.detectors {
		out[name] = det.Status()
	}
	if s.hybrid != nil {
		out["hybrid"] = s.hybrid.Status()
	}
	return out
}

// engineDescriptions documents the endpoint-to-engine mapping.
var engineDescriptions = map[string]string{
	"gemini":   "LLM-backed detection (POST /ai/detect)",
	"presidio": "rule-based pattern detection (POST /ml/detect)",
	"gliner":   "transformer NER, general model (POST /ml/gl_detect)",
	"hideme":   "transformer NER, domain model (POST /ml/hm_detect)",
	"hybrid":   "all engines combined (POST /batch/hybrid_detect)",
}

func (s *Server) handleHelpEngines(w http.ResponseWriter, r *http.Request) {
	engines := make([]map[string]any, 0, len(s.detectors)+1)
	for _, name := range sortedDetectorNames(s.detectors) {
		engines = append(engines, map[string]any{
			"name":        name,
			"description": engineDescriptions[name],
			"configured":  true,
		})
	}
	if s.hybrid != nil {
		engines = append(engines, map[string]any{
			"name":        "hybrid",
			"description": engineDescriptions["hybrid"],
			"configured":  true,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"engines": engines})
}

// entityLister is implemented by engines with a fixed entity catalog.
type entityLister interface {
	SupportedEntities() []string
}

func (s *Server) handleHelpEntities(w http.ResponseWriter, r *http.Request) {
	byEngine := make(map[string][]string, len(s.detectors))
	for name, det := range s.detectors {
		if lister, ok := det.(entityLister); ok {
			entities := lister.SupportedEntities()
			sort.Strings(entities)
			byEngine[name] = entities
		} else {
			// Open-vocabulary engines accept any requested type.
			byEngine[name] = []string{}
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entities_by_engine": byEngine})
}

// entityExamples illustrates what each common entity type matches.
var entityExamples = map[string]string{
	"PERSON-H":           "Ola Nordmann",
	"EMAIL_H":            "ola.nordmann@example.no",
	"PHONE_H":            "+47 22 33 44 55",
	"NO_FODSELSNUMMER_H": "010190 12345",
	"CREDIT_CARD_H":      "4242 4242 4242 4242",
	"IBAN_H":             "NO9386011117947",
	"IP_H":               "192.0.2.10",
	"URL_H":              "https://example.no/profil",
	"DATE_H":             "01.01.1990",
	"POSTAL_CODE_H":      "0150 Oslo",
}

func (s *Server) handleHelpEntityExamples(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"examples": entityExamples})
}

func (s *Server) handleHelpDetectorsStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"detectors": s.detectorStatuses()}
	if s.hybrid != nil {
		body["hybrid_engines"] = s.hybrid.EngineStatuses()
	}
	s.writeJSON(w, http.StatusOK, body)
}

// routeHelp is one documented route.
type routeHelp struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var routeCatalog = []routeHelp{
	{"POST", "/pdf/extract", "positional text extraction from one PDF"},
	{"POST", "/pdf/redact", "apply a redaction mapping to one PDF"},
	{"POST", "/ai/detect", "LLM-backed entity detection"},
	{"POST", "/ml/detect", "rule-based entity detection"},
	{"POST", "/ml/gl_detect", "transformer entity detection (general model)"},
	{"POST", "/ml/hm_detect", "transformer entity detection (domain model)"},
	{"POST", "/batch/detect", "rule-based detection over many files"},
	{"POST", "/batch/hybrid_detect", "all engines over many files"},
	{"POST", "/batch/redact", "redact many files"},
	{"POST", "/batch/extract", "extract many files"},
	{"POST", "/batch/search", "substring search with word boxes"},
	{"POST", "/batch/find_words", "exact word lookup with word boxes"},
	{"GET", "/status", "aggregated runtime status"},
	{"GET", "/health", "liveness probe"},
	{"GET", "/readiness", "readiness probe"},
	{"GET", "/metrics", "Prometheus metrics"},
	{"GET", "/help/engines", "available detection engines"},
	{"GET", "/help/entities", "entity types per engine"},
	{"GET", "/help/entity-examples", "example values per entity type"},
	{"GET", "/help/detectors-status", "per-engine detector state"},
	{"GET", "/help/routes", "this catalog"},
}

func (s *Server) handleHelpRoutes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"routes": routeCatalog})
}

func sortedDetectorNames(m map[string]detect.Detector) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
