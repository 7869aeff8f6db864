// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/parallel"
)

// batchSummary heads every batch envelope.
type batchSummary struct {
	BatchID     string  `json:"batch_id"`
	TotalFiles  int     `json:"total_files"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	TotalTime   float64 `json:"total_time"`
	WorkerCount int     `json:"workers"`
}

// fileResult is one file's outcome inside a batch.
type fileResult struct {
	File    string `json:"file"`
	Status  string `json:"status"`
	Results any    `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
}

type batchResponse struct {
	Summary     batchSummary `json:"batch_summary"`
	FileResults []fileResult `json:"file_results"`
}

func (s *Server) handleBatchExtract(w http.ResponseWriter, r *http.Request) {
	s.batchEndpoint(w, r, "batch_extract", func(ctx context.Context, up upload) (any, error) {
		data, err := s.extractor.Extract(ctx, bytes.NewReader(up.Data), int64(len(up.Data)))
		if err != nil {
			return nil, err
		}
		data.Metadata["filename"] = up.Name
		return data, nil
	})
}

func (s *Server) handleBatchDetect(w http.ResponseWriter, r *http.Request) {
	s.batchDetect(w, r, "presidio", "batch_detect")
}

func (s *Server) handleBatchHybridDetect(w http.ResponseWriter, r *http.Request) {
	s.batchDetect(w, r, "hybrid", "batch_hybrid_detect")
}

func (s *Server) batchDetect(w http.ResponseWriter, r *http.Request, engine, operation string) {
	det := s.detectorFor(engine)
	if det == nil {
		s.writeError(w, http.StatusNotFound, errNotFound,
			"detection engine "+engine+" is not configured", nil)
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

	s.batchEndpoint(w, r, operation, func(ctx context.Context, up upload) (any, error) {
		data, err := s.extractor.Extract(ctx, bytes.NewReader(up.Data), int64(len(up.Data)))
		if err != nil {
			return nil, err
		}
		entities, mapping, err := det.DetectAsync(ctx, data, requested)
		if err != nil {
			return nil, err
		}
		if hasThreshold {
			entities, mapping = applyThreshold(entities, mapping, threshold)
		}
		return map[string]any{
			"entities":          entities,
			"redaction_mapping": mapping,
		}, nil
	})
}

func (s *Server) handleBatchRedact(w http.ResponseWriter, r *http.Request) {
	rawMappings := strings.TrimSpace(r.FormValue("redaction_mappings"))
	if rawMappings == "" {
		rawMappings = strings.TrimSpace(r.FormValue("redaction_mapping"))
	}
	if rawMappings == "" {
		s.writeError(w, http.StatusBadRequest, errValidation, "redaction_mappings is required", nil)
		return
	}
	// Either one mapping applied to every file, or a filename-keyed map.
	var perFile map[string]document.RedactionMapping
	var single document.RedactionMapping
	if err := json.Unmarshal([]byte(rawMappings), &perFile); err != nil {
		perFile = nil
		if err := json.Unmarshal([]byte(rawMappings), &single); err != nil {
			s.writeError(w, http.StatusBadRequest, errValidation,
				"redaction_mappings is not valid JSON", err)
			return
		}
	}

	s.batchEndpoint(w, r, "batch_redact", func(ctx context.Context, up upload) (any, error) {
		mapping := single
		if perFile != nil {
			m, ok := perFile[up.Name]
			if !ok {
				return map[string]any{"skipped": true, "reason": "no mapping for file"}, nil
			}
			mapping = m
		}
		out, err := s.redactor.RedactBytes(ctx, up.Data, mapping)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"filename":     "redacted_" + up.Name,
			"size_bytes":   len(out),
			"content_type": "application/pdf",
			"pdf_base64":   base64.StdEncoding.EncodeToString(out),
		}, nil
	})
}

// handleBatchSearch finds a case-insensitive substring in every page's
// reconstructed text and returns the covering word boxes per match.
func (s *Server) handleBatchSearch(w http.ResponseWriter, r *http.Request) {
	s.batchTextLookup(w, r, "batch_search", func(term string, page document.Page) []map[string]any {
		fullText, offsets := document.FullText(page)
		lower := strings.ToLower(fullText)
		needle := strings.ToLower(term)
		var matches []map[string]any
		for from := 0; ; {
			i := strings.Index(lower[from:], needle)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(needle)
			box, covered := document.BoxesForRange(offsets, start, end)
			if covered > 0 {
				matches = append(matches, map[string]any{
					"text":  fullText[start:end],
					"start": start,
					"end":   end,
					"bbox":  box,
				})
			}
			from = end
		}
		return matches
	})
}

// handleBatchFindWords matches whole words exactly (case-insensitive) and
// returns each word's own box.
func (s *Server) handleBatchFindWords(w http.ResponseWriter, r *http.Request) {
	s.batchTextLookup(w, r, "batch_find_words", func(term string, page document.Page) []map[string]any {
		needle := strings.ToLower(term)
		var matches []map[string]any
		for _, word := range page.Words {
			if strings.ToLower(word.Text) == needle {
				matches = append(matches, map[string]any{
					"text": word.Text,
					"bbox": word.BBox(),
				})
			}
		}
		return matches
	})
}

// batchTextLookup is the shared shape of search and find_words: extract
// every file, run the page matcher, answer per-page match lists.
func (s *Server) batchTextLookup(w http.ResponseWriter, r *http.Request, operation string,
	match func(term string, page document.Page) []map[string]any) {

	terms := searchTerms(r)
	if len(terms) == 0 {
		s.writeError(w, http.StatusBadRequest, errValidation,
			"search_terms is required", nil)
		return
	}

	s.batchEndpoint(w, r, operation, func(ctx context.Context, up upload) (any, error) {
		data, err := s.extractor.Extract(ctx, bytes.NewReader(up.Data), int64(len(up.Data)))
		if err != nil {
			return nil, err
		}
		pages := make([]map[string]any, 0, len(data.Pages))
		total := 0
		for _, page := range data.Pages {
			var pageMatches []map[string]any
			for _, term := range terms {
				pageMatches = append(pageMatches, match(term, page)...)
			}
			if len(pageMatches) > 0 {
				pages = append(pages, map[string]any{
					"page":    page.Number,
					"matches": pageMatches,
				})
				total += len(pageMatches)
			}
		}
		return map[string]any{"match_count": total, "pages": pages}, nil
	})
}

// searchTerms reads search_terms as a JSON array, falling back to the
// plain search_term value.
func searchTerms(r *http.Request) []string {
	if raw := strings.TrimSpace(r.FormValue("search_terms")); raw != "" {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			var out []string
			for _, t := range list {
				if t = strings.TrimSpace(t); t != "" {
					out = append(out, t)
				}
			}
			return out
		}
	}
	if term := strings.TrimSpace(r.FormValue("search_term")); term != "" {
		return []string{term}
	}
	return nil
}

// batchOutcome separates transport failures (OK=false from the fan-out)
// from per-file processing errors.
type batchOutcome struct {
	result any
	errMsg string
}

// batchEndpoint reads the uploads, fans process out over them in parallel
// and answers the batch envelope. One bad file never fails the batch.
func (s *Server) batchEndpoint(w http.ResponseWriter, r *http.Request, operation string,
	process func(ctx context.Context, up upload) (any, error)) {

	start := time.Now()
	uploads, err := s.readUploads(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errValidation, "invalid upload", err)
		return
	}
	if len(uploads) == 0 {
		s.writeError(w, http.StatusBadRequest, errValidation, "no files in request", nil)
		return
	}

	batchID := uuid.NewString()
	workers := s.cfg.Parallel.MaxWorkers
	if workers <= 0 {
		workers = 4
	}

	results := parallel.Map(r.Context(), s.runner, uploads,
		func(ctx context.Context, up upload) (batchOutcome, error) {
			res, perr := process(ctx, up)
			if perr != nil {
				return batchOutcome{errMsg: perr.Error()}, nil
			}
			return batchOutcome{result: res}, nil
		}, parallel.Options{
			MaxWorkers:  workers,
			OperationID: batchID,
		})

	fileResults := make([]fileResult, len(uploads))
	successful := 0
	for i, res := range results {
		fr := fileResult{File: uploads[i].Name}
		switch {
		case !res.OK:
			fr.Status = "error"
			fr.Error = "processing failed or timed out"
		case res.Value.errMsg != "":
			fr.Status = "error"
			fr.Error = res.Value.errMsg
		default:
			fr.Status = "success"
			fr.Results = res.Value.result
			successful++
		}
		fileResults[i] = fr
	}

	elapsed := time.Since(start)
	s.recordEvent(operation, nil, elapsed, len(uploads), 0, successful == len(uploads))

	s.writeJSON(w, http.StatusOK, batchResponse{
		Summary: batchSummary{
			BatchID:     batchID,
			TotalFiles:  len(uploads),
			Successful:  successful,
			Failed:      len(uploads) - successful,
			TotalTime:   elapsed.Seconds(),
			WorkerCount: workers,
		},
		FileResults: fileResults,
	})
}
