// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/pdfproc"
)

// extractResponse is the /pdf/extract envelope.
type extractResponse struct {
	*document.ExtractedData
	Performance map[string]any `json:"performance"`
	FileInfo    map[string]any `json:"file_info"`
	Debug       map[string]any `json:"_debug,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
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

	data, err := s.extractor.Extract(r.Context(), bytes.NewReader(up.Data), int64(len(up.Data)))
	elapsed := time.Since(start)
	success := err == nil
	s.recordEvent("extract", nil, elapsed, 1, 0, success)
	if err != nil {
		s.extractionError(w, err)
		return
	}
	data.Metadata["filename"] = up.Name

	s.writeJSON(w, http.StatusOK, extractResponse{
		ExtractedData: data,
		Performance:   s.performanceInfo(elapsed, data.TotalDocumentPages),
		FileInfo:      fileInfo(up),
	})
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
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

	rawMapping := strings.TrimSpace(r.FormValue("redaction_mapping"))
	if rawMapping == "" {
		s.writeError(w, http.StatusBadRequest, errValidation, "redaction_mapping is required", nil)
		return
	}
	var mapping document.RedactionMapping
	if err := json.Unmarshal([]byte(rawMapping), &mapping); err != nil {
		s.writeError(w, http.StatusBadRequest, errValidation, "redaction_mapping is not valid JSON", err)
		return
	}

	out, err := s.redactor.RedactBytes(r.Context(), up.Data, mapping)
	elapsed := time.Since(start)
	success := err == nil
	s.recordEvent("redact", entityTypesOf(mapping), elapsed, 1, sensitiveCount(mapping), success)
	if err != nil {
		s.extractionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="redacted_`+up.Name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// extractionError maps pipeline failures onto the error envelope:
// lock timeouts are resource exhaustion, the rest processing errors.
func (s *Server) extractionError(w http.ResponseWriter, err error) {
	if errors.Is(err, pdfproc.ErrLockTimeout) {
		s.writeError(w, http.StatusServiceUnavailable, errResource,
			"document is busy, retry later", err)
		return
	}
	if errors.Is(err, pdfproc.ErrNoPages) {
		s.writeError(w, http.StatusBadRequest, errValidation, "document has no pages", err)
		return
	}
	s.writeError(w, http.StatusUnprocessableEntity, errProcessing,
		"document could not be processed", err)
}

func (s *Server) performanceInfo(elapsed time.Duration, pages int) map[string]any {
	info := map[string]any{
		"elapsed_seconds": elapsed.Seconds(),
		"pages":           pages,
	}
	if elapsed > 0 && pages > 0 {
		info["pages_per_second"] = float64(pages) / elapsed.Seconds()
	}
	if s.monitor != nil {
		info["memory_usage_percent"] = s.monitor.CurrentUsage()
	}
	return info
}

func fileInfo(up upload) map[string]any {
	return map[string]any{
		"filename":     up.Name,
		"size_bytes":   len(up.Data),
		"content_type": "application/pdf",
	}
}

// recordEvent appends a processing record, logging rather than failing
// the request when the record cannot be written.
func (s *Server) recordEvent(op string, entityTypes []string, elapsed time.Duration, files, entities int, success bool) {
	if s.keeper == nil {
		return
	}
	if _, err := s.keeper.Record(op, "pdf", entityTypes, elapsed, files, entities, success); err != nil {
		s.log.Warn().Err(err).Str("operation", op).Msg("processing record not written")
	}
}

func entityTypesOf(mapping document.RedactionMapping) []string {
	seen := make(map[string]bool)
	var types []string
	for _, p := range mapping.Pages {
		for _, sp := range p.Sensitive {
			if sp.EntityType != "" && !seen[sp.EntityType] {
				seen[sp.EntityType] = true
				types = append(types, sp.EntityType)
			}
		}
	}
	return types
}

func sensitiveCount(mapping document.RedactionMapping) int {
	n := 0
	for _, p := range mapping.Pages {
		n += len(p.Sensitive)
	}
	return n
}
