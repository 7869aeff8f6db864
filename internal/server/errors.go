// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Error types used by the uniform error envelope.
const (
	errValidation = "validation_error"
	errResource   = "resource_exhausted"
	errDetection  = "detection_error"
	errProcessing = "processing_error"
	errInternal   = "internal_error"
	errNotFound   = "not_found"
)

// errorBody is the uniform error envelope. Raw internal messages never
// reach the client; the error id correlates with server logs.
type errorBody struct {
	Error      string `json:"error"`
	ErrorID    string `json:"error_id"`
	ErrorType  string `json:"error_type"`
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	Timestamp  string `json:"timestamp"`
}

// writeError logs the underlying error and answers the sanitized envelope.
func (s *Server) writeError(w http.ResponseWriter, status int, errType, publicMsg string, err error) {
	id := uuid.NewString()
	ev := s.log.Warn()
	if status >= 500 {
		ev = s.log.Error()
	}
	ev.Str("error_id", id).Str("error_type", errType).Int("status", status).Err(err).Msg(publicMsg)

	body := errorBody{
		Error:      publicMsg,
		ErrorID:    id,
		ErrorType:  errType,
		Status:     "error",
		StatusCode: status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeJSON answers a JSON payload.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn().Err(err).Msg("response encoding failed")
	}
}
