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
	"time"
)

// Model is a named-entity inference backend.
type Model interface {
	PredictEntities(ctx context.Context, text string, labels []string, threshold float64) ([]RawEntity, error)
}

// HTTPModel calls an inference sidecar over HTTP. One request carries one
// text chunk; the sidecar answers with raw entities in chunk-local
// offsets.
type HTTPModel struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPModel returns a model bound to the sidecar at baseURL serving the
// named model.
func NewHTTPModel(baseURL, model string, timeout time.Duration) *HTTPModel {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPModel{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Model     string   `json:"model"`
	Text      string   `json:"text"`
	Labels    []string `json:"labels"`
	Threshold float64  `json:"threshold"`
}

type predictResponse struct {
	Entities []RawEntity `json:"entities"`
}

// PredictEntities posts one chunk to the sidecar's /predict endpoint.
func (m *HTTPModel) PredictEntities(ctx context.Context, text string, labels []string, threshold float64) ([]RawEntity, error) {
	body, err := json.Marshal(predictRequest{Model: m.model, Text: text, Labels: labels, Threshold: threshold})
	if err != nil {
		return nil, fmt.Errorf("detect: encode predict request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("detect: build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: predict call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect: predict status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("detect: decode predict response: %w", err)
	}
	return out.Entities, nil
}
