// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package minimize strips non-essential fields from extractions and
// document metadata before anything leaves the extraction layer, keeping
// the service's data-minimization promise.
package minimize

import (
	"regexp"
	"strings"
	"time"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// Options controls extraction minimization.
type Options struct {
	// RequiredFieldsOnly keeps only the positional word fields.
	RequiredFieldsOnly bool
	// AllowedMetadata extends the default metadata whitelist
	// (document_id, filename).
	AllowedMetadata []string
}

// Reserved metadata keys describing the applied minimization.
const (
	MetaAppliedAt      = "_minimization_applied_at"
	MetaRequiredOnly   = "_minimization_required_fields_only"
	MetaFieldsRetained = "_minimization_fields_retained"
)

var defaultAllowed = []string{"document_id", "filename"}

// MinimizeExtracted returns a copy of data with non-whitelisted metadata
// removed and empty-text words dropped. The input is not mutated.
func MinimizeExtracted(data *document.ExtractedData, opts Options) *document.ExtractedData {
	if data == nil {
		return nil
	}
	allowed := make(map[string]bool, len(defaultAllowed)+len(opts.AllowedMetadata))
	for _, k := range defaultAllowed {
		allowed[k] = true
	}
	for _, k := range opts.AllowedMetadata {
		allowed[k] = true
	}

	out := &document.ExtractedData{
		EmptyPages:         append([]int(nil), data.EmptyPages...),
		ContentPages:       data.ContentPages,
		TotalDocumentPages: data.TotalDocumentPages,
		Metadata:           make(map[string]string),
	}
	for k, v := range data.Metadata {
		if allowed[k] {
			out.Metadata[k] = v
		}
	}

	for _, p := range data.Pages {
		words := make([]document.Word, 0, len(p.Words))
		for _, w := range p.Words {
			if strings.TrimSpace(w.Text) == "" {
				continue
			}
			words = append(words, w)
		}
		if len(words) == 0 {
			continue
		}
		out.Pages = append(out.Pages, document.Page{Number: p.Number, Words: words, Error: p.Error})
	}

	retained := "text,x0,y0,x1,y1"
	out.Metadata[MetaAppliedAt] = time.Now().UTC().Format(time.RFC3339)
	out.Metadata[MetaFieldsRetained] = retained
	if opts.RequiredFieldsOnly {
		out.Metadata[MetaRequiredOnly] = "true"
	} else {
		out.Metadata[MetaRequiredOnly] = "false"
	}
	return out
}

// SanitizeOptions controls document-metadata sanitization.
type SanitizeOptions struct {
	// ScrubPatterns additionally masks email/phone/id-like/MAC/IP values
	// inside remaining string fields.
	ScrubPatterns bool
	// Preserve lists fields left untouched by pattern scrubbing.
	Preserve []string
}

// Identifying metadata fields replaced with a neutral placeholder.
var identifyingFields = map[string]bool{
	"author": true, "creator": true, "producer": true,
	"title": true, "subject": true, "keywords": true,
}

const placeholder = "redacted"

var scrubPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), // email
	regexp.MustCompile(`\+?\d[\d\s\-()]{6,}\d`),                            // phone
	regexp.MustCompile(`\b\d{11}\b`),                                       // national-id-like
	regexp.MustCompile(`\b(?:[0-9A-Fa-f]{2}[:\-]){5}[0-9A-Fa-f]{2}\b`),     // MAC
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),                      // IPv4
}

// SanitizeDocMetadata replaces identifying metadata fields with neutral
// placeholders and optionally masks sensitive patterns in the rest.
// The input is not mutated.
func SanitizeDocMetadata(meta map[string]string, opts SanitizeOptions) map[string]string {
	out := make(map[string]string, len(meta))
	preserve := make(map[string]bool, len(opts.Preserve))
	for _, k := range opts.Preserve {
		preserve[strings.ToLower(k)] = true
	}

	for k, v := range meta {
		lower := strings.ToLower(k)
		switch {
		case preserve[lower]:
			out[k] = v
		case identifyingFields[lower]:
			out[k] = placeholder
		case opts.ScrubPatterns:
			for _, re := range scrubPatterns {
				v = re.ReplaceAllString(v, placeholder)
			}
			out[k] = v
		default:
			out[k] = v
		}
	}
	return out
}
