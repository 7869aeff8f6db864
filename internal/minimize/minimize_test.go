// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minimize

import (
	"strings"
	"testing"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

func TestMinimizeExtractedWhitelist(t *testing.T) {
	data := &document.ExtractedData{
		Pages: []document.Page{
			{Number: 1, Words: []document.Word{{Text: "hello", X0: 1, Y0: 2, X1: 3, Y1: 4}, {Text: "  "}}},
			{Number: 2, Words: []document.Word{{Text: ""}}},
		},
		TotalDocumentPages: 2,
		ContentPages:       2,
		Metadata: map[string]string{
			"document_id": "doc-1",
			"filename":    "report.pdf",
			"author":      "Ola Nordmann",
		},
	}

	out := MinimizeExtracted(data, Options{RequiredFieldsOnly: true})

	if _, ok := out.Metadata["author"]; ok {
		t.Error("non-whitelisted metadata survived minimization")
	}
	if out.Metadata["document_id"] != "doc-1" || out.Metadata["filename"] != "report.pdf" {
		t.Error("whitelisted metadata dropped")
	}
	if out.Metadata[MetaRequiredOnly] != "true" {
		t.Error("minimization marker missing")
	}
	if out.Metadata[MetaAppliedAt] == "" {
		t.Error("applied-at marker missing")
	}

	if len(out.Pages) != 1 || len(out.Pages[0].Words) != 1 {
		t.Fatalf("expected 1 page with 1 word, got %+v", out.Pages)
	}
	if out.Pages[0].Words[0].Text != "hello" {
		t.Errorf("unexpected word %q", out.Pages[0].Words[0].Text)
	}
	// Input untouched.
	if len(data.Pages) != 2 || data.Metadata["author"] != "Ola Nordmann" {
		t.Error("input was mutated")
	}
}

func TestMinimizeExtractedDropsImageInventory(t *testing.T) {
	data := &document.ExtractedData{
		Pages: []document.Page{{
			Number: 1,
			Words:  []document.Word{{Text: "hello"}},
			Images: []document.ImageRef{{Name: "Im0", Width: 640, Height: 480}},
		}},
		TotalDocumentPages: 1,
	}
	out := MinimizeExtracted(data, Options{RequiredFieldsOnly: true})
	if len(out.Pages) != 1 || out.Pages[0].Images != nil {
		t.Errorf("image inventory should not pass minimization: %+v", out.Pages)
	}
}

func TestMinimizeExtractedAllowedMetadata(t *testing.T) {
	data := &document.ExtractedData{
		Metadata: map[string]string{"page_count": "3", "author": "x"},
	}
	out := MinimizeExtracted(data, Options{AllowedMetadata: []string{"page_count"}})
	if out.Metadata["page_count"] != "3" {
		t.Error("explicitly allowed metadata dropped")
	}
	if _, ok := out.Metadata["author"]; ok {
		t.Error("author should not survive")
	}
}

func TestSanitizeDocMetadataPlaceholders(t *testing.T) {
	meta := map[string]string{
		"Author":   "Kari Nordmann",
		"Producer": "Acrobat 11",
		"Custom":   "kept",
	}
	out := SanitizeDocMetadata(meta, SanitizeOptions{})
	if out["Author"] != "redacted" || out["Producer"] != "redacted" {
		t.Errorf("identifying fields not replaced: %+v", out)
	}
	if out["Custom"] != "kept" {
		t.Error("non-identifying field modified")
	}
	if meta["Author"] != "Kari Nordmann" {
		t.Error("input was mutated")
	}
}

func TestSanitizeDocMetadataScrub(t *testing.T) {
	meta := map[string]string{
		"comment": "contact kari@example.com or +47 22 33 44 55 at 192.168.1.10",
		"trace":   "aa:bb:cc:dd:ee:ff seen",
	}
	out := SanitizeDocMetadata(meta, SanitizeOptions{ScrubPatterns: true})
	for _, bad := range []string{"kari@example.com", "22 33 44 55", "192.168.1.10", "aa:bb:cc:dd:ee:ff"} {
		for _, v := range out {
			if strings.Contains(v, bad) {
				t.Errorf("sensitive value %q survived scrubbing in %q", bad, v)
			}
		}
	}
}

func TestSanitizeDocMetadataPreserve(t *testing.T) {
	meta := map[string]string{"Title": "Quarterly Report"}
	out := SanitizeDocMetadata(meta, SanitizeOptions{Preserve: []string{"title"}})
	if out["Title"] != "Quarterly Report" {
		t.Error("preserved field was replaced")
	}
}
