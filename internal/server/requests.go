// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

// upload is one file pulled out of a multipart request.
type upload struct {
	Name string
	Data []byte
}

// maxUpload returns the configured body limit.
func (s *Server) maxUpload() int64 {
	if s.cfg.Server.MaxUploadBytes > 0 {
		return s.cfg.Server.MaxUploadBytes
	}
	return 64 << 20
}

// readUpload pulls a single file from the form. The field "file" is
// preferred; the first file of any field works as a fallback.
func (s *Server) readUpload(r *http.Request) (upload, error) {
	files, err := s.readUploads(r)
	if err != nil {
		return upload{}, err
	}
	if len(files) == 0 {
		return upload{}, fmt.Errorf("no file part in request")
	}
	return files[0], nil
}

// readUploads pulls every file part from the form, "file" and "files"
// fields first.
func (s *Server) readUploads(r *http.Request) ([]upload, error) {
	if err := r.ParseMultipartForm(s.maxUpload()); err != nil {
		return nil, fmt.Errorf("multipart parse: %w", err)
	}
	var headers []*multipart.FileHeader
	for _, field := range []string{"file", "files"} {
		headers = append(headers, r.MultipartForm.File[field]...)
	}
	for field, hs := range r.MultipartForm.File {
		if field == "file" || field == "files" {
			continue
		}
		headers = append(headers, hs...)
	}

	uploads := make([]upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, s.maxUpload()+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		if int64(len(data)) > s.maxUpload() {
			return nil, fmt.Errorf("upload %s exceeds size limit", fh.Filename)
		}
		uploads = append(uploads, upload{Name: safeFilename(fh.Filename), Data: data})
	}
	return uploads, nil
}

// safeFilename strips any path components a client smuggled into the
// filename.
func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload.pdf"
	}
	return name
}

// looksLikePDF is a cheap magic check before parsing.
func looksLikePDF(data []byte) bool {
	return len(data) > 4 && string(data[:5]) == "%PDF-"
}

// requestedEntities decodes the optional requested_entities form value, a
// JSON array of entity names.
func requestedEntities(r *http.Request) ([]string, error) {
	raw := strings.TrimSpace(r.FormValue("requested_entities"))
	if raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("requested_entities is not a JSON array: %w", err)
	}
	return list, nil
}

// thresholdParam decodes the optional threshold form value in [0,1].
func thresholdParam(r *http.Request) (float64, bool, error) {
	raw := strings.TrimSpace(r.FormValue("threshold"))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, false, fmt.Errorf("threshold must be a number in [0,1]")
	}
	return v, true, nil
}

// boolParam decodes an optional boolean form value.
func boolParam(r *http.Request, name string) bool {
	raw := strings.ToLower(strings.TrimSpace(r.FormValue(name)))
	return raw == "1" || raw == "true" || raw == "yes"
}
