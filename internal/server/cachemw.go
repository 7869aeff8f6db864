// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/respcache"
)

// cacheablePrefixes are the path prefixes the response cache covers.
var cacheablePrefixes = []string{"/ai", "/ml", "/batch", "/pdf", "/help"}

// defaultResponseTTL is the cache lifetime unless the handler overrides
// it with X-Cache-TTL.
const defaultResponseTTL = 300 * time.Second

func cacheable(path string) bool {
	for _, p := range cacheablePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// cacheMiddleware serves cached responses for repeated identical requests
// and answers 304 on ETag matches. Multipart uploads participate through
// a digest of their field names and file contents.
func (s *Server) cacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.respCache == nil || !cacheable(r.URL.Path) ||
			(r.Method != http.MethodGet && r.Method != http.MethodPost) {
			next.ServeHTTP(w, r)
			return
		}

		key, ok := s.cacheKey(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if entry, hit := s.respCache.Get(key); hit {
			if match := r.Header.Get("If-None-Match"); match != "" && match == entry.ETag {
				w.Header().Set("ETag", entry.ETag)
				w.WriteHeader(http.StatusNotModified)
				return
			}
			for k, v := range entry.Headers {
				w.Header().Set(k, v)
			}
			w.Header().Set("Content-Type", entry.MediaType)
			w.Header().Set("ETag", entry.ETag)
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(entry.StatusCode)
			w.Write(entry.Content)
			return
		}

		rec := &captureWriter{ResponseWriter: w, buf: &bytes.Buffer{}}
		next.ServeHTTP(rec, r)

		if rec.status >= 200 && rec.status < 300 && rec.buf.Len() > 0 {
			etag := bodyETag(rec.buf.Bytes())
			ttl := defaultResponseTTL
			if override := rec.Header().Get("X-Cache-TTL"); override != "" {
				if secs, err := strconv.Atoi(override); err == nil && secs > 0 {
					ttl = time.Duration(secs) * time.Second
				}
			}
			s.respCache.Set(key, respcache.Entry{
				Content:    append([]byte(nil), rec.buf.Bytes()...),
				StatusCode: rec.status,
				MediaType:  rec.Header().Get("Content-Type"),
				ETag:       etag,
			}, ttl)
		}
	})
}

// bodyETag is sha256 over the response body; identical bodies always get
// identical tags.
func bodyETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// cacheKey builds the request identity: method, path, sorted query,
// negotiation headers and, for multipart posts, the upload digest.
func (s *Server) cacheKey(r *http.Request) (string, bool) {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('|')
	b.WriteString(r.URL.Path)
	b.WriteByte('|')
	b.WriteString(sortedQuery(r.URL.Query()))
	b.WriteByte('|')
	b.WriteString(r.Header.Get("Accept"))
	b.WriteByte('|')
	b.WriteString(r.Header.Get("Accept-Encoding"))

	if r.Method == http.MethodPost {
		digest, ok := multipartDigest(r, s.cfg.Server.MaxUploadBytes)
		if !ok {
			return "", false
		}
		b.WriteByte('|')
		b.WriteString(digest)
	}
	return b.String(), true
}

func sortedQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
			b.WriteByte('&')
		}
	}
	return b.String()
}

// multipartDigest hashes the field names and file contents of a multipart
// body, restoring the body for the downstream handler. Non-multipart
// posts hash the raw body the same way.
func multipartDigest(r *http.Request, maxBytes int64) (string, bool) {
	if r.Body == nil {
		return "", true
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil || int64(len(body)) > maxBytes {
		return "", false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		sum := sha256.Sum256(body)
		return hex.EncodeToString(sum[:]), true
	}

	// Parse a copy so the handler still sees the original reader.
	probe := *r
	probe.Body = io.NopCloser(bytes.NewReader(body))
	if err := probe.ParseMultipartForm(maxBytes); err != nil {
		sum := sha256.Sum256(body)
		return hex.EncodeToString(sum[:]), true
	}
	defer probe.MultipartForm.RemoveAll()

	var names []string
	for name := range probe.MultipartForm.Value {
		names = append(names, "v:"+name)
	}
	for name := range probe.MultipartForm.File {
		names = append(names, "f:"+name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, n := range names {
		io.WriteString(h, n)
		h.Write([]byte{0})
	}
	for _, name := range sortedFileFields(probe.MultipartForm.File) {
		for _, fh := range probe.MultipartForm.File[name] {
			f, err := fh.Open()
			if err != nil {
				continue
			}
			io.Copy(h, f)
			f.Close()
		}
	}
	for _, name := range sortedValueFields(probe.MultipartForm.Value) {
		for _, v := range probe.MultipartForm.Value[name] {
			io.WriteString(h, v)
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil)), true
}

func sortedFileFields(m map[string][]*multipart.FileHeader) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValueFields(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// captureWriter tees the response body for cache storage.
type captureWriter struct {
	http.ResponseWriter
	buf    *bytes.Buffer
	status int
}

func (w *captureWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}
