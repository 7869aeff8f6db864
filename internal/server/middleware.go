// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/config"
)

// securityHeaders sets the full response-hardening header set on every
// response. CSP is relaxed outside production so local tooling works.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Embedder-Policy", "require-corp")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		if s.cfg.Server.Environment == "production" {
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		} else {
			h.Set("Content-Security-Policy", "default-src 'self'")
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// requestLogger logs one line per request and feeds the metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		s.metrics.ObserveRequest(r.Method, r.URL.Path, rec.status, elapsed)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Str("remote", clientIP(r)).
			Msg("request")
	})
}

// recoverPanics turns a handler panic into the uniform 500 envelope.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.writeError(w, http.StatusInternalServerError, errInternal,
					"internal server error", &panicValue{p})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type panicValue struct{ value any }

func (p *panicValue) Error() string { return "handler panic" }

// rateLimiter is an in-process sliding-window limiter keyed by client IP.
// Keyed clients, anonymous clients and the operational surface
// (status/metrics/help) each get their own budget.
type rateLimiter struct {
	cfg config.RateLimitConfig

	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	start time.Time
	count int
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	return &rateLimiter{cfg: cfg, windows: make(map[string]*rateWindow)}
}

// allow reports whether one more request fits the per-minute budget.
func (l *rateLimiter) allow(key string, rpm int) bool {
	if rpm <= 0 {
		return true
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.windows[key] = &rateWindow{start: now, count: 1}
		return true
	}
	limit := rpm + l.cfg.Burst
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

// adminPath reports whether the request targets the operational surface,
// which runs under the wider admin budget.
func adminPath(path string) bool {
	return path == "/status" || path == "/metrics" || path == "/help" || strings.HasPrefix(path, "/help/")
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		rpm := s.cfg.RateLimit.AnonRequestsPerMinute
		key := "anon:" + ip
		switch {
		case adminPath(r.URL.Path):
			rpm = s.cfg.RateLimit.AdminRequestsPerMinute
			key = "admin:" + ip
		case r.Header.Get("X-Api-Key") != "":
			rpm = s.cfg.RateLimit.RequestsPerMinute
			key = "key:" + r.Header.Get("X-Api-Key")
		}
		if !s.limiter.allow(key, rpm) {
			w.Header().Set("Retry-After", "60")
			s.writeError(w, http.StatusTooManyRequests, errResource,
				"rate limit exceeded, retry later", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
