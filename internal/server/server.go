// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server is the HTTP surface: routing, middleware (security
// headers, CORS, rate limiting, response caching), per-endpoint
// orchestration and the central error handler.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/config"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/detect"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/memwatch"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/parallel"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/pdfproc"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/records"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/respcache"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/syncx"
)

// Server owns every process-wide collaborator and the router.
type Server struct {
	cfg *config.Config
	log zerolog.Logger

	locks     *syncx.Manager
	monitor   *memwatch.Monitor
	respCache *respcache.ResponseCache
	runner    *parallel.Runner
	extractor *pdfproc.Extractor
	redactor  *pdfproc.Redactor
	keeper    *records.Keeper
	metrics   *Metrics
	limiter   *rateLimiter

	// detectors by engine key; hybrid drives all of them.
	detectors map[string]detect.Detector
	hybrid    *detect.HybridDetector

	started time.Time
}

// Deps carries the collaborators built at startup.
type Deps struct {
	Locks     *syncx.Manager
	Monitor   *memwatch.Monitor
	RespCache *respcache.ResponseCache
	Runner    *parallel.Runner
	Extractor *pdfproc.Extractor
	Redactor  *pdfproc.Redactor
	Keeper    *records.Keeper
	Detectors map[string]detect.Detector
	Hybrid    *detect.HybridDetector
}

// New assembles the server from its dependencies.
func New(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		log:       log.With().Str("component", "server").Logger(),
		locks:     deps.Locks,
		monitor:   deps.Monitor,
		respCache: deps.RespCache,
		runner:    deps.Runner,
		extractor: deps.Extractor,
		redactor:  deps.Redactor,
		keeper:    deps.Keeper,
		metrics:   NewMetrics(),
		limiter:   newRateLimiter(cfg.RateLimit),
		detectors: deps.Detectors,
		hybrid:    deps.Hybrid,
		started:   time.Now(),
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	r.Use(s.securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "If-None-Match", "X-Api-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(s.rateLimit)
	r.Use(s.recoverPanics)
	r.Use(s.cacheMiddleware)

	r.Post("/pdf/extract", s.handleExtract)
	r.Post("/pdf/redact", s.handleRedact)

	r.Post("/ai/detect", s.detectHandler("gemini"))
	r.Post("/ml/detect", s.detectHandler("presidio"))
	r.Post("/ml/gl_detect", s.detectHandler("gliner"))
	r.Post("/ml/hm_detect", s.detectHandler("hideme"))

	r.Post("/batch/detect", s.handleBatchDetect)
	r.Post("/batch/hybrid_detect", s.handleBatchHybridDetect)
	r.Post("/batch/redact", s.handleBatchRedact)
	r.Post("/batch/search", s.handleBatchSearch)
	r.Post("/batch/find_words", s.handleBatchFindWords)
	r.Post("/batch/extract", s.handleBatchExtract)

	r.Get("/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	r.Get("/readiness", s.handleReadiness)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Get("/help/engines", s.handleHelpEngines)
	r.Get("/help/entities", s.handleHelpEntities)
	r.Get("/help/entity-examples", s.handleHelpEntityExamples)
	r.Get("/help/detectors-status", s.handleHelpDetectorsStatus)
	r.Get("/help/routes", s.handleHelpRoutes)

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	}
}
