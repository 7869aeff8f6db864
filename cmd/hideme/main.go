// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command hideme runs the sensitive-data detection and redaction service,
// plus small extract/redact utilities for working with single files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/config"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/detect"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/memwatch"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/parallel"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/pdfproc"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/records"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/respcache"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/server"
	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/syncx"
)

func main() {
	root := &cobra.Command{
		Use:           "hideme",
		Short:         "Sensitive-data detection and redaction for PDF documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), extractCmd(), redactCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hideme:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger; development gets console output,
// everything else JSON lines.
func newLogger(environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := newLogger(cfg.Server.Environment)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}
}

// run wires every collaborator and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	locks := syncx.NewManager(log)

	monitor := memwatch.NewMonitor(memwatch.Options{
		Threshold:          cfg.Memory.Threshold,
		CriticalThreshold:  cfg.Memory.CriticalThreshold,
		BatchThreshold:     cfg.Memory.BatchThreshold,
		CheckInterval:      cfg.Memory.CheckInterval,
		AdaptiveThresholds: cfg.Memory.AdaptiveThresholds,
		MinGCInterval:      cfg.Memory.MinGCInterval,
	}, log)

	respCache := respcache.New(cfg.Cache.MaxEntries, cfg.Cache.DefaultTTL, locks, log)
	respCache.StartCleanup(cfg.Cache.CleanupInterval)
	defer respCache.StopCleanup()

	runner := parallel.NewRunner(monitor, log)
	extractor := pdfproc.NewExtractor(locks, pdfproc.ExtractOptions{}, log)
	redactor := pdfproc.NewRedactor(locks, pdfproc.RedactOptions{}, log)

	models := detect.NewModelCache(locks, log)
	results := detect.NewResultCache()
	detectors := buildDetectors(cfg, models, results, locks, runner, log)

	// Under memory pressure, drop every process cache.
	monitor.SetCacheClearer(func() {
		respCache.Clear()
		results.Clear()
		models.Clear()
	})
	if cfg.Memory.Enabled {
		monitor.Start()
		defer monitor.Stop()
	}

	keeper, err := records.NewKeeper(cfg.Records.Dir, cfg.Records.RetentionDays, log)
	if err != nil {
		return err
	}
	keeper.StartRetention()
	defer keeper.StopRetention()

	ordered := make([]detect.Detector, 0, len(detectors))
	for _, name := range []string{"presidio", "gliner", "hideme", "gemini"} {
		if det, ok := detectors[name]; ok {
			ordered = append(ordered, det)
		}
	}
	hybrid := detect.NewHybridDetector(ordered, log)

	srv := server.New(cfg, server.Deps{
		Locks:     locks,
		Monitor:   monitor,
		RespCache: respCache,
		Runner:    runner,
		Extractor: extractor,
		Redactor:  redactor,
		Keeper:    keeper,
		Detectors: detectors,
		Hybrid:    hybrid,
	}, log)
	return srv.ListenAndServe(ctx)
}

// glinerEntities is the general NER model's label set.
var glinerEntities = []string{
	"person", "location", "organization", "email", "phone number",
	"address", "date of birth", "account number", "health information",
}

// hidemeEntities is the domain model's label set.
var hidemeEntities = []string{
	"PERSON-H", "EMAIL_H", "PHONE_H", "ADDRESS-H", "NO_FODSELSNUMMER_H",
	"HEALTH_INFO_H", "ECONOMY_H", "EMPLOYMENT_H", "FAMILY_RELATION_H",
}

// buildDetectors constructs the engine registry from configuration. The
// LLM engine only appears when an endpoint is configured.
func buildDetectors(cfg *config.Config, models *detect.ModelCache, results *detect.ResultCache,
	locks *syncx.Manager, runner *parallel.Runner, log zerolog.Logger) map[string]detect.Detector {

	detectors := map[string]detect.Detector{
		"presidio": detect.NewPatternDetector(runner, log),
		"gliner": detect.NewTransformerDetector(detect.EngineSpec{
			EngineName:      "gliner",
			ModelName:       "urchade/gliner_multi_pii-v1",
			DefaultEntities: glinerEntities,
			ModelDir:        filepath.Join(cfg.Detector.ModelRoot, "gliner"),
			ValidEntity:     listMembership(glinerEntities, true),
			LocalFilesOnly:  cfg.Detector.LocalFilesOnly,
			InferenceURL:    cfg.Detector.InferenceURL,
			Threshold:       cfg.Detector.ScoreThreshold,
			EntityBatchSize: cfg.Detector.EntityBatchSize,
			PageTimeout:     cfg.Detector.PageTimeout,
			MaxChunkChars:   cfg.Detector.SentenceGroupMax,
		}, models, results, locks, runner, log),
		"hideme": detect.NewTransformerDetector(detect.EngineSpec{
			EngineName:      "hideme",
			ModelName:       "yasinhessnawi1/hideme_AI",
			DefaultEntities: hidemeEntities,
			ModelDir:        filepath.Join(cfg.Detector.ModelRoot, "hideme"),
			ValidEntity:     listMembership(hidemeEntities, false),
			LocalFilesOnly:  cfg.Detector.LocalFilesOnly,
			InferenceURL:    cfg.Detector.InferenceURL,
			Threshold:       cfg.Detector.ScoreThreshold,
			EntityBatchSize: cfg.Detector.EntityBatchSize,
			PageTimeout:     cfg.Detector.PageTimeout,
			MaxChunkChars:   cfg.Detector.SentenceGroupMax,
		}, models, results, locks, runner, log),
	}
	if cfg.Detector.LLMBaseURL != "" {
		detectors["gemini"] = detect.NewLLMDetector(detect.LLMOptions{
			BaseURL: cfg.Detector.LLMBaseURL,
			Model:   cfg.Detector.LLMModel,
			APIKey:  cfg.Detector.LLMAPIKey,
		}, runner, log)
	}
	return detectors
}

func listMembership(valid []string, foldCase bool) func(string) bool {
	set := make(map[string]bool, len(valid))
	for _, v := range valid {
		if foldCase {
			v = strings.ToLower(v)
		}
		set[v] = true
	}
	return func(name string) bool {
		if foldCase {
			name = strings.ToLower(name)
		}
		return set[name]
	}
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract file.pdf",
		Short: "Print positional text extraction as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger("cli")
			extractor := pdfproc.NewExtractor(syncx.NewManager(log), pdfproc.ExtractOptions{}, log)
			data, err := extractor.ExtractFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
}

func redactCmd() *cobra.Command {
	var mappingPath, outPath string
	cmd := &cobra.Command{
		Use:   "redact file.pdf",
		Short: "Apply a redaction mapping to one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(mappingPath)
			if err != nil {
				return err
			}
			var mapping document.RedactionMapping
			if err := json.Unmarshal(raw, &mapping); err != nil {
				return fmt.Errorf("mapping %s: %w", mappingPath, err)
			}
			if outPath == "" {
				outPath = strings.TrimSuffix(args[0], ".pdf") + "_redacted.pdf"
			}
			log := newLogger("cli")
			redactor := pdfproc.NewRedactor(syncx.NewManager(log), pdfproc.RedactOptions{}, log)
			if err := redactor.RedactFile(cmd.Context(), args[0], outPath, mapping); err != nil {
				return err
			}
			fmt.Println(outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&mappingPath, "mapping", "m", "", "redaction mapping JSON file (required)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default <file>_redacted.pdf)")
	cmd.MarkFlagRequired("mapping")
	return cmd
}
