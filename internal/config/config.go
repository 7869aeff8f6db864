// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads service configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MemoryConfig controls the background memory monitor.
type MemoryConfig struct {
	Enabled            bool
	Threshold          float64 // percent of system memory
	CriticalThreshold  float64
	BatchThreshold     float64
	CheckInterval      time.Duration
	AdaptiveThresholds bool
	MinGCInterval      time.Duration
}

// CacheConfig controls the HTTP response cache.
type CacheConfig struct {
	MaxEntries      int
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

// RateLimitConfig controls the in-process request limiter.
type RateLimitConfig struct {
	RequestsPerMinute      int
	AdminRequestsPerMinute int
	AnonRequestsPerMinute  int
	Burst                  int
	RedisURL               string // recognized but unused without a Redis deployment
}

// DetectorConfig controls the entity detection engines.
type DetectorConfig struct {
	ModelRoot        string
	InferenceURL     string // transformer inference sidecar
	LLMBaseURL       string // OpenAI-compatible endpoint for the ai engine
	LLMModel         string
	LLMAPIKey        string
	LocalFilesOnly   bool
	PageTimeout      time.Duration
	HybridTimeout    time.Duration
	EntityBatchSize  int
	ScoreThreshold   float64
	SentenceGroupMax int
}

// ParallelConfig controls batch fan-out sizing.
type ParallelConfig struct {
	MaxWorkers    int
	Adaptive      bool
	MinWorkers    int
	MaxWorkersCap int
}

// RecordsConfig controls GDPR processing records and retention.
type RecordsConfig struct {
	Dir           string
	RetentionDays int
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	Environment    string
	MaxUploadBytes int64
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	Memory    MemoryConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Detector  DetectorConfig
	Parallel  ParallelConfig
	Records   RecordsConfig
}

// Load reads configuration from the environment, applying defaults for
// anything unset. Missing .env is not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr:           getEnv("LISTEN_ADDR", ":8000"),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
			Environment:    getEnv("ENVIRONMENT", "development"),
			MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 50*1024*1024),
		},
		Memory: MemoryConfig{
			Enabled:            getEnvBool("ENABLE_MEMORY_MONITORING", true),
			Threshold:          getEnvFloat("MEMORY_THRESHOLD", 80),
			CriticalThreshold:  getEnvFloat("CRITICAL_MEMORY_THRESHOLD", 90),
			BatchThreshold:     getEnvFloat("BATCH_MEMORY_THRESHOLD", 70),
			CheckInterval:      getEnvDuration("MEMORY_CHECK_INTERVAL", 5*time.Second),
			AdaptiveThresholds: getEnvBool("ADAPTIVE_MEMORY_THRESHOLDS", true),
			MinGCInterval:      getEnvDuration("MIN_GC_INTERVAL", 30*time.Second),
		},
		Cache: CacheConfig{
			MaxEntries:      getEnvInt("CACHE_MAX_ENTRIES", 1000),
			DefaultTTL:      getEnvDuration("CACHE_DEFAULT_TTL", 600*time.Second),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute:      getEnvInt("RATE_LIMIT_RPM", 120),
			AdminRequestsPerMinute: getEnvInt("ADMIN_RATE_LIMIT_RPM", 600),
			AnonRequestsPerMinute:  getEnvInt("ANON_RATE_LIMIT_RPM", 60),
			Burst:                  getEnvInt("RATE_LIMIT_BURST", 20),
			RedisURL:               getEnv("REDIS_URL", ""),
		},
		Detector: DetectorConfig{
			ModelRoot:        getEnv("MODEL_ROOT", "models"),
			InferenceURL:     getEnv("INFERENCE_URL", "http://127.0.0.1:8500"),
			LLMBaseURL:       getEnv("LLM_BASE_URL", ""),
			LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
			LLMAPIKey:        getEnv("LLM_API_KEY", ""),
			LocalFilesOnly:   getEnvBool("LOCAL_FILES_ONLY", true),
			PageTimeout:      getEnvDuration("DETECT_PAGE_TIMEOUT", 600*time.Second),
			HybridTimeout:    getEnvDuration("HYBRID_ENGINE_TIMEOUT", 120*time.Second),
			EntityBatchSize:  getEnvInt("ENTITY_BATCH_SIZE", 10),
			ScoreThreshold:   getEnvFloat("SCORE_THRESHOLD", 0.40),
			SentenceGroupMax: getEnvInt("SENTENCE_GROUP_MAX", 800),
		},
		Parallel: ParallelConfig{
			MaxWorkers:    getEnvInt("MAX_WORKERS", 4),
			Adaptive:      getEnvBool("ADAPTIVE_WORKERS", true),
			MinWorkers:    getEnvInt("MIN_WORKERS", 2),
			MaxWorkersCap: getEnvInt("MAX_WORKERS_CAP", 8),
		},
		Records: RecordsConfig{
			Dir:           getEnv("RECORDS_DIR", "logs/processing_records"),
			RetentionDays: getEnvInt("RETENTION_DAYS", 90),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getEnvDuration accepts either a Go duration string ("5s") or a bare
// number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
