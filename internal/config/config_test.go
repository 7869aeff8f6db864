// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Records.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d", cfg.Records.RetentionDays)
	}
	if cfg.Memory.Threshold != 80 || cfg.Memory.CriticalThreshold != 90 {
		t.Errorf("memory thresholds = %v/%v", cfg.Memory.Threshold, cfg.Memory.CriticalThreshold)
	}
	if cfg.Detector.ScoreThreshold != 0.40 {
		t.Errorf("ScoreThreshold = %v", cfg.Detector.ScoreThreshold)
	}
	if cfg.Parallel.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d", cfg.Parallel.MaxWorkers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("RETENTION_DAYS", "30")
	t.Setenv("LOCAL_FILES_ONLY", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Records.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d", cfg.Records.RetentionDays)
	}
	if cfg.Detector.LocalFilesOnly {
		t.Error("LocalFilesOnly override ignored")
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	t.Setenv("MEMORY_CHECK_INTERVAL", "10")
	t.Setenv("MIN_GC_INTERVAL", "45s")
	cfg := Load()
	if cfg.Memory.CheckInterval != 10*time.Second {
		t.Errorf("CheckInterval = %v", cfg.Memory.CheckInterval)
	}
	if cfg.Memory.MinGCInterval != 45*time.Second {
		t.Errorf("MinGCInterval = %v", cfg.Memory.MinGCInterval)
	}
}

func TestMalformedValuesKeepDefaults(t *testing.T) {
	t.Setenv("RETENTION_DAYS", "soon")
	t.Setenv("MEMORY_THRESHOLD", "very high")
	cfg := Load()
	if cfg.Records.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d", cfg.Records.RetentionDays)
	}
	if cfg.Memory.Threshold != 80 {
		t.Errorf("Threshold = %v", cfg.Memory.Threshold)
	}
}
