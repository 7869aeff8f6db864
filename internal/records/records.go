// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package records keeps the append-only processing log: one JSONL file
// per UTC date, date-bucketed retention cleanup, and in-memory counters.
// Records carry no document content, only processing facts.
package records

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Record is one processing event.
type Record struct {
	Timestamp      string   `json:"timestamp"`
	OperationType  string   `json:"operation_type"`
	DocumentType   string   `json:"document_type"`
	EntityTypes    []string `json:"entity_types"`
	ProcessingTime float64  `json:"processing_time"`
	FileCount      int      `json:"file_count"`
	EntityCount    int      `json:"entity_count"`
	Success        bool     `json:"success"`
	LegalBasis     string   `json:"legal_basis"`
	OperationID    string   `json:"operation_id"`
}

// Stats are the counters over the record files within the retention
// window: rebuilt from disk at startup and after every retention pass,
// advanced incrementally on each Record call in between.
type Stats struct {
	TotalRecords   int            `json:"total_records"`
	SuccessCount   int            `json:"success_count"`
	FailureCount   int            `json:"failure_count"`
	ByOperation    map[string]int `json:"by_operation"`
	TotalEntities  int            `json:"total_entities"`
	TotalFiles     int            `json:"total_files"`
	FilesOnDisk    int            `json:"files_on_disk"`
	RetentionDays  int            `json:"retention_days"`
	LastCleanupRun time.Time      `json:"last_cleanup_run,omitempty"`
}

const (
	filePrefix        = "processing_record_"
	fileSuffix        = ".jsonl"
	defaultRetention  = 90
	defaultLegalBasis = "legitimate_interest"
)

// Keeper appends processing records and enforces retention.
type Keeper struct {
	dir           string
	retentionDays int
	log           zerolog.Logger

	mu          sync.Mutex
	stats       Stats
	lastCleanup time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewKeeper returns a keeper writing under dir. Retention defaults to 90
// days. An initial cleanup runs on creation, seeding the counters from
// whatever record files survive; StartRetention adds the daily background
// pass.
func NewKeeper(dir string, retentionDays int, log zerolog.Logger) (*Keeper, error) {
	if retentionDays <= 0 {
		retentionDays = defaultRetention
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("records: create dir %s: %w", dir, err)
	}
	k := &Keeper{
		dir:           dir,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "records").Logger(),
		stop:          make(chan struct{}),
		stats:         Stats{ByOperation: make(map[string]int), RetentionDays: retentionDays},
	}
	if n, err := k.CleanupExpired(); err != nil {
		k.log.Warn().Err(err).Msg("initial retention cleanup failed")
	} else if n > 0 {
		k.log.Info().Int("removed", n).Msg("expired record files removed at startup")
	}
	return k, nil
}

// OperationID derives the public id of one event: the first 16 hex digits
// of sha256(timestamp|operation|document).
func OperationID(timestamp, operation, documentType string) string {
	sum := sha256.Sum256([]byte(timestamp + "|" + operation + "|" + documentType))
	return hex.EncodeToString(sum[:])[:16]
}

// Record appends one event to today's UTC file and updates counters.
func (k *Keeper) Record(opType, docType string, entityTypes []string, processingTime time.Duration, fileCount, entityCount int, success bool) (Record, error) {
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339)
	if entityTypes == nil {
		entityTypes = []string{}
	}
	rec := Record{
		Timestamp:      ts,
		OperationType:  opType,
		DocumentType:   docType,
		EntityTypes:    entityTypes,
		ProcessingTime: processingTime.Seconds(),
		FileCount:      fileCount,
		EntityCount:    entityCount,
		Success:        success,
		LegalBasis:     defaultLegalBasis,
		OperationID:    OperationID(ts, opType, docType),
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("records: encode: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	path := filepath.Join(k.dir, filePrefix+now.Format("2006-01-02")+fileSuffix)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Record{}, fmt.Errorf("records: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return Record{}, fmt.Errorf("records: append: %w", err)
	}

	k.stats.TotalRecords++
	if success {
		k.stats.SuccessCount++
	} else {
		k.stats.FailureCount++
	}
	k.stats.ByOperation[opType]++
	k.stats.TotalEntities += entityCount
	k.stats.TotalFiles += fileCount
	return rec, nil
}

// Stats returns a deep copy of the counters plus the on-disk file count.
func (k *Keeper) Stats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := k.stats
	out.ByOperation = make(map[string]int, len(k.stats.ByOperation))
	for op, n := range k.stats.ByOperation {
		out.ByOperation[op] = n
	}
	out.LastCleanupRun = k.lastCleanup
	out.FilesOnDisk = len(k.recordFiles())
	return out
}

// CleanupExpired deletes record files whose date bucket is older than the
// retention window and returns how many were removed. The counters are
// rebuilt from the surviving files afterwards so Stats never reports
// records that retention already deleted.
func (k *Keeper) CleanupExpired() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -k.retentionDays)
	removed := 0
	var firstErr error
	for _, name := range k.recordFiles() {
		date, ok := fileDate(name)
		if !ok {
			continue
		}
		if date.Before(cutoff) {
			if err := os.Remove(filepath.Join(k.dir, name)); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			removed++
		}
	}
	k.mu.Lock()
	k.recomputeStats()
	k.lastCleanup = time.Now().UTC()
	k.mu.Unlock()
	return removed, firstErr
}

// recomputeStats rebuilds the counters from the record files on disk.
// Called with k.mu held.
func (k *Keeper) recomputeStats() {
	stats := Stats{ByOperation: make(map[string]int), RetentionDays: k.retentionDays}
	for _, name := range k.recordFiles() {
		raw, err := os.ReadFile(filepath.Join(k.dir, name))
		if err != nil {
			k.log.Warn().Err(err).Str("file", name).Msg("record file unreadable during recount")
			continue
		}
		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var rec Record
			if err := json.Unmarshal(line, &rec); err != nil {
				continue
			}
			stats.TotalRecords++
			if rec.Success {
				stats.SuccessCount++
			} else {
				stats.FailureCount++
			}
			stats.ByOperation[rec.OperationType]++
			stats.TotalEntities += rec.EntityCount
			stats.TotalFiles += rec.FileCount
		}
	}
	k.stats = stats
}

// StartRetention launches the daily retention worker.
func (k *Keeper) StartRetention() {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := k.CleanupExpired(); err != nil {
					k.log.Warn().Err(err).Msg("retention cleanup failed")
				} else if n > 0 {
					k.log.Info().Int("removed", n).Msg("expired record files removed")
				}
			case <-k.stop:
				return
			}
		}
	}()
}

// StopRetention terminates the retention worker.
func (k *Keeper) StopRetention() {
	k.stopOnce.Do(func() { close(k.stop) })
}

func (k *Keeper) recordFiles() []string {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	return names
}

func fileDate(name string) (time.Time, bool) {
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
