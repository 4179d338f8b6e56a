// Package cmn provides process-wide configuration and small utilities shared
// by every package in the storage core: the commit-point thresholds the
// batch builder enforces, the retry/backoff bounds the write pipeline uses,
// and the lease/queue timers the background jobs run on.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"
)

var jsonConfig = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the process-wide, hot-reloadable configuration. It is held
// behind GCO (the Global Config Owner) and swapped atomically on reload,
// exactly as ReloadSettings-style broadcast events require: readers never
// observe a partially-updated Config.
type Config struct {
	// Write pipeline (batch.Builder) thresholds, spec.md §4.1.
	MaxBatchSize int64 `json:"max_batch_size"`
	MaxBatchOps  int   `json:"max_batch_ops"`
	MaxValueSize int   `json:"max_value_size"`

	// Commit retry bounds, spec.md §5 and §9.
	MaxCommitAttempts int           `json:"max_commit_attempts"`
	MaxCommitTime     time.Duration `json:"max_commit_time"`

	// Change-log retention, spec.md §4.2.
	DefaultHistoryWindow time.Duration `json:"default_history_window"`

	// Purge job, spec.md §4.4.
	PurgeLeaseTTL    time.Duration `json:"purge_lease_ttl"`
	UndeleteHoldDays int           `json:"undelete_hold_days"`
	PurgeWorkers     int           `json:"purge_workers"`

	// Queue manager, spec.md §4.5.
	QueueLockExpiry  time.Duration `json:"queue_lock_expiry"`
	BackPressureWarn time.Duration `json:"back_pressure_warn"`

	// Broadcast subscriber, spec.md §4.6.
	BroadcastTopic      string        `json:"broadcast_topic"`
	BroadcastMaxBackoff time.Duration `json:"broadcast_max_backoff"`

	// Blob store erasure coding, SPEC_FULL.md §2 DOMAIN STACK (blob-link
	// durability for purge's unlink step).
	BlobDataShards   int `json:"blob_data_shards"`
	BlobParityShards int `json:"blob_parity_shards"`

	// NUM_THREADS, spec.md §6: concurrency cap for background worker pools.
	NumThreads int `json:"-"`
}

// DefaultConfig mirrors the numeric constants named throughout spec.md: the
// ~5MB/1000-op commit-point thresholds (§4.1), the ~100KB chunking cap
// (§4.1), the one-hour purge lease (§4.4), and the 5-10s randomized queue
// lock expiry plus 60s back-pressure throttle (§4.5).
func DefaultConfig() *Config {
	return &Config{
		MaxBatchSize:         5_000_000,
		MaxBatchOps:          1000,
		MaxValueSize:         100_000,
		MaxCommitAttempts:    10,
		MaxCommitTime:        4 * time.Second,
		DefaultHistoryWindow: 30 * 24 * time.Hour,
		PurgeLeaseTTL:        time.Hour,
		UndeleteHoldDays:     0,
		PurgeWorkers:         minInt(2, runtime.NumCPU()) * 2,
		QueueLockExpiry:      30 * time.Second,
		BackPressureWarn:     60 * time.Second,
		BroadcastTopic:       "groupware.broadcast",
		BroadcastMaxBackoff:  64 * time.Second,
		BlobDataShards:       4,
		BlobParityShards:     2,
		NumThreads:           NumThreadsFromEnv(),
	}
}

// NumThreadsFromEnv reads NUM_THREADS per spec.md §6, defaulting to
// min(2, NumCPU) * 2.
func NumThreadsFromEnv() int {
	def := minInt(2, runtime.NumCPU()) * 2
	if def < 1 {
		def = 1
	}
	v := os.Getenv("NUM_THREADS")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		glog.Warningf("cmn: invalid NUM_THREADS=%q, falling back to %d", v, def)
		return def
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// globalConfigOwner hot-swaps the process-wide Config and guards updates
// with a mutex so that BeginUpdate/CommitUpdate pairs never interleave,
// following the teacher's own config-owner discipline.
type globalConfigOwner struct {
	mtx sync.Mutex
	p   atomic.Pointer[Config]
}

// GCO (Global Config Owner) is the single place every package reads and
// updates configuration through; every reader observes a committed Config
// atomically.
var GCO = &globalConfigOwner{}

func init() {
	GCO.Put(DefaultConfig())
}

func (gco *globalConfigOwner) Get() *Config { return gco.p.Load() }

func (gco *globalConfigOwner) Put(c *Config) { gco.p.Store(c) }

// BeginUpdate locks the config for a read-modify-write update and returns a
// shallow copy to mutate. Must be followed by CommitUpdate or DiscardUpdate.
func (gco *globalConfigOwner) BeginUpdate() *Config {
	gco.mtx.Lock()
	cp := *gco.Get()
	return &cp
}

func (gco *globalConfigOwner) CommitUpdate(c *Config) {
	gco.p.Store(c)
	gco.mtx.Unlock()
}

func (gco *globalConfigOwner) DiscardUpdate() {
	gco.mtx.Unlock()
}

// LoadFile loads a JSON-encoded Config from path, merging over
// DefaultConfig so callers only need to specify overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cmn: read config %s: %w", path, err)
	}
	c := DefaultConfig()
	if err := jsonConfig.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("cmn: parse config %s: %w", path, err)
	}
	return c, nil
}
