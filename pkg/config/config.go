// Copyright 2017 TiKV Project Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the typed configuration for the scheduler, region
// worker and failover runner, loaded from TOML the way the teacher's
// server/config package loads pd.toml.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/greptime/region-control/pkg/logutil"
)

// Config is the top-level configuration for a control-plane or storage-node
// process embedding this module.
type Config struct {
	Log       logutil.Config  `toml:"log"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Worker    WorkerConfig    `toml:"worker"`
	Failover  FailoverConfig  `toml:"failover"`
	Lock      LockConfig      `toml:"lock"`
}

// SchedulerConfig controls the local bounded job scheduler (§4.F).
type SchedulerConfig struct {
	// Concurrency is the number of worker goroutines draining the job queue.
	Concurrency int `toml:"concurrency"`
}

// WorkerConfig controls the per-region worker loop (§4.G).
type WorkerConfig struct {
	// MailboxCapacity bounds the worker's request channel.
	MailboxCapacity int `toml:"mailbox-capacity"`
	// FlushOnClose flushes the active memtable before a region is closed.
	FlushOnClose bool `toml:"flush-on-close"`
}

// FailoverConfig controls the region-failover procedure (§4.E).
type FailoverConfig struct {
	// StepDeadline is the configured per-step deadline for a failover-state
	// transition. No package in this module reads it: failover.Runner runs
	// each step under the caller's context only and applies no step deadline.
	StepDeadline time.Duration `toml:"step-deadline"`
	// RetryBackoffBase is the initial backoff before re-entering a state
	// after a RetryLater error.
	RetryBackoffBase time.Duration `toml:"retry-backoff-base"`
	// RetryBackoffMax caps the exponential backoff.
	RetryBackoffMax time.Duration `toml:"retry-backoff-max"`
	// MinProcedureVersion gates which failover procedure encoding a resuming
	// runner will accept, mirroring the teacher's semver feature gates.
	MinProcedureVersion string `toml:"min-procedure-version"`
}

// LockConfig controls the distributed lock used to serialize failover steps.
type LockConfig struct {
	TTL time.Duration `toml:"ttl"`
}

// Default returns the configuration this module ships with when no file is
// supplied.
func Default() Config {
	return Config{
		Log: logutil.DefaultConfig(),
		Scheduler: SchedulerConfig{
			Concurrency: 4,
		},
		Worker: WorkerConfig{
			MailboxCapacity: 1024,
			FlushOnClose:    true,
		},
		Failover: FailoverConfig{
			StepDeadline:        30 * time.Second,
			RetryBackoffBase:    500 * time.Millisecond,
			RetryBackoffMax:     30 * time.Second,
			MinProcedureVersion: "1.0.0",
		},
		Lock: LockConfig{
			TTL: 10 * time.Second,
		},
	}
}

// Load reads and parses a TOML configuration file, starting from Default()
// so unset fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
