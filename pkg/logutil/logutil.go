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

// Package logutil wires github.com/pingcap/log onto a rotating file sink,
// the same combination the teacher repo configures its server logging with.
package logutil

import (
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pingcap/log"
	"go.uber.org/zap/zapcore"
)

// Config controls where and how control-plane logs are written.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// File, if non-empty, directs logs to a rotating file instead of stderr.
	File string `toml:"file"`
	// MaxSize is the rotated file size cap, in megabytes.
	MaxSize int `toml:"max-size"`
	// MaxBackups is the number of rotated files retained.
	MaxBackups int `toml:"max-backups"`
	// MaxDays is the retention window, in days.
	MaxDays int `toml:"max-days"`
}

// DefaultConfig returns the teacher's defaults (10 rotations, 300MB, 28 days).
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSize:    300,
		MaxBackups: 10,
		MaxDays:    28,
	}
}

// SetupGlobalLogger installs cfg as the process-wide logger used by every
// pingcap/log call site in this module.
func SetupGlobalLogger(cfg Config) error {
	logCfg := &log.Config{
		Level: cfg.Level,
	}
	if cfg.File != "" {
		logCfg.File = log.FileLogConfig{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxDays:    cfg.MaxDays,
		}
	}
	logger, props, err := log.InitLogger(logCfg)
	if err != nil {
		return err
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// RotatingWriter exposes the lumberjack sink directly for components that
// need a plain io.Writer rather than the structured logger.
func RotatingWriter(cfg Config) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
	})
}
