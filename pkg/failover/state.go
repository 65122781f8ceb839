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

// Package failover drives the per-region failover procedure (§4.E): a
// durably-persisted state machine, Detected -> ElectCandidate ->
// UpdateRegionMetadata -> InvalidateCache -> Done, that may re-enter a
// state after a transient RetryLater failure.
package failover

import (
	"context"

	"github.com/greptime/region-control/pkg/meta"
)

// Kind discriminates State's variants, replacing the original's name-tagged
// dynamic-dispatch serialization (REDESIGN FLAGS: "serialized failover
// states... re-architect as an explicit tagged sum").
type Kind string

const (
	KindDetected              Kind = "Detected"
	KindElectCandidate        Kind = "ElectCandidate"
	KindUpdateRegionMetadata  Kind = "UpdateRegionMetadata"
	KindInvalidateCache       Kind = "InvalidateCache"
	KindDone                  Kind = "Done"
)

// State is one step of the failover procedure. Next runs the step's work
// and returns the state to transition to, or a *errs.Error — RetryLater
// (transient; the runner re-enters this same state after backoff) or any
// other kind (fatal; the runner aborts the procedure).
type State interface {
	// Kind identifies the variant, for persistence and logging.
	Kind() Kind
	// Next executes this state's action against failedRegion and returns
	// the next state.
	Next(ctx context.Context, fctx *RegionFailoverContext, failedRegion meta.RegionIdent) (State, error)
}

// Detected is the procedure's entry state: a region's leader has been
// observed down and failover has begun.
type Detected struct{}

// Kind implements State.
func (Detected) Kind() Kind { return KindDetected }

// Next implements State: Detected always proceeds to ElectCandidate.
func (Detected) Next(ctx context.Context, fctx *RegionFailoverContext, failedRegion meta.RegionIdent) (State, error) {
	return ElectCandidate{}, nil
}

// InvalidateCache broadcasts route invalidation after a successful metadata
// update; handlers are idempotent (§4.E, "at-least-once delivery").
type InvalidateCache struct{}

// Kind implements State.
func (InvalidateCache) Kind() Kind { return KindInvalidateCache }

// Next implements State: invalidates the cache and completes the procedure.
func (InvalidateCache) Next(ctx context.Context, fctx *RegionFailoverContext, failedRegion meta.RegionIdent) (State, error) {
	if fctx.CacheInvalidator != nil {
		fctx.CacheInvalidator.InvalidateTableRoute(failedRegion.TableIdent.TableID)
	}
	return Done{}, nil
}

// Done is the procedure's terminal state.
type Done struct{}

// Kind implements State.
func (Done) Kind() Kind { return KindDone }

// Next implements State: Done has no successor.
func (Done) Next(ctx context.Context, fctx *RegionFailoverContext, failedRegion meta.RegionIdent) (State, error) {
	return Done{}, nil
}
