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

package region

import (
	"context"
	"fmt"
	"strings"

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/objstore"
	"github.com/greptime/region-control/pkg/regionid"
	"github.com/greptime/region-control/pkg/syncutil"
)

// State is one point in a Region's lifecycle (§4.G): Unloaded -> Opening ->
// Open -> Closing -> Closed, with an Open -> Flushing -> Open self-loop
// entered and left while the active memtable is being sealed and persisted.
type State int32

const (
	StateUnloaded State = iota
	StateOpening
	StateOpen
	StateFlushing
	StateClosing
	StateClosed
)

// String renders a State for logs.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "Unloaded"
	case StateOpening:
		return "Opening"
	case StateOpen:
		return "Open"
	case StateFlushing:
		return "Flushing"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Region is one region's in-memory state: its schema, its active memtable,
// and the state machine governing which operations are currently valid.
type Region struct {
	id  regionid.RegionID
	dir string

	mu              syncutil.RWMutex
	state           State
	metadata        RegionMetadata
	memtableBuilder MemtableBuilder
	objStore        objstore.Store
	active          Memtable
	flushedCount    int
}

// newRegion builds a Region already in the Open state, with a fresh active
// memtable, matching RegionOpener.create/open's post-condition.
func newRegion(id regionid.RegionID, dir string, metadata RegionMetadata, builder MemtableBuilder, store objstore.Store) *Region {
	return &Region{
		id:              id,
		dir:             dir,
		state:           StateOpen,
		metadata:        metadata,
		memtableBuilder: builder,
		objStore:        store,
		active:          builder.Build(metadata),
	}
}

// ID returns the region's identity.
func (r *Region) ID() regionid.RegionID { return r.id }

// State reports the region's current lifecycle state.
func (r *Region) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Metadata returns the schema the region was created or opened with.
func (r *Region) Metadata() RegionMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metadata
}

// Write appends kvs to the region's active memtable. Only valid while Open;
// a region mid-close or mid-flush-initiation rejects writes with
// RegionNotFound, matching §4.G's "write on Closed/Closing fails."
func (r *Region) Write(kvs KeyValues) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		return errs.New(errs.KindRegionNotFound, "region %d is not open (state %s)", r.id, r.state)
	}
	return r.active.Write(kvs)
}

// Flush seals the active memtable, swaps in a fresh one, and persists the
// sealed one to object storage, returning to Open whether or not the
// persist succeeds (a failed flush leaves the sealed data only in memory,
// to retry on the next Flush or on a scheduler-driven background flush job).
func (r *Region) Flush(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateOpen {
		err := errs.New(errs.KindRegionNotFound, "region %d is not open (state %s)", r.id, r.state)
		r.mu.Unlock()
		return err
	}
	r.state = StateFlushing
	sealed := r.active
	r.active = r.memtableBuilder.Build(r.metadata)
	r.mu.Unlock()

	flushErr := r.persistMemtable(ctx, sealed)

	r.mu.Lock()
	r.state = StateOpen
	if flushErr == nil {
		r.flushedCount++
	} else {
		// Writes are rejected while Flushing, so the fresh memtable is still
		// empty; put the sealed one back so the next flush retries it.
		r.active = sealed
	}
	r.mu.Unlock()

	return flushErr
}

// persistMemtable drains mt and writes its rows as one blob under the
// region's directory. The exact encoding isn't a wire format this module
// specifies (§1 Non-goals): a human-readable row dump is enough to prove
// data survives a flush round trip.
func (r *Region) persistMemtable(ctx context.Context, mt Memtable) error {
	iter, err := mt.Iter(ScanRequest{})
	if err != nil {
		return err
	}

	var lines []string
	for {
		batch, ok, err := iter.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		for _, row := range batch.Rows {
			parts := make([]string, len(row.Values))
			for i, v := range row.Values {
				parts[i] = v.String()
			}
			lines = append(lines, strings.Join(parts, ","))
		}
	}

	path := fmt.Sprintf("%s/data/%08d.blob", r.dir, mt.ID())
	return r.objStore.Put(ctx, path, []byte(strings.Join(lines, "\n")))
}

// Close transitions the region through Closing to Closed. If flush is true,
// the active memtable is persisted first, while the region is still Open
// (Flush rejects any other state); on-disk data otherwise remains exactly as
// of the last successful flush (§4.G, "Close... on-disk data remains").
// Closing an already-Closed or Closing region is a no-op.
func (r *Region) Close(ctx context.Context, flush bool) error {
	r.mu.Lock()
	if r.state == StateClosed || r.state == StateClosing {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if flush {
		if err := r.Flush(ctx); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.state = StateClosing
	r.state = StateClosed
	r.mu.Unlock()
	return nil
}
