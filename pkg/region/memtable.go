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
	"sync/atomic"

	"github.com/greptime/region-control/pkg/partition"
	"github.com/greptime/region-control/pkg/syncutil"
)

// MemtableID identifies a memtable within a region, minted by a
// MemtableBuilder in increasing order, so the most recent sealed memtable
// is always identifiable without a separate timestamp.
type MemtableID = uint32

// Row is one record's column values, in the order RegionMetadata.Columns
// lists them.
type Row struct {
	Values []partition.Value
}

// KeyValues is a batch of rows written to a memtable in one call, mirroring
// the original's KeyValues write unit.
type KeyValues struct {
	Rows []Row
}

// ScanRequest selects which rows Iter returns. Empty for now: the module has
// no query-execution layer in scope (§1 Non-goals), so this exists only so
// Memtable's contract shape matches the original's and a future scan
// predicate has somewhere to live.
type ScanRequest struct{}

// Batch is one chunk of rows a BatchIterator yields.
type Batch struct {
	Rows []Row
}

// BatchIterator yields a memtable's rows in batches. Next returns ok=false
// once exhausted, with no further rows to read.
type BatchIterator interface {
	Next() (Batch, bool, error)
}

// Memtable buffers writes to an open region before they're flushed to
// object storage, matching the original's Memtable trait (memtable.rs).
type Memtable interface {
	// ID returns the memtable's identity, assigned at construction.
	ID() MemtableID
	// Write appends kvs to the memtable.
	Write(kvs KeyValues) error
	// Iter returns an iterator over the memtable's current content,
	// snapshotted at call time so a concurrent Write doesn't affect it.
	Iter(req ScanRequest) (BatchIterator, error)
}

// MemtableBuilder constructs a fresh Memtable for a region, matching the
// original's MemtableBuilder trait.
type MemtableBuilder interface {
	Build(metadata RegionMetadata) Memtable
}

// inMemoryMemtable is the module's only Memtable implementation: rows live
// entirely in a guarded slice. A real storage engine would spill large
// memtables to disk, but nothing in scope here drives that need.
type inMemoryMemtable struct {
	id MemtableID

	mu   syncutil.RWMutex
	rows []Row
}

// ID implements Memtable.
func (t *inMemoryMemtable) ID() MemtableID { return t.id }

// Write implements Memtable.
func (t *inMemoryMemtable) Write(kvs KeyValues) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, kvs.Rows...)
	return nil
}

// Iter implements Memtable.
func (t *inMemoryMemtable) Iter(_ ScanRequest) (BatchIterator, error) {
	t.mu.RLock()
	snapshot := append([]Row(nil), t.rows...)
	t.mu.RUnlock()
	return &sliceIterator{rows: snapshot}, nil
}

// sliceIterator yields its entire snapshot as a single batch, then reports
// exhaustion.
type sliceIterator struct {
	rows []Row
	done bool
}

// Next implements BatchIterator.
func (s *sliceIterator) Next() (Batch, bool, error) {
	if s.done || len(s.rows) == 0 {
		return Batch{}, false, nil
	}
	s.done = true
	return Batch{Rows: s.rows}, true, nil
}

// DefaultMemtableBuilder mints memtable IDs from a monotonically increasing
// counter, matching the original's DefaultMemtableBuilder (an AtomicU32
// fetch_add); Go's sync/atomic gives the same guarantee without the
// Relaxed-ordering caveat the original's comment calls out.
type DefaultMemtableBuilder struct {
	nextID uint32
}

// Build implements MemtableBuilder.
func (b *DefaultMemtableBuilder) Build(_ RegionMetadata) Memtable {
	id := atomic.AddUint32(&b.nextID, 1) - 1
	return &inMemoryMemtable{id: id}
}
