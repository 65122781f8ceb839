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

// CreateRequest asks the worker to create a region, matching the original's
// RegionCreateRequest: a region directory, a column schema and primary key
// to validate into RegionMetadata, and a create_if_not_exists flag.
type CreateRequest struct {
	RegionDir         string
	Columns           []ColumnMetadata
	PrimaryKey        []string
	CreateIfNotExists bool
}

// OpenRequest asks the worker to open a region whose data already exists on
// object storage under RegionDir.
type OpenRequest struct {
	RegionDir string
}

// CloseRequest asks the worker to close a region. Flush controls whether the
// active memtable is flushed first; config.WorkerConfig.FlushOnClose is the
// usual source of this flag.
type CloseRequest struct {
	Flush bool
}

// WriteRequest appends a batch of rows to a region's active memtable.
type WriteRequest struct {
	KeyValues KeyValues
}

// FlushRequest asks the worker to seal and persist a region's active
// memtable immediately, rather than waiting for the scheduler's own flush
// trigger.
type FlushRequest struct{}

// CompactRequest asks the worker to schedule a compaction job for a region.
// Compaction itself only needs to run on the Scheduler (component F);
// choosing which files to merge is a query-execution concern out of scope
// here (§1 Non-goals), so this request only records that one was asked for.
type CompactRequest struct{}
