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

// Package region implements the per-region worker loop: a mailbox-driven
// actor per shard owning a state machine (Unloaded -> Opening -> Open ->
// Closing -> Closed, with an Open -> Flushing -> Open self-loop), grounded
// on original_source/src/mito2/src/worker/handle_create.rs and memtable.rs
// (§4.G).
package region

import (
	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/regionid"
)

// ColumnMetadata describes one column of a region's schema.
type ColumnMetadata struct {
	Name     string
	DataType string
}

// RegionMetadata is the validated schema a region was created with,
// mirroring the original's RegionMetadata built from a RegionMetadataBuilder.
type RegionMetadata struct {
	RegionID   regionid.RegionID
	Columns    []ColumnMetadata
	PrimaryKey []string
}

// RegionMetadataBuilder validates a column set and primary key before a
// region is created, exactly as handle_create_request's RegionMetadataBuilder
// does ahead of RegionOpener.create.
type RegionMetadataBuilder struct {
	regionID   regionid.RegionID
	columns    []ColumnMetadata
	primaryKey []string
}

// NewRegionMetadataBuilder starts building metadata for regionID.
func NewRegionMetadataBuilder(regionID regionid.RegionID) *RegionMetadataBuilder {
	return &RegionMetadataBuilder{regionID: regionID}
}

// PushColumnMetadata appends one column to the schema being built.
func (b *RegionMetadataBuilder) PushColumnMetadata(c ColumnMetadata) *RegionMetadataBuilder {
	b.columns = append(b.columns, c)
	return b
}

// PrimaryKey sets the region's primary-key column names.
func (b *RegionMetadataBuilder) PrimaryKey(keys []string) *RegionMetadataBuilder {
	b.primaryKey = keys
	return b
}

// Build validates the accumulated schema: at least one column, no duplicate
// column names, every primary-key name present among the columns. Failures
// map to InvalidMetadata, matching handle_create_request's
// InvalidMetadataSnafu.
func (b *RegionMetadataBuilder) Build() (RegionMetadata, error) {
	if len(b.columns) == 0 {
		return RegionMetadata{}, errs.New(errs.KindInvalidMetadata, "region %d metadata has no columns", b.regionID)
	}

	names := make(map[string]struct{}, len(b.columns))
	for _, c := range b.columns {
		if _, dup := names[c.Name]; dup {
			return RegionMetadata{}, errs.New(errs.KindInvalidMetadata, "region %d metadata has duplicate column %q", b.regionID, c.Name)
		}
		names[c.Name] = struct{}{}
	}
	for _, pk := range b.primaryKey {
		if _, ok := names[pk]; !ok {
			return RegionMetadata{}, errs.New(errs.KindInvalidMetadata, "region %d primary key column %q not found among its columns", b.regionID, pk)
		}
	}

	return RegionMetadata{
		RegionID:   b.regionID,
		Columns:    append([]ColumnMetadata(nil), b.columns...),
		PrimaryKey: append([]string(nil), b.primaryKey...),
	}, nil
}
