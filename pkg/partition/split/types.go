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

// Package split fans a batched table write out into per-region requests
// (§4.B). Two shapes are handled: row-oriented batches (RowInsertRequest)
// and columnar batches (InsertRequest/DeleteRequest), kept as three distinct
// result types rather than one generic map, matching the three splitter
// outputs the original implementation exposes (a feature the distilled spec
// left implicit; see SPEC_FULL.md's supplemented-features list).
package split

import (
	"github.com/greptime/region-control/pkg/partition"
	"github.com/greptime/region-control/pkg/regionid"
)

// ColumnSchema names one column of a row-oriented batch.
type ColumnSchema struct {
	ColumnName string
}

// Row is one row of a row-oriented batch, with values positional against
// the batch's Schema.
type Row struct {
	Values []partition.Value
}

// Rows is a row-oriented batch: a schema plus the rows it describes.
type Rows struct {
	Schema []ColumnSchema
	Rows   []Row
}

// RowInsertRequest is a batched, row-oriented insert (§4.B's splitter
// input). RegionNumber is stamped onto each output split by the splitter;
// it is meaningless on the un-split input.
type RowInsertRequest struct {
	TableName    string
	Rows         *Rows
	RegionNumber regionid.RegionNumber
}

// RowInsertRequestSplits maps each destination region to its sub-request.
type RowInsertRequestSplits map[regionid.RegionNumber]*RowInsertRequest

// Column is one column of a columnar batch: one value per row.
type Column struct {
	Name   string
	Values []partition.Value
}

// InsertRequest is a batched, columnar insert, the shape
// split_insert_request operates on (§4.C).
type InsertRequest struct {
	TableName string
	Columns   []Column
	RowCount  int
}

// InsertRequestSplit maps each destination region to its sub-request.
type InsertRequestSplit map[regionid.RegionNumber]*InsertRequest

// DeleteRequest is a batched, columnar delete keyed by primary-key columns,
// the shape split_delete_request operates on (§4.C).
type DeleteRequest struct {
	TableName string
	Columns   []Column
	RowCount  int
}

// DeleteRequestSplit maps each destination region to its sub-request.
type DeleteRequestSplit map[regionid.RegionNumber]*DeleteRequest
