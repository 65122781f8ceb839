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

package split

import (
	"testing"

	"github.com/greptime/region-control/pkg/partition"
	"github.com/greptime/region-control/pkg/regionid"
)

// mockModRule routes a single "id" column by region = id mod 2, matching
// §8 scenario 1's MockPartitionRule.
type mockModRule struct {
	columns []string
}

func (r mockModRule) Kind() partition.RuleKind { return partition.KindRange }
func (r mockModRule) PartitionColumns() []string {
	return r.columns
}
func (r mockModRule) FindRegion(values []partition.Value) (regionid.RegionNumber, error) {
	if len(values) == 0 || values[0].IsNull() {
		return 1, nil
	}
	id, _ := values[0].Int64()
	return regionid.RegionNumber(id % 2), nil
}
func (r mockModRule) FindRegionsByExprs(_ []partition.Expr) ([]regionid.RegionNumber, error) {
	return []regionid.RegionNumber{0, 1}, nil
}

// TestRowSplitterModRule is §8 scenario 1: rows with id in {"1","2","3"}
// split into region 1 = {"1","3"}, region 0 = {"2"}.
func TestRowSplitterModRule(t *testing.T) {
	rule := mockModRule{columns: []string{"id"}}
	splitter := NewRowSplitter(rule)

	req := RowInsertRequest{
		TableName: "t",
		Rows: &Rows{
			Schema: []ColumnSchema{{ColumnName: "id"}},
			Rows: []Row{
				{Values: []partition.Value{partition.Int64Value(1)}},
				{Values: []partition.Value{partition.Int64Value(2)}},
				{Values: []partition.Value{partition.Int64Value(3)}},
			},
		},
	}

	splits, err := splitter.Split(req)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(splits))
	}

	region1 := splits[1]
	if region1 == nil || len(region1.Rows.Rows) != 2 {
		t.Fatalf("expected region 1 to have 2 rows, got %v", region1)
	}
	got0, _ := region1.Rows.Rows[0].Values[0].Int64()
	got1, _ := region1.Rows.Rows[1].Values[0].Int64()
	if got0 != 1 || got1 != 3 {
		t.Fatalf("expected region 1 rows in order [1,3], got %v", region1.Rows.Rows)
	}

	region0 := splits[0]
	gotRegion0, _ := region0.Rows.Rows[0].Values[0].Int64()
	if region0 == nil || len(region0.Rows.Rows) != 1 || gotRegion0 != 2 {
		t.Fatalf("expected region 0 to have row [2], got %v", region0)
	}
}

// TestRowSplitterMissingPartitionColumn is §8 scenario 2: the schema omits
// the partition column "missed_col", so every row's value is treated as
// Null and all three rows land in region 1 (mockModRule's Null bucket).
func TestRowSplitterMissingPartitionColumn(t *testing.T) {
	rule := mockModRule{columns: []string{"missed_col"}}
	splitter := NewRowSplitter(rule)

	req := RowInsertRequest{
		TableName: "t",
		Rows: &Rows{
			Schema: []ColumnSchema{{ColumnName: "id"}},
			Rows: []Row{
				{Values: []partition.Value{partition.Int64Value(1)}},
				{Values: []partition.Value{partition.Int64Value(2)}},
				{Values: []partition.Value{partition.Int64Value(3)}},
			},
		},
	}

	splits, err := splitter.Split(req)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(splits) != 1 {
		t.Fatalf("expected a single split (region 1), got %d", len(splits))
	}
	region1, ok := splits[1]
	if !ok || len(region1.Rows.Rows) != 3 {
		t.Fatalf("expected region 1 to have all 3 rows, got %v", splits)
	}
}

// emptyColumnsRule has no partition columns at all, matching §8 scenario 3.
type emptyColumnsRule struct{}

func (emptyColumnsRule) Kind() partition.RuleKind                { return partition.KindRange }
func (emptyColumnsRule) PartitionColumns() []string               { return nil }
func (emptyColumnsRule) FindRegion([]partition.Value) (regionid.RegionNumber, error) {
	return 0, nil
}
func (emptyColumnsRule) FindRegionsByExprs([]partition.Expr) ([]regionid.RegionNumber, error) {
	return []regionid.RegionNumber{0}, nil
}

// TestRowSplitterEmptyPartitionColumns is §8 scenario 3: an unpartitioned
// table collapses every row into a single split at region 0, unchanged.
func TestRowSplitterEmptyPartitionColumns(t *testing.T) {
	splitter := NewRowSplitter(emptyColumnsRule{})

	req := RowInsertRequest{
		TableName: "t",
		Rows: &Rows{
			Schema: []ColumnSchema{{ColumnName: "id"}},
			Rows: []Row{
				{Values: []partition.Value{partition.Int64Value(1)}},
				{Values: []partition.Value{partition.Int64Value(2)}},
				{Values: []partition.Value{partition.Int64Value(3)}},
			},
		},
	}

	splits, err := splitter.Split(req)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(splits) != 1 {
		t.Fatalf("expected 1 split, got %d", len(splits))
	}
	region0 := splits[0]
	if region0 == nil || len(region0.Rows.Rows) != 3 {
		t.Fatalf("expected region 0 to keep all 3 rows unchanged, got %v", region0)
	}
}

// TestRowSplitterEmptyBatch covers the splitter's "rows is empty" case:
// no splits are produced.
func TestRowSplitterEmptyBatch(t *testing.T) {
	rule := mockModRule{columns: []string{"id"}}
	splitter := NewRowSplitter(rule)

	req := RowInsertRequest{
		TableName: "t",
		Rows: &Rows{
			Schema: []ColumnSchema{{ColumnName: "id"}},
			Rows:   nil,
		},
	}

	splits, err := splitter.Split(req)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(splits) != 0 {
		t.Fatalf("expected no splits for an empty batch, got %d", len(splits))
	}
}
