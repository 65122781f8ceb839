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
	"github.com/greptime/region-control/pkg/partition"
	"github.com/greptime/region-control/pkg/regionid"
)

// RowSplitter fans a RowInsertRequest out into one sub-request per
// destination region, per §4.B.
type RowSplitter struct {
	rule partition.Rule
}

// NewRowSplitter builds a RowSplitter bound to rule.
func NewRowSplitter(rule partition.Rule) *RowSplitter {
	return &RowSplitter{rule: rule}
}

// Split implements the §4.B algorithm: unpartitioned tables collapse to a
// single split at region 0; an empty batch yields no splits; otherwise every
// row is routed by its partition-column values and grouped, preserving each
// group's relative row order. Rows are moved out of req (req.Rows.Rows is
// left empty) rather than copied, so the caller must not observe req after
// calling Split.
func (s *RowSplitter) Split(req RowInsertRequest) (RowInsertRequestSplits, error) {
	columns := s.rule.PartitionColumns()
	if len(columns) == 0 {
		return RowInsertRequestSplits{0: &req}, nil
	}

	if req.Rows == nil || len(req.Rows.Rows) == 0 {
		return RowInsertRequestSplits{}, nil
	}

	colIndex := make([]int, len(columns))
	for i, col := range columns {
		colIndex[i] = -1
		for j, sc := range req.Rows.Schema {
			if sc.ColumnName == col {
				colIndex[i] = j
				break
			}
		}
	}

	schema := req.Rows.Schema
	rows := req.Rows.Rows
	req.Rows.Rows = nil
	req.Rows = nil // the source batch must not be observed after splitting.

	regionRowIndexes := make(map[regionid.RegionNumber][]int)
	order := make([]regionid.RegionNumber, 0, 4)
	values := make([]partition.Value, len(columns))
	for rowIdx, row := range rows {
		for i, idx := range colIndex {
			if idx < 0 {
				values[i] = partition.Null
			} else {
				values[i] = row.Values[idx]
			}
		}
		region, err := s.rule.FindRegion(values)
		if err != nil {
			return nil, err
		}
		if _, ok := regionRowIndexes[region]; !ok {
			order = append(order, region)
		}
		regionRowIndexes[region] = append(regionRowIndexes[region], rowIdx)
	}

	splits := make(RowInsertRequestSplits, len(order))
	for _, region := range order {
		indexes := regionRowIndexes[region]
		outRows := make([]Row, len(indexes))
		for i, rowIdx := range indexes {
			outRows[i] = rows[rowIdx]
		}
		splits[region] = &RowInsertRequest{
			TableName: req.TableName,
			Rows: &Rows{
				Schema: schema,
				Rows:   outRows,
			},
			RegionNumber: region,
		}
	}
	return splits, nil
}
