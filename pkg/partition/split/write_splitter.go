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
	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/partition"
	"github.com/greptime/region-control/pkg/regionid"
)

// WriteSplitter fans columnar InsertRequest/DeleteRequest batches out into
// per-region sub-requests, the columnar counterpart of RowSplitter (§4.C).
type WriteSplitter struct {
	rule partition.Rule
}

// NewWriteSplitter builds a WriteSplitter bound to rule.
func NewWriteSplitter(rule partition.Rule) *WriteSplitter {
	return &WriteSplitter{rule: rule}
}

func (s *WriteSplitter) columnIndex(columns []Column) ([]int, error) {
	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		byName[c.Name] = i
	}
	partitionCols := s.rule.PartitionColumns()
	idx := make([]int, len(partitionCols))
	for i, col := range partitionCols {
		if j, ok := byName[col]; ok {
			idx[i] = j
		} else {
			idx[i] = -1
		}
	}
	return idx, nil
}

func (s *WriteSplitter) rowIndexesByRegion(columns []Column, rowCount int) (map[regionid.RegionNumber][]int, []regionid.RegionNumber, error) {
	idx, err := s.columnIndex(columns)
	if err != nil {
		return nil, nil, err
	}

	result := make(map[regionid.RegionNumber][]int)
	order := make([]regionid.RegionNumber, 0, 4)
	values := make([]partition.Value, len(idx))
	for row := 0; row < rowCount; row++ {
		for i, ci := range idx {
			if ci < 0 {
				values[i] = partition.Null
			} else {
				values[i] = columns[ci].Values[row]
			}
		}
		region, err := s.rule.FindRegion(values)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := result[region]; !ok {
			order = append(order, region)
		}
		result[region] = append(result[region], row)
	}
	return result, order, nil
}

func gatherColumns(columns []Column, indexes []int) []Column {
	out := make([]Column, len(columns))
	for i, c := range columns {
		values := make([]partition.Value, len(indexes))
		for j, rowIdx := range indexes {
			values[j] = c.Values[rowIdx]
		}
		out[i] = Column{Name: c.Name, Values: values}
	}
	return out
}

// SplitInsert splits a columnar insert batch.
func (s *WriteSplitter) SplitInsert(req InsertRequest) (InsertRequestSplit, error) {
	if len(s.rule.PartitionColumns()) == 0 {
		return InsertRequestSplit{0: &req}, nil
	}
	if req.RowCount == 0 {
		return InsertRequestSplit{}, nil
	}

	byRegion, order, err := s.rowIndexesByRegion(req.Columns, req.RowCount)
	if err != nil {
		return nil, err
	}

	out := make(InsertRequestSplit, len(order))
	for _, region := range order {
		indexes := byRegion[region]
		out[region] = &InsertRequest{
			TableName: req.TableName,
			Columns:   gatherColumns(req.Columns, indexes),
			RowCount:  len(indexes),
		}
	}
	return out, nil
}

// SplitDelete splits a columnar delete batch. primaryKeyColumnNames is
// accepted for parity with the original signature (the primary key
// determines which columns a delete must carry) but the partition-column
// extraction only ever needs req.Columns, which must already include the
// table's partition columns.
func (s *WriteSplitter) SplitDelete(req DeleteRequest, primaryKeyColumnNames []string) (DeleteRequestSplit, error) {
	if missing := s.missingPrimaryKeyColumns(req.Columns, primaryKeyColumnNames); missing != "" {
		return nil, errs.New(errs.KindMissingPrimaryKeyColumn, "delete request missing primary key column %q", missing)
	}

	if len(s.rule.PartitionColumns()) == 0 {
		return DeleteRequestSplit{0: &req}, nil
	}
	if req.RowCount == 0 {
		return DeleteRequestSplit{}, nil
	}

	byRegion, order, err := s.rowIndexesByRegion(req.Columns, req.RowCount)
	if err != nil {
		return nil, err
	}

	out := make(DeleteRequestSplit, len(order))
	for _, region := range order {
		indexes := byRegion[region]
		out[region] = &DeleteRequest{
			TableName: req.TableName,
			Columns:   gatherColumns(req.Columns, indexes),
			RowCount:  len(indexes),
		}
	}
	return out, nil
}

func (s *WriteSplitter) missingPrimaryKeyColumns(columns []Column, primaryKey []string) string {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c.Name] = true
	}
	for _, pk := range primaryKey {
		if !present[pk] {
			return pk
		}
	}
	return ""
}
