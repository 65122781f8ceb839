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

package partition

import (
	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/regionid"
)

// RangeColumnsRule partitions a tuple of columns into lexicographically
// ordered ranges. Unlike RangeRule, bounds carries one full tuple per
// region (including the trailing all-MAXVALUE tuple), so
// len(bounds) == len(regions) (§4.A, "range-columns rule (multi-column)").
type RangeColumnsRule struct {
	columns []string
	bounds  [][]PartitionBound
	regions []regionid.RegionNumber
}

// NewRangeColumnsRule builds a RangeColumnsRule.
func NewRangeColumnsRule(columns []string, bounds [][]PartitionBound, regions []regionid.RegionNumber) *RangeColumnsRule {
	if len(bounds) != len(regions) {
		panic("partition: range-columns rule requires len(bounds) == len(regions)")
	}
	return &RangeColumnsRule{columns: columns, bounds: bounds, regions: regions}
}

// Kind implements Rule.
func (r *RangeColumnsRule) Kind() RuleKind { return KindRangeColumns }

// PartitionColumns implements Rule.
func (r *RangeColumnsRule) PartitionColumns() []string {
	return append([]string(nil), r.columns...)
}

// compareValueToBound orders a concrete value against one tuple position's
// bound; MaxValue always sorts after any concrete value.
func compareValueToBound(v Value, b PartitionBound) int {
	if b.Kind == BoundMaxValue {
		return -1
	}
	return v.Compare(b.Value)
}

// lessThanBoundTuple reports whether values sorts strictly before the tuple
// of bounds, comparing lexicographically in column order.
func lessThanBoundTuple(values []Value, bounds []PartitionBound) bool {
	n := len(values)
	if len(bounds) < n {
		n = len(bounds)
	}
	for i := 0; i < n; i++ {
		c := compareValueToBound(values[i], bounds[i])
		if c < 0 {
			return true
		}
		if c > 0 {
			return false
		}
	}
	return len(values) < len(bounds)
}

// regionIndex returns the lowest index i such that values < bounds[i] in
// tuple order, or the last index if values sorts after every concrete bound.
func (r *RangeColumnsRule) regionIndex(values []Value) int {
	for i, b := range r.bounds {
		if lessThanBoundTuple(values, b) {
			return i
		}
	}
	return len(r.bounds) - 1
}

// FindRegion implements Rule. Missing partition columns must already have
// been filled with Null by the caller (the row splitter does this).
func (r *RangeColumnsRule) FindRegion(values []Value) (regionid.RegionNumber, error) {
	if len(values) != len(r.columns) {
		return 0, errs.New(errs.KindUnexpectedValuesLength,
			"range-columns rule expects %d values, got %d", len(r.columns), len(values))
	}
	return r.regions[r.regionIndex(values)], nil
}

// FindRegionsByExprs implements Rule. Only a conjunction of equality
// expressions covering every partition column resolves to a single region;
// anything else conservatively returns every region, per §4.A's fallback for
// "unsupported expression" and the range-columns rule's tuple-space
// selection rule.
func (r *RangeColumnsRule) FindRegionsByExprs(exprs []Expr) ([]regionid.RegionNumber, error) {
	all := append([]regionid.RegionNumber(nil), r.regions...)
	if len(exprs) == 0 {
		return all, nil
	}

	byColumn := make(map[string]Value, len(r.columns))
	for _, e := range exprs {
		if e.Op != OpEq {
			return all, nil
		}
		byColumn[e.Column] = e.Value
	}

	values := make([]Value, len(r.columns))
	for i, col := range r.columns {
		v, ok := byColumn[col]
		if !ok {
			return all, nil
		}
		values[i] = v
	}

	region, err := r.FindRegion(values)
	if err != nil {
		return nil, err
	}
	return []regionid.RegionNumber{region}, nil
}
