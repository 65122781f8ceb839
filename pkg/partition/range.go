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

// RangeRule partitions a single column into len(regions) contiguous ranges.
// bounds[i] is the exclusive upper bound of regions[i]; the trailing
// MAXVALUE bound is implicit, so len(bounds)+1 == len(regions) and bounds
// must already be strictly ascending (§4.A).
type RangeRule struct {
	column  string
	bounds  []Value
	regions []regionid.RegionNumber
	index   *boundIndex
}

// NewRangeRule builds a RangeRule. It panics if bounds and regions have
// inconsistent lengths, since that is a programming error in the caller
// (the partition manager), not a runtime condition callers should handle.
func NewRangeRule(column string, bounds []Value, regions []regionid.RegionNumber) *RangeRule {
	if len(bounds)+1 != len(regions) {
		panic("partition: range rule requires len(bounds)+1 == len(regions)")
	}
	return &RangeRule{
		column:  column,
		bounds:  bounds,
		regions: regions,
		index:   newBoundIndex(bounds),
	}
}

// Kind implements Rule.
func (r *RangeRule) Kind() RuleKind { return KindRange }

// PartitionColumns implements Rule.
func (r *RangeRule) PartitionColumns() []string {
	if r.column == "" {
		return nil
	}
	return []string{r.column}
}

// regionIndex returns the index into r.regions/r.bounds that v falls into:
// the lowest i such that v < bounds[i], or the last index if none.
func (r *RangeRule) regionIndex(v Value) int {
	i := r.index.lowerBoundRegion(v)
	if i < 0 {
		return len(r.regions) - 1
	}
	return i
}

// FindRegion implements Rule.
func (r *RangeRule) FindRegion(values []Value) (regionid.RegionNumber, error) {
	if len(values) != 1 {
		return 0, errs.New(errs.KindUnexpectedValuesLength,
			"range rule on column %q expects 1 value, got %d", r.column, len(values))
	}
	return r.regions[r.regionIndex(values[0])], nil
}

// FindRegionsByExprs implements Rule.
func (r *RangeRule) FindRegionsByExprs(exprs []Expr) ([]regionid.RegionNumber, error) {
	if len(exprs) == 0 {
		return append([]regionid.RegionNumber(nil), r.regions...), nil
	}
	result := map[regionid.RegionNumber]struct{}{}
	for _, region := range r.regions {
		result[region] = struct{}{}
	}
	for _, e := range exprs {
		set, err := r.regionsForExpr(e)
		if err != nil {
			return nil, err
		}
		for region := range result {
			if _, ok := set[region]; !ok {
				delete(result, region)
			}
		}
	}
	out := make([]regionid.RegionNumber, 0, len(result))
	for _, region := range r.regions {
		if _, ok := result[region]; ok {
			out = append(out, region)
		}
	}
	return out, nil
}

func (r *RangeRule) regionsForExpr(e Expr) (map[regionid.RegionNumber]struct{}, error) {
	all := func() map[regionid.RegionNumber]struct{} {
		m := make(map[regionid.RegionNumber]struct{}, len(r.regions))
		for _, region := range r.regions {
			m[region] = struct{}{}
		}
		return m
	}

	if e.Column != r.column || !e.Op.IsCompare() {
		return all(), nil
	}

	switch e.Op {
	case OpEq:
		region, err := r.FindRegion([]Value{e.Value})
		if err != nil {
			return nil, err
		}
		return map[regionid.RegionNumber]struct{}{region: {}}, nil
	case OpLt, OpLtEq:
		j := r.regionIndex(e.Value)
		return r.prefix(j), nil
	case OpGt, OpGtEq:
		j := r.regionIndex(e.Value)
		return r.suffix(j), nil
	default:
		return all(), nil
	}
}

func (r *RangeRule) prefix(upToIndex int) map[regionid.RegionNumber]struct{} {
	m := make(map[regionid.RegionNumber]struct{}, upToIndex+1)
	for i := 0; i <= upToIndex && i < len(r.regions); i++ {
		m[r.regions[i]] = struct{}{}
	}
	return m
}

func (r *RangeRule) suffix(fromIndex int) map[regionid.RegionNumber]struct{} {
	m := make(map[regionid.RegionNumber]struct{})
	for i := fromIndex; i < len(r.regions); i++ {
		m[r.regions[i]] = struct{}{}
	}
	return m
}
