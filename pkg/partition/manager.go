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
	"context"
	"sort"

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/meta"
	"github.com/greptime/region-control/pkg/partition/split"
	"github.com/greptime/region-control/pkg/regionid"
)

// Manager is the partition manager (§4.C): it resolves a table's route
// through the shared route cache, builds partition rules from it, and fans
// writes and filter-driven region lookups out through those rules.
type Manager struct {
	cache *meta.RouteCache
}

// NewManager builds a Manager backed by store, via a fresh route cache.
func NewManager(store meta.Store) *Manager {
	return &Manager{cache: meta.NewRouteCache(store)}
}

// RegionInfo pairs a region with its converted partition definition, the
// Go shape find_table_partitions returns (§4.C).
type RegionInfo struct {
	RegionID  regionid.RegionID
	Partition PartitionDef
}

// FindTableRoute returns table's current route, or an error if it has none.
func (m *Manager) FindTableRoute(ctx context.Context, table regionid.TableID) (*meta.TableRouteValue, error) {
	route, err := m.cache.Get(ctx, table)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, errs.New(errs.KindTableRouteNotFound, "table %d has no route", table)
	}
	return route, nil
}

// FindRegionDatanodes groups the given regions' leader datanodes, the Go
// shape of "find_region_datanodes" (§4.C): every requested region must have
// a leader, or FindDatanode is returned (original_source/src/partition/src/
// manager.rs's FindDatanodeSnafu).
func (m *Manager) FindRegionDatanodes(ctx context.Context, table regionid.TableID, regions []regionid.RegionNumber) (map[meta.Peer][]regionid.RegionNumber, error) {
	route, err := m.FindTableRoute(ctx, table)
	if err != nil {
		return nil, err
	}
	result := make(map[meta.Peer][]regionid.RegionNumber, len(regions))
	for _, region := range regions {
		leader := route.Route.FindRegionLeader(region)
		if leader == nil {
			return nil, errs.New(errs.KindFindDatanode, "region %d of table %d has no leader", region, table)
		}
		result[*leader] = append(result[*leader], region)
	}
	return result, nil
}

// FindTableRegionLeaders returns the distinct leader peers serving table,
// failing with FindLeader if any region has no leader (§4.C,
// original_source/src/partition/src/manager.rs's FindLeaderSnafu).
func (m *Manager) FindTableRegionLeaders(ctx context.Context, table regionid.TableID) ([]meta.Peer, error) {
	route, err := m.FindTableRoute(ctx, table)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint64]bool)
	var leaders []meta.Peer
	for _, r := range route.Route.RegionRoutes {
		if r.LeaderPeer == nil {
			return nil, errs.New(errs.KindFindLeader, "region %d of table %d has no leader", r.RegionNumber, table)
		}
		if seen[r.LeaderPeer.ID] {
			continue
		}
		seen[r.LeaderPeer.ID] = true
		leaders = append(leaders, *r.LeaderPeer)
	}
	return leaders, nil
}

// FindTablePartitions returns table's regions paired with their converted
// partition definitions, sorted by bound tuple (§4.C,
// "find_table_partitions"). Every region must share the same partition
// columns, or InvalidTableRouteData is returned.
func (m *Manager) FindTablePartitions(ctx context.Context, table regionid.TableID) ([]RegionInfo, error) {
	route, err := m.FindTableRoute(ctx, table)
	if err != nil {
		return nil, err
	}

	routes := route.Route.RegionRoutes
	if len(routes) == 0 {
		return nil, errs.New(errs.KindInvalidTableRouteData, "table %d has no regions", table)
	}

	infos := make([]RegionInfo, len(routes))
	var columns []string
	for i, r := range routes {
		def, err := convertPartitionDef(r.Partition)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			columns = def.PartitionColumns
		} else if !equalColumns(columns, def.PartitionColumns) {
			return nil, errs.New(errs.KindInvalidTableRouteData,
				"table %d has inconsistent partition columns across regions", table)
		}
		infos[i] = RegionInfo{RegionID: r.RegionID, Partition: def}
	}

	sort.Slice(infos, func(i, j int) bool {
		return CompareBoundTuples(infos[i].Partition.Bounds, infos[j].Partition.Bounds) < 0
	})
	return infos, nil
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FindTablePartitionRule builds the Rule that evaluates writes and filters
// against table's current partitioning (§4.C, "find_table_partition_rule").
// A single partition column yields a RangeRule with the trailing MaxValue
// bound dropped (RangeRule's bound list is implicitly open-ended); more than
// one column yields a RangeColumnsRule, which keeps every bound tuple
// including the all-MaxValue terminator.
func (m *Manager) FindTablePartitionRule(ctx context.Context, table regionid.TableID) (Rule, error) {
	infos, err := m.FindTablePartitions(ctx, table)
	if err != nil {
		return nil, err
	}

	columns := infos[0].Partition.PartitionColumns
	regions := make([]regionid.RegionNumber, len(infos))
	for i, info := range infos {
		regions[i] = info.RegionID.RegionNumber()
	}

	if len(columns) == 0 {
		return NewRangeRule("", nil, regions), nil
	}

	if len(columns) == 1 {
		bounds := make([]Value, 0, len(infos)-1)
		for i, info := range infos {
			if i == len(infos)-1 {
				continue
			}
			b := info.Partition.Bounds[0]
			if b.Kind == BoundMaxValue {
				return nil, errs.New(errs.KindInvalidTableRouteData,
					"table %d has a non-terminal MaxValue bound", table)
			}
			bounds = append(bounds, b.Value)
		}
		return NewRangeRule(columns[0], bounds, regions), nil
	}

	bounds := make([][]PartitionBound, len(infos))
	for i, info := range infos {
		bounds[i] = info.Partition.Bounds
	}
	return NewRangeColumnsRule(columns, bounds, regions), nil
}

// FindRegionsByFilters resolves a conjunction of independent filter
// expressions into the candidate regions that could contain matching rows
// (§4.A). Each filter may itself be an AND/OR tree; evaluateExpr resolves
// such a tree to a region set before the filters are intersected.
// FindRegions is returned if the filters leave no candidate region.
func (m *Manager) FindRegionsByFilters(rule Rule, filters []Expr) ([]regionid.RegionNumber, error) {
	if len(filters) == 0 {
		return rule.FindRegionsByExprs(nil)
	}

	var result map[regionid.RegionNumber]struct{}
	for _, f := range filters {
		set, err := evaluateExpr(rule, f)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = set
		} else {
			for region := range result {
				if _, ok := set[region]; !ok {
					delete(result, region)
				}
			}
		}
		if len(result) == 0 {
			break
		}
	}

	if len(result) == 0 {
		return nil, errs.New(errs.KindFindRegions, "no region matches the given filters")
	}

	out := make([]regionid.RegionNumber, 0, len(result))
	for region := range result {
		out = append(out, region)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// evaluateExpr resolves one filter expression (possibly an AND/OR tree) into
// the set of regions it could match, replacing the source's recursive
// find_regions0 with an explicit walk over the closed Expr sum.
func evaluateExpr(rule Rule, e Expr) (map[regionid.RegionNumber]struct{}, error) {
	switch e.Op {
	case OpAnd:
		left, err := evaluateExpr(rule, *e.Left)
		if err != nil {
			return nil, err
		}
		right, err := evaluateExpr(rule, *e.Right)
		if err != nil {
			return nil, err
		}
		for region := range left {
			if _, ok := right[region]; !ok {
				delete(left, region)
			}
		}
		return left, nil
	case OpOr:
		left, err := evaluateExpr(rule, *e.Left)
		if err != nil {
			return nil, err
		}
		right, err := evaluateExpr(rule, *e.Right)
		if err != nil {
			return nil, err
		}
		for region := range right {
			left[region] = struct{}{}
		}
		return left, nil
	default:
		regions, err := rule.FindRegionsByExprs([]Expr{e})
		if err != nil {
			return nil, err
		}
		set := make(map[regionid.RegionNumber]struct{}, len(regions))
		for _, r := range regions {
			set[r] = struct{}{}
		}
		return set, nil
	}
}

// SplitRowInsertRequest resolves table's current partition rule and fans req
// out by it (§4.B/§4.C).
func (m *Manager) SplitRowInsertRequest(ctx context.Context, table regionid.TableID, req split.RowInsertRequest) (split.RowInsertRequestSplits, error) {
	rule, err := m.FindTablePartitionRule(ctx, table)
	if err != nil {
		return nil, err
	}
	return split.NewRowSplitter(rule).Split(req)
}

// SplitInsertRequest resolves table's current partition rule and fans req
// out by it.
func (m *Manager) SplitInsertRequest(ctx context.Context, table regionid.TableID, req split.InsertRequest) (split.InsertRequestSplit, error) {
	rule, err := m.FindTablePartitionRule(ctx, table)
	if err != nil {
		return nil, err
	}
	return split.NewWriteSplitter(rule).SplitInsert(req)
}

// SplitDeleteRequest resolves table's current partition rule and fans req
// out by it.
func (m *Manager) SplitDeleteRequest(ctx context.Context, table regionid.TableID, req split.DeleteRequest, primaryKeyColumnNames []string) (split.DeleteRequestSplit, error) {
	rule, err := m.FindTablePartitionRule(ctx, table)
	if err != nil {
		return nil, err
	}
	return split.NewWriteSplitter(rule).SplitDelete(req, primaryKeyColumnNames)
}

// InvalidateTableRoute drops table's cached route, implementing
// meta.CacheInvalidator so the failover procedure can call it directly after
// a successful metadata update (§4.E "InvalidateCache").
func (m *Manager) InvalidateTableRoute(table regionid.TableID) {
	m.cache.Invalidate(table)
}
