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
	"testing"

	"github.com/greptime/region-control/pkg/meta"
	"github.com/greptime/region-control/pkg/partition/split"
	"github.com/greptime/region-control/pkg/regionid"
)

// fakeStore is a minimal in-memory meta.Store for manager tests.
type fakeStore struct {
	routes map[regionid.TableID]meta.TableRouteValue
}

func newFakeStore() *fakeStore {
	return &fakeStore{routes: make(map[regionid.TableID]meta.TableRouteValue)}
}

func (s *fakeStore) GetTableRoute(_ context.Context, table regionid.TableID) (meta.TableRouteValue, bool, error) {
	v, ok := s.routes[table]
	return v, ok, nil
}

func (s *fakeStore) UpdateTableRoute(_ context.Context, table regionid.TableID, _ meta.TableRouteValue, newRoutes []meta.RegionRoute) error {
	s.routes[table] = meta.TableRouteValue{Route: meta.TableRoute{TableID: table, RegionRoutes: newRoutes}, Version: 1}
	return nil
}

func (s *fakeStore) DatanodeTables(_ context.Context, _ uint64) meta.DatanodeTableIterator {
	return nil
}

func (s *fakeStore) DeleteTableRoute(_ context.Context, table regionid.TableID) error {
	delete(s.routes, table)
	return nil
}

func peer(id uint64) *meta.Peer {
	p := meta.NewPeer(id, "127.0.0.1:0")
	return &p
}

// threeWayRangeRoute builds a single-column range-partitioned table with
// regions [<10), [10,20), [20,MAX) over column "ts", each led by a distinct
// datanode.
func threeWayRangeRoute(table regionid.TableID) meta.TableRoute {
	bound := func(v interface{}) meta.PartitionBound { return meta.PartitionBound{Value: v} }
	maxBound := meta.PartitionBound{IsMaxValue: true}

	mk := func(region regionid.RegionNumber, bounds []meta.PartitionBound, leader uint64) meta.RegionRoute {
		return meta.RegionRoute{
			RegionID:     regionid.NewRegionID(table, region),
			RegionNumber: region,
			Partition: &meta.PartitionDef{
				PartitionColumns: []string{"ts"},
				Bounds:           bounds,
			},
			LeaderPeer: peer(leader),
		}
	}

	return meta.TableRoute{
		TableID: table,
		RegionRoutes: []meta.RegionRoute{
			mk(0, []meta.PartitionBound{bound(int64(10))}, 1),
			mk(1, []meta.PartitionBound{bound(int64(20))}, 2),
			mk(2, []meta.PartitionBound{maxBound}, 3),
		},
	}
}

func TestManagerFindTablePartitionRuleSingleColumn(t *testing.T) {
	const table regionid.TableID = 42
	store := newFakeStore()
	store.routes[table] = meta.TableRouteValue{Route: threeWayRangeRoute(table), Version: 1}

	m := NewManager(store)
	rule, err := m.FindTablePartitionRule(context.Background(), table)
	if err != nil {
		t.Fatalf("FindTablePartitionRule: %v", err)
	}
	if rule.Kind() != KindRange {
		t.Fatalf("expected a range rule, got kind %v", rule.Kind())
	}

	cases := []struct {
		v    int64
		want regionid.RegionNumber
	}{
		{5, 0}, {10, 1}, {15, 1}, {20, 2}, {1000, 2},
	}
	for _, c := range cases {
		region, err := rule.FindRegion([]Value{Int64Value(c.v)})
		if err != nil {
			t.Fatalf("FindRegion(%d): %v", c.v, err)
		}
		if region != c.want {
			t.Errorf("FindRegion(%d) = %d, want %d", c.v, region, c.want)
		}
	}
}

func TestManagerFindRegionDatanodes(t *testing.T) {
	const table regionid.TableID = 7
	store := newFakeStore()
	store.routes[table] = meta.TableRouteValue{Route: threeWayRangeRoute(table), Version: 1}

	m := NewManager(store)
	byNode, err := m.FindRegionDatanodes(context.Background(), table, []regionid.RegionNumber{0, 1, 2})
	if err != nil {
		t.Fatalf("FindRegionDatanodes: %v", err)
	}
	if len(byNode) != 3 {
		t.Fatalf("expected 3 distinct leaders, got %d", len(byNode))
	}
}

func TestManagerFindRegionsByFilters(t *testing.T) {
	const table regionid.TableID = 1
	store := newFakeStore()
	store.routes[table] = meta.TableRouteValue{Route: threeWayRangeRoute(table), Version: 1}

	m := NewManager(store)
	rule, err := m.FindTablePartitionRule(context.Background(), table)
	if err != nil {
		t.Fatalf("FindTablePartitionRule: %v", err)
	}

	// ts < 10 AND ts >= 20 is unsatisfiable over this partitioning's region
	// sets, but with ranges [<10, 1) excluded by the intersection step the
	// set should be empty, giving FindRegions.
	filters := []Expr{
		And(Compare("ts", OpLt, Int64Value(10)), Compare("ts", OpGtEq, Int64Value(20))),
	}
	if _, err := m.FindRegionsByFilters(rule, filters); err == nil {
		t.Fatalf("expected FindRegions error for an unsatisfiable filter")
	}

	ok := []Expr{Compare("ts", OpGtEq, Int64Value(15))}
	regions, err := m.FindRegionsByFilters(rule, ok)
	if err != nil {
		t.Fatalf("FindRegionsByFilters: %v", err)
	}
	want := map[regionid.RegionNumber]bool{1: true, 2: true}
	if len(regions) != len(want) {
		t.Fatalf("got %v, want regions %v", regions, want)
	}
	for _, r := range regions {
		if !want[r] {
			t.Errorf("unexpected region %d in result", r)
		}
	}
}

func TestManagerSplitInsertRequest(t *testing.T) {
	const table regionid.TableID = 1
	store := newFakeStore()
	store.routes[table] = meta.TableRouteValue{Route: threeWayRangeRoute(table), Version: 1}

	m := NewManager(store)
	req := split.InsertRequest{
		TableName: "events",
		Columns: []split.Column{
			{Name: "ts", Values: []Value{Int64Value(1), Int64Value(15), Int64Value(25)}},
		},
		RowCount: 3,
	}
	splits, err := m.SplitInsertRequest(context.Background(), table, req)
	if err != nil {
		t.Fatalf("SplitInsertRequest: %v", err)
	}
	if len(splits) != 3 {
		t.Fatalf("expected 3 splits, got %d", len(splits))
	}
	for region, s := range splits {
		if s.RowCount != 1 {
			t.Errorf("region %d: expected 1 row, got %d", region, s.RowCount)
		}
	}
}

func TestManagerInvalidateTableRoute(t *testing.T) {
	const table regionid.TableID = 3
	store := newFakeStore()
	store.routes[table] = meta.TableRouteValue{Route: threeWayRangeRoute(table), Version: 1}

	m := NewManager(store)
	if _, err := m.FindTableRoute(context.Background(), table); err != nil {
		t.Fatalf("FindTableRoute: %v", err)
	}
	m.InvalidateTableRoute(table)
	// Re-fetch still succeeds (store still has the route); invalidation only
	// affects the cache, not the backing store.
	if _, err := m.FindTableRoute(context.Background(), table); err != nil {
		t.Fatalf("FindTableRoute after invalidate: %v", err)
	}
}
