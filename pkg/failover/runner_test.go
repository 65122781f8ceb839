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

package failover

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/lock/memlock"
	"github.com/greptime/region-control/pkg/meta"
	"github.com/greptime/region-control/pkg/regionid"
)

// casStore is an in-memory meta.Store with true compare-and-set semantics,
// so the concurrent-failover test exercises the same CAS-conflict path a
// real metadata store would.
type casStore struct {
	mu     sync.Mutex
	routes map[regionid.TableID]meta.TableRouteValue
}

func newCasStore() *casStore {
	return &casStore{routes: make(map[regionid.TableID]meta.TableRouteValue)}
}

func (s *casStore) GetTableRoute(_ context.Context, table regionid.TableID) (meta.TableRouteValue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.routes[table]
	if !ok {
		return meta.TableRouteValue{}, false, nil
	}
	return meta.TableRouteValue{Route: meta.TableRoute{TableID: v.Route.TableID, RegionRoutes: v.Route.CloneRegionRoutes()}, Version: v.Version}, true, nil
}

func (s *casStore) UpdateTableRoute(_ context.Context, table regionid.TableID, previous meta.TableRouteValue, newRoutes []meta.RegionRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.routes[table]
	if ok && current.Version != previous.Version {
		return errs.RetryLater("table %d route concurrently updated", table)
	}
	if !ok && previous.Version != 0 {
		return errs.RetryLater("table %d route concurrently deleted", table)
	}
	s.routes[table] = meta.TableRouteValue{
		Route:   meta.TableRoute{TableID: table, RegionRoutes: newRoutes},
		Version: previous.Version + 1,
	}
	return nil
}

func (s *casStore) DatanodeTables(_ context.Context, _ uint64) meta.DatanodeTableIterator { return nil }

func (s *casStore) DeleteTableRoute(_ context.Context, table regionid.TableID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routes, table)
	return nil
}

type fakeInvalidator struct {
	mu     sync.Mutex
	tables []regionid.TableID
}

func (f *fakeInvalidator) InvalidateTableRoute(table regionid.TableID) {
	f.mu.Lock()
	f.tables = append(f.tables, table)
	f.mu.Unlock()
}

// fourRegionRoute builds the four-region, three-leader table route the
// original's update_metadata tests start from: region 1,2 -> node 1;
// region 3 -> node 2; region 4 -> node 3.
func fourRegionRoute(table regionid.TableID) meta.TableRoute {
	mk := func(region regionid.RegionNumber, leader uint64) meta.RegionRoute {
		p := meta.NewPeer(leader, "")
		return meta.RegionRoute{
			RegionID:     regionid.NewRegionID(table, region),
			RegionNumber: region,
			LeaderPeer:   &p,
		}
	}
	return meta.TableRoute{
		TableID: table,
		RegionRoutes: []meta.RegionRoute{
			mk(1, 1), mk(2, 1), mk(3, 2), mk(4, 3),
		},
	}
}

func TestRunnerSingleRegionFailover(t *testing.T) {
	const table regionid.TableID = 1
	store := newCasStore()
	store.routes[table] = meta.TableRouteValue{Route: fourRegionRoute(table), Version: 1}

	invalidator := &fakeInvalidator{}
	runner := &Runner{
		Context: &RegionFailoverContext{
			TableMetadataManager: store,
			DistLock:             memlock.New(),
			CacheInvalidator:     invalidator,
		},
		ProcedureStore: NewMemProcedureStore(),
		Backoff:        Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond},
	}

	failedRegion := meta.RegionIdent{
		ClusterID:    1,
		DatanodeID:   1,
		TableIdent:   meta.TableIdent{TableID: table},
		RegionNumber: 1,
	}

	if err := runner.Run(context.Background(), "proc-1", failedRegion, UpdateRegionMetadata{Candidate: meta.NewPeer(2, "")}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	route, ok, err := store.GetTableRoute(context.Background(), table)
	if err != nil || !ok {
		t.Fatalf("GetTableRoute: ok=%v err=%v", ok, err)
	}
	leader := route.Route.FindRegionLeader(1)
	if leader == nil || leader.ID != 2 {
		t.Fatalf("expected region 1's leader to be 2, got %v", leader)
	}
	if len(invalidator.tables) != 1 || invalidator.tables[0] != table {
		t.Fatalf("expected cache invalidation for table %d, got %v", table, invalidator.tables)
	}
}

func TestRunnerConcurrentFailoverSameTable(t *testing.T) {
	const table regionid.TableID = 1

	for iter := 0; iter < 10; iter++ {
		store := newCasStore()
		store.routes[table] = meta.TableRouteValue{Route: fourRegionRoute(table), Version: 1}
		locker := memlock.New()

		run := func(region regionid.RegionNumber, candidate uint64) error {
			runner := &Runner{
				Context: &RegionFailoverContext{
					TableMetadataManager: store,
					DistLock:             locker,
				},
				ProcedureStore: NewMemProcedureStore(),
				Backoff:        Backoff{Base: time.Millisecond, Max: 20 * time.Millisecond},
			}
			failedRegion := meta.RegionIdent{
				DatanodeID:   1,
				TableIdent:   meta.TableIdent{TableID: table},
				RegionNumber: region,
			}
			return runner.Run(context.Background(), "proc", failedRegion, UpdateRegionMetadata{Candidate: meta.NewPeer(candidate, "")})
		}

		var wg sync.WaitGroup
		errCh := make(chan error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); errCh <- run(1, 2) }()
		go func() { defer wg.Done(); errCh <- run(2, 3) }()
		wg.Wait()
		close(errCh)
		for err := range errCh {
			if err != nil {
				t.Fatalf("iteration %d: Run: %v", iter, err)
			}
		}

		route, ok, err := store.GetTableRoute(context.Background(), table)
		if err != nil || !ok {
			t.Fatalf("iteration %d: GetTableRoute: ok=%v err=%v", iter, ok, err)
		}

		leaders := map[regionid.RegionNumber]uint64{}
		for _, r := range route.Route.RegionRoutes {
			if r.LeaderPeer == nil {
				t.Fatalf("iteration %d: region %d has no leader", iter, r.RegionNumber)
			}
			leaders[r.RegionNumber] = r.LeaderPeer.ID
		}
		want := map[regionid.RegionNumber]uint64{1: 2, 2: 3, 3: 2, 4: 3}
		for region, leader := range want {
			if leaders[region] != leader {
				t.Fatalf("iteration %d: region %d leader = %d, want %d", iter, region, leaders[region], leader)
			}
		}

		dist := meta.RegionDistribution(route.Route.RegionRoutes)
		var node2, node3 []regionid.RegionNumber
		node2 = append(node2, dist[2]...)
		node3 = append(node3, dist[3]...)
		sort.Slice(node2, func(i, j int) bool { return node2[i] < node2[j] })
		sort.Slice(node3, func(i, j int) bool { return node3[i] < node3[j] })
		if len(node2) != 2 || node2[0] != 1 || node2[1] != 3 {
			t.Fatalf("iteration %d: node 2 regions = %v, want [1 3]", iter, node2)
		}
		if len(node3) != 2 || node3[0] != 2 || node3[1] != 4 {
			t.Fatalf("iteration %d: node 3 regions = %v, want [2 4]", iter, node3)
		}
	}
}
