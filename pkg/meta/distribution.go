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

package meta

import "github.com/greptime/region-control/pkg/regionid"

// RegionDistribution groups a table's region numbers by current leader
// peer id, mirroring the original's region_distribution test helper
// (supplemented feature: see SPEC_FULL.md). Leaderless regions are omitted.
func RegionDistribution(routes []RegionRoute) map[uint64][]regionid.RegionNumber {
	dist := make(map[uint64][]regionid.RegionNumber)
	for _, r := range routes {
		if r.LeaderPeer == nil {
			continue
		}
		dist[r.LeaderPeer.ID] = append(dist[r.LeaderPeer.ID], r.RegionNumber)
	}
	return dist
}

// ExtractAllPeers returns the distinct set of peers (leaders and followers)
// referenced by routes, in first-seen order.
func ExtractAllPeers(routes []RegionRoute) []Peer {
	seen := make(map[uint64]bool)
	var peers []Peer
	add := func(p Peer) {
		if !seen[p.ID] {
			seen[p.ID] = true
			peers = append(peers, p)
		}
	}
	for _, r := range routes {
		if r.LeaderPeer != nil {
			add(*r.LeaderPeer)
		}
		for _, f := range r.FollowerPeers {
			add(f)
		}
	}
	return peers
}
