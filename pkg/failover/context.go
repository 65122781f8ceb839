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

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/lock"
	"github.com/greptime/region-control/pkg/meta"
)

// CandidateSelector picks the peer a failed region's leadership moves to.
// The distilled spec does not state the selection policy; DESIGN.md records
// the decision to prefer a live follower of the failed region, falling back
// to any other live peer in the table.
type CandidateSelector interface {
	SelectCandidate(ctx context.Context, failedRegion meta.RegionIdent, route meta.TableRoute) (meta.Peer, error)
}

// FollowerFirstSelector is the default CandidateSelector: it picks the
// failed region's first follower peer, or — absent followers — any other
// live peer serving the table, excluding the failed datanode.
type FollowerFirstSelector struct {
	// IsLive reports whether a peer is currently reachable. Nil means every
	// peer is assumed live, which is adequate for tests and for a cluster
	// with no separate liveness oracle wired in yet.
	IsLive func(meta.Peer) bool
}

// SelectCandidate implements CandidateSelector.
func (s FollowerFirstSelector) SelectCandidate(_ context.Context, failedRegion meta.RegionIdent, route meta.TableRoute) (meta.Peer, error) {
	live := func(p meta.Peer) bool {
		return s.IsLive == nil || s.IsLive(p)
	}

	for _, r := range route.RegionRoutes {
		if r.RegionNumber != failedRegion.RegionNumber {
			continue
		}
		for _, f := range r.FollowerPeers {
			if f.ID != failedRegion.DatanodeID && live(f) {
				return f, nil
			}
		}
	}

	for _, p := range meta.ExtractAllPeers(route.RegionRoutes) {
		if p.ID != failedRegion.DatanodeID && live(p) {
			return p, nil
		}
	}

	return meta.Peer{}, errs.New(errs.KindFindDatanode, "no live candidate peer available for region %s", failedRegion.String())
}

// RegionFailoverContext bundles the dependencies every failover state needs
// (§4.E's "RegionFailoverContext { table_metadata_manager, dist_lock, ... }").
type RegionFailoverContext struct {
	TableMetadataManager meta.Store
	DistLock             lock.Locker
	CacheInvalidator     meta.CacheInvalidator
	CandidateSelector    CandidateSelector
}
