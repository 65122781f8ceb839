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
	"fmt"
	"strings"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/lock"
	"github.com/greptime/region-control/pkg/meta"
)

// UpdateRegionMetadata is the failover procedure's core step, grounded on
// original_source/src/meta-srv/src/procedure/region_failover/update_metadata.rs:
// under the table's coarse metadata lock, it swings the failed region's
// leader to Candidate via an atomic compare-and-set.
type UpdateRegionMetadata struct {
	Candidate meta.Peer
}

// Kind implements State.
func (UpdateRegionMetadata) Kind() Kind { return KindUpdateRegionMetadata }

// Next implements State.
func (s UpdateRegionMetadata) Next(ctx context.Context, fctx *RegionFailoverContext, failedRegion meta.RegionIdent) (State, error) {
	if err := s.updateMetadata(ctx, fctx, failedRegion); err != nil {
		return nil, errs.RetryLater("failed to update metadata for failed region %s: %v", failedRegion.String(), err)
	}
	return InvalidateCache{}, nil
}

// updateMetadata implements §4.E's UpdateRegionMetadata algorithm: acquire
// the table-scoped lock (step 1-2), swap the leader (step 3-5), release the
// lock on every exit path (step 6).
func (s UpdateRegionMetadata) updateMetadata(ctx context.Context, fctx *RegionFailoverContext, failedRegion meta.RegionIdent) error {
	key := lock.TableMetadataLockKey(failedRegion.TableIdent.TableID)
	token, err := fctx.DistLock.Lock(ctx, key, lock.Opts{})
	if err != nil {
		return err
	}
	defer func() {
		if uerr := fctx.DistLock.Unlock(ctx, token); uerr != nil {
			log.Warn("failed to release table metadata lock",
				zap.String("key", key), zap.Error(uerr))
		}
	}()

	return s.updateTableRoute(ctx, fctx, failedRegion)
}

func (s UpdateRegionMetadata) updateTableRoute(ctx context.Context, fctx *RegionFailoverContext, failedRegion meta.RegionIdent) error {
	tableID := failedRegion.TableIdent.TableID

	current, ok, err := fctx.TableMetadataManager.GetTableRoute(ctx, tableID)
	if err != nil {
		return errs.Wrap(errs.KindTableMetadataManager, err, "get table route for table %d", tableID)
	}
	if !ok {
		return errs.New(errs.KindTableRouteNotFound, "no table route for table %d", tableID)
	}

	newRoutes := current.Route.CloneRegionRoutes()
	for i := range newRoutes {
		if newRoutes[i].RegionNumber == failedRegion.RegionNumber {
			candidate := s.Candidate
			newRoutes[i].LeaderPeer = &candidate
			break
		}
	}

	prettyLogTableRouteChange(tableID, newRoutes, failedRegion)

	if err := fctx.TableMetadataManager.UpdateTableRoute(ctx, tableID, current, newRoutes); err != nil {
		return errs.Wrap(errs.KindUpdateTableRoute, err, "update table route for table %d", tableID)
	}
	return nil
}

// prettyLogTableRouteChange logs the post-update route set, matching the
// original's pretty_log_table_route_change (a supplemented feature: see
// SPEC_FULL.md).
func prettyLogTableRouteChange(tableID uint32, routes []meta.RegionRoute, failedRegion meta.RegionIdent) {
	parts := make([]string, len(routes))
	for i, r := range routes {
		leader := "?"
		if r.LeaderPeer != nil {
			leader = fmt.Sprintf("%d", r.LeaderPeer.ID)
		}
		followers := make([]string, len(r.FollowerPeers))
		for j, f := range r.FollowerPeers {
			followers[j] = fmt.Sprintf("%d", f.ID)
		}
		parts[i] = fmt.Sprintf("{region: %d, leader: %s, followers: [%s]}",
			r.RegionNumber, leader, strings.Join(followers, ","))
	}

	log.Info("updating region routes in table route value",
		zap.Uint32("table_id", tableID),
		zap.String("routes", strings.Join(parts, ", ")),
		zap.Uint32("failed_region", failedRegion.RegionNumber),
		zap.Uint64("failed_datanode", failedRegion.DatanodeID))
}
