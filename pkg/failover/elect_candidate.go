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
	"github.com/greptime/region-control/pkg/meta"
)

// ElectCandidate picks the peer the failed region's leadership will move
// to, via the context's CandidateSelector.
type ElectCandidate struct{}

// Kind implements State.
func (ElectCandidate) Kind() Kind { return KindElectCandidate }

// Next implements State.
func (ElectCandidate) Next(ctx context.Context, fctx *RegionFailoverContext, failedRegion meta.RegionIdent) (State, error) {
	route, ok, err := fctx.TableMetadataManager.GetTableRoute(ctx, failedRegion.TableIdent.TableID)
	if err != nil {
		return nil, errs.Wrap(errs.KindTableMetadataManager, err, "load table route for %s", failedRegion.String())
	}
	if !ok {
		return nil, errs.New(errs.KindTableRouteNotFound, "no table route for %s", failedRegion.String())
	}

	selector := fctx.CandidateSelector
	if selector == nil {
		selector = FollowerFirstSelector{}
	}
	candidate, err := selector.SelectCandidate(ctx, failedRegion, route.Route)
	if err != nil {
		return nil, errs.RetryLater("failed to elect a candidate for %s: %v", failedRegion.String(), err)
	}

	return UpdateRegionMetadata{Candidate: candidate}, nil
}
