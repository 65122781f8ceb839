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

import (
	"context"

	"github.com/greptime/region-control/pkg/regionid"
)

// DatanodeTable is one table's regions assigned to a datanode, the element
// type of the datanode_tables(node_id) contract (§6).
type DatanodeTable struct {
	TableID regionid.TableID
	Regions []regionid.RegionNumber
}

// DatanodeTableIterator lazily yields a datanode's tables; Next returns
// (table, true, nil) while more remain, (zero, false, nil) when exhausted,
// and (zero, false, err) on failure. This is the Go shape of the "lazy
// sequence" the contract specifies, and supports read-your-writes: values
// reflect the latest committed state at the time Next is called.
type DatanodeTableIterator interface {
	Next(ctx context.Context) (DatanodeTable, bool, error)
}

// Store is the metadata-store contract the partition manager and failover
// procedure consume (§6, "From metadata store"). Implementations must give
// UpdateTableRoute atomic compare-and-swap semantics: it only succeeds when
// the stored value is still exactly previous.
type Store interface {
	// GetTableRoute returns the current route for table, or (zero, false,
	// nil) if the table has no route.
	GetTableRoute(ctx context.Context, table regionid.TableID) (TableRouteValue, bool, error)

	// UpdateTableRoute atomically replaces a table's route: it succeeds
	// only if the currently stored value equals previous, and persists
	// newRegionRoutes under a new version. On conflict it returns a
	// retryable *errs.Error.
	UpdateTableRoute(ctx context.Context, table regionid.TableID, previous TableRouteValue, newRegionRoutes []RegionRoute) error

	// DatanodeTables returns a lazy, read-your-writes iterator over the
	// tables currently assigned to node.
	DatanodeTables(ctx context.Context, node uint64) DatanodeTableIterator

	// DeleteTableRoute removes a table's route entirely (drop-table).
	DeleteTableRoute(ctx context.Context, table regionid.TableID) error
}

// CacheInvalidator is implemented by anything holding a route cache that
// must be told to drop a table's cached entry after a failover (§4.E
// "InvalidateCache").
type CacheInvalidator interface {
	InvalidateTableRoute(table regionid.TableID)
}
