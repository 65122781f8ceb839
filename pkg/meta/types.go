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

// Package meta holds the cluster-metadata shapes the partition manager,
// failover procedure and metadata store contract share: peers, table
// routes, and the failover target identity (§3, §6).
package meta

import (
	"fmt"

	"github.com/greptime/region-control/pkg/regionid"
)

// Peer identifies one datanode in the cluster (§3).
type Peer struct {
	ID      uint64
	Address string
}

// NewPeer builds a Peer.
func NewPeer(id uint64, address string) Peer {
	return Peer{ID: id, Address: address}
}

// String renders a Peer for logs as "Peer{id=<id>, addr=<address>}".
func (p Peer) String() string {
	return fmt.Sprintf("Peer{id=%d, addr=%s}", p.ID, p.Address)
}

// TableIdent names a table within a cluster and catalog/schema namespace.
type TableIdent struct {
	CatalogName string
	SchemaName  string
	TableName   string
	TableID     regionid.TableID
}

// RegionIdent is the full identity of a failover target (§3).
type RegionIdent struct {
	ClusterID    uint64
	DatanodeID   uint64
	TableIdent   TableIdent
	RegionNumber regionid.RegionNumber
}

// String renders the failed region the way the teacher logs region
// identities: table name plus numeric region id.
func (r RegionIdent) String() string {
	return fmt.Sprintf("%s.%s.%s[%d]", r.TableIdent.CatalogName, r.TableIdent.SchemaName,
		r.TableIdent.TableName, r.RegionNumber)
}

// PartitionBound is the wire shape of a partition boundary: either a
// concrete scalar (stored as one of int64/uint64/float64/string/bool) or
// the MaxValue sentinel. Kept dependency-free of pkg/partition (which
// depends on pkg/meta's TableRoute) so the two packages don't cycle; the
// partition manager converts this into a partition.PartitionBound when it
// builds a rule from a table's routes (§4.C, "find_table_partition_rule").
type PartitionBound struct {
	IsMaxValue bool
	Value      interface{}
}

// PartitionDef is the wire shape of §3's PartitionDef.
type PartitionDef struct {
	PartitionColumns []string
	Bounds           []PartitionBound
}

// RegionRoute is one region's placement: its leader (absent only
// momentarily during failover) and its follower set (§3).
type RegionRoute struct {
	RegionID      regionid.RegionID
	RegionNumber  regionid.RegionNumber
	Partition     *PartitionDef
	LeaderPeer    *Peer
	FollowerPeers []Peer
}

// Clone deep-copies a RegionRoute, so callers mutating a cloned route vector
// (as the failover procedure does before a CAS) never alias the original.
func (r RegionRoute) Clone() RegionRoute {
	clone := r
	if r.LeaderPeer != nil {
		leader := *r.LeaderPeer
		clone.LeaderPeer = &leader
	}
	if r.FollowerPeers != nil {
		clone.FollowerPeers = append([]Peer(nil), r.FollowerPeers...)
	}
	return clone
}

// TableRoute is a table's ordered region placement (§3). Every region in the
// table appears exactly once.
type TableRoute struct {
	TableID      regionid.TableID
	RegionRoutes []RegionRoute
}

// CloneRegionRoutes returns a deep copy of t's region routes, the slice the
// failover procedure mutates before issuing a compare-and-swap.
func (t *TableRoute) CloneRegionRoutes() []RegionRoute {
	out := make([]RegionRoute, len(t.RegionRoutes))
	for i, r := range t.RegionRoutes {
		out[i] = r.Clone()
	}
	return out
}

// FindRegionLeader returns the leader peer for the given region number, or
// nil if the region is absent or currently leaderless.
func (t *TableRoute) FindRegionLeader(region regionid.RegionNumber) *Peer {
	for i := range t.RegionRoutes {
		if t.RegionRoutes[i].RegionNumber == region {
			return t.RegionRoutes[i].LeaderPeer
		}
	}
	return nil
}

// TableRouteValue is the versioned value stored for a table's route,
// carrying whatever the metadata store needs for compare-and-swap (§6).
type TableRouteValue struct {
	Route   TableRoute
	Version uint64
}
