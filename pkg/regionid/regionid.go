// Copyright 2016 TiKV Project Authors.
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

// Package regionid defines the region identity shared by the partitioning,
// failover and region-worker subsystems.
package regionid

// TableID identifies a logical table across the cluster.
type TableID = uint32

// RegionNumber is a region's ordinal within its table.
type RegionNumber = uint32

// RegionID is the cluster-wide identity of a region: the high 32 bits hold
// the owning table, the low 32 bits hold the region number within the table.
type RegionID uint64

// NewRegionID packs a table ID and region number into a RegionID.
func NewRegionID(tableID TableID, regionNumber RegionNumber) RegionID {
	return RegionID(uint64(tableID)<<32 | uint64(regionNumber))
}

// TableID returns the table component of the region id.
func (r RegionID) TableID() TableID {
	return TableID(uint64(r) >> 32)
}

// RegionNumber returns the region-number component of the region id.
func (r RegionID) RegionNumber() RegionNumber {
	return RegionNumber(uint64(r) & 0xffffffff)
}
