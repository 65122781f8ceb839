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

import "github.com/google/btree"

// boundIndex is an ordered index over a range rule's ascending bounds,
// mapping each bound to the index of the region it terminates. It replaces a
// linear scan with a B-tree lookup so find_region stays cheap on tables with
// many partitions.
type boundIndex struct {
	tree *btree.BTree
}

type boundItem struct {
	bound Value
	// regionIndex is the position of this bound in the rule's bounds slice.
	regionIndex int
}

func (b boundItem) Less(than btree.Item) bool {
	return b.bound.Less(than.(boundItem).bound)
}

// newBoundIndex builds an index over bounds, which must already be strictly
// ascending.
func newBoundIndex(bounds []Value) *boundIndex {
	tree := btree.New(8)
	for i, b := range bounds {
		tree.ReplaceOrInsert(boundItem{bound: b, regionIndex: i})
	}
	return &boundIndex{tree: tree}
}

// lowerBoundRegion returns the index of the lowest bound strictly greater
// than v, or -1 if no such bound exists (meaning v belongs to the last
// region).
func (b *boundIndex) lowerBoundRegion(v Value) int {
	found := -1
	b.tree.AscendGreaterOrEqual(boundItem{bound: v}, func(item btree.Item) bool {
		bi := item.(boundItem)
		if bi.bound.Equal(v) {
			// v < bounds[i] is false when equal; keep scanning.
			return true
		}
		found = bi.regionIndex
		return false
	})
	return found
}
