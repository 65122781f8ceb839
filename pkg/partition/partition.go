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

// BoundKind discriminates PartitionBound's two variants.
type BoundKind uint8

const (
	// BoundValue is a finite upper bound.
	BoundValue BoundKind = iota
	// BoundMaxValue is the unbounded "everything above" terminator. Every
	// PartitionDef's final bound must be BoundMaxValue (§3 invariant).
	BoundMaxValue
)

// PartitionBound is one boundary of a partition's range, either a concrete
// Value or the MaxValue sentinel.
type PartitionBound struct {
	Kind  BoundKind
	Value Value
}

// ValueBound builds a finite PartitionBound.
func ValueBound(v Value) PartitionBound { return PartitionBound{Kind: BoundValue, Value: v} }

// MaxValueBound is the terminal PartitionBound every partition column's
// bound list ends with.
var MaxValueBound = PartitionBound{Kind: BoundMaxValue}

// Compare orders two bounds in tuple space: MaxValue sorts after every
// concrete value and equals only itself.
func (b PartitionBound) Compare(other PartitionBound) int {
	if b.Kind == BoundMaxValue && other.Kind == BoundMaxValue {
		return 0
	}
	if b.Kind == BoundMaxValue {
		return 1
	}
	if other.Kind == BoundMaxValue {
		return -1
	}
	return b.Value.Compare(other.Value)
}

// CompareBoundTuples lexicographically compares two equal-shaped bound
// tuples, used to sort a table's regions by their partition bounds.
func CompareBoundTuples(a, b []PartitionBound) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// PartitionDef describes one region's slice of a table's partition-column
// space (§3). Across a table, every region's PartitionDef shares
// PartitionColumns, and the union of all Bounds tuples sort-partitions the
// space into disjoint, exhaustive ranges whose final bound is MaxValue.
type PartitionDef struct {
	PartitionColumns []string
	Bounds           []PartitionBound
}
