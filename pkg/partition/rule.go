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

// Package partition implements the partition-rule evaluator, row/insert
// splitter and partition manager (§4.A-C).
package partition

import "github.com/greptime/region-control/pkg/regionid"

// RuleKind discriminates Rule's two implementations. Replaces the source's
// runtime type-identity downcasting (used there for test inspection and
// route serialization) with a closed sum, per the design notes.
type RuleKind uint8

const (
	KindRange RuleKind = iota
	KindRangeColumns
)

// Rule is the capability every partition rule implementation exposes: the
// deterministic function from a row's (or filter's) partition-column values
// to a region number (§3, §4.A).
type Rule interface {
	// Kind identifies the concrete implementation, for serialization and
	// tests, without runtime type assertions.
	Kind() RuleKind
	// PartitionColumns returns the ordered partition columns this rule
	// evaluates over. An empty result means the table is unpartitioned.
	PartitionColumns() []string
	// FindRegion returns the single destination region for one row's
	// partition-column values, in PartitionColumns order.
	FindRegion(values []Value) (regionid.RegionNumber, error)
	// FindRegionsByExprs returns the (possibly conservative superset of)
	// regions that could satisfy the given filter expressions.
	FindRegionsByExprs(exprs []Expr) ([]regionid.RegionNumber, error)
}
