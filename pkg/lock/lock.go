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

// Package lock defines the distributed-lock contract the failover runner
// serializes table metadata updates through (§4.D). Locker has two
// implementations: lock/memlock (single-process, for tests) and
// lock/etcdlock (etcd-session-backed, for production).
package lock

import (
	"context"
	"strconv"
	"time"
)

// Opts configures one lock acquisition.
type Opts struct {
	// TTL bounds how long the lock is held without being explicitly
	// released or renewed, so a crashed holder's lock is eventually
	// reclaimed. Zero means the implementation's default.
	TTL time.Duration
}

// Token identifies one successful lock acquisition. Value is monotonically
// increasing across acquisitions of the same key cluster-wide, so a
// downstream writer can reject a stale holder (the fencing guarantee of
// §4.D) by comparing tokens.
type Token struct {
	Key   string
	Value uint64
}

// Locker is the distributed-lock contract §4.D specifies: mutual exclusion
// per key, a monotonic fencing token, and scoped acquisition (the caller
// must unlock on every exit path).
type Locker interface {
	// Lock blocks until key is acquired or ctx is done. It returns a Token
	// callers must pass to Unlock.
	Lock(ctx context.Context, key string, opts Opts) (Token, error)
	// Unlock releases a previously acquired token. Unlocking a token whose
	// lease already expired is not an error: the lock was already released.
	Unlock(ctx context.Context, token Token) error
}

// TableMetadataLockKey builds the coarse, table-scoped lock key the
// failover procedure serializes UpdateRegionMetadata through (§4.E step 1):
// keyed by table rather than by region, so concurrent failovers of sibling
// regions in the same table serialize on one key.
func TableMetadataLockKey(tableID uint32) string {
	return "table-metadata/" + strconv.FormatUint(uint64(tableID), 10)
}
