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
	"github.com/greptime/region-control/pkg/syncutil"
)

// RouteCache is a reader-preferring, clone-and-swap cache of table routes
// (§5, "Table route cache: protected by a reader-preferring lock; writers
// clone-and-swap"). A reader takes the RLock for the whole lookup; a miss
// fetches from the backing store and installs the result under the write
// lock, replacing (never mutating) any prior entry, so concurrent readers
// never observe a partially updated value.
type RouteCache struct {
	store Store

	mu      syncutil.RWMutex
	entries map[regionid.TableID]*TableRouteValue
}

// NewRouteCache builds a RouteCache backed by store.
func NewRouteCache(store Store) *RouteCache {
	return &RouteCache{
		store:   store,
		entries: make(map[regionid.TableID]*TableRouteValue),
	}
}

// Get returns table's route, consulting the backing store on a cache miss.
func (c *RouteCache) Get(ctx context.Context, table regionid.TableID) (*TableRouteValue, error) {
	c.mu.RLock()
	if v, ok := c.entries[table]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	value, ok, err := c.store.GetTableRoute(ctx, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	c.mu.Lock()
	c.entries[table] = &value
	c.mu.Unlock()
	return &value, nil
}

// Invalidate drops table's cached entry. Idempotent: invalidating an absent
// entry is a no-op, per §4.C.
func (c *RouteCache) Invalidate(table regionid.TableID) {
	c.mu.Lock()
	delete(c.entries, table)
	c.mu.Unlock()
}

// InvalidateTableRoute implements CacheInvalidator.
func (c *RouteCache) InvalidateTableRoute(table regionid.TableID) {
	c.Invalidate(table)
}
