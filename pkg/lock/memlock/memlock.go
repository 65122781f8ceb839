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

// Package memlock is a single-process lock.Locker backed by a mutex map,
// for tests that exercise the failover runner without etcd.
package memlock

import (
	"context"
	"sync"

	"github.com/greptime/region-control/pkg/lock"
)

type entry struct {
	mu      sync.Mutex
	held    bool
	holder  uint64
}

// Locker is an in-memory lock.Locker. The zero value is ready to use.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
	counter uint64
}

// New builds a ready-to-use in-memory Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

func (l *Locker) entryFor(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries == nil {
		l.entries = make(map[string]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	return e
}

// Lock acquires key, blocking until it is free or ctx is done. TTL in opts
// is accepted for interface parity but not enforced: the in-memory lock is
// released only by an explicit Unlock, which is sufficient for tests that
// exercise scoped acquisition rather than crash recovery.
func (l *Locker) Lock(ctx context.Context, key string, _ lock.Opts) (lock.Token, error) {
	e := l.entryFor(key)

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		go func() {
			<-acquired
			e.mu.Unlock()
		}()
		return lock.Token{}, ctx.Err()
	}

	l.mu.Lock()
	l.counter++
	token := l.counter
	l.mu.Unlock()

	e.held = true
	e.holder = token
	return lock.Token{Key: key, Value: token}, nil
}

// Unlock releases token. Unlocking a token that no longer matches the
// current holder (already released, or never held) is a no-op.
func (l *Locker) Unlock(_ context.Context, token lock.Token) error {
	l.mu.Lock()
	e, ok := l.entries[token.Key]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if !e.held || e.holder != token.Value {
		return nil
	}
	e.held = false
	e.holder = 0
	e.mu.Unlock()
	return nil
}
