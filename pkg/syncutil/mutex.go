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

//go:build !deadlock

// Package syncutil re-exports the mutex type the route cache and region
// worker guard their shared state with. Building with -tags deadlock swaps
// in github.com/sasha-s/go-deadlock's drop-in, deadlock-detecting
// RWMutex instead, exactly as the teacher repo does for its hot debug
// builds.
package syncutil

import "sync"

// RWMutex is sync.RWMutex in production builds.
type RWMutex = sync.RWMutex

// Mutex is sync.Mutex in production builds.
type Mutex = sync.Mutex
