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

//go:build deadlock

package syncutil

import "github.com/sasha-s/go-deadlock"

// RWMutex is go-deadlock's RWMutex when built with -tags deadlock.
type RWMutex = deadlock.RWMutex

// Mutex is go-deadlock's Mutex when built with -tags deadlock.
type Mutex = deadlock.Mutex
