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

package failover

import "time"

// Backoff computes the delay before re-entering a state after a RetryLater
// failure: exponential, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Duration returns the delay for the given (zero-based) retry attempt.
func (b Backoff) Duration(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	max := b.Max
	if max <= 0 {
		max = b.Base
	}

	d := b.Base
	for i := 0; i < attempt; i++ {
		if d >= max {
			return max
		}
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
