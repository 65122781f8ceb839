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

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/greptime/region-control/pkg/errs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedulerDrainsAllJobs(t *testing.T) {
	const jobCount = 1000
	s := New("drain", 8)

	var sum int64
	for i := 0; i < jobCount; i++ {
		if err := s.Schedule(func(ctx context.Context) {
			atomic.AddInt64(&sum, 1)
		}); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx, true); err != nil {
		t.Fatalf("Stop(true): %v", err)
	}
	if got := atomic.LoadInt64(&sum); got != jobCount {
		t.Fatalf("expected all %d jobs to run, got %d", jobCount, got)
	}
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	const concurrency = 3
	s := New("bound", concurrency)

	var inFlight int32
	var maxInFlight int32
	var wg sync.WaitGroup
	release := make(chan struct{})

	for i := 0; i < concurrency*2; i++ {
		wg.Add(1)
		err := s.Schedule(func(ctx context.Context) {
			defer wg.Done()
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxInFlight)
				if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&inFlight, -1)
		})
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&maxInFlight); got > concurrency {
		t.Fatalf("observed %d jobs in flight, want at most %d", got, concurrency)
	}
	close(release)
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx, true); err != nil {
		t.Fatalf("Stop(true): %v", err)
	}
}

func TestSchedulerStopWithoutAwaitDiscardsQueued(t *testing.T) {
	s := New("discard", 1)

	started := make(chan struct{})
	block := make(chan struct{})
	if err := s.Schedule(func(ctx context.Context) {
		close(started)
		<-block
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	<-started

	var ran int32
	if err := s.Schedule(func(ctx context.Context) {
		atomic.AddInt32(&ran, 1)
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Stop while the first job still occupies the only worker, so the second
	// job is still queued when the scheduler leaves Running.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopErr := make(chan error, 1)
	go func() { stopErr <- s.Stop(ctx, false) }()
	for s.running() {
		time.Sleep(time.Millisecond)
	}
	close(block)
	if err := <-stopErr; err != nil {
		t.Fatalf("Stop(false): %v", err)
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("queued job ran after Stop(false); want discarded")
	}
}

func TestSchedulerRejectsAfterStop(t *testing.T) {
	s := New("reject", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx, true); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	err := s.Schedule(func(context.Context) {})
	if err == nil {
		t.Fatal("expected Schedule to fail after Stop")
	}
	if !isKind(err, errs.KindInvalidSchedulerState) {
		t.Fatalf("expected InvalidSchedulerState, got %v", err)
	}
}

func TestSchedulerStopTwiceFails(t *testing.T) {
	s := New("double-stop", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx, true); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(ctx, true); err == nil {
		t.Fatal("expected second Stop to fail")
	}
}

func isKind(err error, kind errs.Kind) bool {
	e, ok := err.(*errs.Error)
	return ok && e.Kind() == kind
}
