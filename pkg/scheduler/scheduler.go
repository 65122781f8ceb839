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

// Package scheduler implements the fixed-concurrency background job pool
// background flush and compaction jobs run on (§4.F).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/metrics"
)

// Job is a unit of scheduled work. It receives a context carrying the
// scheduler's shutdown cancellation (§5, "Background jobs... must not
// invoke synchronous blocking calls").
type Job func(ctx context.Context)

// Scheduler is the contract §4.F specifies.
type Scheduler interface {
	// Schedule enqueues job. It fails with InvalidSchedulerState unless the
	// scheduler is Running.
	Schedule(job Job) error
	// Stop transitions out of Running: awaitTermination drains queued jobs
	// before exiting; otherwise queued jobs are discarded. Valid only from
	// Running.
	Stop(ctx context.Context, awaitTermination bool) error
}

// defaultJobQueueCapacity bounds the job channel's buffer. Go channels have
// no truly unbounded variant, so this approximates the source's
// flume::unbounded with a large fixed capacity a single scheduler's backlog
// is not expected to exceed; Schedule still fails fast with
// InvalidSchedulerState rather than blocking once the scheduler is stopping.
const defaultJobQueueCapacity = 4096

// state values. Transitions always go Running -> AwaitTermination -> Stop,
// or Running -> Stop directly, matching the source's STATE_RUNNING/
// STATE_STOP/STATE_AWAIT_TERMINATION constants.
const (
	stateRunning int32 = iota
	stateStop
	stateAwaitTermination
)

// LocalScheduler is a fixed-concurrency, in-process job pool backed by a Go
// channel instead of the source's flume channel, and context cancellation
// instead of a CancellationToken.
//
// State is an atomic int32 read with LoadInt32/StoreInt32, which Go defines
// as sequentially consistent — a correction over the source's explicit
// Ordering::Relaxed, which only promises the load/store itself is atomic and
// not that a goroutine observing the new state also observes Stop's other
// writes (closing the channel, cancelling the context). Relaxed ordering on
// those stores could let a concurrent Schedule read stateStop yet still
// race the channel close.
type LocalScheduler struct {
	name   string
	jobs   chan Job
	cancel context.CancelFunc
	ctx    context.Context

	state int32 // atomic; stateRunning/stateStop/stateAwaitTermination

	sendMu sync.RWMutex // excludes Schedule's send from Stop's channel close
	closed bool

	group    *errgroup.Group // worker bring-up/teardown, one Go call per worker
	panicsMu sync.Mutex
	panics   []interface{}
}

// New builds a LocalScheduler with concurrency worker goroutines draining a
// shared job channel buffered to defaultJobQueueCapacity, standing in for the
// source's flume::unbounded (schedule must never block unboundedly, per
// §4.F). name labels this scheduler's metrics, so multiple schedulers in one
// process stay distinguishable.
func New(name string, concurrency int) *LocalScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &LocalScheduler{
		name:   name,
		jobs:   make(chan Job, defaultJobQueueCapacity),
		ctx:    ctx,
		cancel: cancel,
		state:  stateRunning,
		group:  &errgroup.Group{},
	}

	for i := 0; i < concurrency; i++ {
		s.group.Go(func() error {
			s.worker()
			return nil
		})
	}
	return s
}

func (s *LocalScheduler) runJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.panicsMu.Lock()
			s.panics = append(s.panics, r)
			s.panicsMu.Unlock()
		}
	}()
	metrics.SchedulerQueueLength.WithLabelValues(s.name).Dec()
	job(s.ctx)
	metrics.SchedulerJobsTotal.WithLabelValues(s.name).Inc()
}

func (s *LocalScheduler) worker() {
	for atomic.LoadInt32(&s.state) == stateRunning {
		failpoint.Inject("schedulerStopRace", func() {
			atomic.StoreInt32(&s.state, stateStop)
		})
		select {
		case <-s.ctx.Done():
			s.drain()
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.runJob(job)
		}
	}
	s.drain()
}

// drain runs every already-queued job to completion once the scheduler has
// stopped accepting new ones, if it was asked to await termination.
func (s *LocalScheduler) drain() {
	if atomic.LoadInt32(&s.state) != stateAwaitTermination {
		return
	}
	for job := range s.jobs {
		s.runJob(job)
	}
}

// running reports whether the scheduler currently accepts new jobs.
func (s *LocalScheduler) running() bool {
	return atomic.LoadInt32(&s.state) == stateRunning
}

// Schedule implements Scheduler.
func (s *LocalScheduler) Schedule(job Job) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if !s.running() {
		return errs.New(errs.KindInvalidSchedulerState, "scheduler is not running")
	}
	select {
	case s.jobs <- job:
		metrics.SchedulerQueueLength.WithLabelValues(s.name).Inc()
		return nil
	case <-s.ctx.Done():
		return errs.New(errs.KindInvalidFlumeSender, "scheduler is shutting down")
	}
}

// Stop implements Scheduler. It is only valid from Running.
func (s *LocalScheduler) Stop(ctx context.Context, awaitTermination bool) error {
	if !s.running() {
		return errs.New(errs.KindInvalidSchedulerState, "scheduler already stopping or stopped")
	}

	target := stateStop
	if awaitTermination {
		target = stateAwaitTermination
	}
	atomic.StoreInt32(&s.state, int32(target))
	s.cancel()

	s.sendMu.Lock()
	if !s.closed {
		close(s.jobs)
		s.closed = true
	}
	s.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errs.Wrap(errs.KindStopScheduler, ctx.Err(), "timed out waiting for scheduler workers")
	}

	if awaitTermination {
		atomic.StoreInt32(&s.state, stateStop)
	}

	s.panicsMu.Lock()
	panics := s.panics
	s.panicsMu.Unlock()
	if len(panics) > 0 {
		return errs.New(errs.KindStopScheduler, "%d scheduler worker(s) panicked: %v", len(panics), fmt.Sprint(panics...))
	}
	return nil
}

// Close is a convenience for defer sites that want drop-without-stop to be
// diagnosable rather than silently leaking goroutines (§4.F, "dropping
// without calling stop first is a programming error (observable via
// diagnostic)").
func (s *LocalScheduler) Close() {
	if s.running() {
		log.Warn("scheduler dropped without stop; workers may still be running",
			zap.Int32("state", atomic.LoadInt32(&s.state)))
	}
}
