// Copyright 2017 TiKV Project Authors.
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

// Package metrics exposes the Prometheus gauges and counters the scheduler,
// region worker and failover runner publish. Collection/registration only;
// the HTTP exposition endpoint is the protocol adapters' concern (out of
// scope per §1).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// SchedulerQueueLength tracks the number of jobs waiting in a
	// LocalScheduler's queue.
	SchedulerQueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "region_control",
			Subsystem: "scheduler",
			Name:      "queue_length",
			Help:      "Number of jobs queued but not yet started.",
		}, []string{"scheduler"})

	// SchedulerJobsTotal counts jobs started, labeled by scheduler name.
	SchedulerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "region_control",
			Subsystem: "scheduler",
			Name:      "jobs_total",
			Help:      "Number of scheduler jobs that started running.",
		}, []string{"scheduler"})

	// WorkerRequestDuration tracks region-worker request handling latency.
	WorkerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "region_control",
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Latency of region worker mailbox requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"})

	// FailoverStepsTotal counts failover state transitions, labeled by the
	// state that was executed and its outcome (ok / retry / fatal).
	FailoverStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "region_control",
			Subsystem: "failover",
			Name:      "steps_total",
			Help:      "Number of region failover state transitions.",
		}, []string{"state", "outcome"})
)

func init() {
	prometheus.MustRegister(
		SchedulerQueueLength,
		SchedulerJobsTotal,
		WorkerRequestDuration,
		FailoverStepsTotal,
	)
}
