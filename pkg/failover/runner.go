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

import (
	"context"
	"time"

	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/meta"
	"github.com/greptime/region-control/pkg/metrics"
)

// Runner drives one region's failover procedure to completion, persisting
// state via a ProcedureStore after every transition and re-entering the
// current state after a backoff on RetryLater (§4.E).
type Runner struct {
	Context       *RegionFailoverContext
	ProcedureStore ProcedureStore
	Backoff       Backoff
}

// Run executes the procedure identified by procedureID for failedRegion,
// starting from start (typically Detected{}, or whatever LoadState returns
// on resume), until it reaches Done or a fatal error occurs.
func (r *Runner) Run(ctx context.Context, procedureID string, failedRegion meta.RegionIdent, start State) error {
	state := start
	attempt := 0

	for {
		if err := r.ProcedureStore.SaveState(ctx, procedureID, state); err != nil {
			return errs.Wrap(errs.KindTableMetadataManager, err, "persist failover state %s for %s", state.Kind(), failedRegion.String())
		}

		if state.Kind() == KindDone {
			metrics.FailoverStepsTotal.WithLabelValues(string(state.Kind()), "ok").Inc()
			return r.ProcedureStore.DeleteState(ctx, procedureID)
		}

		var next State
		var err error
		failpoint.Inject("failoverStepRetryLater", func() {
			err = errs.RetryLater("injected by failoverStepRetryLater")
		})
		if err == nil {
			next, err = state.Next(ctx, r.Context, failedRegion)
		}
		if err != nil {
			if errs.Retryable(err) {
				metrics.FailoverStepsTotal.WithLabelValues(string(state.Kind()), "retry").Inc()
				log.Warn("failover step failed transiently, retrying",
					zap.String("state", string(state.Kind())),
					zap.String("region", failedRegion.String()),
					zap.Error(err))
				delay := r.Backoff.Duration(attempt)
				attempt++
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			metrics.FailoverStepsTotal.WithLabelValues(string(state.Kind()), "fatal").Inc()
			return err
		}

		metrics.FailoverStepsTotal.WithLabelValues(string(state.Kind()), "ok").Inc()
		attempt = 0
		state = next
	}
}
