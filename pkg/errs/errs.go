// Copyright 2016 TiKV Project Authors.
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

// Package errs defines the error kinds shared by the partition manager,
// failover procedure and region worker, per the layering in the design doc's
// error-handling section. Every kind carries its own stack via
// github.com/pingcap/errors and exposes an explicit Retryable predicate
// instead of leaving callers to sniff messages.
package errs

import (
	"fmt"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// Kind names one of the error kinds from the design's error table.
type Kind string

// Error kinds, grouped by layer.
const (
	// Partition layer.
	KindFindLeader            Kind = "FindLeader"
	KindFindDatanode          Kind = "FindDatanode"
	KindFindRegionRoutes      Kind = "FindRegionRoutes"
	KindInvalidTableRouteData Kind = "InvalidTableRouteData"
	KindFindRegions           Kind = "FindRegions"
	KindConvertScalarValue    Kind = "ConvertScalarValue"

	// Splitter layer.
	KindUnexpectedValuesLength   Kind = "UnexpectedValuesLength"
	KindColumnAlreadyExists      Kind = "ColumnAlreadyExists"
	KindColumnDataType           Kind = "ColumnDataType"
	KindMissingPrimaryKeyColumn  Kind = "MissingPrimaryKeyColumn"

	// Failover layer.
	KindTableRouteNotFound   Kind = "TableRouteNotFound"
	KindUpdateTableRoute     Kind = "UpdateTableRoute"
	KindTableMetadataManager Kind = "TableMetadataManager"
	KindRetryLater           Kind = "RetryLater"

	// Scheduler layer.
	KindInvalidSchedulerState Kind = "InvalidSchedulerState"
	KindInvalidFlumeSender    Kind = "InvalidFlumeSender"
	KindStopScheduler         Kind = "StopScheduler"

	// Worker layer.
	KindRegionExists   Kind = "RegionExists"
	KindRegionNotFound Kind = "RegionNotFound"
	KindInvalidMetadata Kind = "InvalidMetadata"
	KindWorkerStopped  Kind = "WorkerStopped"

	// Cross-cutting.
	KindUnsupportedProcedureVersion Kind = "UnsupportedProcedureVersion"
)

// retryableKinds are kinds whose callers should re-attempt after backoff.
// RetryLater is the generic transient kind produced by the failover runner;
// the others are never retryable per the design's propagation policy table.
var retryableKinds = map[Kind]bool{
	KindRetryLater: true,
}

// Error is the concrete error type used across the control-plane packages.
// It carries a Kind discriminant, a human message, a source chain and a
// capture location (via the wrapped pingcap/errors stack).
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New builds an *Error of the given kind with a formatted message and
// captures the current stack via errors.New.
func New(kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		kind:    kind,
		message: msg,
		cause:   errors.New(msg),
	}
}

// Wrap builds an *Error of the given kind around an existing error,
// preserving its cause chain.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		kind:    kind,
		message: msg,
		cause:   errors.Wrap(cause, msg),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", e.kind, e.message)
}

// Cause returns the wrapped error, for github.com/pingcap/errors-style
// cause-chain walking.
func (e *Error) Cause() error {
	return e.cause
}

// Unwrap supports errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's kind discriminant.
func (e *Error) Kind() Kind {
	return e.kind
}

// Retryable reports whether the procedure runner should re-enter the same
// state after a backoff, rather than aborting. This is an explicit lookup
// table, never a guess from the error message.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return retryableKinds[e.kind]
}

// Retryable reports whether err (of any type) should be retried. Non-*Error
// values are treated as fatal.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// RetryLater builds the transient error the failover runner re-enters the
// current state on.
func RetryLater(reason string, args ...interface{}) *Error {
	return New(KindRetryLater, reason, args...)
}

// ZapError adapts err into a zap.Field the way the teacher's pkg/errs does,
// so call sites can write log.Warn("...", errs.ZapError(err)).
func ZapError(err error) zap.Field {
	return zap.Error(err)
}
