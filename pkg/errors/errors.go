/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the closed set of error kinds surfaced by the
// control plane. Validation and optimization failures are returned to
// callers; everything else is recovered locally and surfaced as events.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrBreakerOpen is returned when a circuit breaker short-circuits a call
// without invoking the wrapped function. It is recoverable locally; callers
// treat it as a tick-level no-op.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// ValidationError rejects a request before any optimization phase runs. It
// names the offending field so the caller can fix the input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validating %q, %s", e.Field, e.Message)
}

func NewValidation(field, format string, a ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, a...)}
}

// IsValidation returns true if the err is a ValidationError, even if it's
// wrapped.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// OptimizationError reports a failure inside phases 2-6 of an optimize
// call. Partial results are never returned alongside it.
type OptimizationError struct {
	Phase     string
	RequestID string
	Err       error
}

func (e *OptimizationError) Error() string {
	return fmt.Sprintf("optimization %s failed in phase %q, %s", e.RequestID, e.Phase, e.Err)
}

func (e *OptimizationError) Unwrap() error {
	return e.Err
}

func NewOptimization(phase, requestID string, err error) *OptimizationError {
	return &OptimizationError{Phase: phase, RequestID: requestID, Err: err}
}

// IsOptimization returns true if the err is an OptimizationError, even if
// it's wrapped.
func IsOptimization(err error) bool {
	if err == nil {
		return false
	}
	var oErr *OptimizationError
	return errors.As(err, &oErr)
}

// TimeoutError reports that an optimize call exceeded its deadline. It
// carries the phase that was executing and the elapsed wall time.
type TimeoutError struct {
	Phase   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("deadline exceeded in phase %q after %s", e.Phase, e.Elapsed)
}

func NewTimeout(phase string, elapsed time.Duration) *TimeoutError {
	return &TimeoutError{Phase: phase, Elapsed: elapsed}
}

// IsTimeout returns true if the err is a TimeoutError, even if it's
// wrapped.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var tErr *TimeoutError
	return errors.As(err, &tErr)
}

// IsBreakerOpen returns true if the err means a breaker short-circuited the
// call, even if it's wrapped.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, ErrBreakerOpen)
}

// ConflictError reports a rejected compare-and-swap on a state record. The
// caller observed a stale state; re-reading and retrying is safe.
type ConflictError struct {
	Resource string
	ID       string
	Expected string
	Actual   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is %q, expected %q", e.Resource, e.ID, e.Actual, e.Expected)
}

func NewConflict(resource, id, expected, actual string) *ConflictError {
	return &ConflictError{Resource: resource, ID: id, Expected: expected, Actual: actual}
}

// IsConflict returns true if the err is a ConflictError, even if it's
// wrapped.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var cErr *ConflictError
	return errors.As(err, &cErr)
}

// IllegalTransitionError reports a state transition that the state machine
// table does not permit, independent of what the current state is.
type IllegalTransitionError struct {
	Resource string
	From     string
	To       string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s may not transition from %q to %q", e.Resource, e.From, e.To)
}

func NewIllegalTransition(resource, from, to string) *IllegalTransitionError {
	return &IllegalTransitionError{Resource: resource, From: from, To: to}
}

// IsIllegalTransition returns true if the err is an IllegalTransitionError,
// even if it's wrapped.
func IsIllegalTransition(err error) bool {
	if err == nil {
		return false
	}
	var iErr *IllegalTransitionError
	return errors.As(err, &iErr)
}
