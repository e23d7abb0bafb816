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

// Package breaker wraps outbound dependency calls in three-state circuit
// breakers so a sick dependency fails fast instead of stalling engine ticks.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/courierd/courierd/pkg/errors"
	"github.com/courierd/courierd/pkg/events"
)

// State is the breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Settings tune one breaker. Zero fields take the documented defaults.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// closed breaker.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open probe
	// successes that closes the breaker.
	SuccessThreshold int
	// Timeout bounds a single wrapped call.
	Timeout time.Duration
	// ResetTimeout is how long an open breaker waits before admitting a
	// half-open probe.
	ResetTimeout time.Duration
	// MonitoringWindow is the sliding span over which failureRate is
	// computed for health reporting.
	MonitoringWindow time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = 2
	}
	if s.Timeout == 0 {
		s.Timeout = 60 * time.Second
	}
	if s.ResetTimeout == 0 {
		s.ResetTimeout = 30 * time.Second
	}
	if s.MonitoringWindow == 0 {
		s.MonitoringWindow = 60 * time.Second
	}
	return s
}

// Breaker guards one named dependency.
type Breaker struct {
	name     string
	settings Settings
	clk      clock.Clock
	recorder events.Publisher

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	nextAttemptAt time.Time
	probing       bool
	window        *window
}

func New(name string, settings Settings, clk clock.Clock, recorder events.Publisher) *Breaker {
	settings = settings.withDefaults()
	b := &Breaker{
		name:     name,
		settings: settings,
		clk:      clk,
		recorder: recorder,
		state:    StateClosed,
		window:   newWindow(settings.MonitoringWindow),
	}
	stateGauge.WithLabelValues(name).Set(stateValue(StateClosed))
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn under the breaker's admission control and call timeout.
// Short-circuited calls return ErrBreakerOpen without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := b.call(ctx, fn)
	b.afterCall(err == nil)
	return err
}

// ExecuteWithFallback is Execute, except fallback runs whenever the breaker
// short-circuits or the call itself fails.
func (b *Breaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(context.Context, error) error) error {
	err := b.Execute(ctx, fn)
	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}
	return err
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsHealthy reports whether the breaker is closed with an in-window failure
// rate under one half.
func (b *Breaker) IsHealthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateClosed && b.window.failureRate(b.clk.Now()) < 0.5
}

// FailureRate returns the in-window share of failed calls.
func (b *Breaker) FailureRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window.failureRate(b.clk.Now())
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.clk.Now().Before(b.nextAttemptAt) {
			return errors.ErrBreakerOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	default: // StateHalfOpen
		if b.probing {
			return errors.ErrBreakerOpen
		}
		b.probing = true
		return nil
	}
}

// call races fn against the call timeout and the caller's context. fn runs
// in its own goroutine; a panic inside it is converted to an error so that a
// misbehaving dependency cannot take down the process.
func (b *Breaker) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("recovered panic calling %s, %v", b.name, r)
			}
		}()
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-b.clk.After(b.settings.Timeout):
		return errors.NewTimeout(b.name, b.settings.Timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()
	b.window.observe(now, success)
	if success {
		b.onSuccess()
	} else {
		b.onFailure(now)
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.probing = false
		b.successCount++
		if b.successCount >= b.settings.SuccessThreshold {
			b.failureCount = 0
			b.successCount = 0
			b.transition(StateClosed)
			b.recorder.Publish(Recovered(b.name))
		}
	}
}

func (b *Breaker) onFailure(now time.Time) {
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.settings.FailureThreshold {
			b.open(now)
		}
	case StateHalfOpen:
		b.probing = false
		b.successCount = 0
		b.open(now)
	}
}

func (b *Breaker) open(now time.Time) {
	b.nextAttemptAt = now.Add(b.settings.ResetTimeout)
	b.transition(StateOpen)
	b.recorder.Publish(Opened(b.name, b.failureCount, b.window.failureRate(now)))
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	transitionsTotal.WithLabelValues(b.name, string(b.state), string(to)).Inc()
	stateGauge.WithLabelValues(b.name).Set(stateValue(to))
	b.state = to
}

func stateValue(s State) float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	default:
		return 2
	}
}
