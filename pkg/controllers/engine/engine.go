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

// Package engine owns the loop shared by every automation engine: the
// ticker goroutine, the lifecycle state machine, per-tick concurrency, and
// failure-rate-driven degradation. Concrete engines only implement one pass
// over their work.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/courierd/courierd/pkg/events"
	"github.com/courierd/courierd/pkg/operator/logging"
)

// State is the lifecycle position of an engine.
type State string

const (
	StateStopped        State = "stopped"
	StateRunning        State = "running"
	StateDegraded       State = "degraded"
	StateStopping       State = "stopping"
	StateStoppedUnclean State = "stopped_unclean"
)

const (
	// degradedFailureRate is the per-tick failure share at or above which a
	// tick with work counts against the engine's health.
	degradedFailureRate = 0.9
	// degradedAfterTicks consecutive unhealthy ticks move the engine to
	// degraded and halve its concurrency.
	degradedAfterTicks = 2
	// healthyAfterTicks consecutive healthy ticks restore a degraded engine.
	healthyAfterTicks = 10
)

// Result is what one tick reports back to the loop. Items counts the work
// examined, Assignments the items that committed the engine's primary
// action, Failures the items that errored or panicked. An idle tick (zero
// items) carries no health signal against the engine.
type Result struct {
	Items       int
	Assignments int
	Failures    int
}

// Ticker is one engine body. Tick runs a single pass with at most
// concurrency work items in flight and must honour ctx cancellation.
type Ticker interface {
	Name() string
	Tick(ctx context.Context, concurrency int) Result
}

// Stats accumulate over one run, reset on Start.
type Stats struct {
	Ticks         int64     `json:"ticks"`
	Assignments   int64     `json:"assignments"`
	Failures      int64     `json:"failures"`
	DegradedSince time.Time `json:"degradedSince,omitzero"`
}

// Status is a point-in-time snapshot of an engine.
type Status struct {
	Name       string    `json:"name"`
	State      State     `json:"state"`
	Stats      Stats     `json:"stats"`
	LastTickAt time.Time `json:"lastTickAt,omitzero"`
}

// Config tunes one engine loop.
type Config struct {
	Interval        time.Duration
	Concurrency     int
	GracefulTimeout time.Duration
}

// Engine drives a Ticker on an interval. All lifecycle moves go through
// Start and Stop; Status and Trigger are safe from any goroutine.
type Engine struct {
	ticker   Ticker
	clk      clock.WithTicker
	recorder events.Publisher
	config   Config

	mu         sync.Mutex
	state      State
	stats      Stats
	lastTickAt time.Time
	badTicks   int
	goodTicks  int
	cancel     context.CancelFunc
	done       chan struct{}
	trigger    chan struct{}
}

func NewEngine(ticker Ticker, clk clock.WithTicker, recorder events.Publisher, config Config) *Engine {
	e := &Engine{
		ticker:   ticker,
		clk:      clk,
		recorder: recorder,
		config:   config,
		state:    StateStopped,
		trigger:  make(chan struct{}, 1),
	}
	stateGauge.WithLabelValues(ticker.Name()).Set(stateValue(StateStopped))
	return e
}

func (e *Engine) Name() string {
	return e.ticker.Name()
}

// Start spins up the loop goroutine. Only a stopped engine may start; a
// second Start is an error, not a restart.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopped && e.state != StateStoppedUnclean {
		return fmt.Errorf("engine %q is %s, not stopped", e.ticker.Name(), e.state)
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.stats = Stats{}
	e.badTicks, e.goodTicks = 0, 0
	e.setState(StateRunning)
	go e.run(ctx, e.done)
	logging.FromContext(ctx).Info("started engine", "engine", e.ticker.Name(), "interval", e.config.Interval)
	return nil
}

// Stop cancels the loop and waits up to the graceful timeout for the
// in-flight tick to land. A tick that outlives the timeout is abandoned and
// the engine reports stopped_unclean.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning && e.state != StateDegraded {
		e.mu.Unlock()
		return fmt.Errorf("engine %q is %s, not running", e.ticker.Name(), e.state)
	}
	e.setState(StateStopping)
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	timeout := e.clk.NewTimer(e.config.GracefulTimeout)
	defer timeout.Stop()
	select {
	case <-done:
		e.mu.Lock()
		defer e.mu.Unlock()
		e.setState(StateStopped)
		return nil
	case <-timeout.C():
		e.mu.Lock()
		defer e.mu.Unlock()
		e.setState(StateStoppedUnclean)
		e.recorder.Publish(StoppedUnclean(e.ticker.Name(), e.config.GracefulTimeout))
		return fmt.Errorf("engine %q did not stop within %s", e.ticker.Name(), e.config.GracefulTimeout)
	}
}

// Trigger requests an immediate out-of-band tick. It never blocks; a
// trigger while one is already queued coalesces.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Status snapshots the engine without touching the loop.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Name:       e.ticker.Name(),
		State:      e.state,
		Stats:      e.stats,
		LastTickAt: e.lastTickAt,
	}
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := e.clk.NewTicker(e.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		case <-e.trigger:
		}
		e.tick(ctx)
	}
}

func (e *Engine) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	e.mu.Lock()
	if e.state != StateRunning && e.state != StateDegraded {
		e.mu.Unlock()
		return
	}
	concurrency := e.config.Concurrency
	if e.state == StateDegraded {
		// Degraded engines run at half throttle until health returns.
		if concurrency = concurrency / 2; concurrency < 1 {
			concurrency = 1
		}
	}
	e.mu.Unlock()

	start := e.clk.Now()
	result := e.safeTick(ctx, concurrency)
	tickDuration.WithLabelValues(e.ticker.Name()).Observe(e.clk.Since(start).Seconds())
	ticksTotal.WithLabelValues(e.ticker.Name()).Inc()
	assignmentsTotal.WithLabelValues(e.ticker.Name()).Add(float64(result.Assignments))
	failuresTotal.WithLabelValues(e.ticker.Name()).Add(float64(result.Failures))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Ticks++
	e.stats.Assignments += int64(result.Assignments)
	e.stats.Failures += int64(result.Failures)
	e.lastTickAt = e.clk.Now()
	e.observeHealth(ctx, result)
}

// safeTick shields the loop from a panicking tick body. Item-level panics
// are already absorbed by Parallelize; this catches bugs outside it.
func (e *Engine) safeTick(ctx context.Context, concurrency int) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error(fmt.Errorf("%v", r), "tick panicked", "engine", e.ticker.Name())
			result.Items++
			result.Failures++
		}
	}()
	return e.ticker.Tick(ctx, concurrency)
}

// observeHealth updates the consecutive-tick counters and moves the engine
// between running and degraded. Callers hold e.mu.
func (e *Engine) observeHealth(ctx context.Context, result Result) {
	failureRate := 0.0
	if result.Items > 0 {
		failureRate = float64(result.Failures) / float64(result.Items)
	}
	if result.Items > 0 && failureRate >= degradedFailureRate {
		e.badTicks++
		e.goodTicks = 0
	} else {
		e.goodTicks++
		e.badTicks = 0
	}
	switch e.state {
	case StateRunning:
		if e.badTicks >= degradedAfterTicks {
			e.setState(StateDegraded)
			e.stats.DegradedSince = e.clk.Now()
			e.recorder.Publish(Degraded(e.ticker.Name(), failureRate))
			logging.FromContext(ctx).Info("engine degraded, halving concurrency", "engine", e.ticker.Name(), "failureRate", failureRate)
		}
	case StateDegraded:
		if e.goodTicks >= healthyAfterTicks {
			e.setState(StateRunning)
			e.stats.DegradedSince = time.Time{}
			e.recorder.Publish(Healthy(e.ticker.Name()))
			logging.FromContext(ctx).Info("engine healthy again", "engine", e.ticker.Name())
		}
	}
}

// setState commits a lifecycle move. Callers hold e.mu.
func (e *Engine) setState(to State) {
	e.state = to
	stateGauge.WithLabelValues(e.ticker.Name()).Set(stateValue(to))
}

func stateValue(s State) float64 {
	switch s {
	case StateRunning:
		return 1
	case StateDegraded:
		return 2
	case StateStopping:
		return 3
	case StateStoppedUnclean:
		return 4
	default:
		return 0
	}
}
