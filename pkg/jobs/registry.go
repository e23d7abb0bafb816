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

// Package jobs runs long-running analytical tasks and keeps a bounded
// in-memory history of their outcomes. Jobs are fire-and-forget: callers get
// an ID back immediately and poll the registry for the terminal record.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"k8s.io/utils/clock"

	"github.com/courierd/courierd/pkg/operator/logging"
	"github.com/courierd/courierd/pkg/utils/ringbuffer"
)

// Kind names one analytical task family.
type Kind string

const (
	KindRouteAnalysis Kind = "route_analysis"
	KindFleetPerf     Kind = "fleet_perf"
	KindDemand        Kind = "demand"
	KindSLA           Kind = "sla"
)

// Kinds lists every known job kind.
func Kinds() []Kind {
	return []Kind{KindRouteAnalysis, KindFleetPerf, KindDemand, KindSLA}
}

// Status is a job's lifecycle position. Running is the only non-terminal
// status; terminal records never change again.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	// DefaultRunningLimit caps concurrently running jobs per kind.
	DefaultRunningLimit = 1
	// DefaultHistory bounds the terminal records kept for inspection;
	// the oldest record falls off when a newer one lands.
	DefaultHistory = 50
)

// ErrSaturated rejects a submission while its kind is at the running limit.
var ErrSaturated = errors.New("job kind is at its running limit")

// Job is one analytical task. The registry only ever hands out copies, so a
// returned record is a stable snapshot.
type Job struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Params    map[string]any  `json:"params,omitempty"`
	Status    Status          `json:"status"`
	StartedAt time.Time       `json:"startedAt"`
	EndedAt   time.Time       `json:"endedAt,omitzero"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (j *Job) copy() *Job {
	out := *j
	out.Params = maps.Clone(j.Params)
	out.Result = slices.Clone(j.Result)
	return &out
}

// Fn computes a job's result. The returned value is marshalled into the
// terminal record; a nil value leaves the record without a result body.
type Fn func(ctx context.Context) (any, error)

// Registry runs jobs and keeps their bounded history. It is the only writer
// of job records.
type Registry struct {
	clk   clock.Clock
	limit int

	mu       sync.Mutex
	running  map[string]*Job
	byKind   map[Kind]int
	terminal *ringbuffer.RingBuffer[*Job]
}

func NewRegistry(clk clock.Clock, runningLimit, history int) *Registry {
	if runningLimit < 1 {
		runningLimit = DefaultRunningLimit
	}
	if history < 1 {
		history = DefaultHistory
	}
	return &Registry{
		clk:      clk,
		limit:    runningLimit,
		running:  map[string]*Job{},
		byKind:   map[Kind]int{},
		terminal: ringbuffer.New[*Job](history),
	}
}

// Submit starts fn under a new job record and returns a snapshot of it. The
// job runs on its own goroutine; honouring ctx cancellation is fn's to do. A
// panic inside fn fails the job without taking the process down.
func (r *Registry) Submit(ctx context.Context, kind Kind, params map[string]any, fn Fn) (*Job, error) {
	if !lo.Contains(Kinds(), kind) {
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
	r.mu.Lock()
	if r.byKind[kind] >= r.limit {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %d %s job(s) running", ErrSaturated, r.limit, kind)
	}
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Params:    maps.Clone(params),
		Status:    StatusRunning,
		StartedAt: r.clk.Now(),
	}
	r.running[job.ID] = job
	r.byKind[kind]++
	r.mu.Unlock()

	runningGauge.WithLabelValues(string(kind)).Inc()
	logging.FromContext(ctx).Info("started job", "job", job.ID, "kind", kind)
	go r.run(ctx, job.ID, fn)
	return job.copy(), nil
}

// Get returns a copy of the job record, running or terminal.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.running[id]; ok {
		return job.copy(), nil
	}
	for _, job := range r.terminal.Items() {
		if job.ID == id {
			return job.copy(), nil
		}
	}
	return nil, fmt.Errorf("job %q not found", id)
}

// List returns running jobs first, oldest submission first, then terminal
// jobs newest first, optionally filtered by kind.
func (r *Registry) List(kinds ...Kind) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	match := func(job *Job) bool {
		return len(kinds) == 0 || lo.Contains(kinds, job.Kind)
	}
	running := lo.Filter(lo.Values(r.running), func(job *Job, _ int) bool { return match(job) })
	sort.Slice(running, func(i, j int) bool {
		if !running[i].StartedAt.Equal(running[j].StartedAt) {
			return running[i].StartedAt.Before(running[j].StartedAt)
		}
		return running[i].ID < running[j].ID
	})
	terminal := lo.Filter(r.terminal.Items(), func(job *Job, _ int) bool { return match(job) })
	slices.Reverse(terminal)

	out := make([]*Job, 0, len(running)+len(terminal))
	for _, job := range append(running, terminal...) {
		out = append(out, job.copy())
	}
	return out
}

// Running reports how many jobs of kind are currently in flight.
func (r *Registry) Running(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKind[kind]
}

func (r *Registry) run(ctx context.Context, id string, fn Fn) {
	result, err := func() (result any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("job panicked: %v", rec)
			}
		}()
		return fn(ctx)
	}()
	r.finish(ctx, id, result, err)
}

func (r *Registry) finish(ctx context.Context, id string, result any, err error) {
	var encoded json.RawMessage
	if err == nil && result != nil {
		if encoded, err = json.Marshal(result); err != nil {
			err = fmt.Errorf("encoding job result, %w", err)
		}
	}

	r.mu.Lock()
	job, ok := r.running[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.running, id)
	r.byKind[job.Kind]--
	job.EndedAt = r.clk.Now()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
		job.Result = encoded
	}
	r.terminal.Add(job)
	r.mu.Unlock()

	runningGauge.WithLabelValues(string(job.Kind)).Dec()
	jobsTotal.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	durationSeconds.WithLabelValues(string(job.Kind)).Observe(job.EndedAt.Sub(job.StartedAt).Seconds())
	if err != nil {
		logging.FromContext(ctx).Error(err, "job failed", "job", job.ID, "kind", job.Kind)
		return
	}
	logging.FromContext(ctx).Info("job completed", "job", job.ID, "kind", job.Kind,
		"duration", job.EndedAt.Sub(job.StartedAt))
}
