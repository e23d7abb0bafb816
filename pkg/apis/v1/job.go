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

package v1

import (
	"encoding/json"
	"time"
)

// JobKind is the closed set of long-running analytical tasks.
type JobKind string

const (
	JobKindRouteAnalysis JobKind = "route_analysis"
	JobKindFleetPerf     JobKind = "fleet_perf"
	JobKindDemand        JobKind = "demand"
	JobKindSLA           JobKind = "sla"
)

type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job records one long-running analytical task. A terminal job is
// immutable; the registry hands out copies.
type Job struct {
	ID        string         `json:"id"`
	Kind      JobKind        `json:"kind"`
	Params    map[string]any `json:"params,omitempty"`
	Status    JobStatus      `json:"status"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt,omitzero"`
	// Result carries the task's JSON output for completed jobs.
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// IsTerminal reports whether the job has finished, successfully or not.
func (j Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
