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

// Package metrics holds the shared prometheus registry and naming
// conventions for all courierd subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace prefixes every metric emitted by courierd.
	Namespace = "courierd"

	EngineSubsystem       = "engine"
	OptimizationSubsystem = "optimization"
	BreakerSubsystem      = "breaker"
	EventsSubsystem       = "events"
	CacheSubsystem        = "cache"
	FleetSubsystem        = "fleet"
	JobsSubsystem         = "jobs"
)

// Registry is the single registry all subsystems register against. The
// operator exposes it on /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// DurationBuckets returns a []float64 of default threshold values for
// duration histograms. Units are in seconds.
func DurationBuckets() []float64 {
	return []float64{
		0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5,
		0.75, 1.0, 1.5, 2, 2.5, 3, 4, 5, 6, 8, 10, 15, 20, 30, 45, 60,
	}
}
