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

package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

var (
	// stateGauge encodes the lifecycle position: 0 stopped, 1 running,
	// 2 degraded, 3 stopping, 4 stopped_unclean.
	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EngineSubsystem,
			Name:      "state",
			Help:      "Current lifecycle position per engine: 0 stopped, 1 running, 2 degraded, 3 stopping, 4 stopped_unclean.",
		},
		[]string{"engine"},
	)
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EngineSubsystem,
			Name:      "ticks_total",
			Help:      "Number of completed engine ticks.",
		},
		[]string{"engine"},
	)
	tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EngineSubsystem,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one engine tick.",
			Buckets:   metrics.DurationBuckets(),
		},
		[]string{"engine"},
	)
	assignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EngineSubsystem,
			Name:      "assignments_total",
			Help:      "Number of work items that committed the engine's primary action, per engine.",
		},
		[]string{"engine"},
	)
	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EngineSubsystem,
			Name:      "failures_total",
			Help:      "Number of work items that errored or panicked, per engine.",
		},
		[]string{"engine"},
	)
)

func init() {
	metrics.Registry.MustRegister(stateGauge, ticksTotal, tickDuration, assignmentsTotal, failuresTotal)
}
