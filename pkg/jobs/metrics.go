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

package jobs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

var (
	runningGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.JobsSubsystem,
			Name:      "running",
			Help:      "Number of jobs currently in flight, labeled by kind.",
		},
		[]string{"kind"},
	)
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.JobsSubsystem,
			Name:      "finished_total",
			Help:      "Number of jobs that reached a terminal status, labeled by kind and status.",
		},
		[]string{"kind", "status"},
	)
	durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.JobsSubsystem,
			Name:      "duration_seconds",
			Help:      "Wall time from submission to terminal status, labeled by kind.",
			Buckets:   metrics.DurationBuckets(),
		},
		[]string{"kind"},
	)
)

func init() {
	metrics.Registry.MustRegister(runningGauge, jobsTotal, durationSeconds)
}
