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

package optimization

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

var (
	optimizeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.OptimizationSubsystem,
			Name:      "requests_total",
			Help:      "Number of optimization requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)
	phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.OptimizationSubsystem,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each optimization phase.",
			Buckets:   metrics.DurationBuckets(),
		},
		[]string{"phase"},
	)
	unserviceableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.OptimizationSubsystem,
			Name:      "unserviceable_total",
			Help:      "Number of deliveries excluded from routing, labeled by reason.",
		},
		[]string{"reason"},
	)
	rebalanceMovesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.OptimizationSubsystem,
			Name:      "rebalance_moves_total",
			Help:      "Number of deliveries moved between vehicles by load balancing.",
		},
	)
)

func init() {
	metrics.Registry.MustRegister(optimizeTotal, phaseDuration, unserviceableTotal, rebalanceMovesTotal)
}
