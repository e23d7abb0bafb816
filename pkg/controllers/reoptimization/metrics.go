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

package reoptimization

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

var (
	reoptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EngineSubsystem,
			Name:      "reoptimizations_total",
			Help:      "Number of route reoptimization evaluations, by outcome.",
		},
		[]string{"outcome"},
	)
	improvementPct = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EngineSubsystem,
			Name:      "reoptimization_improvement_percent",
			Help:      "Distance improvement of committed reoptimizations relative to the running route.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		},
	)
)

func init() {
	metrics.Registry.MustRegister(reoptTotal, improvementPct)
}
