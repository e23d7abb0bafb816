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

package breaker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

var (
	// stateGauge encodes the position: 0 closed, 1 half_open, 2 open.
	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.BreakerSubsystem,
			Name:      "state",
			Help:      "Current breaker position per dependency: 0 closed, 1 half_open, 2 open.",
		},
		[]string{"breaker"},
	)
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.BreakerSubsystem,
			Name:      "transitions_total",
			Help:      "Number of breaker state transitions, labeled by dependency and edge.",
		},
		[]string{"breaker", "from", "to"},
	)
)

func init() {
	metrics.Registry.MustRegister(stateGauge, transitionsTotal)
}
