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

package state

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.FleetSubsystem,
			Name:      "transitions_total",
			Help:      "Number of committed registry transitions, labeled by record kind and edge.",
		},
		[]string{"kind", "from", "to"},
	)
	driversGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.FleetSubsystem,
			Name:      "drivers",
			Help:      "Number of registered drivers by state.",
		},
		[]string{"state"},
	)
	ordersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.FleetSubsystem,
			Name:      "orders",
			Help:      "Number of registered orders by status.",
		},
		[]string{"status"},
	)
	activeRoutesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.FleetSubsystem,
			Name:      "active_routes",
			Help:      "Number of routes currently being driven.",
		},
	)
	pendingInsertsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.FleetSubsystem,
			Name:      "pending_inserts",
			Help:      "Number of queued insert-order messages awaiting the reoptimization engine.",
		},
	)
)

func init() {
	metrics.Registry.MustRegister(transitionsTotal, driversGauge, ordersGauge, activeRoutesGauge, pendingInsertsGauge)
}
