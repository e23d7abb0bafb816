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

package events

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

var (
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EventsSubsystem,
			Name:      "published_total",
			Help:      "Number of events published to the hub, labeled by event type.",
		},
		[]string{"type"},
	)
	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EventsSubsystem,
			Name:      "dropped_total",
			Help:      "Number of events dropped before delivery, labeled by event type and drop reason.",
		},
		[]string{"type", "reason"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EventsSubsystem,
			Name:      "queue_depth",
			Help:      "Current number of queued events per subscriber.",
		},
		[]string{"subscriber"},
	)
)

func init() {
	metrics.Registry.MustRegister(publishedTotal, droppedTotal, queueDepth)
}
