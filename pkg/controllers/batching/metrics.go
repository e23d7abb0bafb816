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

package batching

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

var (
	batchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EngineSubsystem,
			Name:      "batch_size",
			Help:      "Number of orders committed per planned batch route.",
			Buckets:   prometheus.LinearBuckets(2, 1, 9),
		},
	)
	unserviceableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.EngineSubsystem,
			Name:      "batch_unserviceable_total",
			Help:      "Number of batched orders no vehicle could carry, per reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	metrics.Registry.MustRegister(batchSize, unserviceableTotal)
}
