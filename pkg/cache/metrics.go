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

package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

var (
	hitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.CacheSubsystem,
			Name:      "hits_total",
			Help:      "Number of metrics cache reads served from a fresh entry.",
		},
	)
	missesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.CacheSubsystem,
			Name:      "misses_total",
			Help:      "Number of metrics cache reads that found no fresh entry.",
		},
	)
	evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.CacheSubsystem,
			Name:      "evictions_total",
			Help:      "Number of entries evicted by TTL sweeps or explicit deletes.",
		},
	)
	flushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.CacheSubsystem,
			Name:      "flushes_total",
			Help:      "Number of explicit cache flushes.",
		},
	)
)

func init() {
	metrics.Registry.MustRegister(hitsTotal, missesTotal, evictionsTotal, flushesTotal)
}
