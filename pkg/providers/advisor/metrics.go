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

package advisor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courierd/courierd/pkg/metrics"
)

const (
	advisorSubsystem = "advisor"

	outcomeApplied     = "applied"
	outcomeRejected    = "rejected"
	outcomeUnreachable = "unreachable"
)

var refreshesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: advisorSubsystem,
		Name:      "refreshes_total",
		Help:      "Number of advisor refresh attempts that went out on the wire, labeled by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	metrics.Registry.MustRegister(refreshesTotal)
}
