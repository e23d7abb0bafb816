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

package expectations

import (
	"math"

	. "github.com/onsi/ginkgo/v2" //nolint:revive,stylecheck
	. "github.com/onsi/gomega"    //nolint:revive,stylecheck
	"github.com/samber/lo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
)

// ExpectCoverage expects every delivery of the request to appear exactly
// once across the result's routes and unserviceable list.
func ExpectCoverage(request *v1.OptimizationRequest, result *v1.OptimizationResult) {
	GinkgoHelper()
	seen := map[string]int{}
	for _, route := range result.Routes {
		for _, waypoint := range route.Waypoints {
			if waypoint.Kind == v1.PointKindDelivery {
				seen[waypoint.PointRef]++
			}
		}
	}
	for _, unserviceable := range result.Unserviceable {
		seen[unserviceable.ID]++
	}
	for _, delivery := range request.DeliveryPoints {
		Expect(seen).To(HaveKeyWithValue(delivery.ID, 1), "delivery %q should be routed or unserviceable exactly once", delivery.ID)
	}
	Expect(seen).To(HaveLen(len(request.DeliveryPoints)))
}

// ExpectCapacityRespected expects no route to carry more than its vehicle's
// capacity.
func ExpectCapacityRespected(result *v1.OptimizationResult) {
	GinkgoHelper()
	for _, route := range result.Routes {
		Expect(route.LoadKg).To(BeNumerically("<=", route.Vehicle.CapacityKg),
			"route %q should not exceed vehicle %q capacity", route.ID, route.Vehicle.ID)
	}
}

// ExpectBalanced expects pairwise delivery counts across routes to stay
// within the load-balance slack of one plus thirty percent of the mean.
func ExpectBalanced(result *v1.OptimizationResult) {
	GinkgoHelper()
	if len(result.Routes) < 2 {
		return
	}
	counts := lo.Map(result.Routes, func(route v1.Route, _ int) int { return route.Deliveries() })
	mean := float64(lo.Sum(counts)) / float64(len(counts))
	slack := 1 + int(math.Ceil(0.3*mean))
	for i := range counts {
		for j := i + 1; j < len(counts); j++ {
			diff := counts[i] - counts[j]
			if diff < 0 {
				diff = -diff
			}
			Expect(diff).To(BeNumerically("<=", slack),
				"routes %q and %q should differ by at most %d deliveries", result.Routes[i].ID, result.Routes[j].ID, slack)
		}
	}
}

// ExpectRoutesStartWithPickup expects every route to open with a pickup
// waypoint.
func ExpectRoutesStartWithPickup(result *v1.OptimizationResult) {
	GinkgoHelper()
	for _, route := range result.Routes {
		Expect(route.Waypoints).ToNot(BeEmpty())
		Expect(route.Waypoints[0].Kind).To(Equal(v1.PointKindPickup),
			"route %q should start at a pickup", route.ID)
	}
}
