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

package optimization_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/optimization"
)

var _ = Describe("Weights", func() {
	It("should ship presets that sum to one", func() {
		for _, preset := range []v1.WeightsPreset{
			v1.PresetDefault,
			v1.PresetProximityFocused,
			v1.PresetLoadBalanced,
			v1.PresetClusterOptimized,
			v1.PresetRouteContinuation,
		} {
			Expect(optimization.PresetWeights(preset).Sum()).To(BeNumerically("~", 1, 1e-9), string(preset))
		}
	})
	It("should resolve unknown presets to the default", func() {
		Expect(optimization.PresetWeights("turbo")).To(Equal(optimization.PresetWeights(v1.PresetDefault)))
	})
	It("should leave a unit weight vector untouched", func() {
		weights := optimization.PresetWeights(v1.PresetProximityFocused)
		Expect(optimization.NormalizeWeights(ctx, weights)).To(Equal(weights))
	})
	It("should scale a non-unit weight vector preserving proportions", func() {
		normalized := optimization.NormalizeWeights(ctx, v1.Weights{
			VehicleToPickupDistance:    0.50,
			PickupToDeliveryDistance:   0.60,
			DeliveryClusterDensity:     0.40,
			VehicleLoadBalance:         0.30,
			ExistingRouteCompatibility: 0.20,
		})
		Expect(normalized.Sum()).To(BeNumerically("~", 1, 1e-9))
		Expect(normalized.VehicleToPickupDistance).To(BeNumerically("~", 0.25, 1e-9))
		Expect(normalized.PickupToDeliveryDistance).To(BeNumerically("~", 0.30, 1e-9))
		Expect(normalized.DeliveryClusterDensity).To(BeNumerically("~", 0.20, 1e-9))
		Expect(normalized.VehicleLoadBalance).To(BeNumerically("~", 0.15, 1e-9))
		Expect(normalized.ExistingRouteCompatibility).To(BeNumerically("~", 0.10, 1e-9))
	})
	It("should fall back to the default preset for an all-zero vector", func() {
		Expect(optimization.NormalizeWeights(ctx, v1.Weights{})).To(Equal(optimization.PresetWeights(v1.PresetDefault)))
	})
})
