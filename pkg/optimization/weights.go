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
	"context"
	"math"

	"github.com/courierd/courierd/pkg/operator/logging"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
)

// presets are the named clustering weight vectors. Each sums to one.
var presets = map[v1.WeightsPreset]v1.Weights{
	v1.PresetDefault: {
		VehicleToPickupDistance:    0.25,
		PickupToDeliveryDistance:   0.30,
		DeliveryClusterDensity:     0.20,
		VehicleLoadBalance:         0.15,
		ExistingRouteCompatibility: 0.10,
	},
	v1.PresetProximityFocused: {
		VehicleToPickupDistance:    0.40,
		PickupToDeliveryDistance:   0.35,
		DeliveryClusterDensity:     0.10,
		VehicleLoadBalance:         0.10,
		ExistingRouteCompatibility: 0.05,
	},
	v1.PresetLoadBalanced: {
		VehicleToPickupDistance:    0.15,
		PickupToDeliveryDistance:   0.20,
		DeliveryClusterDensity:     0.15,
		VehicleLoadBalance:         0.40,
		ExistingRouteCompatibility: 0.10,
	},
	v1.PresetClusterOptimized: {
		VehicleToPickupDistance:    0.15,
		PickupToDeliveryDistance:   0.25,
		DeliveryClusterDensity:     0.40,
		VehicleLoadBalance:         0.10,
		ExistingRouteCompatibility: 0.10,
	},
	v1.PresetRouteContinuation: {
		VehicleToPickupDistance:    0.15,
		PickupToDeliveryDistance:   0.20,
		DeliveryClusterDensity:     0.10,
		VehicleLoadBalance:         0.15,
		ExistingRouteCompatibility: 0.40,
	},
}

// PresetWeights returns the weight vector of a named preset. Unknown names
// resolve to the default preset.
func PresetWeights(preset v1.WeightsPreset) v1.Weights {
	if w, ok := presets[preset]; ok {
		return w
	}
	return presets[v1.PresetDefault]
}

// NormalizeWeights scales a weight vector so it sums to one, logging a
// warning when the input did not. A degenerate all-zero vector falls back to
// the default preset.
func NormalizeWeights(ctx context.Context, weights v1.Weights) v1.Weights {
	sum := weights.Sum()
	if sum <= 0 {
		logging.FromContext(ctx).Info("ignoring degenerate clustering weights", "weights", weights)
		return presets[v1.PresetDefault]
	}
	if math.Abs(sum-1) < 1e-9 {
		return weights
	}
	logging.FromContext(ctx).Info("normalizing clustering weights", "sum", sum)
	return v1.Weights{
		VehicleToPickupDistance:    weights.VehicleToPickupDistance / sum,
		PickupToDeliveryDistance:   weights.PickupToDeliveryDistance / sum,
		DeliveryClusterDensity:     weights.DeliveryClusterDensity / sum,
		VehicleLoadBalance:         weights.VehicleLoadBalance / sum,
		ExistingRouteCompatibility: weights.ExistingRouteCompatibility / sum,
	}
}
