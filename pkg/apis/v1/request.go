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

package v1

// ServiceType classifies a request. Unknown values normalize to
// DefaultServiceType.
type ServiceType string

const (
	ServiceTypeDelivery  ServiceType = "delivery"
	ServiceTypeExpress   ServiceType = "express"
	ServiceTypeScheduled ServiceType = "scheduled"
)

// Weather is the ambient weather context used for duration estimates.
type Weather string

const (
	WeatherSunny  Weather = "sunny"
	WeatherRainy  Weather = "rainy"
	WeatherCloudy Weather = "cloudy"
	WeatherSnowy  Weather = "snowy"
	WeatherNormal Weather = "normal"
)

// Traffic is the ambient traffic context used for duration estimates.
type Traffic string

const (
	TrafficLight  Traffic = "light"
	TrafficMedium Traffic = "medium"
	TrafficHeavy  Traffic = "heavy"
	TrafficNormal Traffic = "normal"
)

// DistributionStrategy selects how a pickup's deliveries spread across the
// fleet.
type DistributionStrategy string

const (
	// DistributionBestMatch sends all of a pickup's deliveries to the
	// best-scoring vehicle, spilling to the next candidate only on capacity.
	DistributionBestMatch DistributionStrategy = "best_match"
	// DistributionBalanced round-robins deliveries across the top-3 vehicles
	// by score, preserving capacity constraints.
	DistributionBalanced DistributionStrategy = "balanced"
)

// WeightsPreset names a predefined clustering weight vector.
type WeightsPreset string

const (
	PresetDefault           WeightsPreset = "default"
	PresetProximityFocused  WeightsPreset = "proximity_focused"
	PresetLoadBalanced      WeightsPreset = "load_balanced"
	PresetClusterOptimized  WeightsPreset = "cluster_optimized"
	PresetRouteContinuation WeightsPreset = "route_continuation"
)

// Weights are the five clustering factor weights. They are combined
// linearly over factor penalties; vectors that do not sum to one are
// normalized with a warning.
type Weights struct {
	VehicleToPickupDistance    float64 `json:"vehicleToPickupDistance"`
	PickupToDeliveryDistance   float64 `json:"pickupToDeliveryDistance"`
	DeliveryClusterDensity     float64 `json:"deliveryClusterDensity"`
	VehicleLoadBalance         float64 `json:"vehicleLoadBalance"`
	ExistingRouteCompatibility float64 `json:"existingRouteCompatibility"`
}

func (w Weights) Sum() float64 {
	return w.VehicleToPickupDistance + w.PickupToDeliveryDistance + w.DeliveryClusterDensity +
		w.VehicleLoadBalance + w.ExistingRouteCompatibility
}

// Preferences tune one optimization call. Explicit weights take precedence
// over the preset.
type Preferences struct {
	Weights      *Weights             `json:"weights,omitempty"`
	Preset       WeightsPreset        `json:"preset,omitempty"`
	Distribution DistributionStrategy `json:"distribution,omitempty"`
}

// RequestContext carries the ambient conditions of a request.
type RequestContext struct {
	Weather Weather `json:"weather,omitempty"`
	Traffic Traffic `json:"traffic,omitempty"`
}

// OptimizationRequest is the canonical optimize input.
type OptimizationRequest struct {
	ServiceType    ServiceType     `json:"serviceType,omitempty"`
	PickupPoints   []PickupPoint   `json:"pickupPoints"`
	DeliveryPoints []DeliveryPoint `json:"deliveryPoints"`
	Fleet          []Vehicle       `json:"fleet"`
	BusinessRules  *BusinessRules  `json:"businessRules,omitempty"`
	Preferences    *Preferences    `json:"preferences,omitempty"`
	Context        *RequestContext `json:"context,omitempty"`
}

// EffectiveWeather returns the request weather, defaulted.
func (r *OptimizationRequest) EffectiveWeather() Weather {
	if r.Context == nil || r.Context.Weather == "" {
		return DefaultWeather
	}
	return r.Context.Weather
}

// EffectiveTraffic returns the request traffic, defaulted.
func (r *OptimizationRequest) EffectiveTraffic() Traffic {
	if r.Context == nil || r.Context.Traffic == "" {
		return DefaultTraffic
	}
	return r.Context.Traffic
}
