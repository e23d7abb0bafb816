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

import (
	"strings"
)

// Documented defaults. Empty or unknown enum values normalize to these
// silently; structural violations are validation errors instead.
const (
	DefaultServiceType   = ServiceTypeDelivery
	DefaultLocationType  = LocationTypeOutlet
	DefaultVehicleKind   = VehicleKindTruck
	DefaultVehicleStatus = VehicleStatusAvailable
	DefaultWeather       = WeatherNormal
	DefaultTraffic       = TrafficNormal
	DefaultPreset        = PresetDefault
	DefaultDistribution  = DistributionBestMatch
)

// DefaultPriority is the numeric middle of the MEDIUM band, applied when a
// delivery carries no priority.
const DefaultPriority = 5

// NormalizeServiceType trims and lower-cases s, returning the default for
// anything outside the vocabulary.
func NormalizeServiceType(s string) ServiceType {
	switch t := ServiceType(canonLower(s)); t {
	case ServiceTypeDelivery, ServiceTypeExpress, ServiceTypeScheduled:
		return t
	default:
		return DefaultServiceType
	}
}

// NormalizeLocationType trims and lower-cases s, returning the default for
// anything outside the vocabulary.
func NormalizeLocationType(s string) LocationType {
	switch t := LocationType(canonLower(s)); t {
	case LocationTypeOutlet, LocationTypeRestaurant, LocationTypeWarehouse, LocationTypeStore:
		return t
	default:
		return DefaultLocationType
	}
}

// NormalizeVehicleKind trims and upper-cases s, returning the default for
// anything outside the vocabulary.
func NormalizeVehicleKind(s string) VehicleKind {
	switch k := VehicleKind(canonUpper(s)); k {
	case VehicleKindCar, VehicleKindVan, VehicleKindTruck, VehicleKindMotorcycle, VehicleKindMixed:
		return k
	default:
		return DefaultVehicleKind
	}
}

// NormalizeVehicleStatus trims and upper-cases s, returning the default for
// anything outside the vocabulary.
func NormalizeVehicleStatus(s string) VehicleStatus {
	switch st := VehicleStatus(canonUpper(s)); st {
	case VehicleStatusAvailable, VehicleStatusUnavailable, VehicleStatusDelivering, VehicleStatusReturning:
		return st
	default:
		return DefaultVehicleStatus
	}
}

// NormalizeWeather trims and lower-cases s, returning the default for
// anything outside the vocabulary.
func NormalizeWeather(s string) Weather {
	switch w := Weather(canonLower(s)); w {
	case WeatherSunny, WeatherRainy, WeatherCloudy, WeatherSnowy, WeatherNormal:
		return w
	default:
		return DefaultWeather
	}
}

// NormalizeTraffic trims and lower-cases s, returning the default for
// anything outside the vocabulary.
func NormalizeTraffic(s string) Traffic {
	switch t := Traffic(canonLower(s)); t {
	case TrafficLight, TrafficMedium, TrafficHeavy, TrafficNormal:
		return t
	default:
		return DefaultTraffic
	}
}

// NormalizePreset trims and lower-cases s, returning the default preset for
// anything outside the vocabulary.
func NormalizePreset(s string) WeightsPreset {
	switch p := WeightsPreset(canonLower(s)); p {
	case PresetDefault, PresetProximityFocused, PresetLoadBalanced, PresetClusterOptimized, PresetRouteContinuation:
		return p
	default:
		return DefaultPreset
	}
}

// NormalizeDistribution trims and lower-cases s, returning the default
// strategy for anything outside the vocabulary.
func NormalizeDistribution(s string) DistributionStrategy {
	switch d := DistributionStrategy(canonLower(s)); d {
	case DistributionBestMatch, DistributionBalanced:
		return d
	default:
		return DefaultDistribution
	}
}

func canonLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func canonUpper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
