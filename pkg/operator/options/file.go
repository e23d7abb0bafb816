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

package options

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/sets"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
)

var (
	knownVehicleKinds = sets.New(
		string(v1.VehicleKindMotorcycle), string(v1.VehicleKindCar), string(v1.VehicleKindVan),
		string(v1.VehicleKindTruck), string(v1.VehicleKindMixed))
	knownTraffic = sets.New(
		string(v1.TrafficLight), string(v1.TrafficNormal), string(v1.TrafficMedium), string(v1.TrafficHeavy))
	knownWeather = sets.New(
		string(v1.WeatherSunny), string(v1.WeatherRainy), string(v1.WeatherCloudy),
		string(v1.WeatherSnowy), string(v1.WeatherNormal))
	knownPresets = sets.New(
		string(v1.PresetDefault), string(v1.PresetProximityFocused), string(v1.PresetLoadBalanced),
		string(v1.PresetClusterOptimized), string(v1.PresetRouteContinuation))
)

// File carries the tabular tuning that is too structured for flags: duration
// speed factors per vehicle kind, traffic and weather multipliers, per-name
// breaker overrides, and weight preset overrides. All sections are optional;
// absent values keep their compiled-in defaults.
type File struct {
	SpeedFactors       map[string]float64        `toml:"speed_factors,omitempty"`
	TrafficMultipliers map[string]float64        `toml:"traffic_multipliers,omitempty"`
	WeatherMultipliers map[string]float64        `toml:"weather_multipliers,omitempty"`
	Breakers           map[string]BreakerConfig  `toml:"breaker,omitempty"`
	Presets            map[string]PresetOverride `toml:"presets,omitempty"`
}

// BreakerConfig overrides one named breaker. Durations are in milliseconds
// to match the documented configuration keys.
type BreakerConfig struct {
	FailureThreshold   *int   `toml:"failure_threshold,omitempty"`
	SuccessThreshold   *int   `toml:"success_threshold,omitempty"`
	TimeoutMs          *int64 `toml:"timeout_ms,omitempty"`
	ResetTimeoutMs     *int64 `toml:"reset_timeout_ms,omitempty"`
	MonitoringWindowMs *int64 `toml:"monitoring_window_ms,omitempty"`
}

// PresetOverride replaces individual factor weights of a named preset.
type PresetOverride struct {
	VehicleToPickupDistance    *float64 `toml:"vehicle_to_pickup_distance,omitempty"`
	PickupToDeliveryDistance   *float64 `toml:"pickup_to_delivery_distance,omitempty"`
	DeliveryClusterDensity     *float64 `toml:"delivery_cluster_density,omitempty"`
	VehicleLoadBalance         *float64 `toml:"vehicle_load_balance,omitempty"`
	ExistingRouteCompatibility *float64 `toml:"existing_route_compatibility,omitempty"`
}

// ReadFile decodes a TOML tuning file. Unknown keys are rejected.
func ReadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(raw)
}

// ParseFile decodes TOML tuning bytes in strict mode.
func ParseFile(raw []byte) (*File, error) {
	file := &File{}
	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(file); err != nil {
		return nil, fmt.Errorf("decoding toml, %w", err)
	}
	return file, nil
}

func (f File) Validate() (err error) {
	for kind := range f.SpeedFactors {
		if !knownVehicleKinds.Has(kind) {
			err = multierr.Append(err, fmt.Errorf("speed_factors key %q is not a vehicle kind", kind))
		} else if f.SpeedFactors[kind] <= 0 {
			err = multierr.Append(err, fmt.Errorf("speed_factors.%s must be positive", kind))
		}
	}
	for traffic := range f.TrafficMultipliers {
		if !knownTraffic.Has(traffic) {
			err = multierr.Append(err, fmt.Errorf("traffic_multipliers key %q is not a traffic level", traffic))
		} else if f.TrafficMultipliers[traffic] <= 0 {
			err = multierr.Append(err, fmt.Errorf("traffic_multipliers.%s must be positive", traffic))
		}
	}
	for weather := range f.WeatherMultipliers {
		if !knownWeather.Has(weather) {
			err = multierr.Append(err, fmt.Errorf("weather_multipliers key %q is not a weather condition", weather))
		} else if f.WeatherMultipliers[weather] <= 0 {
			err = multierr.Append(err, fmt.Errorf("weather_multipliers.%s must be positive", weather))
		}
	}
	for name, cfg := range f.Breakers {
		if cfg.FailureThreshold != nil && *cfg.FailureThreshold < 1 {
			err = multierr.Append(err, fmt.Errorf("breaker.%s.failure_threshold must be at least 1", name))
		}
		if cfg.SuccessThreshold != nil && *cfg.SuccessThreshold < 1 {
			err = multierr.Append(err, fmt.Errorf("breaker.%s.success_threshold must be at least 1", name))
		}
		for field, ms := range map[string]*int64{"timeout_ms": cfg.TimeoutMs, "reset_timeout_ms": cfg.ResetTimeoutMs, "monitoring_window_ms": cfg.MonitoringWindowMs} {
			if ms != nil && *ms <= 0 {
				err = multierr.Append(err, fmt.Errorf("breaker.%s.%s must be positive", name, field))
			}
		}
	}
	for name, preset := range f.Presets {
		if !knownPresets.Has(name) {
			err = multierr.Append(err, fmt.Errorf("presets key %q is not a weight preset", name))
		}
		for field, w := range map[string]*float64{
			"vehicle_to_pickup_distance":   preset.VehicleToPickupDistance,
			"pickup_to_delivery_distance":  preset.PickupToDeliveryDistance,
			"delivery_cluster_density":     preset.DeliveryClusterDensity,
			"vehicle_load_balance":         preset.VehicleLoadBalance,
			"existing_route_compatibility": preset.ExistingRouteCompatibility,
		} {
			if w != nil && (*w < 0 || *w > 1) {
				err = multierr.Append(err, fmt.Errorf("presets.%s.%s must be within [0, 1]", name, field))
			}
		}
	}
	return err
}
