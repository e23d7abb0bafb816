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

package test

import (
	"fmt"
	"strings"

	"github.com/Pallinder/go-randomdata"
	"github.com/imdario/mergo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
)

// VehicleOptions customizes a Vehicle.
type VehicleOptions struct {
	ID         string
	Kind       v1.VehicleKind
	CapacityKg float64
	StartLat   float64
	StartLng   float64
	Status     v1.VehicleStatus
}

// Vehicle creates a test vehicle with defaults that can be overridden by
// VehicleOptions. Overrides are applied in order, with a last write wins
// semantic.
func Vehicle(overrides ...VehicleOptions) v1.Vehicle {
	options := VehicleOptions{}
	for _, opts := range overrides {
		if err := mergo.Merge(&options, opts, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge vehicle options: %s", err.Error()))
		}
	}
	if options.ID == "" {
		options.ID = strings.ToLower(randomdata.SillyName())
	}
	if options.Kind == "" {
		options.Kind = v1.VehicleKindCar
	}
	if options.CapacityKg == 0 {
		options.CapacityKg = 100
	}
	if options.StartLat == 0 && options.StartLng == 0 {
		options.StartLat, options.StartLng = 52.5200, 13.4050
	}
	if options.Status == "" {
		options.Status = v1.VehicleStatusAvailable
	}
	return v1.Vehicle{
		ID:         options.ID,
		Kind:       options.Kind,
		CapacityKg: options.CapacityKg,
		StartLat:   options.StartLat,
		StartLng:   options.StartLng,
		Status:     options.Status,
	}
}
