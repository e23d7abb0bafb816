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

// RouteOptions customizes a Route.
type RouteOptions struct {
	ID               string
	Vehicle          v1.Vehicle
	Waypoints        []v1.Waypoint
	TotalDistanceKm  float64
	TotalDurationMin float64
	LoadKg           float64
}

// Route creates a test route with defaults that can be overridden by
// RouteOptions. The default route has one pickup and one delivery waypoint.
func Route(overrides ...RouteOptions) *v1.Route {
	options := RouteOptions{}
	for _, opts := range overrides {
		if err := mergo.Merge(&options, opts, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge route options: %s", err.Error()))
		}
	}
	if options.ID == "" {
		options.ID = strings.ToLower(randomdata.SillyName())
	}
	if options.Vehicle.ID == "" {
		options.Vehicle = Vehicle()
	}
	if options.Waypoints == nil {
		options.Waypoints = []v1.Waypoint{
			{PointRef: "pickup-1", Kind: v1.PointKindPickup, EtaMin: 0},
			{PointRef: "delivery-1", Kind: v1.PointKindDelivery, EtaMin: 12},
		}
	}
	if options.TotalDistanceKm == 0 {
		options.TotalDistanceKm = 4.2
	}
	if options.TotalDurationMin == 0 {
		options.TotalDurationMin = 12
	}
	if options.LoadKg == 0 {
		options.LoadKg = 5
	}
	return &v1.Route{
		ID:               options.ID,
		Vehicle:          options.Vehicle,
		Waypoints:        options.Waypoints,
		TotalDistanceKm:  options.TotalDistanceKm,
		TotalDurationMin: options.TotalDurationMin,
		LoadKg:           options.LoadKg,
	}
}
