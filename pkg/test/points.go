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

// PickupOptions customizes a PickupPoint.
type PickupOptions struct {
	ID           string
	Name         string
	Lat          float64
	Lng          float64
	LocationType v1.LocationType
	WorkingHours *v1.TimeWindow
}

// Pickup creates a test pickup point with defaults that can be overridden
// by PickupOptions. Unset coordinates land in central Berlin.
func Pickup(overrides ...PickupOptions) v1.PickupPoint {
	options := PickupOptions{}
	for _, opts := range overrides {
		if err := mergo.Merge(&options, opts, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge pickup options: %s", err.Error()))
		}
	}
	if options.ID == "" {
		options.ID = strings.ToLower(randomdata.SillyName())
	}
	if options.Lat == 0 && options.Lng == 0 {
		options.Lat, options.Lng = 52.5200, 13.4050
	}
	return v1.PickupPoint{
		Point: v1.Point{
			ID:   options.ID,
			Name: options.Name,
			Lat:  options.Lat,
			Lng:  options.Lng,
		},
		LocationType: options.LocationType,
		WorkingHours: options.WorkingHours,
	}
}

// DeliveryOptions customizes a DeliveryPoint.
type DeliveryOptions struct {
	ID         string
	Name       string
	Lat        float64
	Lng        float64
	WeightKg   float64
	Priority   *int
	TimeWindow *v1.TimeWindow
	PickupHint string
}

// Delivery creates a test delivery point with defaults that can be
// overridden by DeliveryOptions. Unset coordinates land a couple of
// kilometres east of the default pickup.
func Delivery(overrides ...DeliveryOptions) v1.DeliveryPoint {
	options := DeliveryOptions{}
	for _, opts := range overrides {
		if err := mergo.Merge(&options, opts, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge delivery options: %s", err.Error()))
		}
	}
	if options.ID == "" {
		options.ID = strings.ToLower(randomdata.SillyName())
	}
	if options.Lat == 0 && options.Lng == 0 {
		options.Lat, options.Lng = 52.5200, 13.4350
	}
	if options.WeightKg == 0 {
		options.WeightKg = 5
	}
	return v1.DeliveryPoint{
		Point: v1.Point{
			ID:   options.ID,
			Name: options.Name,
			Lat:  options.Lat,
			Lng:  options.Lng,
		},
		WeightKg:   options.WeightKg,
		Priority:   options.Priority,
		TimeWindow: options.TimeWindow,
		PickupHint: options.PickupHint,
	}
}
