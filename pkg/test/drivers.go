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
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/imdario/mergo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
)

// DriverOptions customizes a Driver.
type DriverOptions struct {
	ID                    string
	Name                  string
	VehicleID             string
	Active                bool
	Rating                float64
	State                 v1.DriverState
	StateSince            time.Time
	ActiveDeliveryID      string
	ConsecutiveDeliveries int
	CompletedToday        int
	TargetDeliveries      int
	HoursWorkedToday      float64
	MaxWorkingHours       float64
	BreakThreshold        int
	LastLocation          geo.Coordinate
	LastLocationUpdate    time.Time
	Base                  geo.Coordinate
}

// Driver creates a test driver with defaults that can be overridden by
// DriverOptions. Overrides are applied in order, with a last write wins
// semantic.
func Driver(overrides ...DriverOptions) *v1.Driver {
	options := DriverOptions{}
	for _, opts := range overrides {
		if err := mergo.Merge(&options, opts, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge driver options: %s", err.Error()))
		}
	}
	if options.ID == "" {
		options.ID = strings.ToLower(randomdata.SillyName())
	}
	if options.Name == "" {
		options.Name = randomdata.FullName(randomdata.RandomGender)
	}
	if options.Rating == 0 {
		options.Rating = 4.5
	}
	if options.State == "" {
		options.State = v1.DriverStateOffline
	}
	if options.Base == (geo.Coordinate{}) {
		options.Base = geo.Coordinate{Lat: 52.5200, Lng: 13.4050}
	}
	return &v1.Driver{
		ID:                    options.ID,
		Name:                  options.Name,
		VehicleID:             options.VehicleID,
		Active:                options.Active,
		Rating:                options.Rating,
		State:                 options.State,
		StateSince:            options.StateSince,
		ActiveDeliveryID:      options.ActiveDeliveryID,
		ConsecutiveDeliveries: options.ConsecutiveDeliveries,
		CompletedToday:        options.CompletedToday,
		TargetDeliveries:      options.TargetDeliveries,
		HoursWorkedToday:      options.HoursWorkedToday,
		MaxWorkingHours:       options.MaxWorkingHours,
		BreakThreshold:        options.BreakThreshold,
		LastLocation:          options.LastLocation,
		LastLocationUpdate:    options.LastLocationUpdate,
		Base:                  options.Base,
	}
}

// AvailableDriver creates an on-shift driver that passes the dispatch guard
// at the given instant.
func AvailableDriver(now time.Time, options ...DriverOptions) *v1.Driver {
	return Driver(append(options, DriverOptions{
		Active:             true,
		State:              v1.DriverStateAvailable,
		StateSince:         now,
		LastLocationUpdate: now,
	})...)
}
