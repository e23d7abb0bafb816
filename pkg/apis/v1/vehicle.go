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
	"github.com/courierd/courierd/pkg/geo"
)

// VehicleKind is the canonical (upper-case) vehicle class. Inputs are
// accepted case-insensitively; unknown values normalize to
// DefaultVehicleKind.
type VehicleKind string

const (
	VehicleKindCar        VehicleKind = "CAR"
	VehicleKindVan        VehicleKind = "VAN"
	VehicleKindTruck      VehicleKind = "TRUCK"
	VehicleKindMotorcycle VehicleKind = "MOTORCYCLE"
	VehicleKindMixed      VehicleKind = "MIXED"
)

// VehicleStatus is the canonical (upper-case) availability of a vehicle
// within a fleet description.
type VehicleStatus string

const (
	VehicleStatusAvailable   VehicleStatus = "AVAILABLE"
	VehicleStatusUnavailable VehicleStatus = "UNAVAILABLE"
	VehicleStatusDelivering  VehicleStatus = "DELIVERING"
	VehicleStatusReturning   VehicleStatus = "RETURNING"
)

// Vehicle describes one member of the fleet submitted with an optimization
// request. IDs are opaque and must be unique within a fleet.
type Vehicle struct {
	ID         string        `json:"id"`
	Kind       VehicleKind   `json:"kind,omitempty"`
	CapacityKg float64       `json:"capacityKg"`
	StartLat   float64       `json:"startLat"`
	StartLng   float64       `json:"startLng"`
	Status     VehicleStatus `json:"status,omitempty"`
}

func (v Vehicle) Start() geo.Coordinate {
	return geo.Coordinate{Lat: v.StartLat, Lng: v.StartLng}
}

// Assignable reports whether the vehicle may be given new work. Delivering
// and unavailable vehicles are never clustering candidates.
func (v Vehicle) Assignable() bool {
	return v.Status == VehicleStatusAvailable || v.Status == VehicleStatusReturning
}
