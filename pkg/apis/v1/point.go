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

// TimeWindow is the wall-clock service window shape. Parsing and overlap
// semantics live with the geo primitives.
type TimeWindow = geo.TimeWindow

type PointKind string

const (
	PointKindPickup   PointKind = "pickup"
	PointKindDelivery PointKind = "delivery"
)

// LocationType classifies a pickup location. Unknown values normalize to
// DefaultLocationType.
type LocationType string

const (
	LocationTypeOutlet     LocationType = "outlet"
	LocationTypeRestaurant LocationType = "restaurant"
	LocationTypeWarehouse  LocationType = "warehouse"
	LocationTypeStore      LocationType = "store"
)

// Point is a named WGS84 location carried in an optimization request. IDs
// are opaque and must be unique within a single request.
type Point struct {
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func (p Point) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: p.Lat, Lng: p.Lng}
}

// PickupPoint is a point goods depart from.
type PickupPoint struct {
	Point
	LocationType LocationType `json:"locationType,omitempty"`
	WorkingHours *TimeWindow  `json:"workingHours,omitempty"`
}

// DeliveryPoint is a point goods are dropped at. Priority is 1..10; nil
// means unset and defaults to DefaultPriority. PickupHint optionally names a
// pickup point in the same request; when absent or dangling the clusterer
// falls back to the nearest pickup.
type DeliveryPoint struct {
	Point
	WeightKg   float64     `json:"weightKg"`
	Priority   *int        `json:"priority,omitempty"`
	TimeWindow *TimeWindow `json:"timeWindow,omitempty"`
	PickupHint string      `json:"pickupHint,omitempty"`
}

// PriorityValue returns the effective priority, applying the default when
// the field was not set.
func (d DeliveryPoint) PriorityValue() int {
	if d.Priority == nil {
		return DefaultPriority
	}
	return *d.Priority
}

// Band returns the priority band of the delivery.
func (d DeliveryPoint) Band() PriorityBand {
	return PriorityBandOf(d.PriorityValue())
}

// PriorityBand groups the 1..10 priority scale into the three bands the
// sequencer and dispatch engine act on.
type PriorityBand string

const (
	PriorityLow    PriorityBand = "LOW"
	PriorityMedium PriorityBand = "MEDIUM"
	PriorityHigh   PriorityBand = "HIGH"
)

// PriorityBandOf maps 1..3 to LOW, 4..7 to MEDIUM and 8..10 to HIGH.
func PriorityBandOf(priority int) PriorityBand {
	switch {
	case priority >= 8:
		return PriorityHigh
	case priority <= 3:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// DistanceFactor is the sequencing tilt: higher priority shortens perceived
// distance during nearest-neighbour construction.
func (b PriorityBand) DistanceFactor() float64 {
	switch b {
	case PriorityHigh:
		return 0.7
	case PriorityLow:
		return 1.3
	default:
		return 1.0
	}
}
