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

// Waypoint is one stop on a route. EtaMin is the coarse cumulative duration
// in minutes from the first waypoint; no richer ETA model is provided.
type Waypoint struct {
	PointRef   string      `json:"pointRef"`
	Kind       PointKind   `json:"kind"`
	EtaMin     float64     `json:"etaMin"`
	TimeWindow *TimeWindow `json:"timeWindow,omitempty"`
}

// ClusteringMetadata summarizes how the clusterer shaped a route.
type ClusteringMetadata struct {
	// AvgScore is the mean weighted penalty of the clusters on this route
	// (lower is better).
	AvgScore float64 `json:"avgScore"`
	// ClusterDensity is the mean distance in kilometres of the route's
	// deliveries from their cluster centroids.
	ClusterDensity float64 `json:"clusterDensity"`
}

// Route is an ordered waypoint sequence for one vehicle. The first waypoint
// is always a pickup and the leg distances sum to TotalDistanceKm.
type Route struct {
	ID                 string             `json:"id"`
	Vehicle            Vehicle            `json:"vehicle"`
	Waypoints          []Waypoint         `json:"waypoints"`
	TotalDistanceKm    float64            `json:"totalDistanceKm"`
	TotalDurationMin   float64            `json:"totalDurationMin"`
	LoadKg             float64            `json:"loadKg"`
	ClusteringMetadata ClusteringMetadata `json:"clusteringMetadata"`
}

// Deliveries returns the number of delivery waypoints on the route.
func (r Route) Deliveries() int {
	n := 0
	for _, w := range r.Waypoints {
		if w.Kind == PointKindDelivery {
			n++
		}
	}
	return n
}

// UnserviceableReason is the closed set of reasons a delivery can be left
// out of every route.
type UnserviceableReason string

const (
	ReasonNoFeasibleVehicle  UnserviceableReason = "no_feasible_vehicle"
	ReasonCapacityExceeded   UnserviceableReason = "capacity_exceeded"
	ReasonTimeWindowConflict UnserviceableReason = "time_window_conflict"
	ReasonRestrictedZone     UnserviceableReason = "restricted_zone"
)

// UnserviceableDelivery is a delivery no vehicle can carry under the
// request's constraints.
type UnserviceableDelivery struct {
	DeliveryPoint
	Reason UnserviceableReason `json:"reason"`
}

// Summary is the aggregate block of an optimization result.
type Summary struct {
	RouteCount              int     `json:"routeCount"`
	DeliveryCount           int     `json:"deliveryCount"`
	TotalDistanceKm         float64 `json:"totalDistanceKm"`
	TotalDurationMin        float64 `json:"totalDurationMin"`
	VehiclesUsed            int     `json:"vehiclesUsed"`
	AvgDeliveriesPerVehicle float64 `json:"avgDeliveriesPerVehicle"`
	AvgLoadPerVehicle       float64 `json:"avgLoadPerVehicle"`
}

// OptimizationResult is the optimize output envelope. Every delivery of the
// request appears exactly once across Routes and Unserviceable.
type OptimizationResult struct {
	RequestID     string                  `json:"requestId"`
	Routes        []Route                 `json:"routes"`
	Summary       Summary                 `json:"summary"`
	Unserviceable []UnserviceableDelivery `json:"unserviceable"`
	// Timings maps phase name to elapsed milliseconds.
	Timings map[string]int64 `json:"timings"`
}
