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
	"time"
)

// OrderStatus is the lifecycle state of an order. Status moves only through
// compare-and-swap transitions in the order registry.
type OrderStatus string

const (
	// OrderStatusPending orders are waiting for a driver; only the dispatch
	// engine assigns them.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusBatched orders have been claimed by the batching engine and
	// are no longer visible to dispatch.
	OrderStatusBatched   OrderStatus = "batched"
	OrderStatusAssigned  OrderStatus = "assigned"
	OrderStatusInTransit OrderStatus = "in_transit"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed || s == OrderStatusCancelled
}

// IsOpen reports whether the order is in flight and subject to SLA
// escalation.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusAssigned || s == OrderStatusInTransit
}

// Order is a single pickup-to-delivery task tracked by the control plane.
type Order struct {
	ID       string        `json:"id"`
	Pickup   PickupPoint   `json:"pickup"`
	Delivery DeliveryPoint `json:"delivery"`
	Status   OrderStatus   `json:"status"`
	DriverID string        `json:"driverId,omitempty"`
	BatchID  string        `json:"batchId,omitempty"`
	RouteID  string        `json:"routeId,omitempty"`
	// SLADeadline is the instant the delivery must land by; the zero value
	// means the order carries no SLA.
	SLADeadline           time.Time `json:"slaDeadline,omitzero"`
	EstimatedRemainingMin float64   `json:"estimatedRemainingMin,omitempty"`
	Escalated             bool      `json:"escalated,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	AssignedAt            time.Time `json:"assignedAt,omitzero"`
	CompletedAt           time.Time `json:"completedAt,omitzero"`
}
