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

// Package state holds the in-memory registries for drivers, orders, and
// routes. All status moves go through compare-and-swap transition functions
// so concurrent engines can race for the same record safely: the loser of a
// race gets a conflict error instead of silently clobbering the winner.
package state

import (
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/events"
)

// Fleet bundles the three registries the engines share.
type Fleet struct {
	Drivers *DriverRegistry
	Orders  *OrderRegistry
	Routes  *RouteRegistry
}

func NewFleet(clk clock.Clock, recorder events.Publisher) *Fleet {
	return &Fleet{
		Drivers: NewDriverRegistry(clk, recorder),
		Orders:  NewOrderRegistry(clk, recorder),
		Routes:  NewRouteRegistry(),
	}
}

// Snapshot is a point-in-time copy of the fleet used by planning code.
// Mutating a snapshot never affects the registries.
type Snapshot struct {
	Drivers []*v1.Driver
	Orders  []*v1.Order
	Routes  []*v1.Route
}

// Snapshot copies the current fleet. The registries are locked one at a
// time, so the snapshot is consistent per collection, not across them.
func (f *Fleet) Snapshot() Snapshot {
	return Snapshot{
		Drivers: f.Drivers.List(),
		Orders:  f.Orders.List(),
		Routes:  f.Routes.List(),
	}
}
