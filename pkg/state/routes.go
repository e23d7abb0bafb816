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

package state

import (
	"fmt"
	"sort"
	"sync"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
)

// RouteRegistry tracks active routes, the insert-order inbox consumed by the
// reoptimization engine at tick boundaries, and the vehicle position each
// route was last reoptimized from.
type RouteRegistry struct {
	mu         sync.RWMutex
	routes     map[string]*v1.Route
	inserts    map[string][]v1.DeliveryPoint
	reoptMarks map[string]geo.Coordinate
}

func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{
		routes:     map[string]*v1.Route{},
		inserts:    map[string][]v1.DeliveryPoint{},
		reoptMarks: map[string]geo.Coordinate{},
	}
}

// Add registers an active route.
func (r *RouteRegistry) Add(route *v1.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[route.ID]; ok {
		return fmt.Errorf("route %q is already registered", route.ID)
	}
	r.routes[route.ID] = route.DeepCopy()
	activeRoutesGauge.Set(float64(len(r.routes)))
	return nil
}

// Get returns a copy of the route.
func (r *RouteRegistry) Get(id string) (*v1.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[id]
	if !ok {
		return nil, fmt.Errorf("route %q is not registered", id)
	}
	return route.DeepCopy(), nil
}

// List returns copies of all active routes sorted by id.
func (r *RouteRegistry) List() []*v1.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*v1.Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update replaces a registered route, typically after a committed
// reoptimization.
func (r *RouteRegistry) Update(route *v1.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[route.ID]; !ok {
		return fmt.Errorf("route %q is not registered", route.ID)
	}
	r.routes[route.ID] = route.DeepCopy()
	return nil
}

// Remove retires a completed route along with its inbox and reopt mark.
func (r *RouteRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, id)
	delete(r.inserts, id)
	delete(r.reoptMarks, id)
	activeRoutesGauge.Set(float64(len(r.routes)))
}

// QueueInsert parks a delivery for insertion into a running route. The
// delivery's ID names the pending order it belongs to; the reoptimization
// engine drains the inbox at its next tick boundary and claims those orders.
func (r *RouteRegistry) QueueInsert(routeID string, delivery v1.DeliveryPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[routeID]; !ok {
		return fmt.Errorf("route %q is not registered", routeID)
	}
	r.inserts[routeID] = append(r.inserts[routeID], *delivery.DeepCopy())
	pendingInsertsGauge.Inc()
	return nil
}

// TakeInserts drains the insert inbox for a route.
func (r *RouteRegistry) TakeInserts(routeID string) []v1.DeliveryPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	queued := r.inserts[routeID]
	delete(r.inserts, routeID)
	pendingInsertsGauge.Sub(float64(len(queued)))
	return queued
}

// MarkReopt records the vehicle position a route was reoptimized from.
func (r *RouteRegistry) MarkReopt(routeID string, at geo.Coordinate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reoptMarks[routeID] = at
}

// ReoptMark returns the position of the last reoptimization, if any.
func (r *RouteRegistry) ReoptMark(routeID string) (geo.Coordinate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mark, ok := r.reoptMarks[routeID]
	return mark, ok
}
