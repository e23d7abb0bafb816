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

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/errors"
	"github.com/courierd/courierd/pkg/events"
)

// legalOrderTransitions holds the permitted edges of the order lifecycle.
// assigned→pending exists only for dispatch compensation: an assignment the
// store refused is unwound and the order rejoins the pending pool.
var legalOrderTransitions = map[v1.OrderStatus]sets.Set[v1.OrderStatus]{
	v1.OrderStatusPending:   sets.New(v1.OrderStatusBatched, v1.OrderStatusAssigned, v1.OrderStatusCancelled),
	v1.OrderStatusBatched:   sets.New(v1.OrderStatusPending, v1.OrderStatusAssigned, v1.OrderStatusCancelled),
	v1.OrderStatusAssigned:  sets.New(v1.OrderStatusPending, v1.OrderStatusInTransit, v1.OrderStatusFailed, v1.OrderStatusCancelled),
	v1.OrderStatusInTransit: sets.New(v1.OrderStatusCompleted, v1.OrderStatusFailed),
}

type orderTransitionConfig struct {
	driverID  string
	routeID   string
	batchID   string
	escalated bool
}

// OrderTransitionOption adjusts the order record atomically with a status
// transition.
type OrderTransitionOption func(*orderTransitionConfig)

// WithDriver stamps the driver an order is assigned to.
func WithDriver(driverID string) OrderTransitionOption {
	return func(c *orderTransitionConfig) { c.driverID = driverID }
}

// WithRoute stamps the route an order travels on.
func WithRoute(routeID string) OrderTransitionOption {
	return func(c *orderTransitionConfig) { c.routeID = routeID }
}

// WithBatch stamps the batch an order was claimed by.
func WithBatch(batchID string) OrderTransitionOption {
	return func(c *orderTransitionConfig) { c.batchID = batchID }
}

// WithEscalation marks an order failed by SLA escalation.
func WithEscalation() OrderTransitionOption {
	return func(c *orderTransitionConfig) { c.escalated = true }
}

// OrderRegistry is the arena of order records. Mutation goes only through
// Transition; readers receive copies.
type OrderRegistry struct {
	mu       sync.RWMutex
	clk      clock.Clock
	recorder events.Publisher
	orders   map[string]*v1.Order
}

func NewOrderRegistry(clk clock.Clock, recorder events.Publisher) *OrderRegistry {
	return &OrderRegistry{
		clk:      clk,
		recorder: recorder,
		orders:   map[string]*v1.Order{},
	}
}

// Add registers a new order. Orders join pending unless the record names a
// status, with CreatedAt stamped when absent. Intake publishes state-changed
// with an empty from, which is what nudges the dispatch engine off its
// interval.
func (r *OrderRegistry) Add(order *v1.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("order %q is already registered", order.ID)
	}
	stored := order.DeepCopy()
	if stored.Status == "" {
		stored.Status = v1.OrderStatusPending
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.clk.Now()
	}
	r.orders[order.ID] = stored
	ordersGauge.WithLabelValues(string(stored.Status)).Inc()
	r.recorder.Publish(Changed("order", order.ID, "", string(stored.Status)))
	return nil
}

// Get returns a copy of the order record.
func (r *OrderRegistry) Get(id string) (*v1.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %q is not registered", id)
	}
	return order.DeepCopy(), nil
}

// List returns copies of orders in the given statuses, or all orders when no
// statuses are passed, sorted by id.
func (r *OrderRegistry) List(statuses ...v1.OrderStatus) []*v1.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := sets.New(statuses...)
	var out []*v1.Order
	for _, order := range r.orders {
		if wanted.Len() == 0 || wanted.Has(order.Status) {
			out = append(out, order.DeepCopy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Transition is the single compare-and-swap gate for order status. It
// rejects a stale from status with a conflict, rejects edges outside the
// lifecycle, and stamps the relevant timestamps.
func (r *OrderRegistry) Transition(id string, from, to v1.OrderStatus, opts ...OrderTransitionOption) (*v1.Order, error) {
	cfg := &orderTransitionConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %q is not registered", id)
	}
	if order.Status != from {
		return nil, errors.NewConflict("order", id, string(from), string(order.Status))
	}
	if !legalOrderTransitions[from].Has(to) {
		return nil, errors.NewIllegalTransition("order", string(from), string(to))
	}

	ordersGauge.WithLabelValues(string(from)).Dec()
	ordersGauge.WithLabelValues(string(to)).Inc()
	transitionsTotal.WithLabelValues("order", string(from), string(to)).Inc()

	order.Status = to
	if cfg.driverID != "" {
		order.DriverID = cfg.driverID
	}
	if cfg.routeID != "" {
		order.RouteID = cfg.routeID
	}
	if cfg.batchID != "" {
		order.BatchID = cfg.batchID
	}
	if cfg.escalated {
		order.Escalated = true
	}
	switch to {
	case v1.OrderStatusAssigned:
		order.AssignedAt = r.clk.Now()
	case v1.OrderStatusCompleted:
		order.CompletedAt = r.clk.Now()
	case v1.OrderStatusPending:
		// A reverted claim carries no assignment state.
		order.DriverID = ""
		order.RouteID = ""
		order.BatchID = ""
	}
	r.recorder.Publish(Changed("order", id, string(from), string(to)))
	return order.DeepCopy(), nil
}
