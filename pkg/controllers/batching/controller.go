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

// Package batching folds same-pickup pending orders into batches and plans
// each batch through the optimizer as one request. Orders are claimed
// pending→batched before planning and revert to pending whenever the plan
// cannot carry them, so dispatch picks the strays up on its next tick.
package batching

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/breaker"
	"github.com/courierd/courierd/pkg/controllers/engine"
	"github.com/courierd/courierd/pkg/errors"
	"github.com/courierd/courierd/pkg/events"
	"github.com/courierd/courierd/pkg/operator/logging"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/providers/store"
	"github.com/courierd/courierd/pkg/state"
)

// defaultVehicleCapacityKg is assumed for vehicles derived from driver
// records, which carry no capacity of their own.
const defaultVehicleCapacityKg = 100.0

// Controller is the batching engine body.
type Controller struct {
	clk          clock.Clock
	fleet        *state.Fleet
	store        store.Store
	breaker      *breaker.Breaker
	optimizer    *optimization.Coordinator
	recorder     events.Publisher
	freshness    time.Duration
	maxBatchSize int
}

func NewController(clk clock.Clock, fleet *state.Fleet, st store.Store, breakers *breaker.Manager, optimizer *optimization.Coordinator, recorder events.Publisher, locationFreshness time.Duration, maxBatchSize int) *Controller {
	return &Controller{
		clk:          clk,
		fleet:        fleet,
		store:        st,
		breaker:      breakers.Breaker("store"),
		optimizer:    optimizer,
		recorder:     recorder,
		freshness:    locationFreshness,
		maxBatchSize: maxBatchSize,
	}
}

func (c *Controller) Name() string {
	return "batching"
}

// Tick plans every batchable group of pending orders. Groups plan in
// parallel; each plan sees the routes committed before it started, so later
// plans are steered away from vehicles the earlier ones loaded up.
func (c *Controller) Tick(ctx context.Context, concurrency int) engine.Result {
	groups := Groups(c.fleet.Orders.List(v1.OrderStatusPending), c.maxBatchSize)
	if len(groups) == 0 {
		return engine.Result{}
	}
	vehicles := c.vehicles()
	if len(vehicles) == 0 {
		logging.FromContext(ctx).V(1).Info("no vehicles derivable for batching", "groups", len(groups))
		return engine.Result{Items: len(groups)}
	}
	var planned atomic.Int64
	failures := engine.Parallelize(ctx, concurrency, len(groups), func(ctx context.Context, i int) error {
		n, err := c.plan(ctx, groups[i], vehicles)
		planned.Add(int64(n))
		return err
	})
	return engine.Result{Items: len(groups), Assignments: int(planned.Load()), Failures: failures}
}

// plan claims the group, runs one optimization over it, and commits the
// resulting routes. It returns how many orders landed on a route.
func (c *Controller) plan(ctx context.Context, group []*v1.Order, vehicles []v1.Vehicle) (int, error) {
	batchID := uuid.NewString()
	claimed := c.claim(ctx, group, batchID)
	if len(claimed) < 2 {
		c.revert(ctx, claimed)
		return 0, nil
	}

	existing, loads := c.continuity()
	result, err := c.optimizer.Optimize(ctx, c.request(claimed, vehicles),
		optimization.WithExistingRoutes(existing), optimization.WithExistingLoads(loads))
	if err != nil {
		c.revert(ctx, claimed)
		if errors.IsBreakerOpen(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("optimizing batch %q, %w", batchID, err)
	}

	byOrder := lo.KeyBy(claimed, func(order *v1.Order) string { return order.ID })
	for _, left := range result.Unserviceable {
		if _, ok := byOrder[left.ID]; !ok {
			continue
		}
		unserviceableTotal.WithLabelValues(string(left.Reason)).Inc()
		logging.FromContext(ctx).V(1).Info("order not batchable", "order", left.ID, "reason", left.Reason)
		c.revertOne(ctx, left.ID)
	}

	var committed int
	var errs error
	for i := range result.Routes {
		route := result.Routes[i]
		// Route ids are request-scoped; registered routes need global ones.
		route.ID = uuid.NewString()
		members := lo.FilterMap(route.Waypoints, func(w v1.Waypoint, _ int) (*v1.Order, bool) {
			if w.Kind != v1.PointKindDelivery {
				return nil, false
			}
			order, ok := byOrder[w.PointRef]
			return order, ok
		})
		if len(members) == 0 {
			continue
		}
		n, err := c.commit(ctx, batchID, &route, members)
		committed += n
		errs = multierr.Append(errs, err)
	}
	return committed, errs
}

// claim moves the group's orders pending→batched. Losing a member to
// dispatch mid-claim just shrinks the batch.
func (c *Controller) claim(ctx context.Context, group []*v1.Order, batchID string) []*v1.Order {
	var claimed []*v1.Order
	for _, order := range group {
		batched, err := c.fleet.Orders.Transition(order.ID, v1.OrderStatusPending, v1.OrderStatusBatched, state.WithBatch(batchID))
		if err != nil {
			if !errors.IsConflict(err) {
				logging.FromContext(ctx).Error(err, "claiming order for batch", "order", order.ID, "batch", batchID)
			}
			continue
		}
		claimed = append(claimed, batched)
	}
	return claimed
}

// commit registers one planned route, stamps its member orders, and
// persists everything through the store breaker. Failure unwinds the whole
// route: members rejoin the pending pool and the route is dropped.
func (c *Controller) commit(ctx context.Context, batchID string, route *v1.Route, members []*v1.Order) (int, error) {
	if err := c.fleet.Routes.Add(route); err != nil {
		c.revert(ctx, members)
		return 0, fmt.Errorf("registering route for batch %q, %w", batchID, err)
	}
	c.fleet.Routes.MarkReopt(route.ID, route.Vehicle.Start())

	driverID := c.driverFor(route.Vehicle.ID)
	var committed []*v1.Order
	for _, member := range members {
		opts := []state.OrderTransitionOption{state.WithRoute(route.ID)}
		if driverID != "" {
			opts = append(opts, state.WithDriver(driverID))
		}
		assigned, err := c.fleet.Orders.Transition(member.ID, v1.OrderStatusBatched, v1.OrderStatusAssigned, opts...)
		if err != nil {
			if !errors.IsConflict(err) {
				logging.FromContext(ctx).Error(err, "committing batched order", "order", member.ID, "route", route.ID)
			}
			continue
		}
		committed = append(committed, assigned)
	}
	if len(committed) == 0 {
		c.fleet.Routes.Remove(route.ID)
		return 0, nil
	}

	if err := c.persist(ctx, route, committed); err != nil {
		for _, order := range committed {
			if _, err := c.fleet.Orders.Transition(order.ID, v1.OrderStatusAssigned, v1.OrderStatusPending); err != nil && !errors.IsConflict(err) {
				logging.FromContext(ctx).Error(err, "reverting committed order", "order", order.ID)
			}
		}
		c.fleet.Routes.Remove(route.ID)
		return 0, fmt.Errorf("persisting route %q for batch %q, %w", route.ID, batchID, err)
	}
	batchSize.Observe(float64(len(committed)))
	logging.FromContext(ctx).Info("planned batch route",
		"batch", batchID, "route", route.ID, "vehicle", route.Vehicle.ID, "orders", len(committed), "distanceKm", route.TotalDistanceKm)
	return len(committed), nil
}

// persist writes the route and its member orders. A retried create that
// already landed is re-persisted as an update.
func (c *Controller) persist(ctx context.Context, route *v1.Route, orders []*v1.Order) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(func() error {
			if err := c.store.CreateRoute(ctx, route); err != nil {
				if !store.IsConflict(err) {
					return err
				}
				if err := c.store.UpdateRoute(ctx, route); err != nil {
					return err
				}
			}
			for _, order := range orders {
				if err := c.store.UpdateOrder(ctx, order); err != nil {
					return err
				}
			}
			return nil
		},
			retry.Attempts(3),
			retry.Delay(1*time.Second),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
	})
}

func (c *Controller) revert(ctx context.Context, orders []*v1.Order) {
	for _, order := range orders {
		c.revertOne(ctx, order.ID)
	}
}

func (c *Controller) revertOne(ctx context.Context, orderID string) {
	if _, err := c.fleet.Orders.Transition(orderID, v1.OrderStatusBatched, v1.OrderStatusPending); err != nil && !errors.IsConflict(err) {
		logging.FromContext(ctx).Error(err, "reverting batch claim", "order", orderID)
	}
}

// request rekeys each delivery by its order id so route waypoints map
// straight back to orders, and pins the batch to its shared pickup.
func (c *Controller) request(orders []*v1.Order, vehicles []v1.Vehicle) *v1.OptimizationRequest {
	pickup := orders[0].Pickup
	deliveries := lo.Map(orders, func(order *v1.Order, _ int) v1.DeliveryPoint {
		delivery := order.Delivery
		delivery.ID = order.ID
		delivery.PickupHint = pickup.ID
		return delivery
	})
	return &v1.OptimizationRequest{
		ServiceType:    v1.ServiceTypeDelivery,
		PickupPoints:   []v1.PickupPoint{pickup},
		DeliveryPoints: deliveries,
		Fleet:          vehicles,
		Preferences:    &v1.Preferences{Distribution: v1.DistributionBestMatch},
	}
}

// vehicles derives the candidate fleet from drivers passing the dispatch
// guard. Driver records carry no capacity, so a nominal one is assumed.
func (c *Controller) vehicles() []v1.Vehicle {
	now := c.clk.Now()
	seen := sets.New[string]()
	var out []v1.Vehicle
	for _, driver := range c.fleet.Drivers.List() {
		if !state.CanAccept(driver, now, c.freshness) {
			continue
		}
		id := lo.Ternary(driver.VehicleID != "", driver.VehicleID, driver.ID)
		if seen.Has(id) {
			continue
		}
		seen.Insert(id)
		out = append(out, v1.Vehicle{
			ID:         id,
			Kind:       v1.DefaultVehicleKind,
			CapacityKg: defaultVehicleCapacityKg,
			StartLat:   driver.LastLocation.Lat,
			StartLng:   driver.LastLocation.Lng,
			Status:     v1.VehicleStatusAvailable,
		})
	}
	return out
}

// continuity snapshots what every vehicle is already carrying so the
// clusterer's load and route-compatibility factors see mid-tick commits.
func (c *Controller) continuity() (map[string]string, map[string]float64) {
	existing := map[string]string{}
	loads := map[string]float64{}
	for _, route := range c.fleet.Routes.List() {
		if len(route.Waypoints) > 0 && route.Waypoints[0].Kind == v1.PointKindPickup {
			existing[route.Vehicle.ID] = route.Waypoints[0].PointRef
		}
		loads[route.Vehicle.ID] += route.LoadKg
	}
	return existing, loads
}

func (c *Controller) driverFor(vehicleID string) string {
	for _, driver := range c.fleet.Drivers.List() {
		if driver.VehicleID == vehicleID || driver.ID == vehicleID {
			return driver.ID
		}
	}
	return ""
}
