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

// Package reoptimization re-sequences active routes as the world drifts
// from the plan. A route is re-sequenced from the driver's live position
// when the driver has moved past the movement threshold since the last
// attempt or when the route's insert inbox has orders waiting. Inserted
// orders always commit; a movement-only re-sequence commits only when it
// beats the current tail by the improvement threshold.
package reoptimization

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/breaker"
	"github.com/courierd/courierd/pkg/controllers/engine"
	"github.com/courierd/courierd/pkg/errors"
	"github.com/courierd/courierd/pkg/geo"
	"github.com/courierd/courierd/pkg/operator/logging"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/providers/store"
	"github.com/courierd/courierd/pkg/state"
)

const (
	outcomeCommitted = "committed"
	outcomeDiscarded = "discarded"
)

// Controller is the route-reoptimization engine body.
type Controller struct {
	clk                clock.Clock
	fleet              *state.Fleet
	store              store.Store
	breaker            *breaker.Breaker
	durations          optimization.DurationModel
	freshness          time.Duration
	movementKm         float64
	improvementPercent float64
}

func NewController(clk clock.Clock, fleet *state.Fleet, st store.Store, breakers *breaker.Manager, locationFreshness time.Duration, movementKm, improvementPercent float64) *Controller {
	return &Controller{
		clk:                clk,
		fleet:              fleet,
		store:              st,
		breaker:            breakers.Breaker("store"),
		durations:          optimization.DefaultDurationModel(),
		freshness:          locationFreshness,
		movementKm:         movementKm,
		improvementPercent: improvementPercent,
	}
}

func (c *Controller) Name() string {
	return "reoptimization"
}

func (c *Controller) Tick(ctx context.Context, concurrency int) engine.Result {
	routes := c.fleet.Routes.List()
	if len(routes) == 0 {
		return engine.Result{}
	}
	var committed atomic.Int64
	failures := engine.Parallelize(ctx, concurrency, len(routes), func(ctx context.Context, i int) error {
		ok, err := c.reoptimize(ctx, routes[i])
		if ok {
			committed.Add(1)
		}
		return err
	})
	return engine.Result{Items: len(routes), Assignments: int(committed.Load()), Failures: failures}
}

// reoptimize evaluates one route and commits the better tail. It reports
// whether the route changed.
func (c *Controller) reoptimize(ctx context.Context, route *v1.Route) (bool, error) {
	driverID := c.driverFor(route.Vehicle.ID)
	position, ok := c.position(route, driverID)
	if !ok {
		return false, nil
	}

	inserted := c.claimInserts(ctx, route, driverID)
	mark, marked := c.fleet.Routes.ReoptMark(route.ID)
	if !marked {
		mark = route.Vehicle.Start()
	}
	if len(inserted) == 0 && geo.Distance(position, mark) <= c.movementKm {
		return false, nil
	}

	remaining := c.remaining(route)
	if len(remaining) == 0 {
		c.fleet.Routes.MarkReopt(route.ID, position)
		return false, nil
	}

	current := pathDistance(position, c.currentOrder(route, remaining))
	proposed, proposedKm := optimization.SequenceFrom(position, remaining)
	improvement := 0.0
	if current > 0 {
		improvement = (current - proposedKm) / current * 100
	}

	if len(inserted) == 0 && improvement <= c.improvementPercent {
		reoptTotal.WithLabelValues(outcomeDiscarded).Inc()
		c.fleet.Routes.MarkReopt(route.ID, position)
		logging.FromContext(ctx).V(1).Info("reoptimization discarded",
			"route", route.ID, "improvementPercent", improvement)
		return false, nil
	}

	updated := c.rebuild(route, position, proposed, proposedKm)
	if err := c.persist(ctx, updated); err != nil {
		c.revertInserts(ctx, inserted)
		if errors.IsBreakerOpen(err) {
			return false, nil
		}
		return false, fmt.Errorf("persisting reoptimized route %q, %w", route.ID, err)
	}
	if err := c.fleet.Routes.Update(updated); err != nil {
		return false, fmt.Errorf("updating route %q, %w", route.ID, err)
	}
	c.fleet.Routes.MarkReopt(route.ID, position)
	reoptTotal.WithLabelValues(outcomeCommitted).Inc()
	improvementPct.Observe(improvement)
	logging.FromContext(ctx).Info("reoptimized route",
		"route", route.ID, "inserted", len(inserted), "improvementPercent", improvement, "distanceKm", proposedKm)
	return true, nil
}

// claimInserts drains the route's insert inbox and claims each named order
// onto the route. Inserts that no longer name a pending order are dropped.
func (c *Controller) claimInserts(ctx context.Context, route *v1.Route, driverID string) []*v1.Order {
	var claimed []*v1.Order
	for _, delivery := range c.fleet.Routes.TakeInserts(route.ID) {
		opts := []state.OrderTransitionOption{state.WithRoute(route.ID)}
		if driverID != "" {
			opts = append(opts, state.WithDriver(driverID))
		}
		order, err := c.fleet.Orders.Transition(delivery.ID, v1.OrderStatusPending, v1.OrderStatusAssigned, opts...)
		if err != nil {
			logging.FromContext(ctx).V(1).Info("dropping route insert",
				"route", route.ID, "order", delivery.ID, "reason", err.Error())
			continue
		}
		claimed = append(claimed, order)
	}
	return claimed
}

func (c *Controller) revertInserts(ctx context.Context, inserted []*v1.Order) {
	for _, order := range inserted {
		if _, err := c.fleet.Orders.Transition(order.ID, v1.OrderStatusAssigned, v1.OrderStatusPending); err != nil && !errors.IsConflict(err) {
			logging.FromContext(ctx).Error(err, "reverting route insert", "order", order.ID)
		}
	}
}

// remaining maps the route's open orders to delivery points keyed by order
// id. Claimed inserts are assigned to the route by now, so they are included.
func (c *Controller) remaining(route *v1.Route) []v1.DeliveryPoint {
	var out []v1.DeliveryPoint
	for _, order := range c.fleet.Orders.List(v1.OrderStatusAssigned, v1.OrderStatusInTransit) {
		if order.RouteID != route.ID {
			continue
		}
		delivery := order.Delivery
		delivery.ID = order.ID
		out = append(out, delivery)
	}
	return out
}

// currentOrder returns remaining in the order the active route visits them,
// with inserts (absent from the old waypoints) appended last. This is the
// baseline the proposed tail must beat.
func (c *Controller) currentOrder(route *v1.Route, remaining []v1.DeliveryPoint) []v1.DeliveryPoint {
	byID := map[string]v1.DeliveryPoint{}
	for _, delivery := range remaining {
		byID[delivery.ID] = delivery
	}
	ordered := make([]v1.DeliveryPoint, 0, len(remaining))
	for _, waypoint := range route.Waypoints {
		if waypoint.Kind != v1.PointKindDelivery {
			continue
		}
		if delivery, ok := byID[waypoint.PointRef]; ok {
			ordered = append(ordered, delivery)
			delete(byID, waypoint.PointRef)
		}
	}
	for _, delivery := range remaining {
		if _, ok := byID[delivery.ID]; ok {
			ordered = append(ordered, delivery)
		}
	}
	return ordered
}

// rebuild keeps the route's pickup waypoint and replaces the delivery tail.
// ETAs re-base to the driver's current position.
func (c *Controller) rebuild(route *v1.Route, position geo.Coordinate, proposed []v1.DeliveryPoint, distanceKm float64) *v1.Route {
	factor := c.durations.Factor(route.Vehicle.Kind, v1.DefaultTraffic, v1.DefaultWeather)
	updated := route.DeepCopy()
	waypoints := make([]v1.Waypoint, 0, len(proposed)+1)
	if len(route.Waypoints) > 0 && route.Waypoints[0].Kind == v1.PointKindPickup {
		waypoints = append(waypoints, route.Waypoints[0])
	}
	eta, at := 0.0, position
	load := 0.0
	for _, delivery := range proposed {
		eta += geo.Distance(at, delivery.Coordinate()) * factor
		at = delivery.Coordinate()
		load += delivery.WeightKg
		waypoints = append(waypoints, v1.Waypoint{
			PointRef:   delivery.ID,
			Kind:       v1.PointKindDelivery,
			EtaMin:     eta,
			TimeWindow: delivery.TimeWindow,
		})
	}
	updated.Waypoints = waypoints
	updated.TotalDistanceKm = distanceKm
	updated.TotalDurationMin = distanceKm * factor
	updated.LoadKg = load
	return updated
}

func (c *Controller) persist(ctx context.Context, route *v1.Route) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(func() error {
			return c.store.UpdateRoute(ctx, route)
		},
			retry.Attempts(3),
			retry.Delay(1*time.Second),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
	})
}

// position is the point re-sequencing starts from: the live driver location
// when a driver holds the route's vehicle and has pinged recently, otherwise
// the last reopt mark. Routes with neither are left alone.
func (c *Controller) position(route *v1.Route, driverID string) (geo.Coordinate, bool) {
	if driverID != "" {
		if driver, err := c.fleet.Drivers.Get(driverID); err == nil &&
			!driver.LastLocationUpdate.IsZero() && c.clk.Since(driver.LastLocationUpdate) <= c.freshness {
			return driver.LastLocation, true
		}
	}
	if mark, ok := c.fleet.Routes.ReoptMark(route.ID); ok {
		return mark, true
	}
	return geo.Coordinate{}, false
}

func (c *Controller) driverFor(vehicleID string) string {
	for _, driver := range c.fleet.Drivers.List() {
		if driver.VehicleID == vehicleID || driver.ID == vehicleID {
			return driver.ID
		}
	}
	return ""
}

func pathDistance(start geo.Coordinate, deliveries []v1.DeliveryPoint) float64 {
	total, at := 0.0, start
	for _, delivery := range deliveries {
		total += geo.Distance(at, delivery.Coordinate())
		at = delivery.Coordinate()
	}
	return total
}
