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

// Package dispatch matches pending orders to drivers. The driver record is
// the lock: dispatch claims it available→busy before anything durable
// happens and releases it when the store refuses the assignment, so no two
// engines ever race an order onto the same driver.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/breaker"
	"github.com/courierd/courierd/pkg/controllers/engine"
	"github.com/courierd/courierd/pkg/errors"
	"github.com/courierd/courierd/pkg/events"
	"github.com/courierd/courierd/pkg/operator/logging"
	"github.com/courierd/courierd/pkg/providers/store"
	"github.com/courierd/courierd/pkg/state"
)

// Controller is the dispatch engine body.
type Controller struct {
	clk       clock.Clock
	fleet     *state.Fleet
	store     store.Store
	breaker   *breaker.Breaker
	recorder  events.Publisher
	freshness time.Duration
	// unassignedLimiter is shared across all order-unassigned publishes of
	// this engine.
	unassignedLimiter *rate.Limiter
}

func NewController(clk clock.Clock, fleet *state.Fleet, st store.Store, breakers *breaker.Manager, recorder events.Publisher, locationFreshness time.Duration) *Controller {
	return &Controller{
		clk:               clk,
		fleet:             fleet,
		store:             st,
		breaker:           breakers.Breaker("store"),
		recorder:          recorder,
		freshness:         locationFreshness,
		unassignedLimiter: rate.NewLimiter(rate.Every(30*time.Second), 5),
	}
}

func (c *Controller) Name() string {
	return "dispatch"
}

// Tick assigns every pending order it can. Orders race for drivers in
// parallel; the registry CAS picks the winners.
func (c *Controller) Tick(ctx context.Context, concurrency int) engine.Result {
	pending := c.fleet.Orders.List(v1.OrderStatusPending)
	if len(pending) == 0 {
		return engine.Result{}
	}
	var assigned atomic.Int64
	failures := engine.Parallelize(ctx, concurrency, len(pending), func(ctx context.Context, i int) error {
		ok, err := c.assign(ctx, pending[i])
		if ok {
			assigned.Add(1)
		}
		return err
	})
	return engine.Result{Items: len(pending), Assignments: int(assigned.Load()), Failures: failures}
}

// assign walks the ranked candidates until one claim sticks. Losing a
// driver to a parallel sibling is not a failure; the next candidate is
// tried.
func (c *Controller) assign(ctx context.Context, order *v1.Order) (bool, error) {
	candidates, criteria := c.candidates()
	for _, candidate := range Rank(order, candidates) {
		driver, err := c.fleet.Drivers.Transition(candidate.ID, v1.DriverStateAvailable, v1.DriverStateBusy, state.WithActiveDelivery(order.ID))
		if err != nil {
			if errors.IsConflict(err) {
				continue
			}
			return false, fmt.Errorf("claiming driver %q, %w", candidate.ID, err)
		}
		return c.commit(ctx, order, driver, Score(candidate, order))
	}
	c.reportUnassigned(ctx, order, criteria)
	return false, nil
}

// commit claims the order, persists both records through the breaker, and
// compensates both claims when the store will not take the write.
func (c *Controller) commit(ctx context.Context, order *v1.Order, driver *v1.Driver, score float64) (bool, error) {
	assigned, err := c.fleet.Orders.Transition(order.ID, v1.OrderStatusPending, v1.OrderStatusAssigned, state.WithDriver(driver.ID))
	if err != nil {
		c.releaseDriver(ctx, driver.ID)
		if errors.IsConflict(err) {
			// Another engine took the order while we claimed the driver.
			return false, nil
		}
		return false, fmt.Errorf("claiming order %q, %w", order.ID, err)
	}
	if err := c.persist(ctx, assigned, driver.ID); err != nil {
		c.compensate(ctx, order.ID, driver.ID)
		return false, fmt.Errorf("persisting assignment of order %q to driver %q, %w", order.ID, driver.ID, err)
	}
	c.recorder.Publish(Assigned(assigned, driver, score))
	logging.FromContext(ctx).Info("assigned order", "order", order.ID, "driver", driver.ID, "score", score)
	return true, nil
}

// persist writes the assignment through the store breaker. The driver is
// re-read inside the attempt so retries carry the freshest record.
func (c *Controller) persist(ctx context.Context, order *v1.Order, driverID string) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(func() error {
			driver, err := c.fleet.Drivers.Get(driverID)
			if err != nil {
				return err
			}
			if err := c.store.UpdateOrder(ctx, order); err != nil {
				return err
			}
			return c.store.UpdateDriver(ctx, driver)
		},
			retry.Attempts(3),
			retry.Delay(1*time.Second),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
	})
}

// compensate unwinds both claims after a failed persist: the order rejoins
// the pending pool and the driver becomes assignable again. A conflict here
// means the world already moved on, which is fine.
func (c *Controller) compensate(ctx context.Context, orderID, driverID string) {
	if _, err := c.fleet.Orders.Transition(orderID, v1.OrderStatusAssigned, v1.OrderStatusPending); err != nil && !errors.IsConflict(err) {
		logging.FromContext(ctx).Error(err, "reverting order claim", "order", orderID)
	}
	c.releaseDriver(ctx, driverID)
}

func (c *Controller) releaseDriver(ctx context.Context, driverID string) {
	if _, err := c.fleet.Drivers.Transition(driverID, v1.DriverStateBusy, v1.DriverStateAvailable, state.WithClaimReleased()); err != nil && !errors.IsConflict(err) {
		logging.FromContext(ctx).Error(err, "releasing driver claim", "driver", driverID)
	}
}

// candidates partitions the fleet into guarded candidates and a tally of
// rejection reasons, which rides along on order-unassigned events.
func (c *Controller) candidates() ([]*v1.Driver, map[string]any) {
	now := c.clk.Now()
	all := c.fleet.Drivers.List()
	var eligible []*v1.Driver
	rejected := map[string]int{}
	for _, driver := range all {
		if reason := state.GuardReason(driver, now, c.freshness); reason != "" {
			rejected[reason]++
			continue
		}
		eligible = append(eligible, driver)
	}
	criteria := map[string]any{
		"drivers":           len(all),
		"eligible":          len(eligible),
		"rejected":          rejected,
		"locationFreshness": c.freshness.String(),
	}
	return eligible, criteria
}

func (c *Controller) reportUnassigned(ctx context.Context, order *v1.Order, criteria map[string]any) {
	unassignedTotal.WithLabelValues(ReasonNoDriverAvailable).Inc()
	c.recorder.Publish(Unassigned(order, criteria, c.unassignedLimiter))
	logging.FromContext(ctx).V(1).Info("no driver available", "order", order.ID, "criteria", criteria)
}
