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

// Package sla watches open orders against their delivery deadlines. An order
// whose projected time remaining falls under the imminent band gets one
// warning per deadline; an order past its deadline gets one confirmed breach
// and the recovery workflow: the order fails with an escalation stamp, its
// driver rejoins the pool, and the record is persisted.
package sla

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/util/sets"
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

type band string

const (
	bandOK        band = "ok"
	bandImminent  band = "imminent"
	bandConfirmed band = "confirmed"
)

// memory records which escalations already fired for an order's current
// deadline. A new deadline resets the record.
type memory struct {
	deadline      time.Time
	imminentSent  bool
	confirmedSent bool
}

// Controller is the SLA escalation engine body.
type Controller struct {
	clk          clock.Clock
	fleet        *state.Fleet
	store        store.Store
	breaker      *breaker.Breaker
	recorder     events.Publisher
	imminentBand time.Duration

	mu   sync.Mutex
	seen map[string]memory
}

func NewController(clk clock.Clock, fleet *state.Fleet, st store.Store, breakers *breaker.Manager, recorder events.Publisher, imminentBand time.Duration) *Controller {
	return &Controller{
		clk:          clk,
		fleet:        fleet,
		store:        st,
		breaker:      breakers.Breaker("store"),
		recorder:     recorder,
		imminentBand: imminentBand,
		seen:         map[string]memory{},
	}
}

func (c *Controller) Name() string {
	return "sla"
}

func (c *Controller) Tick(ctx context.Context, concurrency int) engine.Result {
	open := lo.Filter(c.fleet.Orders.List(v1.OrderStatusAssigned, v1.OrderStatusInTransit), func(order *v1.Order, _ int) bool {
		return !order.SLADeadline.IsZero()
	})
	c.prune(open)
	if len(open) == 0 {
		return engine.Result{}
	}
	var escalated atomic.Int64
	failures := engine.Parallelize(ctx, concurrency, len(open), func(ctx context.Context, i int) error {
		acted, err := c.evaluate(ctx, open[i])
		if acted {
			escalated.Add(1)
		}
		return err
	})
	return engine.Result{Items: len(open), Assignments: int(escalated.Load()), Failures: failures}
}

// evaluate bands one order and escalates on the first entry into a band. It
// reports whether an escalation was published.
func (c *Controller) evaluate(ctx context.Context, order *v1.Order) (bool, error) {
	remaining := order.SLADeadline.Sub(c.clk.Now()).Minutes() - order.EstimatedRemainingMin
	switch c.bandOf(remaining) {
	case bandImminent:
		if !c.first(order, bandImminent) {
			return false, nil
		}
		breachesTotal.WithLabelValues(SeverityWarning).Inc()
		c.recorder.Publish(BreachImminent(order, remaining))
		logging.FromContext(ctx).Info("sla breach imminent",
			"order", order.ID, "driver", order.DriverID, "timeRemainingMin", remaining)
		return true, nil
	case bandConfirmed:
		if !c.first(order, bandConfirmed) {
			return false, nil
		}
		breachesTotal.WithLabelValues(SeverityCritical).Inc()
		c.recorder.Publish(BreachConfirmed(order, remaining))
		logging.FromContext(ctx).Info("sla breach confirmed",
			"order", order.ID, "driver", order.DriverID, "timeRemainingMin", remaining)
		return true, c.recover(ctx, order)
	default:
		return false, nil
	}
}

func (c *Controller) bandOf(remainingMin float64) band {
	switch {
	case remainingMin < 0:
		return bandConfirmed
	case remainingMin < c.imminentBand.Minutes():
		return bandImminent
	default:
		return bandOK
	}
}

// first marks the band escalation as sent for the order's current deadline
// and reports whether this call was the first to do so.
func (c *Controller) first(order *v1.Order, b band) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.seen[order.ID]
	if !m.deadline.Equal(order.SLADeadline) {
		m = memory{deadline: order.SLADeadline}
	}
	sent := lo.Ternary(b == bandConfirmed, m.confirmedSent, m.imminentSent)
	if b == bandConfirmed {
		m.confirmedSent = true
	} else {
		m.imminentSent = true
	}
	c.seen[order.ID] = m
	return !sent
}

// prune drops band memory for orders that left the open set, keeping the map
// bounded by the in-flight order count.
func (c *Controller) prune(open []*v1.Order) {
	ids := sets.New(lo.Map(open, func(order *v1.Order, _ int) string { return order.ID })...)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.seen {
		if !ids.Has(id) {
			delete(c.seen, id)
		}
	}
}

// recover is the confirmed-breach workflow. The order fails with an
// escalation stamp and the driver, when still carrying this order, goes back
// to the pool. The in-memory record stands even when the store refuses the
// write; a failed order is terminal and this engine never re-fires for it.
func (c *Controller) recover(ctx context.Context, order *v1.Order) error {
	failed, err := c.fleet.Orders.Transition(order.ID, order.Status, v1.OrderStatusFailed, state.WithEscalation())
	if err != nil {
		// The order moved on its own between the scan and the claim.
		if errors.IsConflict(err) {
			return nil
		}
		return fmt.Errorf("failing order %q, %w", order.ID, err)
	}
	c.release(ctx, order)
	if err := c.persist(ctx, failed); err != nil {
		if errors.IsBreakerOpen(err) {
			return nil
		}
		return fmt.Errorf("persisting escalated order %q, %w", order.ID, err)
	}
	return nil
}

// release frees the breached order's driver. A driver already carrying a
// different order keeps their claim.
func (c *Controller) release(ctx context.Context, order *v1.Order) {
	if order.DriverID == "" {
		return
	}
	driver, err := c.fleet.Drivers.Get(order.DriverID)
	if err != nil || driver.State != v1.DriverStateBusy || driver.ActiveDeliveryID != order.ID {
		return
	}
	if _, err := c.fleet.Drivers.Transition(order.DriverID, v1.DriverStateBusy, v1.DriverStateAvailable, state.WithClaimReleased()); err != nil && !errors.IsConflict(err) {
		logging.FromContext(ctx).Error(err, "releasing driver after confirmed breach",
			"driver", order.DriverID, "order", order.ID)
	}
}

func (c *Controller) persist(ctx context.Context, order *v1.Order) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(func() error {
			return c.store.UpdateOrder(ctx, order)
		},
			retry.Attempts(3),
			retry.Delay(1*time.Second),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
	})
}
