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
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/errors"
	"github.com/courierd/courierd/pkg/events"
	"github.com/courierd/courierd/pkg/geo"
)

// DefaultBreakDuration is how long a driver must rest before on_break can
// end.
const DefaultBreakDuration = 15 * time.Minute

// legalDriverTransitions holds the permitted edges. any state may always
// move to offline.
var legalDriverTransitions = map[v1.DriverState]sets.Set[v1.DriverState]{
	v1.DriverStateOffline:   sets.New(v1.DriverStateAvailable),
	v1.DriverStateAvailable: sets.New(v1.DriverStateBusy, v1.DriverStateOnBreak),
	v1.DriverStateBusy:      sets.New(v1.DriverStateAvailable, v1.DriverStateReturning),
	v1.DriverStateReturning: sets.New(v1.DriverStateAvailable, v1.DriverStateOnBreak),
	v1.DriverStateOnBreak:   sets.New(v1.DriverStateAvailable),
}

// ReturnDistanceKm is the base distance at or beyond which a driver heads
// back as returning instead of available after a completed delivery.
const ReturnDistanceKm = 15.0

type transitionConfig struct {
	emergency         bool
	activeDeliveryID  string
	deliveryCompleted bool
	claimReleased     bool
}

// TransitionOption adjusts the record atomically with a state transition.
type TransitionOption func(*transitionConfig)

// WithEmergency permits moving to offline while a delivery is active.
func WithEmergency() TransitionOption {
	return func(c *transitionConfig) { c.emergency = true }
}

// WithActiveDelivery stamps the order the driver is now carrying.
func WithActiveDelivery(orderID string) TransitionOption {
	return func(c *transitionConfig) { c.activeDeliveryID = orderID }
}

// WithDeliveryCompleted clears the active delivery and advances the
// consecutive and daily counters.
func WithDeliveryCompleted() TransitionOption {
	return func(c *transitionConfig) { c.deliveryCompleted = true }
}

// WithClaimReleased clears the active delivery without counting a
// completion, used when a claimed assignment is unwound.
func WithClaimReleased() TransitionOption {
	return func(c *transitionConfig) { c.claimReleased = true }
}

// DriverRegistry is the arena of driver records. Mutation goes only through
// Transition and the location updater; readers receive copies.
type DriverRegistry struct {
	mu       sync.RWMutex
	clk      clock.Clock
	recorder events.Publisher
	drivers  map[string]*v1.Driver
}

func NewDriverRegistry(clk clock.Clock, recorder events.Publisher) *DriverRegistry {
	return &DriverRegistry{
		clk:      clk,
		recorder: recorder,
		drivers:  map[string]*v1.Driver{},
	}
}

// Add registers a new driver. Drivers join offline unless the record names a
// state.
func (r *DriverRegistry) Add(driver *v1.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drivers[driver.ID]; ok {
		return fmt.Errorf("driver %q is already registered", driver.ID)
	}
	stored := driver.DeepCopy()
	if stored.State == "" {
		stored.State = v1.DriverStateOffline
	}
	if stored.StateSince.IsZero() {
		stored.StateSince = r.clk.Now()
	}
	r.drivers[driver.ID] = stored
	driversGauge.WithLabelValues(string(stored.State)).Inc()
	return nil
}

// Get returns a copy of the driver record.
func (r *DriverRegistry) Get(id string) (*v1.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	driver, ok := r.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver %q is not registered", id)
	}
	return driver.DeepCopy(), nil
}

// List returns copies of drivers in the given states, or all drivers when no
// states are passed, sorted by id.
func (r *DriverRegistry) List(states ...v1.DriverState) []*v1.Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := sets.New(states...)
	var out []*v1.Driver
	for _, driver := range r.drivers {
		if wanted.Len() == 0 || wanted.Has(driver.State) {
			out = append(out, driver.DeepCopy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Transition is the single compare-and-swap gate for driver state. It
// rejects a stale from state with a conflict, rejects edges outside the
// transition table, stamps StateSince, and publishes state-changed.
func (r *DriverRegistry) Transition(id string, from, to v1.DriverState, opts ...TransitionOption) (*v1.Driver, error) {
	cfg := &transitionConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	driver, ok := r.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver %q is not registered", id)
	}
	if driver.State != from {
		return nil, errors.NewConflict("driver", id, string(from), string(driver.State))
	}
	if err := r.validate(driver, from, to, cfg); err != nil {
		return nil, err
	}

	driversGauge.WithLabelValues(string(from)).Dec()
	driversGauge.WithLabelValues(string(to)).Inc()
	transitionsTotal.WithLabelValues("driver", string(from), string(to)).Inc()

	driver.State = to
	driver.StateSince = r.clk.Now()
	if cfg.activeDeliveryID != "" {
		driver.ActiveDeliveryID = cfg.activeDeliveryID
	}
	if cfg.deliveryCompleted {
		driver.ActiveDeliveryID = ""
		driver.ConsecutiveDeliveries++
		driver.CompletedToday++
	}
	if cfg.claimReleased {
		driver.ActiveDeliveryID = ""
	}
	// Coming back from a break resets the consecutive run.
	if from == v1.DriverStateOnBreak && to == v1.DriverStateAvailable {
		driver.ConsecutiveDeliveries = 0
	}
	r.recorder.Publish(Changed("driver", id, string(from), string(to)))
	return driver.DeepCopy(), nil
}

func (r *DriverRegistry) validate(driver *v1.Driver, from, to v1.DriverState, cfg *transitionConfig) error {
	if to == v1.DriverStateOffline {
		if driver.ActiveDeliveryID != "" && !cfg.emergency {
			return fmt.Errorf("driver %q has active delivery %q", driver.ID, driver.ActiveDeliveryID)
		}
		return nil
	}
	if !legalDriverTransitions[from].Has(to) {
		return errors.NewIllegalTransition("driver", string(from), string(to))
	}
	switch {
	case from == v1.DriverStateOffline && to == v1.DriverStateAvailable:
		if !driver.Active {
			return fmt.Errorf("driver %q is not on shift", driver.ID)
		}
	case to == v1.DriverStateOnBreak:
		if driver.ActiveDeliveryID != "" {
			return fmt.Errorf("driver %q has active delivery %q", driver.ID, driver.ActiveDeliveryID)
		}
	case from == v1.DriverStateOnBreak && to == v1.DriverStateAvailable:
		if elapsed := r.clk.Now().Sub(driver.StateSince); elapsed < DefaultBreakDuration {
			return fmt.Errorf("driver %q has rested %s of %s", driver.ID, elapsed, DefaultBreakDuration)
		}
	}
	return nil
}

// UpdateLocation stamps the driver's last known position.
func (r *DriverRegistry) UpdateLocation(id string, lat, lng float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	driver, ok := r.drivers[id]
	if !ok {
		return fmt.Errorf("driver %q is not registered", id)
	}
	driver.LastLocation.Lat, driver.LastLocation.Lng = lat, lng
	driver.LastLocationUpdate = r.clk.Now()
	return nil
}

// CompleteDelivery lands a busy driver's active delivery: the driver moves
// back to available when near base and to returning otherwise, the delivery
// counters advance, and a delivery-complete event is published.
func (r *DriverRegistry) CompleteDelivery(id string) (*v1.Driver, error) {
	driver, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	orderID := driver.ActiveDeliveryID
	to := v1.DriverStateAvailable
	if geo.Distance(driver.LastLocation, driver.Base) >= ReturnDistanceKm {
		to = v1.DriverStateReturning
	}
	updated, err := r.Transition(id, v1.DriverStateBusy, to, WithDeliveryCompleted())
	if err != nil {
		return nil, err
	}
	r.recorder.Publish(DeliveryCompleted(id, orderID))
	return updated, nil
}

// Guard rejection reasons reported on order-unassigned events.
const (
	GuardUnavailable   = "unavailable"
	GuardOverHours     = "over_hours"
	GuardNeedsBreak    = "needs_break"
	GuardTargetMet     = "target_met"
	GuardStaleLocation = "stale_location"
)

// GuardReason explains why a driver fails the dispatch guard, or returns the
// empty string for an assignable driver. The clauses are checked in the
// order they are reported.
func GuardReason(driver *v1.Driver, now time.Time, freshness time.Duration) string {
	switch {
	case !driver.Active || driver.State != v1.DriverStateAvailable:
		return GuardUnavailable
	case driver.HoursWorkedToday >= driver.EffectiveMaxWorkingHours():
		return GuardOverHours
	case driver.ConsecutiveDeliveries >= driver.EffectiveBreakThreshold():
		return GuardNeedsBreak
	case driver.TargetDeliveries > 0 && driver.CompletedToday >= driver.TargetDeliveries:
		return GuardTargetMet
	case driver.LastLocationUpdate.IsZero() || now.Sub(driver.LastLocationUpdate) >= freshness:
		return GuardStaleLocation
	}
	return ""
}

// CanAccept is the dispatch guard: on shift, available, inside working
// limits, under the daily target when one is set, and with a fresh location.
func CanAccept(driver *v1.Driver, now time.Time, freshness time.Duration) bool {
	return GuardReason(driver, now, freshness) == ""
}
