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

package dispatch_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	testingclock "k8s.io/utils/clock/testing"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/breaker"
	"github.com/courierd/courierd/pkg/controllers/dispatch"
	"github.com/courierd/courierd/pkg/controllers/engine"
	"github.com/courierd/courierd/pkg/events"
	"github.com/courierd/courierd/pkg/fake"
	"github.com/courierd/courierd/pkg/geo"
	"github.com/courierd/courierd/pkg/providers/store"
	"github.com/courierd/courierd/pkg/state"
	"github.com/courierd/courierd/pkg/test"
)

var (
	ctx        context.Context
	fakeClock  *testingclock.FakeClock
	hub        *events.Hub
	fleet      *state.Fleet
	fakeStore  *fake.Store
	controller *dispatch.Controller
)

func TestDispatch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dispatch")
}

var _ = BeforeEach(func() {
	ctx = context.Background()
	fakeClock = testingclock.NewFakeClock(time.Now())
	hub = events.NewHub(fakeClock)
	fleet = state.NewFleet(fakeClock, hub)
	fakeStore = fake.NewStore(store.NewMemory())
	breakers := breaker.NewManager(fakeClock, hub, breaker.Settings{}, nil)
	controller = dispatch.NewController(fakeClock, fleet, fakeStore, breakers, hub, 5*time.Minute)
})

func drain(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case evt := <-sub.Events():
			out = append(out, evt)
		default:
			return out
		}
	}
}

// seedDriver registers an assignable driver in the fleet and the store.
func seedDriver(id string, opts ...test.DriverOptions) *v1.Driver {
	driver := test.Driver(append([]test.DriverOptions{{
		ID:                 id,
		Active:             true,
		State:              v1.DriverStateAvailable,
		LastLocation:       geo.Coordinate{Lat: 52.5200, Lng: 13.4050},
		LastLocationUpdate: fakeClock.Now(),
	}}, opts...)...)
	Expect(fleet.Drivers.Add(driver)).To(Succeed())
	Expect(fakeStore.CreateDriver(ctx, driver)).To(Succeed())
	return driver
}

func seedOrder(id string) *v1.Order {
	order := test.Order(test.OrderOptions{ID: id})
	Expect(fleet.Orders.Add(order)).To(Succeed())
	Expect(fakeStore.CreateOrder(ctx, order)).To(Succeed())
	return order
}

var _ = Describe("Dispatch", func() {
	It("should assign the best-scoring driver and persist both records", func() {
		sub := hub.Subscribe("watcher", events.OrderAssigned)
		defer sub.Close()
		seedDriver("driver-near")
		seedDriver("driver-far", test.DriverOptions{LastLocation: geo.Coordinate{Lat: 52.5200, Lng: 13.5500}})
		seedOrder("order-1")

		result := controller.Tick(ctx, 4)
		Expect(result.Items).To(Equal(1))
		Expect(result.Assignments).To(Equal(1))
		Expect(result.Failures).To(BeZero())

		order := lo.Must(fleet.Orders.Get("order-1"))
		Expect(order.Status).To(Equal(v1.OrderStatusAssigned))
		Expect(order.DriverID).To(Equal("driver-near"))

		driver := lo.Must(fleet.Drivers.Get("driver-near"))
		Expect(driver.State).To(Equal(v1.DriverStateBusy))
		Expect(driver.ActiveDeliveryID).To(Equal("order-1"))

		stored := lo.Must(fakeStore.GetOrder(ctx, "order-1"))
		Expect(stored.Status).To(Equal(v1.OrderStatusAssigned))
		Expect(stored.DriverID).To(Equal("driver-near"))
		Expect(lo.Must(fakeStore.GetDriver(ctx, "driver-near")).State).To(Equal(v1.DriverStateBusy))

		got := drain(sub)
		Expect(got).To(HaveLen(1))
		Expect(got[0].Payload["orderId"]).To(Equal("order-1"))
		Expect(got[0].Payload["driverId"]).To(Equal("driver-near"))
	})

	It("should report no_driver_available with guard criteria and leave the order pending", func() {
		sub := hub.Subscribe("watcher", events.OrderUnassigned)
		defer sub.Close()
		seedDriver("driver-stale", test.DriverOptions{LastLocationUpdate: fakeClock.Now().Add(-time.Hour)})
		seedDriver("driver-tired", test.DriverOptions{HoursWorkedToday: 13})
		seedOrder("order-1")

		result := controller.Tick(ctx, 4)
		Expect(result.Assignments).To(BeZero())
		Expect(result.Failures).To(BeZero())
		Expect(lo.Must(fleet.Orders.Get("order-1")).Status).To(Equal(v1.OrderStatusPending))

		got := drain(sub)
		Expect(got).To(HaveLen(1))
		Expect(got[0].Payload["reason"]).To(Equal(dispatch.ReasonNoDriverAvailable))
		criteria := got[0].Payload["criteria"].(map[string]any)
		Expect(criteria["eligible"]).To(Equal(0))
		rejected := criteria["rejected"].(map[string]int)
		Expect(rejected[state.GuardStaleLocation]).To(Equal(1))
		Expect(rejected[state.GuardOverHours]).To(Equal(1))
	})

	It("should never double-book a driver when orders race in one tick", func() {
		seedDriver("driver-1")
		seedOrder("order-1")
		seedOrder("order-2")

		result := controller.Tick(ctx, 2)
		Expect(result.Items).To(Equal(2))
		Expect(result.Assignments).To(Equal(1))

		assigned := fleet.Orders.List(v1.OrderStatusAssigned)
		pending := fleet.Orders.List(v1.OrderStatusPending)
		Expect(assigned).To(HaveLen(1))
		Expect(pending).To(HaveLen(1))
		Expect(assigned[0].DriverID).To(Equal("driver-1"))
		Expect(lo.Must(fleet.Drivers.Get("driver-1")).ActiveDeliveryID).To(Equal(assigned[0].ID))
	})

	It("should fall through to the next candidate when the best is claimed mid-rank", func() {
		seedDriver("driver-a")
		seedDriver("driver-b", test.DriverOptions{Rating: 3})
		seedOrder("order-1")
		seedOrder("order-2")

		result := controller.Tick(ctx, 2)
		Expect(result.Assignments).To(Equal(2))
		Expect(lo.Must(fleet.Orders.Get("order-1")).Status).To(Equal(v1.OrderStatusAssigned))
		Expect(lo.Must(fleet.Orders.Get("order-2")).Status).To(Equal(v1.OrderStatusAssigned))
		Expect(lo.Must(fleet.Drivers.Get("driver-a")).State).To(Equal(v1.DriverStateBusy))
		Expect(lo.Must(fleet.Drivers.Get("driver-b")).State).To(Equal(v1.DriverStateBusy))
	})

	It("should compensate both claims when the store refuses the write", func() {
		seedDriver("driver-1")
		seedOrder("order-1")
		fakeStore.WriteError.Set(fmt.Errorf("store exploded"), fake.MaxCalls(0))

		result := controller.Tick(ctx, 1)
		Expect(result.Assignments).To(BeZero())
		Expect(result.Failures).To(Equal(1))

		order := lo.Must(fleet.Orders.Get("order-1"))
		Expect(order.Status).To(Equal(v1.OrderStatusPending))
		Expect(order.DriverID).To(BeEmpty())

		driver := lo.Must(fleet.Drivers.Get("driver-1"))
		Expect(driver.State).To(Equal(v1.DriverStateAvailable))
		Expect(driver.ActiveDeliveryID).To(BeEmpty())
		Expect(driver.CompletedToday).To(BeZero())

		// Three attempts were made before giving up.
		Expect(fakeStore.Calls("UpdateOrder")).To(Equal(3))
	})

	It("should assign on a retry once a transient store error clears", func() {
		seedDriver("driver-1")
		seedOrder("order-1")
		fakeStore.WriteError.Set(fmt.Errorf("store hiccup"), fake.MaxCalls(1))

		result := controller.Tick(ctx, 1)
		Expect(result.Assignments).To(Equal(1))
		Expect(result.Failures).To(BeZero())
		Expect(lo.Must(fleet.Orders.Get("order-1")).Status).To(Equal(v1.OrderStatusAssigned))
	})

	It("should do nothing on an idle tick", func() {
		seedDriver("driver-1")
		Expect(controller.Tick(ctx, 4)).To(Equal(engine.Result{}))
	})
})

var _ = Describe("Scoring", func() {
	order := test.Order(test.OrderOptions{
		ID:     "order-1",
		Pickup: test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 52.5200, Lng: 13.4050}),
	})

	It("should score a perfect candidate at 100", func() {
		driver := &v1.Driver{
			ID:               "driver-1",
			State:            v1.DriverStateAvailable,
			Rating:           5,
			TargetDeliveries: 10,
			LastLocation:     geo.Coordinate{Lat: 52.5200, Lng: 13.4050},
		}
		Expect(dispatch.Score(driver, order)).To(BeNumerically("~", 100, 1e-9))
	})

	It("should zero the distance factor beyond the scoring radius", func() {
		driver := &v1.Driver{
			ID:           "driver-1",
			State:        v1.DriverStateAvailable,
			LastLocation: geo.Coordinate{Lat: 53.5200, Lng: 13.4050},
		}
		Expect(dispatch.Score(driver, order)).To(BeNumerically("~", 40, 1e-9))
	})

	It("should value returning drivers below available ones", func() {
		available := &v1.Driver{ID: "driver-1", State: v1.DriverStateAvailable, LastLocation: geo.Coordinate{Lat: 52.5200, Lng: 13.4050}}
		returning := &v1.Driver{ID: "driver-2", State: v1.DriverStateReturning, LastLocation: geo.Coordinate{Lat: 52.5200, Lng: 13.4050}}
		Expect(dispatch.Score(available, order) - dispatch.Score(returning, order)).To(BeNumerically("~", 20, 1e-9))
	})

	It("should cap the target gap factor", func() {
		driver := &v1.Driver{
			ID:               "driver-1",
			State:            v1.DriverStateAvailable,
			TargetDeliveries: 100,
			LastLocation:     geo.Coordinate{Lat: 52.5200, Lng: 13.4050},
		}
		Expect(dispatch.Score(driver, order)).To(BeNumerically("~", 85, 1e-9))
	})

	It("should break score ties by driver id", func() {
		a := &v1.Driver{ID: "driver-a", State: v1.DriverStateAvailable, LastLocation: geo.Coordinate{Lat: 52.5200, Lng: 13.4050}}
		b := &v1.Driver{ID: "driver-b", State: v1.DriverStateAvailable, LastLocation: geo.Coordinate{Lat: 52.5200, Lng: 13.4050}}
		ranked := dispatch.Rank(order, []*v1.Driver{b, a})
		Expect(lo.Map(ranked, func(d *v1.Driver, _ int) string { return d.ID })).To(Equal([]string{"driver-a", "driver-b"}))
	})
})
