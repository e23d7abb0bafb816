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

package reoptimization_test

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
	"github.com/courierd/courierd/pkg/controllers/engine"
	"github.com/courierd/courierd/pkg/controllers/reoptimization"
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
	controller *reoptimization.Controller
)

var base = geo.Coordinate{Lat: 52.5200, Lng: 13.4050}

func TestReoptimization(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Reoptimization")
}

var _ = BeforeEach(func() {
	ctx = context.Background()
	fakeClock = testingclock.NewFakeClock(time.Now())
	hub = events.NewHub(fakeClock)
	fleet = state.NewFleet(fakeClock, hub)
	fakeStore = fake.NewStore(store.NewMemory())
	breakers := breaker.NewManager(fakeClock, hub, breaker.Settings{}, nil)
	controller = reoptimization.NewController(fakeClock, fleet, fakeStore, breakers, 5*time.Minute, 0.5, 5)
})

func seedDriver(id, vehicleID string) *v1.Driver {
	driver := test.Driver(test.DriverOptions{
		ID:                 id,
		VehicleID:          vehicleID,
		Active:             true,
		State:              v1.DriverStateBusy,
		LastLocation:       base,
		LastLocationUpdate: fakeClock.Now(),
	})
	Expect(fleet.Drivers.Add(driver)).To(Succeed())
	return driver
}

func seedAssignedOrder(id, routeID, driverID string, delivery test.DeliveryOptions) *v1.Order {
	delivery.ID = lo.Ternary(delivery.ID != "", delivery.ID, "delivery-"+id)
	order := test.Order(test.OrderOptions{
		ID:       id,
		Pickup:   test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: base.Lat, Lng: base.Lng}),
		Delivery: test.Delivery(delivery),
		Status:   v1.OrderStatusAssigned,
		RouteID:  routeID,
		DriverID: driverID,
	})
	Expect(fleet.Orders.Add(order)).To(Succeed())
	Expect(fakeStore.CreateOrder(ctx, order)).To(Succeed())
	return order
}

// seedRoute registers an active route visiting the given orders in slice
// order, marked as last reoptimized from its start.
func seedRoute(id, vehicleID string, orders ...*v1.Order) *v1.Route {
	waypoints := []v1.Waypoint{{PointRef: "pickup-1", Kind: v1.PointKindPickup}}
	load := 0.0
	for _, order := range orders {
		waypoints = append(waypoints, v1.Waypoint{PointRef: order.ID, Kind: v1.PointKindDelivery})
		load += order.Delivery.WeightKg
	}
	route := &v1.Route{
		ID: id,
		Vehicle: v1.Vehicle{
			ID:         vehicleID,
			Kind:       v1.VehicleKindCar,
			CapacityKg: 100,
			StartLat:   base.Lat,
			StartLng:   base.Lng,
			Status:     v1.VehicleStatusDelivering,
		},
		Waypoints: waypoints,
		LoadKg:    load,
	}
	Expect(fleet.Routes.Add(route)).To(Succeed())
	Expect(fakeStore.CreateRoute(ctx, route)).To(Succeed())
	fleet.Routes.MarkReopt(route.ID, route.Vehicle.Start())
	return route
}

func queueInsert(routeID string, order *v1.Order) {
	delivery := order.Delivery
	delivery.ID = order.ID
	Expect(fleet.Routes.QueueInsert(routeID, delivery)).To(Succeed())
}

func deliverySequence(route *v1.Route) []string {
	var refs []string
	for _, waypoint := range route.Waypoints {
		if waypoint.Kind == v1.PointKindDelivery {
			refs = append(refs, waypoint.PointRef)
		}
	}
	return refs
}

var _ = Describe("Reoptimization", func() {
	It("should leave an unmoved route alone", func() {
		seedDriver("driver-1", "veh-1")
		near := seedAssignedOrder("order-near", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.5400, Lng: 13.4050})
		far := seedAssignedOrder("order-far", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.6000, Lng: 13.4050})
		seedRoute("route-1", "veh-1", far, near)

		Expect(controller.Tick(ctx, 4)).To(Equal(engine.Result{Items: 1}))
		Expect(fakeStore.Calls("UpdateRoute")).To(BeZero())
	})

	It("should ignore movement below the threshold", func() {
		seedDriver("driver-1", "veh-1")
		near := seedAssignedOrder("order-near", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.5400, Lng: 13.4050})
		far := seedAssignedOrder("order-far", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.6000, Lng: 13.4050})
		seedRoute("route-1", "veh-1", far, near)

		// Roughly 200 metres north of the mark.
		Expect(fleet.Drivers.UpdateLocation("driver-1", 52.5218, 13.4050)).To(Succeed())

		Expect(controller.Tick(ctx, 4)).To(Equal(engine.Result{Items: 1}))
		Expect(fakeStore.Calls("UpdateRoute")).To(BeZero())
	})

	It("should re-sequence a route from the driver's new position", func() {
		seedDriver("driver-1", "veh-1")
		near := seedAssignedOrder("order-near", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.5400, Lng: 13.4050})
		far := seedAssignedOrder("order-far", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.6000, Lng: 13.4050})
		seedRoute("route-1", "veh-1", far, near)

		position := geo.Coordinate{Lat: 52.5300, Lng: 13.4050}
		Expect(fleet.Drivers.UpdateLocation("driver-1", position.Lat, position.Lng)).To(Succeed())

		result := controller.Tick(ctx, 4)
		Expect(result).To(Equal(engine.Result{Items: 1, Assignments: 1}))

		updated, err := fleet.Routes.Get("route-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(updated.Waypoints[0].Kind).To(Equal(v1.PointKindPickup))
		Expect(deliverySequence(updated)).To(Equal([]string{"order-near", "order-far"}))

		firstLeg := geo.Distance(position, near.Delivery.Coordinate())
		secondLeg := geo.Distance(near.Delivery.Coordinate(), far.Delivery.Coordinate())
		Expect(updated.TotalDistanceKm).To(BeNumerically("~", firstLeg+secondLeg, 1e-9))
		Expect(updated.TotalDurationMin).To(BeNumerically("~", (firstLeg+secondLeg)*1.2, 1e-9))
		Expect(updated.Waypoints[1].EtaMin).To(BeNumerically("~", firstLeg*1.2, 1e-9))
		Expect(updated.Waypoints[2].EtaMin).To(BeNumerically("~", (firstLeg+secondLeg)*1.2, 1e-9))

		persisted, err := fakeStore.GetRoute(ctx, "route-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(deliverySequence(persisted)).To(Equal([]string{"order-near", "order-far"}))

		mark, ok := fleet.Routes.ReoptMark("route-1")
		Expect(ok).To(BeTrue())
		Expect(mark).To(Equal(position))
	})

	It("should keep the current tail when the gain is marginal", func() {
		seedDriver("driver-1", "veh-1")
		near := seedAssignedOrder("order-near", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.5400, Lng: 13.4050})
		far := seedAssignedOrder("order-far", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.6000, Lng: 13.4050})
		seedRoute("route-1", "veh-1", near, far)

		position := geo.Coordinate{Lat: 52.5290, Lng: 13.4050}
		Expect(fleet.Drivers.UpdateLocation("driver-1", position.Lat, position.Lng)).To(Succeed())

		Expect(controller.Tick(ctx, 4)).To(Equal(engine.Result{Items: 1}))
		Expect(fakeStore.Calls("UpdateRoute")).To(BeZero())

		updated, err := fleet.Routes.Get("route-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(deliverySequence(updated)).To(Equal([]string{"order-near", "order-far"}))

		// Discarding still advances the mark so the same position does not
		// trigger another evaluation next tick.
		mark, ok := fleet.Routes.ReoptMark("route-1")
		Expect(ok).To(BeTrue())
		Expect(mark).To(Equal(position))
	})

	It("should fold a queued insert into the route", func() {
		seedDriver("driver-1", "veh-1")
		near := seedAssignedOrder("order-near", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.5400, Lng: 13.4050})
		route := seedRoute("route-1", "veh-1", near)

		inserted := test.Order(test.OrderOptions{
			ID:       "order-inserted",
			Pickup:   test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: base.Lat, Lng: base.Lng}),
			Delivery: test.Delivery(test.DeliveryOptions{ID: "delivery-inserted", Lat: 52.5600, Lng: 13.4050}),
		})
		Expect(fleet.Orders.Add(inserted)).To(Succeed())
		Expect(fakeStore.CreateOrder(ctx, inserted)).To(Succeed())
		queueInsert(route.ID, inserted)

		result := controller.Tick(ctx, 4)
		Expect(result).To(Equal(engine.Result{Items: 1, Assignments: 1}))

		claimed, err := fleet.Orders.Get("order-inserted")
		Expect(err).ToNot(HaveOccurred())
		Expect(claimed.Status).To(Equal(v1.OrderStatusAssigned))
		Expect(claimed.RouteID).To(Equal("route-1"))
		Expect(claimed.DriverID).To(Equal("driver-1"))

		updated, err := fleet.Routes.Get("route-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(updated.Deliveries()).To(Equal(2))
		Expect(deliverySequence(updated)).To(Equal([]string{"order-near", "order-inserted"}))
	})

	It("should drop an insert that no longer names a pending order", func() {
		seedDriver("driver-1", "veh-1")
		near := seedAssignedOrder("order-near", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.5400, Lng: 13.4050})
		route := seedRoute("route-1", "veh-1", near)

		cancelled := test.Order(test.OrderOptions{ID: "order-cancelled"})
		Expect(fleet.Orders.Add(cancelled)).To(Succeed())
		queueInsert(route.ID, cancelled)
		_, err := fleet.Orders.Transition("order-cancelled", v1.OrderStatusPending, v1.OrderStatusCancelled)
		Expect(err).ToNot(HaveOccurred())

		Expect(controller.Tick(ctx, 4)).To(Equal(engine.Result{Items: 1}))

		updated, err := fleet.Routes.Get("route-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(updated.Deliveries()).To(Equal(1))
		Expect(fakeStore.Calls("UpdateRoute")).To(BeZero())
	})

	It("should fall back to the mark when the driver's ping is stale", func() {
		seedDriver("driver-1", "veh-1")
		near := seedAssignedOrder("order-near", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.5400, Lng: 13.4050})
		far := seedAssignedOrder("order-far", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.6000, Lng: 13.4050})
		seedRoute("route-1", "veh-1", far, near)

		Expect(fleet.Drivers.UpdateLocation("driver-1", 52.5300, 13.4050)).To(Succeed())
		fakeClock.Step(10 * time.Minute)

		Expect(controller.Tick(ctx, 4)).To(Equal(engine.Result{Items: 1}))
		Expect(fakeStore.Calls("UpdateRoute")).To(BeZero())
	})

	It("should revert insert claims when the store refuses the update", func() {
		seedDriver("driver-1", "veh-1")
		near := seedAssignedOrder("order-near", "route-1", "driver-1", test.DeliveryOptions{Lat: 52.5400, Lng: 13.4050})
		route := seedRoute("route-1", "veh-1", near)

		inserted := test.Order(test.OrderOptions{
			ID:       "order-inserted",
			Pickup:   test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: base.Lat, Lng: base.Lng}),
			Delivery: test.Delivery(test.DeliveryOptions{ID: "delivery-inserted", Lat: 52.5600, Lng: 13.4050}),
		})
		Expect(fleet.Orders.Add(inserted)).To(Succeed())
		queueInsert(route.ID, inserted)

		fakeStore.WriteError.Set(fmt.Errorf("store exploded"), fake.MaxCalls(0))

		result := controller.Tick(ctx, 4)
		Expect(result).To(Equal(engine.Result{Items: 1, Failures: 1}))

		reverted, err := fleet.Orders.Get("order-inserted")
		Expect(err).ToNot(HaveOccurred())
		Expect(reverted.Status).To(Equal(v1.OrderStatusPending))
		Expect(reverted.RouteID).To(BeEmpty())
		Expect(reverted.DriverID).To(BeEmpty())

		updated, err := fleet.Routes.Get("route-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(updated.Deliveries()).To(Equal(1))

		mark, ok := fleet.Routes.ReoptMark("route-1")
		Expect(ok).To(BeTrue())
		Expect(mark).To(Equal(route.Vehicle.Start()))
	})
})
