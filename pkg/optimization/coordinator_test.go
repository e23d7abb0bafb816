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

package optimization_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/errors"
	"github.com/courierd/courierd/pkg/geo"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/test"
	. "github.com/courierd/courierd/pkg/test/expectations"
)

var _ = Describe("Coordinator", func() {
	Describe("Optimize", func() {
		It("should spread one overloaded vehicle across the fleet", func() {
			request := test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
				},
				DeliveryPoints: manyDeliveries(13, 24.7236, 46.6753, 5),
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753}),
					test.Vehicle(test.VehicleOptions{ID: "vehicle-2", StartLat: 24.7136, StartLng: 46.6753}),
					test.Vehicle(test.VehicleOptions{ID: "vehicle-3", StartLat: 24.7136, StartLng: 46.6753}),
				},
			})
			result, err := coordinator.Optimize(ctx, request)
			Expect(err).ToNot(HaveOccurred())

			// Best match piles everything on vehicle-1; rebalancing must pull
			// the other two in.
			Expect(lo.Map(result.Routes, func(r v1.Route, _ int) string { return r.ID })).
				To(Equal([]string{"route-1", "route-2", "route-3"}))
			Expect(lo.Map(result.Routes, func(r v1.Route, _ int) int { return r.Deliveries() })).
				To(ConsistOf(5, 4, 4))
			Expect(result.Unserviceable).To(BeEmpty())
			ExpectCoverage(request, result)
			ExpectBalanced(result)
			ExpectCapacityRespected(result)
			ExpectRoutesStartWithPickup(result)
		})
		It("should balance multi-pickup demand across identical trucks", func() {
			deliveries := manyDeliveries(8, 24.7146, 46.6753, 150)
			for i := 0; i < 6; i++ {
				deliveries = append(deliveries, test.Delivery(test.DeliveryOptions{
					ID: fmt.Sprintf("delivery-north-%d", i+1), Lat: 24.7546 + 0.0002*float64(i), Lng: 46.6753, WeightKg: 150,
				}))
			}
			for i := 0; i < 6; i++ {
				deliveries = append(deliveries, test.Delivery(test.DeliveryOptions{
					ID: fmt.Sprintf("delivery-east-%d", i+1), Lat: 24.7136, Lng: 46.7263 + 0.0002*float64(i), WeightKg: 150,
				}))
			}
			request := test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-center", Lat: 24.7136, Lng: 46.6753}),
					test.Pickup(test.PickupOptions{ID: "pickup-north", Lat: 24.7536, Lng: 46.6753}),
					test.Pickup(test.PickupOptions{ID: "pickup-east", Lat: 24.7136, Lng: 46.7253}),
				},
				DeliveryPoints: deliveries,
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "truck-1", Kind: v1.VehicleKindTruck, CapacityKg: 2000, StartLat: 24.7136, StartLng: 46.6753}),
					test.Vehicle(test.VehicleOptions{ID: "truck-2", Kind: v1.VehicleKindTruck, CapacityKg: 2000, StartLat: 24.7136, StartLng: 46.6753}),
					test.Vehicle(test.VehicleOptions{ID: "truck-3", Kind: v1.VehicleKindTruck, CapacityKg: 2000, StartLat: 24.7136, StartLng: 46.6753}),
					test.Vehicle(test.VehicleOptions{ID: "truck-4", Kind: v1.VehicleKindTruck, CapacityKg: 2000, StartLat: 24.7136, StartLng: 46.6753}),
				},
				Preferences: &v1.Preferences{Distribution: v1.DistributionBalanced},
			})
			result, err := coordinator.Optimize(ctx, request)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Unserviceable).To(BeEmpty())

			// A vehicle may run one route per pickup, so balance is judged on
			// per-vehicle totals rather than per-route ones.
			perVehicle := map[string]int{}
			for _, route := range result.Routes {
				perVehicle[route.Vehicle.ID] += route.Deliveries()
			}
			Expect(len(perVehicle)).To(BeNumerically(">=", 3))
			counts := lo.Values(perVehicle)
			Expect(lo.Max(counts)).To(BeNumerically("<=", 8))
			Expect(lo.Max(counts) - lo.Min(counts)).To(BeNumerically("<=", 2))
			ExpectCoverage(request, result)
			ExpectCapacityRespected(result)
			ExpectRoutesStartWithPickup(result)
		})
		It("should drop what exceeds fleet capacity in input order", func() {
			var deliveries []v1.DeliveryPoint
			for i := 0; i < 5; i++ {
				deliveries = append(deliveries, test.Delivery(test.DeliveryOptions{
					ID: fmt.Sprintf("delivery-%d", i+1), Lat: 24.7236 + 0.001*float64(i), Lng: 46.6753, WeightKg: 150,
				}))
			}
			request := test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
				},
				DeliveryPoints: deliveries,
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", CapacityKg: 300, StartLat: 24.7136, StartLng: 46.6753}),
				},
			})
			result, err := coordinator.Optimize(ctx, request)
			Expect(err).ToNot(HaveOccurred())

			Expect(result.Routes).To(HaveLen(1))
			Expect(waypointRefs(result.Routes[0])).To(Equal([]string{"pickup-1", "delivery-1", "delivery-2"}))
			Expect(result.Routes[0].LoadKg).To(Equal(300.0))
			Expect(lo.Map(result.Unserviceable, func(u v1.UnserviceableDelivery, _ int) string { return u.ID })).
				To(Equal([]string{"delivery-3", "delivery-4", "delivery-5"}))
			for _, u := range result.Unserviceable {
				Expect(u.Reason).To(Equal(v1.ReasonCapacityExceeded))
			}
			Expect(result.Summary.RouteCount).To(Equal(1))
			Expect(result.Summary.DeliveryCount).To(Equal(2))
			Expect(result.Summary.VehiclesUsed).To(Equal(1))
			Expect(result.Summary.AvgDeliveriesPerVehicle).To(Equal(2.0))
			Expect(result.Summary.AvgLoadPerVehicle).To(Equal(300.0))
			ExpectCoverage(request, result)
		})
		It("should route urgent stops first and report cumulative travel times", func() {
			request := test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
				},
				DeliveryPoints: []v1.DeliveryPoint{
					test.Delivery(test.DeliveryOptions{ID: "delivery-low", Lat: 24.735184, Lng: 46.6753, Priority: lo.ToPtr(2)}),
					test.Delivery(test.DeliveryOptions{ID: "delivery-mid", Lat: 24.730502, Lng: 46.682072}),
					test.Delivery(test.DeliveryOptions{ID: "delivery-high", Lat: 24.728067, Lng: 46.688664, Priority: lo.ToPtr(9)}),
				},
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753}),
				},
			})
			result, err := coordinator.Optimize(ctx, request)
			Expect(err).ToNot(HaveOccurred())

			Expect(result.Routes).To(HaveLen(1))
			route := result.Routes[0]
			Expect(route.ID).To(Equal("route-1"))
			Expect(waypointRefs(route)).To(Equal([]string{"pickup-1", "delivery-high", "delivery-mid", "delivery-low"}))
			Expect(route.Waypoints[0].Kind).To(Equal(v1.PointKindPickup))
			Expect(route.Waypoints[0].EtaMin).To(BeZero())
			for i := 1; i < len(route.Waypoints); i++ {
				Expect(route.Waypoints[i].EtaMin).To(BeNumerically(">=", route.Waypoints[i-1].EtaMin))
			}
			// Cars ride at 1.2 min/km under normal traffic and weather.
			Expect(route.TotalDurationMin).To(BeNumerically("~", route.TotalDistanceKm*1.2, 1e-9))
			Expect(route.Waypoints[len(route.Waypoints)-1].EtaMin).To(BeNumerically("~", route.TotalDurationMin, 1e-9))
		})
		It("should scale travel times by vehicle, traffic, and weather", func() {
			request := test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
				},
				DeliveryPoints: []v1.DeliveryPoint{
					test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7236, Lng: 46.6753}),
				},
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", Kind: v1.VehicleKindMotorcycle, StartLat: 24.7136, StartLng: 46.6753}),
				},
				Context: &v1.RequestContext{Traffic: v1.TrafficHeavy, Weather: v1.WeatherSnowy},
			})
			result, err := coordinator.Optimize(ctx, request)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Routes).To(HaveLen(1))
			// 1.0 min/km, times 1.5 for heavy traffic, times 1.5 for snow.
			Expect(result.Routes[0].TotalDurationMin).To(BeNumerically("~", result.Routes[0].TotalDistanceKm*2.25, 1e-9))
		})
	})

	Describe("unserviceable reasons", func() {
		var request *v1.OptimizationRequest
		downtown := v1.RestrictedZone{
			Zone: v1.Zone{
				Name: "downtown",
				Polygon: geo.Polygon{
					{Lat: 24.70, Lng: 46.60},
					{Lat: 24.80, Lng: 46.60},
					{Lat: 24.80, Lng: 46.80},
					{Lat: 24.70, Lng: 46.80},
				},
			},
			Window: lo.Must(geo.ParseTimeWindow("09:00-12:00")),
		}

		BeforeEach(func() {
			request = test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
				},
				DeliveryPoints: []v1.DeliveryPoint{
					test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.75, Lng: 46.70}),
				},
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753}),
				},
			})
		})

		expectReason := func(reason v1.UnserviceableReason) {
			GinkgoHelper()
			result, err := coordinator.Optimize(ctx, request)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Routes).To(BeEmpty())
			Expect(result.Unserviceable).To(HaveLen(1))
			Expect(result.Unserviceable[0].ID).To(Equal("delivery-1"))
			Expect(result.Unserviceable[0].Reason).To(Equal(reason))
		}

		It("should treat a windowless delivery inside an active zone as restricted", func() {
			request.BusinessRules = &v1.BusinessRules{RestrictedZones: []v1.RestrictedZone{downtown}}
			expectReason(v1.ReasonRestrictedZone)
		})
		It("should route a delivery whose window avoids the zone hours", func() {
			request.BusinessRules = &v1.BusinessRules{RestrictedZones: []v1.RestrictedZone{downtown}}
			request.DeliveryPoints[0].TimeWindow = lo.ToPtr(lo.Must(geo.ParseTimeWindow("14:00-18:00")))
			result, err := coordinator.Optimize(ctx, request)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Unserviceable).To(BeEmpty())
			Expect(result.Routes).To(HaveLen(1))
		})
		It("should restrict a delivery whose window touches the zone hours", func() {
			request.BusinessRules = &v1.BusinessRules{RestrictedZones: []v1.RestrictedZone{downtown}}
			request.DeliveryPoints[0].TimeWindow = lo.ToPtr(lo.Must(geo.ParseTimeWindow("11:00-13:00")))
			expectReason(v1.ReasonRestrictedZone)
		})
		It("should restrict deliveries outside every allowed zone", func() {
			request.BusinessRules = &v1.BusinessRules{AllowedZones: []v1.Zone{{
				Name: "suburb",
				Polygon: geo.Polygon{
					{Lat: 24.00, Lng: 46.00},
					{Lat: 24.10, Lng: 46.00},
					{Lat: 24.00, Lng: 46.10},
				},
			}}}
			expectReason(v1.ReasonRestrictedZone)
		})
		It("should flag a closed delivery window", func() {
			request.DeliveryPoints[0].TimeWindow = lo.ToPtr(lo.Must(geo.ParseTimeWindow("closed")))
			expectReason(v1.ReasonTimeWindowConflict)
		})
		It("should flag a delivery its hinted pickup can never serve", func() {
			request.PickupPoints[0].WorkingHours = lo.ToPtr(lo.Must(geo.ParseTimeWindow("06:00-08:00")))
			request.DeliveryPoints[0].PickupHint = "pickup-1"
			request.DeliveryPoints[0].TimeWindow = lo.ToPtr(lo.Must(geo.ParseTimeWindow("14:00-18:00")))
			expectReason(v1.ReasonTimeWindowConflict)
		})
		It("should report an idle fleet as infeasible", func() {
			request.Fleet[0].Status = v1.VehicleStatusUnavailable
			expectReason(v1.ReasonNoFeasibleVehicle)
		})
		It("should report the zone before the window conflict", func() {
			request.BusinessRules = &v1.BusinessRules{RestrictedZones: []v1.RestrictedZone{downtown}}
			request.DeliveryPoints[0].TimeWindow = lo.ToPtr(lo.Must(geo.ParseTimeWindow("closed")))
			expectReason(v1.ReasonRestrictedZone)
		})
	})

	Describe("validation", func() {
		DescribeTable("rejecting malformed requests",
			func(mutate func(*v1.OptimizationRequest)) {
				request := test.Request()
				mutate(request)
				result, err := coordinator.Optimize(ctx, request)
				Expect(result).To(BeNil())
				Expect(errors.IsValidation(err)).To(BeTrue())
			},
			Entry("no pickup points", func(r *v1.OptimizationRequest) { r.PickupPoints = nil }),
			Entry("no delivery points", func(r *v1.OptimizationRequest) { r.DeliveryPoints = nil }),
			Entry("no fleet", func(r *v1.OptimizationRequest) { r.Fleet = nil }),
			Entry("more points than the cap", func(r *v1.OptimizationRequest) {
				r.DeliveryPoints = manyDeliveries(501, 24.7236, 46.6753, 5)
			}),
			Entry("a delivery reusing a pickup id", func(r *v1.OptimizationRequest) {
				r.DeliveryPoints[0].ID = r.PickupPoints[0].ID
			}),
			Entry("a latitude off the globe", func(r *v1.OptimizationRequest) {
				r.DeliveryPoints[0].Lat = 95
			}),
			Entry("a priority out of range", func(r *v1.OptimizationRequest) {
				r.DeliveryPoints[0].Priority = lo.ToPtr(11)
			}),
			Entry("a nonpositive capacity", func(r *v1.OptimizationRequest) {
				r.Fleet[0].CapacityKg = -1
			}),
			Entry("a degenerate zone polygon", func(r *v1.OptimizationRequest) {
				r.BusinessRules = &v1.BusinessRules{RestrictedZones: []v1.RestrictedZone{{
					Zone:   v1.Zone{Polygon: geo.Polygon{{Lat: 24.7, Lng: 46.6}, {Lat: 24.8, Lng: 46.6}}},
					Window: lo.Must(geo.ParseTimeWindow("09:00-12:00")),
				}}}
			}),
			Entry("a rest period beyond two hours", func(r *v1.OptimizationRequest) {
				r.BusinessRules = &v1.BusinessRules{RestPeriodMin: 240}
			}),
			Entry("driver hours beyond a day", func(r *v1.OptimizationRequest) {
				r.BusinessRules = &v1.BusinessRules{MaxDriverHours: 30}
			}),
		)
		It("should name the offending field", func() {
			request := test.Request()
			request.Fleet[0].CapacityKg = -1
			_, err := coordinator.Optimize(ctx, request)
			Expect(err).To(MatchError(ContainSubstring("fleet[0].capacityKg")))
		})
		It("should canonicalize enums in place", func() {
			request := test.Request(test.RequestOptions{
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", Kind: v1.VehicleKind("van"), StartLat: 24.7136, StartLng: 46.6753}),
				},
				Context: &v1.RequestContext{Weather: v1.Weather("SNOWY"), Traffic: v1.Traffic("Heavy")},
			})
			_, err := coordinator.Optimize(ctx, request)
			Expect(err).ToNot(HaveOccurred())
			Expect(request.Fleet[0].Kind).To(Equal(v1.VehicleKindVan))
			Expect(request.Context.Weather).To(Equal(v1.WeatherSnowy))
			Expect(request.Context.Traffic).To(Equal(v1.TrafficHeavy))
		})
	})

	Describe("determinism", func() {
		demand := func() *v1.OptimizationRequest {
			var deliveries []v1.DeliveryPoint
			for i := 0; i < 12; i++ {
				deliveries = append(deliveries, test.Delivery(test.DeliveryOptions{
					ID:       fmt.Sprintf("delivery-%02d", i+1),
					Lat:      24.70 + 0.004*float64(i),
					Lng:      46.66 + 0.003*float64(i%5),
					WeightKg: float64(10 * (i%4 + 1)),
					Priority: lo.ToPtr(i%10 + 1),
				}))
			}
			return test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-west", Lat: 24.7136, Lng: 46.6553}),
					test.Pickup(test.PickupOptions{ID: "pickup-east", Lat: 24.7136, Lng: 46.7053}),
				},
				DeliveryPoints: deliveries,
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", Kind: v1.VehicleKindMotorcycle, CapacityKg: 60, StartLat: 24.7136, StartLng: 46.6553}),
					test.Vehicle(test.VehicleOptions{ID: "vehicle-2", CapacityKg: 200, StartLat: 24.7136, StartLng: 46.7053}),
					test.Vehicle(test.VehicleOptions{ID: "vehicle-3", Kind: v1.VehicleKindVan, CapacityKg: 400, StartLat: 24.7200, StartLng: 46.6800}),
				},
			})
		}
		It("should produce identical results apart from the request id", func() {
			first, err := coordinator.Optimize(ctx, demand())
			Expect(err).ToNot(HaveOccurred())
			second, err := coordinator.Optimize(ctx, demand())
			Expect(err).ToNot(HaveOccurred())

			Expect(first.RequestID).ToNot(BeEmpty())
			Expect(first.RequestID).ToNot(Equal(second.RequestID))
			first.RequestID, second.RequestID = "", ""
			Expect(first).To(Equal(second))
		})
	})

	Describe("phase accounting", func() {
		It("should time every phase of a successful run", func() {
			result, err := coordinator.Optimize(ctx, test.Request())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Timings).To(HaveLen(6))
			for _, phase := range []string{
				optimization.PhaseValidate, optimization.PhaseMatrix, optimization.PhaseCluster,
				optimization.PhaseSequence, optimization.PhaseDistribute, optimization.PhaseSummarize,
			} {
				Expect(result.Timings).To(HaveKey(phase))
			}
		})
		It("should surface cancellation as a timeout", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			result, err := coordinator.Optimize(cancelled, test.Request())
			Expect(result).To(BeNil())
			Expect(errors.IsTimeout(err)).To(BeTrue())
		})
	})

	Describe("retunable defaults", func() {
		It("should normalize retuned weights on write", func() {
			coordinator.SetDefaultWeights(ctx, v1.Weights{
				VehicleToPickupDistance:    2,
				PickupToDeliveryDistance:   3,
				DeliveryClusterDensity:     2,
				VehicleLoadBalance:         2,
				ExistingRouteCompatibility: 1,
			})
			weights := coordinator.DefaultWeights()
			Expect(weights.VehicleToPickupDistance).To(BeNumerically("~", 0.2, 1e-9))
			Expect(weights.PickupToDeliveryDistance).To(BeNumerically("~", 0.3, 1e-9))
			Expect(weights.Sum()).To(BeNumerically("~", 1, 1e-9))
		})
		It("should canonicalize the retuned strategy", func() {
			coordinator.SetDefaultStrategy(v1.DistributionStrategy("BALANCED"))
			Expect(coordinator.DefaultStrategy()).To(Equal(v1.DistributionBalanced))
		})
		It("should honor preset overrides from configuration", func() {
			custom := v1.Weights{
				VehicleToPickupDistance:    0.5,
				PickupToDeliveryDistance:   0.2,
				DeliveryClusterDensity:     0.1,
				VehicleLoadBalance:         0.1,
				ExistingRouteCompatibility: 0.1,
			}
			tuned := optimization.NewCoordinator(fakeClock, optimization.Config{
				PresetOverrides: map[v1.WeightsPreset]v1.Weights{v1.PresetDefault: custom},
			})
			Expect(tuned.DefaultWeights()).To(Equal(custom))
		})
	})

	Describe("fleet context", func() {
		It("should keep route continuity when asked to", func() {
			request := test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
				},
				DeliveryPoints: []v1.DeliveryPoint{
					test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7236, Lng: 46.6753}),
				},
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753}),
					test.Vehicle(test.VehicleOptions{ID: "vehicle-2", StartLat: 24.7136, StartLng: 46.6753}),
				},
				Preferences: &v1.Preferences{Preset: v1.PresetRouteContinuation},
			})
			result, err := coordinator.Optimize(ctx, request,
				optimization.WithExistingRoutes(map[string]string{"vehicle-2": "pickup-1"}))
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Routes).To(HaveLen(1))
			Expect(result.Routes[0].Vehicle.ID).To(Equal("vehicle-2"))
		})
		It("should count load already on board against capacity", func() {
			request := test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
				},
				DeliveryPoints: []v1.DeliveryPoint{
					test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7236, Lng: 46.6753, WeightKg: 10}),
				},
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753}),
					test.Vehicle(test.VehicleOptions{ID: "vehicle-2", StartLat: 24.7136, StartLng: 46.6753}),
				},
			})
			result, err := coordinator.Optimize(ctx, request,
				optimization.WithExistingLoads(map[string]float64{"vehicle-1": 95}))
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Routes).To(HaveLen(1))
			Expect(result.Routes[0].Vehicle.ID).To(Equal("vehicle-2"))
		})
	})
})

func manyDeliveries(n int, lat, lng, weightKg float64) []v1.DeliveryPoint {
	deliveries := make([]v1.DeliveryPoint, 0, n)
	for i := 0; i < n; i++ {
		deliveries = append(deliveries, test.Delivery(test.DeliveryOptions{
			ID:       fmt.Sprintf("delivery-%02d", i+1),
			Lat:      lat,
			Lng:      lng,
			WeightKg: weightKg,
		}))
	}
	return deliveries
}

func waypointRefs(route v1.Route) []string {
	return lo.Map(route.Waypoints, func(w v1.Waypoint, _ int) string { return w.PointRef })
}
