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
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/test"
)

var _ = Describe("Clusterer", func() {
	var request *v1.OptimizationRequest

	newClusterer := func(existing map[string]string, loads map[string]float64) *optimization.Clusterer {
		matrix, err := optimization.NewMatrix(ctx, request)
		Expect(err).ToNot(HaveOccurred())
		return optimization.NewClusterer(matrix, optimization.PresetWeights(v1.PresetDefault), existing, loads)
	}

	Context("pickup assignment", func() {
		BeforeEach(func() {
			request = test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
					test.Pickup(test.PickupOptions{ID: "pickup-2", Lat: 24.7536, Lng: 46.6753}),
				},
				DeliveryPoints: []v1.DeliveryPoint{
					test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7146, Lng: 46.6753}),
				},
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753}),
				},
			})
		})
		It("should honor a pickup hint over proximity", func() {
			request.DeliveryPoints[0].PickupHint = "pickup-2"
			clusters, leftover := newClusterer(nil, nil).Cluster(request, v1.DistributionBestMatch)
			Expect(leftover).To(BeEmpty())
			Expect(clusters).To(HaveLen(1))
			Expect(clusters[0].Pickup.ID).To(Equal("pickup-2"))
		})
		It("should fall back to the nearest pickup for a dangling hint", func() {
			request.DeliveryPoints[0].PickupHint = "pickup-gone"
			clusters, leftover := newClusterer(nil, nil).Cluster(request, v1.DistributionBestMatch)
			Expect(leftover).To(BeEmpty())
			Expect(clusters).To(HaveLen(1))
			Expect(clusters[0].Pickup.ID).To(Equal("pickup-1"))
		})
	})

	Context("vehicle ranking", func() {
		BeforeEach(func() {
			request = test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
				},
				DeliveryPoints: []v1.DeliveryPoint{
					test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7236, Lng: 46.6753, WeightKg: 10}),
					test.Delivery(test.DeliveryOptions{ID: "delivery-2", Lat: 24.7436, Lng: 46.6753, WeightKg: 10}),
				},
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-far", StartLat: 24.8136, StartLng: 46.7753}),
					test.Vehicle(test.VehicleOptions{ID: "vehicle-near", StartLat: 24.7136, StartLng: 46.6753}),
				},
			})
		})
		It("should rank the closer vehicle first", func() {
			candidates := newClusterer(nil, nil).Rank(request.PickupPoints[0], request.DeliveryPoints, request.Fleet)
			Expect(candidates).To(HaveLen(2))
			Expect(candidates[0].Vehicle.ID).To(Equal("vehicle-near"))
			Expect(candidates[0].Score).To(BeNumerically("<", candidates[1].Score))
		})
		It("should break score ties by lower vehicle id", func() {
			request.Fleet = []v1.Vehicle{
				test.Vehicle(test.VehicleOptions{ID: "vehicle-b", StartLat: 24.7136, StartLng: 46.6753}),
				test.Vehicle(test.VehicleOptions{ID: "vehicle-a", StartLat: 24.7136, StartLng: 46.6753}),
			}
			candidates := newClusterer(nil, nil).Rank(request.PickupPoints[0], request.DeliveryPoints, request.Fleet)
			Expect(candidates[0].Score).To(Equal(candidates[1].Score))
			Expect(candidates[0].Vehicle.ID).To(Equal("vehicle-a"))
		})
		It("should skip vehicles that are not assignable", func() {
			request.Fleet[0].Status = v1.VehicleStatusDelivering
			candidates := newClusterer(nil, nil).Rank(request.PickupPoints[0], request.DeliveryPoints, request.Fleet)
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].Vehicle.ID).To(Equal("vehicle-near"))
		})
		It("should compose the five factor penalties", func() {
			pickup := request.PickupPoints[0]
			deliveries := request.DeliveryPoints
			candidates := newClusterer(nil, nil).Rank(pickup, deliveries, request.Fleet[1:])
			Expect(candidates).To(HaveLen(1))
			breakdown := candidates[0].Breakdown

			// The vehicle sits on the pickup, so distance and penalty are zero.
			Expect(breakdown[optimization.FactorVehicleToPickup].Value).To(BeZero())
			Expect(breakdown[optimization.FactorVehicleToPickup].Score).To(BeZero())

			avg := (geo.Distance(pickup.Coordinate(), deliveries[0].Coordinate()) +
				geo.Distance(pickup.Coordinate(), deliveries[1].Coordinate())) / 2
			Expect(breakdown[optimization.FactorPickupToDelivery].Value).To(BeNumerically("~", avg, 1e-9))
			Expect(breakdown[optimization.FactorPickupToDelivery].Score).To(BeNumerically("~", math.Min(avg*2, 100), 1e-9))

			centroid := geo.Centroid([]geo.Coordinate{deliveries[0].Coordinate(), deliveries[1].Coordinate()})
			spread := (geo.Distance(centroid, deliveries[0].Coordinate()) +
				geo.Distance(centroid, deliveries[1].Coordinate())) / 2
			Expect(breakdown[optimization.FactorClusterDensity].Score).To(BeNumerically("~", 100-spread*5, 1e-9))

			// 20 kg over a 100 kg capacity.
			Expect(breakdown[optimization.FactorLoadBalance].Value).To(BeNumerically("~", 20, 1e-9))
			Expect(breakdown[optimization.FactorLoadBalance].Score).To(BeNumerically("~", 50, 1e-9))

			Expect(breakdown[optimization.FactorRouteCompat].Score).To(Equal(50.0))

			want := breakdown[optimization.FactorVehicleToPickup].Score*0.25 +
				breakdown[optimization.FactorPickupToDelivery].Score*0.30 +
				breakdown[optimization.FactorClusterDensity].Score*0.20 +
				breakdown[optimization.FactorLoadBalance].Score*0.15 +
				breakdown[optimization.FactorRouteCompat].Score*0.10
			Expect(candidates[0].Score).To(BeNumerically("~", want, 1e-9))
		})
		DescribeTable("utilization buckets",
			func(weightKg float64, capacity float64, score float64) {
				request.DeliveryPoints = []v1.DeliveryPoint{
					test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7236, Lng: 46.6753, WeightKg: weightKg}),
				}
				request.Fleet = []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753, CapacityKg: capacity}),
				}
				candidates := newClusterer(nil, nil).Rank(request.PickupPoints[0], request.DeliveryPoints, request.Fleet)
				Expect(candidates[0].Breakdown[optimization.FactorLoadBalance].Score).To(BeNumerically("~", score, 1e-9))
			},
			Entry("overloaded", 110.0, 100.0, 100.0),
			Entry("nearly full", 95.0, 100.0, 10.0),
			Entry("comfortably loaded", 75.0, 100.0, 30.0),
			Entry("half empty", 50.0, 100.0, 20.0),
			Entry("idle", 10.0, 100.0, 60.0),
		)
		It("should reward vehicles already serving the pickup", func() {
			clusterer := newClusterer(map[string]string{
				"vehicle-near": "pickup-1",
				"vehicle-far":  "pickup-9",
			}, nil)
			candidates := clusterer.Rank(request.PickupPoints[0], request.DeliveryPoints, request.Fleet)
			scores := lo.SliceToMap(candidates, func(c optimization.Candidate) (string, float64) {
				return c.Vehicle.ID, c.Breakdown[optimization.FactorRouteCompat].Score
			})
			Expect(scores["vehicle-near"]).To(Equal(0.0))
			Expect(scores["vehicle-far"]).To(Equal(100.0))
		})
	})

	Context("materialization", func() {
		BeforeEach(func() {
			request = test.Request(test.RequestOptions{
				PickupPoints: []v1.PickupPoint{
					test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
				},
				DeliveryPoints: []v1.DeliveryPoint{
					test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7236, Lng: 46.6753, WeightKg: 100, Priority: lo.ToPtr(9)}),
					test.Delivery(test.DeliveryOptions{ID: "delivery-2", Lat: 24.7246, Lng: 46.6753, WeightKg: 100, Priority: lo.ToPtr(8)}),
					test.Delivery(test.DeliveryOptions{ID: "delivery-3", Lat: 24.7256, Lng: 46.6753, WeightKg: 100, Priority: lo.ToPtr(1)}),
				},
				Fleet: []v1.Vehicle{
					test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753, CapacityKg: 200}),
					test.Vehicle(test.VehicleOptions{ID: "vehicle-2", StartLat: 24.7136, StartLng: 46.6753, CapacityKg: 200}),
				},
			})
		})
		It("should spill to the next candidate only on capacity", func() {
			clusters, leftover := newClusterer(nil, nil).Cluster(request, v1.DistributionBestMatch)
			Expect(leftover).To(BeEmpty())
			Expect(clusters).To(HaveLen(2))
			Expect(clusters[0].Vehicle.ID).To(Equal("vehicle-1"))
			Expect(deliveryIDs(clusters[0])).To(ConsistOf("delivery-1", "delivery-2"))
			Expect(clusters[0].TotalLoadKg).To(Equal(200.0))
			Expect(clusters[1].Vehicle.ID).To(Equal("vehicle-2"))
			Expect(deliveryIDs(clusters[1])).To(ConsistOf("delivery-3"))
		})
		It("should round-robin across the top vehicles when balanced", func() {
			request.DeliveryPoints = []v1.DeliveryPoint{}
			for _, id := range []string{"delivery-1", "delivery-2", "delivery-3", "delivery-4", "delivery-5", "delivery-6"} {
				request.DeliveryPoints = append(request.DeliveryPoints, test.Delivery(test.DeliveryOptions{
					ID: id, Lat: 24.7236, Lng: 46.6753, WeightKg: 10,
				}))
			}
			request.Fleet = []v1.Vehicle{
				test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753}),
				test.Vehicle(test.VehicleOptions{ID: "vehicle-2", StartLat: 24.7136, StartLng: 46.6753}),
				test.Vehicle(test.VehicleOptions{ID: "vehicle-3", StartLat: 24.7136, StartLng: 46.6753}),
			}
			clusters, leftover := newClusterer(nil, nil).Cluster(request, v1.DistributionBalanced)
			Expect(leftover).To(BeEmpty())
			Expect(clusters).To(HaveLen(3))
			Expect(deliveryIDs(clusters[0])).To(ConsistOf("delivery-1", "delivery-4"))
			Expect(deliveryIDs(clusters[1])).To(ConsistOf("delivery-2", "delivery-5"))
			Expect(deliveryIDs(clusters[2])).To(ConsistOf("delivery-3", "delivery-6"))
		})
		It("should respect load already on board", func() {
			request.DeliveryPoints = request.DeliveryPoints[:1]
			clusters, leftover := newClusterer(nil, map[string]float64{"vehicle-1": 150}).Cluster(request, v1.DistributionBestMatch)
			Expect(leftover).To(BeEmpty())
			Expect(clusters).To(HaveLen(1))
			Expect(clusters[0].Vehicle.ID).To(Equal("vehicle-2"))
		})
		It("should leave deliveries nothing can carry to the distributor", func() {
			request.DeliveryPoints = []v1.DeliveryPoint{
				test.Delivery(test.DeliveryOptions{ID: "delivery-heavy", Lat: 24.7236, Lng: 46.6753, WeightKg: 500}),
			}
			clusters, leftover := newClusterer(nil, nil).Cluster(request, v1.DistributionBestMatch)
			Expect(clusters).To(BeEmpty())
			Expect(lo.Map(leftover, func(d v1.DeliveryPoint, _ int) string { return d.ID })).To(ConsistOf("delivery-heavy"))
		})
	})
})

func deliveryIDs(cluster *optimization.Cluster) []string {
	return lo.Map(cluster.Deliveries, func(d v1.DeliveryPoint, _ int) string { return d.ID })
}
