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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/test"
)

var _ = Describe("Sequencer", func() {
	sequence := func(request *v1.OptimizationRequest) ([]v1.DeliveryPoint, float64, *optimization.Matrix) {
		matrix, err := optimization.NewMatrix(ctx, request)
		Expect(err).ToNot(HaveOccurred())
		ordered, distanceKm := optimization.Sequence(matrix, &optimization.Cluster{
			Pickup:     request.PickupPoints[0],
			Deliveries: request.DeliveryPoints,
		})
		return ordered, distanceKm, matrix
	}

	It("should visit urgent deliveries earlier when distances are close", func() {
		// Three stops fanned out two-ish kilometres from the pickup. The high
		// priority stop is a hundred metres farther than the medium one, so
		// untilted nearest-neighbour would start with the medium stop.
		request := test.Request(test.RequestOptions{
			PickupPoints: []v1.PickupPoint{
				test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
			},
			DeliveryPoints: []v1.DeliveryPoint{
				test.Delivery(test.DeliveryOptions{ID: "delivery-low", Lat: 24.735184, Lng: 46.6753, Priority: lo.ToPtr(2)}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-mid", Lat: 24.730502, Lng: 46.682072}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-high", Lat: 24.728067, Lng: 46.688664, Priority: lo.ToPtr(9)}),
			},
			Fleet: []v1.Vehicle{test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753})},
		})
		ordered, _, _ := sequence(request)
		Expect(stopIDs(ordered)).To(Equal([]string{"delivery-high", "delivery-mid", "delivery-low"}))
	})

	It("should order equidistant stops purely by priority", func() {
		// One stop due north and one due south of the pickup, offset by the
		// same exact binary fraction of a degree so the two legs are
		// equidistant to well below the improvement threshold.
		const base, step = 24.7136, 1.0 / 64.0
		request := test.Request(test.RequestOptions{
			PickupPoints: []v1.PickupPoint{
				test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: base, Lng: 46.6753}),
			},
			DeliveryPoints: []v1.DeliveryPoint{
				test.Delivery(test.DeliveryOptions{ID: "delivery-north", Lat: base + step, Lng: 46.6753, Priority: lo.ToPtr(2)}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-south", Lat: base - step, Lng: 46.6753, Priority: lo.ToPtr(9)}),
			},
			Fleet: []v1.Vehicle{test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: base, StartLng: 46.6753})},
		})
		ordered, _, _ := sequence(request)
		Expect(stopIDs(ordered)).To(Equal([]string{"delivery-south", "delivery-north"}))
	})

	It("should keep input order between equidistant stops of equal priority", func() {
		const base, step = 24.7136, 1.0 / 64.0
		request := test.Request(test.RequestOptions{
			PickupPoints: []v1.PickupPoint{
				test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: base, Lng: 46.6753}),
			},
			DeliveryPoints: []v1.DeliveryPoint{
				test.Delivery(test.DeliveryOptions{ID: "delivery-north", Lat: base + step, Lng: 46.6753}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-south", Lat: base - step, Lng: 46.6753}),
			},
			Fleet: []v1.Vehicle{test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: base, StartLng: 46.6753})},
		})
		ordered, _, _ := sequence(request)
		Expect(stopIDs(ordered)).To(Equal([]string{"delivery-north", "delivery-south"}))
	})

	It("should report the distance of the open route it returns", func() {
		request := test.Request(test.RequestOptions{
			PickupPoints: []v1.PickupPoint{
				test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
			},
			DeliveryPoints: []v1.DeliveryPoint{
				test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7336, Lng: 46.6553}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-2", Lat: 24.6936, Lng: 46.7053}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-3", Lat: 24.7536, Lng: 46.6953}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-4", Lat: 24.7036, Lng: 46.6253}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-5", Lat: 24.7436, Lng: 46.7253}),
			},
			Fleet: []v1.Vehicle{test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753})},
		})
		ordered, distanceKm, matrix := sequence(request)
		Expect(ordered).To(HaveLen(5))

		stops := append([]string{"pickup-1"}, stopIDs(ordered)...)
		var legs float64
		for i := 0; i+1 < len(stops); i++ {
			legs += matrix.DistanceBetween(stops[i], stops[i+1])
		}
		Expect(distanceKm).To(BeNumerically("~", legs, 1e-9))
	})

	It("should leave no segment reversal that shortens the route", func() {
		request := test.Request(test.RequestOptions{
			PickupPoints: []v1.PickupPoint{
				test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
			},
			DeliveryPoints: []v1.DeliveryPoint{
				test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7536, Lng: 46.7153}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-2", Lat: 24.6836, Lng: 46.6453}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-3", Lat: 24.7436, Lng: 46.6353}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-4", Lat: 24.6936, Lng: 46.7253}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-5", Lat: 24.7636, Lng: 46.6653}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-6", Lat: 24.7036, Lng: 46.6853}),
			},
			Fleet: []v1.Vehicle{test.Vehicle(test.VehicleOptions{ID: "vehicle-1", StartLat: 24.7136, StartLng: 46.6753})},
		})
		ordered, _, matrix := sequence(request)

		stops := append([]string{"pickup-1"}, stopIDs(ordered)...)
		edge := func(i, j int) float64 {
			if j >= len(stops) {
				return 0
			}
			return matrix.DistanceBetween(stops[i], stops[j])
		}
		for i := 1; i < len(stops)-1; i++ {
			for k := i + 1; k < len(stops); k++ {
				gain := edge(i-1, i) + edge(k, k+1) - edge(i-1, k) - edge(i, k+1)
				Expect(gain).To(BeNumerically("<=", 1e-9),
					"reversing stops %d..%d would shorten the route", i, k)
			}
		}
	})

	Describe("SequenceFrom", func() {
		It("should start at the given coordinate", func() {
			start := geo.Coordinate{Lat: 24.7136, Lng: 46.6753}
			near := test.Delivery(test.DeliveryOptions{ID: "delivery-near", Lat: 24.7226, Lng: 46.6753})
			far := test.Delivery(test.DeliveryOptions{ID: "delivery-far", Lat: 24.7406, Lng: 46.6753})

			ordered, distanceKm := optimization.SequenceFrom(start, []v1.DeliveryPoint{far, near})
			Expect(stopIDs(ordered)).To(Equal([]string{"delivery-near", "delivery-far"}))
			want := geo.Distance(start, near.Coordinate()) + geo.Distance(near.Coordinate(), far.Coordinate())
			Expect(distanceKm).To(BeNumerically("~", want, 1e-9))
		})
	})
})

func stopIDs(deliveries []v1.DeliveryPoint) []string {
	return lo.Map(deliveries, func(d v1.DeliveryPoint, _ int) string { return d.ID })
}
