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

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/test"
)

var _ = Describe("Matrix", func() {
	var request *v1.OptimizationRequest

	BeforeEach(func() {
		request = test.Request(test.RequestOptions{
			PickupPoints: []v1.PickupPoint{
				test.Pickup(test.PickupOptions{ID: "pickup-1", Lat: 24.7136, Lng: 46.6753}),
			},
			DeliveryPoints: []v1.DeliveryPoint{
				test.Delivery(test.DeliveryOptions{ID: "delivery-1", Lat: 24.7236, Lng: 46.6753}),
				test.Delivery(test.DeliveryOptions{ID: "delivery-2", Lat: 24.7136, Lng: 46.7053}),
			},
		})
	})
	It("should index pickups before deliveries in input order", func() {
		matrix, err := optimization.NewMatrix(ctx, request)
		Expect(err).ToNot(HaveOccurred())
		Expect(matrix.Size()).To(Equal(3))
		Expect(matrix.Index("pickup-1")).To(Equal(0))
		Expect(matrix.Index("delivery-1")).To(Equal(1))
		Expect(matrix.Index("delivery-2")).To(Equal(2))
		Expect(matrix.Index("unknown")).To(Equal(-1))
	})
	It("should be symmetric with a zero diagonal", func() {
		matrix, err := optimization.NewMatrix(ctx, request)
		Expect(err).ToNot(HaveOccurred())
		for i := 0; i < matrix.Size(); i++ {
			Expect(matrix.Distance(i, i)).To(BeZero())
			for j := 0; j < matrix.Size(); j++ {
				Expect(matrix.Distance(i, j)).To(Equal(matrix.Distance(j, i)))
			}
		}
	})
	It("should agree with the haversine distance", func() {
		matrix, err := optimization.NewMatrix(ctx, request)
		Expect(err).ToNot(HaveOccurred())
		want := geo.Distance(
			geo.Coordinate{Lat: 24.7136, Lng: 46.6753},
			geo.Coordinate{Lat: 24.7236, Lng: 46.6753},
		)
		Expect(matrix.DistanceBetween("pickup-1", "delivery-1")).To(Equal(want))
		// A hundredth of a degree of latitude is a bit over a kilometre.
		Expect(want).To(BeNumerically("~", 1.112, 0.01))
	})
	It("should stop building when the context is cancelled", func() {
		deliveries := make([]v1.DeliveryPoint, 0, 150)
		for i := 0; i < 150; i++ {
			deliveries = append(deliveries, test.Delivery(test.DeliveryOptions{
				ID:  fmt.Sprintf("delivery-%d", i),
				Lat: 24.7 + float64(i)*0.001,
				Lng: 46.6753,
			}))
		}
		request.DeliveryPoints = deliveries

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := optimization.NewMatrix(cancelled, request)
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("DurationModel", func() {
	var model optimization.DurationModel

	BeforeEach(func() {
		model = optimization.DefaultDurationModel()
	})
	It("should multiply the speed factor by ambient conditions", func() {
		Expect(model.Factor(v1.VehicleKindTruck, v1.TrafficHeavy, v1.WeatherSnowy)).To(Equal(4.5))
		Expect(model.Factor(v1.VehicleKindMotorcycle, v1.TrafficLight, v1.WeatherRainy)).To(BeNumerically("~", 0.96, 1e-9))
		Expect(model.Factor(v1.VehicleKindCar, v1.TrafficNormal, v1.WeatherNormal)).To(Equal(1.2))
	})
	It("should treat unlisted conditions as neutral", func() {
		Expect(model.Factor(v1.VehicleKindVan, v1.TrafficNormal, v1.WeatherSunny)).To(Equal(1.5))
		Expect(model.Factor(v1.VehicleKindVan, v1.TrafficNormal, v1.WeatherCloudy)).To(Equal(1.5))
	})
	It("should fall back to the truck factor for an unknown kind", func() {
		Expect(model.Factor(v1.VehicleKind("HOVERBOARD"), v1.TrafficNormal, v1.WeatherNormal)).To(Equal(2.0))
	})
})
