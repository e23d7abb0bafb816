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

package optimization

import (
	"context"
	"fmt"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
)

// yieldEvery is how many matrix cells are filled between cancellation
// checks.
const yieldEvery = 10_000

// Matrix holds pairwise great-circle kilometres over a request's points,
// pickups first then deliveries, both in input order. It is immutable once
// built.
type Matrix struct {
	ids   []string
	index map[string]int
	cells [][]float64
}

// NewMatrix builds the symmetric distance matrix for a request. Construction
// yields to ctx every few thousand cells so a deadline can interrupt large
// inputs.
func NewMatrix(ctx context.Context, request *v1.OptimizationRequest) (*Matrix, error) {
	coords := make([]geo.Coordinate, 0, len(request.PickupPoints)+len(request.DeliveryPoints))
	m := &Matrix{index: map[string]int{}}
	for _, pickup := range request.PickupPoints {
		m.index[pickup.ID] = len(m.ids)
		m.ids = append(m.ids, pickup.ID)
		coords = append(coords, pickup.Coordinate())
	}
	for _, delivery := range request.DeliveryPoints {
		m.index[delivery.ID] = len(m.ids)
		m.ids = append(m.ids, delivery.ID)
		coords = append(coords, delivery.Coordinate())
	}

	n := len(m.ids)
	m.cells = make([][]float64, n)
	for i := range m.cells {
		m.cells[i] = make([]float64, n)
	}
	filled := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := geo.Distance(coords[i], coords[j])
			m.cells[i][j], m.cells[j][i] = d, d
			if filled++; filled%yieldEvery == 0 {
				select {
				case <-ctx.Done():
					return nil, fmt.Errorf("building matrix, %w", ctx.Err())
				default:
				}
			}
		}
	}
	return m, nil
}

// Size returns the number of points in the matrix.
func (m *Matrix) Size() int {
	return len(m.ids)
}

// Index returns the matrix index of a point id, or -1 when absent.
func (m *Matrix) Index(id string) int {
	if i, ok := m.index[id]; ok {
		return i
	}
	return -1
}

// Distance returns kilometres between two matrix indices.
func (m *Matrix) Distance(i, j int) float64 {
	return m.cells[i][j]
}

// DistanceBetween returns kilometres between two point ids.
func (m *Matrix) DistanceBetween(a, b string) float64 {
	return m.cells[m.index[a]][m.index[b]]
}

// DurationModel turns kilometres into minutes:
// T = D · minPerKm(kind) · traffic · weather. The numeric tables are
// configuration; these are the documented defaults.
type DurationModel struct {
	MinPerKm map[v1.VehicleKind]float64
	Traffic  map[v1.Traffic]float64
	Weather  map[v1.Weather]float64
}

func DefaultDurationModel() DurationModel {
	return DurationModel{
		MinPerKm: map[v1.VehicleKind]float64{
			v1.VehicleKindMotorcycle: 1.0,
			v1.VehicleKindCar:        1.2,
			v1.VehicleKindVan:        1.5,
			v1.VehicleKindMixed:      1.5,
			v1.VehicleKindTruck:      2.0,
		},
		Traffic: map[v1.Traffic]float64{
			v1.TrafficLight:  0.8,
			v1.TrafficNormal: 1.0,
			v1.TrafficMedium: 1.2,
			v1.TrafficHeavy:  1.5,
		},
		Weather: map[v1.Weather]float64{
			v1.WeatherRainy: 1.2,
			v1.WeatherSnowy: 1.5,
		},
	}
}

// Factor returns minutes per kilometre for the vehicle kind under the given
// ambient conditions. Unknown table entries contribute a neutral 1.0, except
// an unknown kind which falls back to the truck factor.
func (m DurationModel) Factor(kind v1.VehicleKind, traffic v1.Traffic, weather v1.Weather) float64 {
	perKm, ok := m.MinPerKm[kind]
	if !ok {
		perKm = m.MinPerKm[v1.DefaultVehicleKind]
	}
	factor := perKm
	if t, ok := m.Traffic[traffic]; ok {
		factor *= t
	}
	if w, ok := m.Weather[weather]; ok {
		factor *= w
	}
	return factor
}
