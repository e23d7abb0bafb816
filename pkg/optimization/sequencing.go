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
	"math"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
)

// twoOptPasses caps 2-opt at a hard latency bound; callers must not rely on
// global optimality.
const twoOptPasses = 100

// Costs yields pairwise kilometres for sequencing.
type Costs interface {
	Distance(i, j int) float64
}

// Sequence orders a cluster's deliveries starting at its pickup:
// nearest-neighbour construction with priority tilt, then 2-opt. It returns
// the deliveries in visiting order and the total route distance.
func Sequence(matrix *Matrix, cluster *Cluster) ([]v1.DeliveryPoint, float64) {
	ids := make([]int, 0, len(cluster.Deliveries)+1)
	ids = append(ids, matrix.Index(cluster.Pickup.ID))
	factors := make([]float64, 0, len(cluster.Deliveries)+1)
	factors = append(factors, 1)
	for _, delivery := range cluster.Deliveries {
		ids = append(ids, matrix.Index(delivery.ID))
		factors = append(factors, delivery.Band().DistanceFactor())
	}
	view := indexView{costs: matrix, ids: ids}
	order := sequenceStops(view, len(ids), factors)

	ordered := make([]v1.DeliveryPoint, 0, len(cluster.Deliveries))
	for _, i := range order[1:] {
		ordered = append(ordered, cluster.Deliveries[i-1])
	}
	return ordered, routeDistance(view, order)
}

// SequenceFrom orders deliveries from an arbitrary start coordinate,
// computing distances directly. The reoptimization engine uses this to
// re-sequence a running route from the driver's current position.
func SequenceFrom(start geo.Coordinate, deliveries []v1.DeliveryPoint) ([]v1.DeliveryPoint, float64) {
	coords := make([]geo.Coordinate, 0, len(deliveries)+1)
	coords = append(coords, start)
	factors := make([]float64, 0, len(deliveries)+1)
	factors = append(factors, 1)
	for _, delivery := range deliveries {
		coords = append(coords, delivery.Coordinate())
		factors = append(factors, delivery.Band().DistanceFactor())
	}
	costs := coordCosts(coords)
	order := sequenceStops(costs, len(coords), factors)

	ordered := make([]v1.DeliveryPoint, 0, len(deliveries))
	for _, i := range order[1:] {
		ordered = append(ordered, deliveries[i-1])
	}
	return ordered, routeDistance(costs, order)
}

// sequenceStops computes the visiting order of n stops with stop 0 pinned as
// the start. Construction picks the unvisited stop minimising perceived
// distance D(current, s) * factors[s]; ties keep the lower index. 2-opt then
// reverses segments while a full pass still shortens the open route.
func sequenceStops(costs Costs, n int, factors []float64) []int {
	order := make([]int, 0, n)
	order = append(order, 0)
	visited := make([]bool, n)
	visited[0] = true
	current := 0
	for len(order) < n {
		next, best := -1, math.Inf(1)
		for s := 1; s < n; s++ {
			if visited[s] {
				continue
			}
			if perceived := costs.Distance(current, s) * factors[s]; perceived < best {
				next, best = s, perceived
			}
		}
		visited[next] = true
		order = append(order, next)
		current = next
	}
	return twoOpt(costs, order)
}

// twoOpt improves an open route by segment reversal. The route does not
// return to the start, so the edge past the last stop costs nothing.
func twoOpt(costs Costs, order []int) []int {
	edge := func(i, j int) float64 {
		if j >= len(order) {
			return 0
		}
		return costs.Distance(order[i], order[j])
	}
	for pass := 0; pass < twoOptPasses; pass++ {
		improved := false
		for i := 1; i < len(order)-1; i++ {
			for k := i + 1; k < len(order); k++ {
				if edge(i-1, k)+edge(i, k+1) < edge(i-1, i)+edge(k, k+1)-1e-9 {
					reverse(order, i, k)
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return order
}

func reverse(order []int, i, k int) {
	for i < k {
		order[i], order[k] = order[k], order[i]
		i++
		k--
	}
}

func routeDistance(costs Costs, order []int) float64 {
	var total float64
	for i := 0; i+1 < len(order); i++ {
		total += costs.Distance(order[i], order[i+1])
	}
	return total
}

// indexView exposes a subset of a larger cost source under local indices.
type indexView struct {
	costs Costs
	ids   []int
}

func (v indexView) Distance(i, j int) float64 {
	return v.costs.Distance(v.ids[i], v.ids[j])
}

// coordCosts computes great-circle distances directly from coordinates.
type coordCosts []geo.Coordinate

func (c coordCosts) Distance(i, j int) float64 {
	return geo.Distance(c[i], c[j])
}
