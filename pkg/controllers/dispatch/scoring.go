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

package dispatch

import (
	"math"
	"sort"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
)

// maxScoringDistanceKm is where the distance factor bottoms out: a driver
// this far or farther from the pickup earns zero distance score.
const maxScoringDistanceKm = 10.0

// stateFactor is the base score per driver state. Other states score zero
// and never pass the guard anyway.
var stateFactor = map[v1.DriverState]float64{
	v1.DriverStateAvailable: 40,
	v1.DriverStateReturning: 20,
}

// Score ranks a candidate driver for an order on a 0..100 scale, higher
// wins: up to 40 for state, 30 for proximity to the pickup, 15 for rating,
// and 15 for the remaining daily target gap.
func Score(driver *v1.Driver, order *v1.Order) float64 {
	distance := geo.Distance(driver.LastLocation, order.Pickup.Coordinate())
	distanceFactor := 30 * math.Max(0, 1-distance/maxScoringDistanceKm)
	ratingFactor := driver.Rating / 5 * 15
	targetGapFactor := math.Min(15, float64(driver.TargetGap())*2)
	return stateFactor[driver.State] + distanceFactor + ratingFactor + targetGapFactor
}

// Rank returns the candidates best first, ties broken by driver id so two
// ticks over the same fleet pick the same driver.
func Rank(order *v1.Order, candidates []*v1.Driver) []*v1.Driver {
	ranked := make([]*v1.Driver, len(candidates))
	copy(ranked, candidates)
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := Score(ranked[i], order), Score(ranked[j], order)
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}
