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
	"sort"

	"github.com/samber/lo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
)

// Factor names the five clustering penalty factors.
type Factor string

const (
	FactorVehicleToPickup  Factor = "vehicle_to_pickup_distance"
	FactorPickupToDelivery Factor = "pickup_to_delivery_distance"
	FactorClusterDensity   Factor = "delivery_cluster_density"
	FactorLoadBalance      Factor = "vehicle_load_balance"
	FactorRouteCompat      Factor = "existing_route_compatibility"
)

// FactorScore is one factor's contribution to a candidate score: the raw
// value it was computed from, the [0,100] penalty, and the weight applied.
type FactorScore struct {
	Value  float64 `json:"value"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Cluster is the ephemeral (pickup, vehicle, deliveries) triple handed to
// the sequencer. Lower scores are better.
type Cluster struct {
	Pickup      v1.PickupPoint
	Vehicle     v1.Vehicle
	Deliveries  []v1.DeliveryPoint
	TotalLoadKg float64
	Score       float64
	Breakdown   map[Factor]FactorScore
}

// Candidate is one vehicle's ranking entry for a pickup.
type Candidate struct {
	Vehicle    v1.Vehicle
	InputIndex int
	Score      float64
	Breakdown  map[Factor]FactorScore
}

// pickupGroup collects the deliveries assigned to one pickup, both in input
// order.
type pickupGroup struct {
	pickup     v1.PickupPoint
	deliveries []v1.DeliveryPoint
}

// Clusterer assigns each delivery to exactly one (pickup, vehicle) pair.
// Existing assignments and loads describe routes already being driven so a
// new optimize call can prefer route continuity.
type Clusterer struct {
	matrix   *Matrix
	weights  v1.Weights
	existing map[string]string
	loads    map[string]float64
}

func NewClusterer(matrix *Matrix, weights v1.Weights, existing map[string]string, loads map[string]float64) *Clusterer {
	return &Clusterer{
		matrix:   matrix,
		weights:  weights,
		existing: existing,
		loads:    loads,
	}
}

// Cluster runs pickup assignment, vehicle ranking, and materialization for
// one request. It returns the placed clusters in deterministic order and
// the deliveries no assignable vehicle could take; reason tagging is the
// distributor's job.
func (c *Clusterer) Cluster(request *v1.OptimizationRequest, strategy v1.DistributionStrategy) ([]*Cluster, []v1.DeliveryPoint) {
	var leftover []v1.DeliveryPoint
	groups := c.assign(request, &leftover)

	// Placement tracks committed weight per vehicle, seeded with the load
	// already on board from active routes.
	placed := lo.Assign(map[string]float64{}, c.loads)
	byPair := map[string]*Cluster{}
	var clusters []*Cluster
	for _, group := range groups {
		candidates := c.Rank(group.pickup, group.deliveries, request.Fleet)
		if len(candidates) == 0 {
			leftover = append(leftover, group.deliveries...)
			continue
		}
		pool := candidates
		if strategy == v1.DistributionBalanced && len(pool) > 3 {
			pool = pool[:3]
		}
		// Heaviest constraints first: priority desc, then input order.
		ordered := orderForPlacement(group.deliveries, request.DeliveryPoints)
		for i, delivery := range ordered {
			candidate := placeDelivery(delivery, pool, placed, i, strategy)
			if candidate == nil {
				leftover = append(leftover, delivery)
				continue
			}
			placed[candidate.Vehicle.ID] += delivery.WeightKg
			key := group.pickup.ID + "/" + candidate.Vehicle.ID
			cluster, ok := byPair[key]
			if !ok {
				cluster = &Cluster{
					Pickup:    group.pickup,
					Vehicle:   candidate.Vehicle,
					Score:     candidate.Score,
					Breakdown: candidate.Breakdown,
				}
				byPair[key] = cluster
				clusters = append(clusters, cluster)
			}
			cluster.Deliveries = append(cluster.Deliveries, delivery)
			cluster.TotalLoadKg += delivery.WeightKg
		}
	}
	return clusters, leftover
}

// assign maps every delivery to its pickup: an existing hint wins, anything
// else goes to the nearest pickup by matrix distance. Deliveries that fail
// the zone or window feasibility checks are diverted to leftover before
// assignment.
func (c *Clusterer) assign(request *v1.OptimizationRequest, leftover *[]v1.DeliveryPoint) []pickupGroup {
	groups := lo.Map(request.PickupPoints, func(pickup v1.PickupPoint, _ int) pickupGroup {
		return pickupGroup{pickup: pickup}
	})
	index := map[string]int{}
	for i, pickup := range request.PickupPoints {
		index[pickup.ID] = i
	}
	for _, delivery := range request.DeliveryPoints {
		if !deliverable(request, delivery) {
			*leftover = append(*leftover, delivery)
			continue
		}
		if i, ok := index[delivery.PickupHint]; delivery.PickupHint != "" && ok {
			groups[i].deliveries = append(groups[i].deliveries, delivery)
			continue
		}
		nearest, best := 0, math.Inf(1)
		for i, pickup := range request.PickupPoints {
			if d := c.matrix.DistanceBetween(delivery.ID, pickup.ID); d < best {
				nearest, best = i, d
			}
		}
		groups[nearest].deliveries = append(groups[nearest].deliveries, delivery)
	}
	return lo.Filter(groups, func(g pickupGroup, _ int) bool { return len(g.deliveries) > 0 })
}

// Rank scores every assignable vehicle for a (pickup, delivery group) pair
// and returns candidates sorted best first. Ties break on lower vehicle id,
// then earlier fleet index.
func (c *Clusterer) Rank(pickup v1.PickupPoint, deliveries []v1.DeliveryPoint, fleet []v1.Vehicle) []Candidate {
	var candidates []Candidate
	for i, vehicle := range fleet {
		if !vehicle.Assignable() {
			continue
		}
		score, breakdown := c.score(pickup, deliveries, vehicle)
		candidates = append(candidates, Candidate{
			Vehicle:    vehicle,
			InputIndex: i,
			Score:      score,
			Breakdown:  breakdown,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score < candidates[j].Score
		}
		if candidates[i].Vehicle.ID != candidates[j].Vehicle.ID {
			return candidates[i].Vehicle.ID < candidates[j].Vehicle.ID
		}
		return candidates[i].InputIndex < candidates[j].InputIndex
	})
	return candidates
}

// score combines the five factors linearly. Every factor is a [0,100]
// penalty; lower totals win.
func (c *Clusterer) score(pickup v1.PickupPoint, deliveries []v1.DeliveryPoint, vehicle v1.Vehicle) (float64, map[Factor]FactorScore) {
	vehicleToPickup := geo.Distance(vehicle.Start(), pickup.Coordinate())

	var pickupToDeliveries float64
	for _, delivery := range deliveries {
		pickupToDeliveries += c.matrix.DistanceBetween(pickup.ID, delivery.ID)
	}
	pickupToDeliveries /= float64(len(deliveries))

	density := clusterDensity(deliveries)

	groupLoad := lo.SumBy(deliveries, func(d v1.DeliveryPoint) float64 { return d.WeightKg })
	utilization := (c.loads[vehicle.ID] + groupLoad) / vehicle.CapacityKg * 100

	compatibility := c.compatibilityScore(vehicle.ID, pickup.ID)
	breakdown := map[Factor]FactorScore{
		FactorVehicleToPickup:  {Value: vehicleToPickup, Score: math.Min(vehicleToPickup*2, 100), Weight: c.weights.VehicleToPickupDistance},
		FactorPickupToDelivery: {Value: pickupToDeliveries, Score: math.Min(pickupToDeliveries*2, 100), Weight: c.weights.PickupToDeliveryDistance},
		FactorClusterDensity:   {Value: density, Score: math.Max(0, 100-density*5), Weight: c.weights.DeliveryClusterDensity},
		FactorLoadBalance:      {Value: utilization, Score: utilizationScore(utilization), Weight: c.weights.VehicleLoadBalance},
		FactorRouteCompat:      {Value: compatibility, Score: compatibility, Weight: c.weights.ExistingRouteCompatibility},
	}
	// Summed in a fixed factor order so identical inputs produce
	// bit-identical scores.
	total := breakdown[FactorVehicleToPickup].Score*c.weights.VehicleToPickupDistance +
		breakdown[FactorPickupToDelivery].Score*c.weights.PickupToDeliveryDistance +
		breakdown[FactorClusterDensity].Score*c.weights.DeliveryClusterDensity +
		breakdown[FactorLoadBalance].Score*c.weights.VehicleLoadBalance +
		breakdown[FactorRouteCompat].Score*c.weights.ExistingRouteCompatibility
	return total, breakdown
}

// clusterDensity is the mean distance of the deliveries from their centroid
// in kilometres.
func clusterDensity(deliveries []v1.DeliveryPoint) float64 {
	if len(deliveries) == 0 {
		return 0
	}
	coords := lo.Map(deliveries, func(d v1.DeliveryPoint, _ int) geo.Coordinate { return d.Coordinate() })
	centroid := geo.Centroid(coords)
	var sum float64
	for _, coord := range coords {
		sum += geo.Distance(centroid, coord)
	}
	return sum / float64(len(coords))
}

func (c *Clusterer) compatibilityScore(vehicleID, pickupID string) float64 {
	served, ok := c.existing[vehicleID]
	switch {
	case !ok:
		return 50
	case served == pickupID:
		return 0
	default:
		return 100
	}
}

func utilizationScore(u float64) float64 {
	switch {
	case u > 100:
		return 100
	case u > 90:
		return 10
	case u > 70:
		return 30
	default:
		return 70 - u
	}
}

// orderForPlacement sorts a group's deliveries by priority descending, then
// request input index ascending.
func orderForPlacement(deliveries, all []v1.DeliveryPoint) []v1.DeliveryPoint {
	index := map[string]int{}
	for i, delivery := range all {
		index[delivery.ID] = i
	}
	ordered := append([]v1.DeliveryPoint(nil), deliveries...)
	sort.Slice(ordered, func(i, j int) bool {
		if pi, pj := ordered[i].PriorityValue(), ordered[j].PriorityValue(); pi != pj {
			return pi > pj
		}
		return index[ordered[i].ID] < index[ordered[j].ID]
	})
	return ordered
}

// placeDelivery picks the candidate that receives a delivery under the
// strategy. best_match walks the ranking in order; balanced rotates through
// the top candidates. Either way the first candidate with remaining
// capacity wins; nil means nothing fits.
func placeDelivery(delivery v1.DeliveryPoint, pool []Candidate, placed map[string]float64, turn int, strategy v1.DistributionStrategy) *Candidate {
	for i := range pool {
		j := i
		if strategy == v1.DistributionBalanced {
			j = (turn + i) % len(pool)
		}
		candidate := &pool[j]
		if placed[candidate.Vehicle.ID]+delivery.WeightKg <= candidate.Vehicle.CapacityKg {
			return candidate
		}
	}
	return nil
}
