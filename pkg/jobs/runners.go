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

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/samber/lo"
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/breaker"
	"github.com/courierd/courierd/pkg/cache"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/providers/advisor"
	"github.com/courierd/courierd/pkg/providers/store"
	"github.com/courierd/courierd/pkg/state"
)

// Cache keys under which the runners publish their latest reports.
const (
	CacheKeyRouteAnalysis = "jobs/route_analysis"
	CacheKeyFleetPerf     = "jobs/fleet_perf"
	CacheKeyDemand        = "jobs/demand"
	CacheKeySLA           = "jobs/sla"
)

// Runners builds the standard analytical jobs over the live system. Each
// method returns a Fn for Submit; finished reports also land in the metrics
// cache so repeated reads inside the TTL cost nothing.
type Runners struct {
	clk       clock.Clock
	fleet     *state.Fleet
	store     store.Store
	breaker   *breaker.Breaker
	advisor   *advisor.Provider
	optimizer *optimization.Coordinator
	cache     *cache.MetricsCache
}

func NewRunners(clk clock.Clock, fleet *state.Fleet, st store.Store, breakers *breaker.Manager,
	adv *advisor.Provider, optimizer *optimization.Coordinator, metricsCache *cache.MetricsCache) *Runners {
	return &Runners{
		clk:       clk,
		fleet:     fleet,
		store:     st,
		breaker:   breakers.Breaker("store"),
		advisor:   adv,
		optimizer: optimizer,
		cache:     metricsCache,
	}
}

// RouteAnalysisReport is the terminal record of a route_analysis job.
type RouteAnalysisReport struct {
	Snapshot     advisor.Snapshot `json:"snapshot"`
	Applied      bool             `json:"applied"`
	Weights      *v1.Weights      `json:"weights,omitempty"`
	Strategy     string           `json:"strategy,omitempty"`
	Comments     string           `json:"comments,omitempty"`
	AdvisorError string           `json:"advisorError,omitempty"`
}

// RouteAnalysis summarizes the live system for the advisor and retunes the
// optimizer defaults with whatever it suggests. An unreachable or malformed
// advisor completes the job with the reason on record and the optimizer
// untouched.
func (r *Runners) RouteAnalysis() Fn {
	return func(ctx context.Context) (any, error) {
		report := RouteAnalysisReport{Snapshot: r.snapshot()}
		if err := r.advisor.Refresh(ctx, report.Snapshot); err != nil {
			report.AdvisorError = err.Error()
			r.cache.Set(CacheKeyRouteAnalysis, report)
			return report, nil
		}
		if suggestion, ok := r.advisor.Suggestion(); ok {
			r.optimizer.SetDefaultWeights(ctx, suggestion.Weights)
			r.optimizer.SetDefaultStrategy(suggestion.Strategy())
			report.Applied = true
			report.Weights = lo.ToPtr(suggestion.Weights)
			report.Strategy = string(suggestion.Strategy())
			report.Comments = suggestion.Comments
		}
		r.cache.Set(CacheKeyRouteAnalysis, report)
		return report, nil
	}
}

// FleetPerfReport is the terminal record of a fleet_perf job.
type FleetPerfReport struct {
	Drivers          int            `json:"drivers"`
	ByState          map[string]int `json:"byState"`
	CompletedToday   int            `json:"completedToday"`
	AvgRating        float64        `json:"avgRating"`
	AvgHoursWorked   float64        `json:"avgHoursWorked"`
	TargetAttainment float64        `json:"targetAttainment"`
}

// FleetPerformance aggregates driver productivity out of the live registry.
func (r *Runners) FleetPerformance() Fn {
	return func(_ context.Context) (any, error) {
		drivers := r.fleet.Drivers.List()
		report := FleetPerfReport{
			Drivers: len(drivers),
			ByState: map[string]int{},
		}
		var rating, hours, target, completedToward float64
		for _, driver := range drivers {
			report.ByState[string(driver.State)]++
			report.CompletedToday += driver.CompletedToday
			rating += driver.Rating
			hours += driver.HoursWorkedToday
			if driver.TargetDeliveries > 0 {
				target += float64(driver.TargetDeliveries)
				completedToward += float64(driver.CompletedToday)
			}
		}
		if len(drivers) > 0 {
			report.AvgRating = rating / float64(len(drivers))
			report.AvgHoursWorked = hours / float64(len(drivers))
		}
		if target > 0 {
			report.TargetAttainment = completedToward / target
		}
		r.cache.Set(CacheKeyFleetPerf, report)
		return report, nil
	}
}

// DemandReport is the terminal record of a demand job.
type DemandReport struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"byStatus"`
	OldestPendingMin float64        `json:"oldestPendingMin"`
}

// Demand counts the order book by status and surfaces how long the oldest
// pending order has been waiting.
func (r *Runners) Demand() Fn {
	return func(_ context.Context) (any, error) {
		orders := r.fleet.Orders.List()
		report := DemandReport{
			Total:    len(orders),
			ByStatus: map[string]int{},
		}
		for _, order := range orders {
			report.ByStatus[string(order.Status)]++
			if order.Status == v1.OrderStatusPending {
				if age := r.clk.Since(order.CreatedAt).Minutes(); age > report.OldestPendingMin {
					report.OldestPendingMin = age
				}
			}
		}
		r.cache.Set(CacheKeyDemand, report)
		return report, nil
	}
}

// SLAReport is the terminal record of an sla job.
type SLAReport struct {
	Open       int     `json:"open"`
	AtRisk     int     `json:"atRisk"`
	Breached   int     `json:"breached"`
	Escalated  int     `json:"escalated"`
	Completed  int     `json:"completed"`
	OnTimeRate float64 `json:"onTimeRate"`
}

// SLA scans the store for deadline posture: open orders inside the imminent
// band, blown deadlines, and the on-time rate of completed deliveries. The
// scan goes through the store breaker like every other outbound call.
func (r *Runners) SLA(imminentBand time.Duration) Fn {
	return func(ctx context.Context) (any, error) {
		var orders []*v1.Order
		err := r.breaker.Execute(ctx, func(ctx context.Context) error {
			return retry.Do(func() error {
				var err error
				orders, err = r.store.ListOrders(ctx, store.OrderFilter{})
				return err
			}, retry.Attempts(3), retry.Delay(1*time.Second), retry.DelayType(retry.FixedDelay), retry.LastErrorOnly(true))
		})
		if err != nil {
			return nil, fmt.Errorf("scanning orders, %w", err)
		}

		now := r.clk.Now()
		report := SLAReport{}
		var onTime int
		for _, order := range orders {
			if order.Escalated {
				report.Escalated++
			}
			switch {
			case order.Status.IsOpen():
				report.Open++
				if order.SLADeadline.IsZero() {
					continue
				}
				if remaining := order.SLADeadline.Sub(now); remaining < 0 {
					report.Breached++
				} else if remaining < imminentBand {
					report.AtRisk++
				}
			case order.Status == v1.OrderStatusCompleted && !order.SLADeadline.IsZero():
				report.Completed++
				if !order.CompletedAt.After(order.SLADeadline) {
					onTime++
				}
			}
		}
		if report.Completed > 0 {
			report.OnTimeRate = float64(onTime) / float64(report.Completed)
		}
		r.cache.Set(CacheKeySLA, report)
		return report, nil
	}
}

func (r *Runners) snapshot() advisor.Snapshot {
	routes := r.fleet.Routes.List()
	var km float64
	for _, route := range routes {
		km += route.TotalDistanceKm
	}
	snapshot := advisor.Snapshot{
		PendingOrders:    len(r.fleet.Orders.List(v1.OrderStatusPending)),
		OpenOrders:       len(r.fleet.Orders.List(v1.OrderStatusAssigned, v1.OrderStatusInTransit)),
		AvailableDrivers: len(r.fleet.Drivers.List(v1.DriverStateAvailable)),
		ActiveRoutes:     len(routes),
	}
	if len(routes) > 0 {
		snapshot.AvgRouteKm = km / float64(len(routes))
	}
	return snapshot
}
