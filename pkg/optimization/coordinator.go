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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/errors"
	"github.com/courierd/courierd/pkg/operator/logging"
)

// Phase names reported under result timings.
const (
	PhaseValidate   = "validate"
	PhaseMatrix     = "matrix"
	PhaseCluster    = "cluster"
	PhaseSequence   = "sequence"
	PhaseDistribute = "distribute"
	PhaseSummarize  = "summarize"
)

// Config tunes a Coordinator. Zero values fall back to the documented
// defaults.
type Config struct {
	// Timeout bounds one optimize call end to end. Zero disables the
	// coordinator-owned deadline; callers may still cancel through ctx.
	Timeout time.Duration
	// DefaultPreset seeds the weights used when a request names neither
	// explicit weights nor a preset.
	DefaultPreset v1.WeightsPreset
	// DefaultStrategy applies when a request names no distribution strategy.
	DefaultStrategy v1.DistributionStrategy
	// Durations overrides the speed factor tables.
	Durations *DurationModel
	// PresetOverrides replaces individual preset weight vectors.
	PresetOverrides map[v1.WeightsPreset]v1.Weights
}

// Coordinator runs the optimize pipeline: validate, matrix, cluster,
// sequence, distribute, summarize. It holds no per-request state; the
// retunable defaults below are configuration shared by all calls.
type Coordinator struct {
	clk       clock.Clock
	durations DurationModel
	timeout   time.Duration

	mu              sync.RWMutex
	defaultWeights  v1.Weights
	defaultStrategy v1.DistributionStrategy
	presets         map[v1.WeightsPreset]v1.Weights
}

func NewCoordinator(clk clock.Clock, config Config) *Coordinator {
	table := lo.Assign(map[v1.WeightsPreset]v1.Weights{}, presets, config.PresetOverrides)
	durations := DefaultDurationModel()
	if config.Durations != nil {
		durations = *config.Durations
	}
	preset := config.DefaultPreset
	if preset == "" {
		preset = v1.DefaultPreset
	}
	strategy := config.DefaultStrategy
	if strategy == "" {
		strategy = v1.DefaultDistribution
	}
	c := &Coordinator{
		clk:             clk,
		durations:       durations,
		timeout:         config.Timeout,
		defaultStrategy: strategy,
		presets:         table,
	}
	c.defaultWeights = c.presetWeights(preset)
	return c
}

// DefaultWeights returns the weights applied when a request names neither
// explicit weights nor a preset.
func (c *Coordinator) DefaultWeights() v1.Weights {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultWeights
}

// SetDefaultWeights atomically retunes the default weight vector. Used by
// the route analysis job when the advisor suggests a better mix.
func (c *Coordinator) SetDefaultWeights(ctx context.Context, weights v1.Weights) {
	normalized := NormalizeWeights(ctx, weights)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultWeights = normalized
}

// DefaultStrategy returns the strategy applied when a request names none.
func (c *Coordinator) DefaultStrategy() v1.DistributionStrategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultStrategy
}

// SetDefaultStrategy atomically retunes the default distribution strategy.
func (c *Coordinator) SetDefaultStrategy(strategy v1.DistributionStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultStrategy = v1.NormalizeDistribution(string(strategy))
}

// OptimizeOption carries cross-request continuity hints into one call.
type OptimizeOption func(*optimizeConfig)

type optimizeConfig struct {
	existing map[string]string
	loads    map[string]float64
}

// WithExistingRoutes names the pickup each vehicle is currently serving so
// route continuation scoring has a base.
func WithExistingRoutes(pickupByVehicle map[string]string) OptimizeOption {
	return func(c *optimizeConfig) { c.existing = pickupByVehicle }
}

// WithExistingLoads seeds the weight already on board per vehicle.
func WithExistingLoads(loadByVehicle map[string]float64) OptimizeOption {
	return func(c *optimizeConfig) { c.loads = loadByVehicle }
}

// Optimize validates and canonicalizes the request in place, then runs the
// pipeline. Validation errors come back verbatim; any other phase failure is
// an OptimizationError carrying the phase name, and deadline expiry is a
// TimeoutError. Partial results are never returned.
func (c *Coordinator) Optimize(ctx context.Context, request *v1.OptimizationRequest, opts ...OptimizeOption) (*v1.OptimizationResult, error) {
	cfg := &optimizeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	requestID := uuid.NewString()
	ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithValues("requestId", requestID))

	run := &phaseRun{clk: c.clk, start: c.clk.Now(), requestID: requestID, timings: map[string]int64{}}
	result, err := c.optimize(ctx, request, cfg, requestID, run)
	switch {
	case err == nil:
		optimizeTotal.WithLabelValues("success").Inc()
		return result, nil
	case errors.IsValidation(err):
		optimizeTotal.WithLabelValues("validation_failed").Inc()
	case errors.IsTimeout(err):
		optimizeTotal.WithLabelValues("timeout").Inc()
		logging.FromContext(ctx).V(1).Info("optimization timed out", "timings", run.timings)
	default:
		optimizeTotal.WithLabelValues("optimization_failed").Inc()
	}
	return nil, err
}

func (c *Coordinator) optimize(ctx context.Context, request *v1.OptimizationRequest, cfg *optimizeConfig, requestID string, run *phaseRun) (*v1.OptimizationResult, error) {
	if err := run.do(ctx, PhaseValidate, func() error {
		return Validate(ctx, request)
	}); err != nil {
		return nil, err
	}

	var matrix *Matrix
	if err := run.do(ctx, PhaseMatrix, func() (err error) {
		matrix, err = NewMatrix(ctx, request)
		return err
	}); err != nil {
		return nil, err
	}

	weights := c.resolveWeights(ctx, request.Preferences)
	strategy := c.resolveStrategy(request.Preferences)
	clusterer := NewClusterer(matrix, weights, cfg.existing, cfg.loads)
	var clusters []*Cluster
	var leftover []v1.DeliveryPoint
	if err := run.do(ctx, PhaseCluster, func() error {
		clusters, leftover = clusterer.Cluster(request, strategy)
		return nil
	}); err != nil {
		return nil, err
	}

	// Clusters are independent, so sequencing fans out; results land at
	// their cluster's index to keep route order deterministic.
	plans := make([]*plan, len(clusters))
	if err := run.do(ctx, PhaseSequence, func() error {
		g, gctx := errgroup.WithContext(ctx)
		for i, cluster := range clusters {
			i, cluster := i, cluster
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ordered, distanceKm := Sequence(matrix, cluster)
				plans[i] = &plan{cluster: cluster, ordered: ordered, distanceKm: distanceKm}
				return nil
			})
		}
		return g.Wait()
	}); err != nil {
		return nil, err
	}

	distributor := NewDistributor(matrix, clusterer)
	var unserviceable []v1.UnserviceableDelivery
	if err := run.do(ctx, PhaseDistribute, func() error {
		plans, unserviceable = distributor.Distribute(plans, leftover, request)
		return nil
	}); err != nil {
		return nil, err
	}

	var result *v1.OptimizationResult
	if err := run.do(ctx, PhaseSummarize, func() error {
		result = c.summarize(requestID, request, matrix, plans, unserviceable)
		return nil
	}); err != nil {
		return nil, err
	}
	result.Timings = run.timings
	return result, nil
}

func (c *Coordinator) resolveWeights(ctx context.Context, prefs *v1.Preferences) v1.Weights {
	if prefs != nil && prefs.Weights != nil {
		return NormalizeWeights(ctx, *prefs.Weights)
	}
	if prefs != nil && prefs.Preset != "" {
		return c.presetWeights(prefs.Preset)
	}
	return c.DefaultWeights()
}

func (c *Coordinator) presetWeights(preset v1.WeightsPreset) v1.Weights {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if weights, ok := c.presets[preset]; ok {
		return weights
	}
	return c.presets[v1.PresetDefault]
}

func (c *Coordinator) resolveStrategy(prefs *v1.Preferences) v1.DistributionStrategy {
	if prefs != nil && prefs.Distribution != "" {
		return prefs.Distribution
	}
	return c.DefaultStrategy()
}

// summarize turns plans into routes and computes the aggregate block. ETAs
// are cumulative leg distances scaled by the duration factor of the route's
// vehicle under the request's ambient conditions.
func (c *Coordinator) summarize(requestID string, request *v1.OptimizationRequest, matrix *Matrix, plans []*plan, unserviceable []v1.UnserviceableDelivery) *v1.OptimizationResult {
	traffic := request.EffectiveTraffic()
	weather := request.EffectiveWeather()

	routes := make([]v1.Route, 0, len(plans))
	for i, p := range plans {
		factor := c.durations.Factor(p.cluster.Vehicle.Kind, traffic, weather)
		waypoints := make([]v1.Waypoint, 0, len(p.ordered)+1)
		waypoints = append(waypoints, v1.Waypoint{
			PointRef:   p.cluster.Pickup.ID,
			Kind:       v1.PointKindPickup,
			TimeWindow: p.cluster.Pickup.WorkingHours,
		})
		eta, previous := 0.0, p.cluster.Pickup.ID
		for _, delivery := range p.ordered {
			eta += matrix.DistanceBetween(previous, delivery.ID) * factor
			waypoints = append(waypoints, v1.Waypoint{
				PointRef:   delivery.ID,
				Kind:       v1.PointKindDelivery,
				EtaMin:     eta,
				TimeWindow: delivery.TimeWindow,
			})
			previous = delivery.ID
		}
		routes = append(routes, v1.Route{
			ID:               fmt.Sprintf("route-%d", i+1),
			Vehicle:          p.cluster.Vehicle,
			Waypoints:        waypoints,
			TotalDistanceKm:  p.distanceKm,
			TotalDurationMin: p.distanceKm * factor,
			LoadKg:           p.cluster.TotalLoadKg,
			ClusteringMetadata: v1.ClusteringMetadata{
				AvgScore:       p.cluster.Score,
				ClusterDensity: clusterDensity(p.ordered),
			},
		})
	}

	deliveryCount := lo.SumBy(routes, func(r v1.Route) int { return r.Deliveries() })
	vehiclesUsed := len(lo.UniqBy(routes, func(r v1.Route) string { return r.Vehicle.ID }))
	summary := v1.Summary{
		RouteCount:       len(routes),
		DeliveryCount:    deliveryCount,
		TotalDistanceKm:  lo.SumBy(routes, func(r v1.Route) float64 { return r.TotalDistanceKm }),
		TotalDurationMin: lo.SumBy(routes, func(r v1.Route) float64 { return r.TotalDurationMin }),
		VehiclesUsed:     vehiclesUsed,
	}
	if vehiclesUsed > 0 {
		summary.AvgDeliveriesPerVehicle = float64(deliveryCount) / float64(vehiclesUsed)
		summary.AvgLoadPerVehicle = lo.SumBy(routes, func(r v1.Route) float64 { return r.LoadKg }) / float64(vehiclesUsed)
	}
	return &v1.OptimizationResult{
		RequestID:     requestID,
		Routes:        routes,
		Summary:       summary,
		Unserviceable: unserviceable,
	}
}

// phaseRun times phases and maps their failures onto the closed error set.
type phaseRun struct {
	clk       clock.Clock
	start     time.Time
	requestID string
	timings   map[string]int64
}

func (p *phaseRun) do(ctx context.Context, phase string, fn func() error) error {
	if ctx.Err() != nil {
		return errors.NewTimeout(phase, p.clk.Since(p.start))
	}
	t0 := p.clk.Now()
	err := fn()
	elapsed := p.clk.Since(t0)
	p.timings[phase] = elapsed.Milliseconds()
	phaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return errors.NewTimeout(phase, p.clk.Since(p.start))
	case errors.IsValidation(err):
		return err
	default:
		return errors.NewOptimization(phase, p.requestID, err)
	}
}
