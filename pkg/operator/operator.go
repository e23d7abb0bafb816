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

// Package operator assembles a courierd process. NewOperator builds every
// long-lived component in dependency order and hands each one to the next by
// reference; nothing reaches for process-wide mutable state. Start serves
// the metrics and health endpoints, brings up the enabled engines, and
// unwinds everything when the root context is cancelled.
package operator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/breaker"
	"github.com/courierd/courierd/pkg/cache"
	"github.com/courierd/courierd/pkg/controllers"
	"github.com/courierd/courierd/pkg/controllers/engine"
	"github.com/courierd/courierd/pkg/controllers/supervisor"
	"github.com/courierd/courierd/pkg/events"
	"github.com/courierd/courierd/pkg/jobs"
	"github.com/courierd/courierd/pkg/metrics"
	"github.com/courierd/courierd/pkg/operator/logging"
	"github.com/courierd/courierd/pkg/operator/options"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/providers/advisor"
	"github.com/courierd/courierd/pkg/providers/store"
	"github.com/courierd/courierd/pkg/state"
)

// HealthCheck is an interface for a component that exposes a LivenessProbe.
type HealthCheck interface {
	LivenessProbe(req *http.Request) error
}

// Operator holds every long-lived component of a courierd process.
type Operator struct {
	Clock      clock.Clock
	Hub        *events.Hub
	Breakers   *breaker.Manager
	Store      store.Store
	Advisor    *advisor.Provider
	Fleet      *state.Fleet
	Cache      *cache.MetricsCache
	Optimizer  *optimization.Coordinator
	Jobs       *jobs.Registry
	Runners    *jobs.Runners
	Supervisor *supervisor.Supervisor

	healthChecks []HealthCheck
}

// NewContext returns the root context for a courierd process, cancelled on
// the first SIGINT or SIGTERM.
func NewContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// NewOperator builds the component graph in dependency order. Options must
// already be injected into ctx; cmd wires them from flags, tests from
// literals.
func NewOperator(ctx context.Context) (context.Context, *Operator) {
	opts := options.FromContext(ctx)

	// Logging
	logger := logging.NewLogger(ctx, "operator")
	ctx = logging.WithLogger(ctx, logger)

	// Clock
	clk := clock.RealClock{}

	// Event hub and circuit breakers
	hub := events.NewHub(clk)
	breakers := breaker.NewManager(clk, hub, breaker.Settings{}, breakerOverrides(opts.File))

	// Store
	var st store.Store = store.NewMemory()
	if opts.StoreEndpoint != "" {
		st = store.NewClient(opts.StoreEndpoint)
		logger.V(1).Info("using remote store", "endpoint", opts.StoreEndpoint)
	}

	// Advisor
	adv := advisor.NewProvider(opts.AdvisorEndpoint, opts.AdvisorTimeout, advisor.DefaultSuggestionTTL)

	// Live state, metrics cache, optimizer
	fleet := state.NewFleet(clk, hub)
	metricsCache := cache.NewMetricsCache(opts.MetricsCacheTTL, opts.MetricsCacheSweepInterval)
	optimizer := optimization.NewCoordinator(clk, optimization.Config{
		Timeout:         opts.OptimizerTimeout,
		DefaultPreset:   v1.WeightsPreset(opts.WeightsPreset),
		DefaultStrategy: v1.DistributionStrategy(opts.DistributionStrategy),
		Durations:       durationModel(opts.File),
		PresetOverrides: presetOverrides(opts.File),
	})

	// Jobs
	registry := jobs.NewRegistry(clk, jobs.DefaultRunningLimit, jobs.DefaultHistory)
	runners := jobs.NewRunners(clk, fleet, st, breakers, adv, optimizer, metricsCache)

	// Engines
	sup := controllers.NewSupervisor(ctx, clk, fleet, st, breakers, hub, optimizer)

	return ctx, &Operator{
		Clock:        clk,
		Hub:          hub,
		Breakers:     breakers,
		Store:        st,
		Advisor:      adv,
		Fleet:        fleet,
		Cache:        metricsCache,
		Optimizer:    optimizer,
		Jobs:         registry,
		Runners:      runners,
		Supervisor:   sup,
		healthChecks: []HealthCheck{adv, sup},
	}
}

// Start serves the metrics and health endpoints, starts the enabled engines,
// and blocks until ctx is cancelled or a server fails. Engines stop before
// the servers shut down so the probes stay observable through the drain.
func (o *Operator) Start(ctx context.Context) error {
	opts := options.FromContext(ctx)
	logger := logging.FromContext(ctx)

	metricsServer := newServer(opts.MetricsPort, o.metricsMux(opts))
	healthServer := newServer(opts.HealthProbePort, o.healthMux())

	group, serverCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return listen(metricsServer) })
	group.Go(func() error { return listen(healthServer) })

	lo.Must0(o.Supervisor.StartAll(ctx))
	logger.Info("started engines",
		"engines", lo.Map(o.Supervisor.StatusAll(), func(s engine.Status, _ int) string { return s.Name }),
		"metrics-port", opts.MetricsPort, "health-probe-port", opts.HealthProbePort)

	<-serverCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.GracefulTimeout)
	defer cancel()
	err := o.Supervisor.StopAll()
	err = multierr.Append(err, healthServer.Shutdown(shutdownCtx))
	err = multierr.Append(err, metricsServer.Shutdown(shutdownCtx))
	return multierr.Append(err, group.Wait())
}

// Healthz runs every registered component liveness probe.
func (o *Operator) Healthz(w http.ResponseWriter, req *http.Request) {
	for _, check := range o.healthChecks {
		if err := check.LivenessProbe(req); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// Readyz reports readiness. The process takes no traffic before Start, so a
// reachable endpoint is sufficient.
func (o *Operator) Readyz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (o *Operator) metricsMux(opts *options.Options) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	if opts.EnableProfiling {
		registerPprof(mux)
	}
	return mux
}

func (o *Operator) healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", o.Healthz)
	mux.HandleFunc("/readyz", o.Readyz)
	return mux
}

func newServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving %s, %w", server.Addr, err)
	}
	return nil
}

func registerPprof(mux *http.ServeMux) {
	for path, handler := range map[string]http.Handler{
		"/debug/pprof/":             http.HandlerFunc(pprof.Index),
		"/debug/pprof/cmdline":      http.HandlerFunc(pprof.Cmdline),
		"/debug/pprof/profile":      http.HandlerFunc(pprof.Profile),
		"/debug/pprof/symbol":       http.HandlerFunc(pprof.Symbol),
		"/debug/pprof/trace":        http.HandlerFunc(pprof.Trace),
		"/debug/pprof/allocs":       pprof.Handler("allocs"),
		"/debug/pprof/heap":         pprof.Handler("heap"),
		"/debug/pprof/block":        pprof.Handler("block"),
		"/debug/pprof/goroutine":    pprof.Handler("goroutine"),
		"/debug/pprof/threadcreate": pprof.Handler("threadcreate"),
	} {
		mux.Handle(path, handler)
	}
}

// breakerOverrides converts the tuning file's per-name breaker sections.
// Absent fields stay zero so the breaker applies its documented defaults.
func breakerOverrides(file *options.File) map[string]breaker.Settings {
	if file == nil {
		return nil
	}
	return lo.MapValues(file.Breakers, func(cfg options.BreakerConfig, _ string) breaker.Settings {
		return breaker.Settings{
			FailureThreshold: lo.FromPtr(cfg.FailureThreshold),
			SuccessThreshold: lo.FromPtr(cfg.SuccessThreshold),
			Timeout:          time.Duration(lo.FromPtr(cfg.TimeoutMs)) * time.Millisecond,
			ResetTimeout:     time.Duration(lo.FromPtr(cfg.ResetTimeoutMs)) * time.Millisecond,
			MonitoringWindow: time.Duration(lo.FromPtr(cfg.MonitoringWindowMs)) * time.Millisecond,
		}
	})
}

// durationModel layers the tuning file's speed factor tables over the
// compiled-in model. Returns nil when the file carries no table so the
// coordinator keeps its own defaults.
func durationModel(file *options.File) *optimization.DurationModel {
	if file == nil || (len(file.SpeedFactors) == 0 && len(file.TrafficMultipliers) == 0 && len(file.WeatherMultipliers) == 0) {
		return nil
	}
	model := optimization.DefaultDurationModel()
	for kind, factor := range file.SpeedFactors {
		model.MinPerKm[v1.VehicleKind(kind)] = factor
	}
	for traffic, factor := range file.TrafficMultipliers {
		model.Traffic[v1.Traffic(traffic)] = factor
	}
	for weather, factor := range file.WeatherMultipliers {
		model.Weather[v1.Weather(weather)] = factor
	}
	return &model
}

// presetOverrides materializes the tuning file's partial preset overrides
// into full weight vectors, starting from each preset's compiled-in values.
func presetOverrides(file *options.File) map[v1.WeightsPreset]v1.Weights {
	if file == nil || len(file.Presets) == 0 {
		return nil
	}
	overrides := map[v1.WeightsPreset]v1.Weights{}
	for name, override := range file.Presets {
		preset := v1.WeightsPreset(name)
		weights := optimization.PresetWeights(preset)
		if override.VehicleToPickupDistance != nil {
			weights.VehicleToPickupDistance = *override.VehicleToPickupDistance
		}
		if override.PickupToDeliveryDistance != nil {
			weights.PickupToDeliveryDistance = *override.PickupToDeliveryDistance
		}
		if override.DeliveryClusterDensity != nil {
			weights.DeliveryClusterDensity = *override.DeliveryClusterDensity
		}
		if override.VehicleLoadBalance != nil {
			weights.VehicleLoadBalance = *override.VehicleLoadBalance
		}
		if override.ExistingRouteCompatibility != nil {
			weights.ExistingRouteCompatibility = *override.ExistingRouteCompatibility
		}
		overrides[preset] = weights
	}
	return overrides
}
