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

// Package controllers assembles the automation engines: each one wraps a
// domain ticker in the shared engine loop and hands it to a supervisor that
// owns the group lifecycle.
package controllers

import (
	"context"

	"github.com/samber/lo"
	"k8s.io/utils/clock"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/breaker"
	"github.com/courierd/courierd/pkg/controllers/batching"
	"github.com/courierd/courierd/pkg/controllers/dispatch"
	"github.com/courierd/courierd/pkg/controllers/engine"
	"github.com/courierd/courierd/pkg/controllers/reoptimization"
	"github.com/courierd/courierd/pkg/controllers/sla"
	"github.com/courierd/courierd/pkg/controllers/supervisor"
	"github.com/courierd/courierd/pkg/events"
	"github.com/courierd/courierd/pkg/operator/options"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/providers/store"
	"github.com/courierd/courierd/pkg/state"
)

// NewSupervisor wires the four automation engines and registers them under a
// supervisor in dispatch, batching, reoptimization, sla order. Tuning and the
// per-engine enabled gates come from the options on ctx. The supervisor is
// returned stopped; the operator decides when the group starts.
func NewSupervisor(ctx context.Context, clk clock.WithTicker, fleet *state.Fleet, st store.Store,
	breakers *breaker.Manager, hub *events.Hub, optimizer *optimization.Coordinator) *supervisor.Supervisor {
	opts := options.FromContext(ctx)

	dispatchEngine := engine.NewEngine(
		dispatch.NewController(clk, fleet, st, breakers, hub, opts.LocationFreshness),
		clk, hub, engineConfig(opts, opts.Dispatch))
	batchingEngine := engine.NewEngine(
		batching.NewController(clk, fleet, st, breakers, optimizer, hub, opts.LocationFreshness, opts.MaxBatchSize),
		clk, hub, engineConfig(opts, opts.Batching))
	reoptimizationEngine := engine.NewEngine(
		reoptimization.NewController(clk, fleet, st, breakers, opts.LocationFreshness, opts.ReoptMovementThreshold, opts.ReoptImprovementPercent),
		clk, hub, engineConfig(opts, opts.Reoptimization))
	slaEngine := engine.NewEngine(
		sla.NewController(clk, fleet, st, breakers, hub, opts.SLAImminentBand),
		clk, hub, engineConfig(opts, opts.SLA))

	sup := supervisor.New()
	lo.Must0(sup.Register(dispatchEngine, opts.Dispatch.Enabled))
	lo.Must0(sup.Register(batchingEngine, opts.Batching.Enabled))
	lo.Must0(sup.Register(reoptimizationEngine, opts.Reoptimization.Enabled))
	lo.Must0(sup.Register(slaEngine, opts.SLA.Enabled))

	// Fresh demand and returning capacity should not wait out the dispatch
	// interval.
	go pumpTriggers(ctx, hub, dispatchEngine)

	return sup
}

func engineConfig(opts *options.Options, eng options.EngineOptions) engine.Config {
	return engine.Config{
		Interval:        eng.Interval,
		Concurrency:     eng.Concurrency,
		GracefulTimeout: opts.GracefulTimeout,
	}
}

// pumpTriggers nudges the dispatch engine whenever the state registries
// report a new pending order or a driver rejoining the available pool.
// Trigger coalesces, so a burst of changes costs one early tick at most.
func pumpTriggers(ctx context.Context, hub *events.Hub, dispatchEngine *engine.Engine) {
	sub := hub.Subscribe("dispatch-trigger", events.StateChanged)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if wantsDispatch(evt) {
				dispatchEngine.Trigger()
			}
		}
	}
}

func wantsDispatch(evt events.Event) bool {
	kind, _ := evt.Payload["kind"].(string)
	to, _ := evt.Payload["to"].(string)
	switch kind {
	case "order":
		return to == string(v1.OrderStatusPending)
	case "driver":
		return to == string(v1.DriverStateAvailable)
	}
	return false
}
