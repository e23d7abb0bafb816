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

package options

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/courierd/courierd/pkg/utils/env"
)

var (
	validLogLevels     = []string{"", "debug", "info", "error"}
	validLogEncodings  = []string{"", "json", "console"}
	validPresets       = []string{"default", "proximity_focused", "load_balanced", "cluster_optimized", "route_continuation"}
	validDistributions = []string{"best_match", "balanced"}
)

type optionsKey struct{}

// EngineOptions tunes one automation engine loop.
type EngineOptions struct {
	Interval    time.Duration
	Concurrency int
	Enabled     bool
}

// Options for running this binary
type Options struct {
	*flag.FlagSet
	// Operational
	MetricsPort         int
	HealthProbePort     int
	EnableProfiling     bool
	LogLevel            string
	LogEncoding         string
	LogOutputPaths      string
	LogErrorOutputPaths string
	ConfigFile          string
	GracefulTimeout     time.Duration
	// Optimizer
	OptimizerTimeout     time.Duration
	WeightsPreset        string
	DistributionStrategy string
	// Engines
	Dispatch                EngineOptions
	Batching                EngineOptions
	Reoptimization          EngineOptions
	SLA                     EngineOptions
	MaxBatchSize            int
	ReoptMovementThreshold  float64
	ReoptImprovementPercent float64
	SLAImminentBand         time.Duration
	LocationFreshness       time.Duration
	// Caching
	MetricsCacheTTL           time.Duration
	MetricsCacheSweepInterval time.Duration
	// Collaborators
	AdvisorEndpoint string
	AdvisorTimeout  time.Duration
	StoreEndpoint   string
	// Tabular tuning loaded from ConfigFile, nil when absent.
	File *File
}

// New creates an Options struct and registers CLI flags and environment variables to fill-in the Options struct fields
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("courierd", flag.ContinueOnError)
	opts.FlagSet = f

	// Operational
	f.IntVar(&opts.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 8080), "The port the metric endpoint binds to for operating metrics about the controller itself")
	f.IntVar(&opts.HealthProbePort, "health-probe-port", env.WithDefaultInt("HEALTH_PROBE_PORT", 8081), "The port the health probe endpoint binds to for reporting controller health")
	f.BoolVar(&opts.EnableProfiling, "enable-profiling", env.WithDefaultBool("ENABLE_PROFILING", false), "Enable the profiling on the metric endpoint")
	f.StringVar(&opts.LogLevel, "log-level", env.WithDefaultString("LOG_LEVEL", "info"), "Log verbosity level. Can be one of 'debug', 'info', or 'error'")
	f.StringVar(&opts.LogEncoding, "log-encoding", env.WithDefaultString("LOG_ENCODING", "json"), "Log encoding. Can be one of 'json' or 'console'")
	f.StringVar(&opts.LogOutputPaths, "log-output-paths", env.WithDefaultString("LOG_OUTPUT_PATHS", "stdout"), "Optional comma separated paths for directing log output")
	f.StringVar(&opts.LogErrorOutputPaths, "log-error-output-paths", env.WithDefaultString("LOG_ERROR_OUTPUT_PATHS", "stderr"), "Optional comma separated paths for logging error output")
	f.StringVar(&opts.ConfigFile, "config-file", env.WithDefaultString("CONFIG_FILE", ""), "Optional TOML file with tabular tuning: speed factors, traffic and weather multipliers, breaker overrides, weight presets")
	f.DurationVar(&opts.GracefulTimeout, "graceful-timeout", env.WithDefaultDuration("GRACEFUL_TIMEOUT", 30*time.Second), "How long an engine stop waits for the in-flight tick before abandoning it")

	// Optimizer
	f.DurationVar(&opts.OptimizerTimeout, "optimizer-timeout", env.WithDefaultDuration("OPTIMIZER_TIMEOUT", 30*time.Second), "Hard deadline for a single optimize call")
	f.StringVar(&opts.WeightsPreset, "weights-preset", env.WithDefaultString("WEIGHTS_PRESET", "default"), "Weight preset applied when a request does not carry one. Can be one of 'default', 'proximity_focused', 'load_balanced', 'cluster_optimized', or 'route_continuation'")
	f.StringVar(&opts.DistributionStrategy, "distribution-strategy", env.WithDefaultString("DISTRIBUTION_STRATEGY", "best_match"), "Distribution strategy applied when a request does not carry one. Can be one of 'best_match' or 'balanced'")

	// Engines
	f.DurationVar(&opts.Dispatch.Interval, "dispatch-interval", env.WithDefaultDuration("DISPATCH_INTERVAL", 5*time.Second), "Dispatch engine loop period")
	f.IntVar(&opts.Dispatch.Concurrency, "dispatch-concurrency", env.WithDefaultInt("DISPATCH_CONCURRENCY", 10), "Dispatch engine per-tick parallelism cap")
	f.BoolVar(&opts.Dispatch.Enabled, "dispatch-enabled", env.WithDefaultBool("DISPATCH_ENABLED", true), "Whether the dispatch engine participates in start-all")
	f.DurationVar(&opts.Batching.Interval, "batching-interval", env.WithDefaultDuration("BATCHING_INTERVAL", 30*time.Second), "Batching engine loop period")
	f.IntVar(&opts.Batching.Concurrency, "batching-concurrency", env.WithDefaultInt("BATCHING_CONCURRENCY", 4), "Batching engine per-tick parallelism cap")
	f.BoolVar(&opts.Batching.Enabled, "batching-enabled", env.WithDefaultBool("BATCHING_ENABLED", true), "Whether the batching engine participates in start-all")
	f.DurationVar(&opts.Reoptimization.Interval, "reopt-interval", env.WithDefaultDuration("REOPT_INTERVAL", 60*time.Second), "Route reoptimization engine loop period")
	f.IntVar(&opts.Reoptimization.Concurrency, "reopt-concurrency", env.WithDefaultInt("REOPT_CONCURRENCY", 4), "Route reoptimization engine per-tick parallelism cap")
	f.BoolVar(&opts.Reoptimization.Enabled, "reopt-enabled", env.WithDefaultBool("REOPT_ENABLED", true), "Whether the route reoptimization engine participates in start-all")
	f.DurationVar(&opts.SLA.Interval, "sla-interval", env.WithDefaultDuration("SLA_INTERVAL", 15*time.Second), "SLA escalation engine loop period")
	f.IntVar(&opts.SLA.Concurrency, "sla-concurrency", env.WithDefaultInt("SLA_CONCURRENCY", 10), "SLA escalation engine per-tick parallelism cap")
	f.BoolVar(&opts.SLA.Enabled, "sla-enabled", env.WithDefaultBool("SLA_ENABLED", true), "Whether the SLA escalation engine participates in start-all")
	f.IntVar(&opts.MaxBatchSize, "max-batch-size", env.WithDefaultInt("MAX_BATCH_SIZE", 10), "Maximum number of orders grouped into one batch")
	f.Float64Var(&opts.ReoptMovementThreshold, "reopt-movement-threshold-km", env.WithDefaultFloat64("REOPT_MOVEMENT_THRESHOLD_KM", 0.5), "Driver movement in kilometers that makes an active route eligible for reoptimization")
	f.Float64Var(&opts.ReoptImprovementPercent, "reopt-improvement-percent", env.WithDefaultFloat64("REOPT_IMPROVEMENT_PERCENT", 5), "Total distance improvement in percent required before a reoptimized sequence is committed")
	f.DurationVar(&opts.SLAImminentBand, "sla-imminent-band", env.WithDefaultDuration("SLA_IMMINENT_BAND", 10*time.Minute), "Remaining time under which an open delivery is flagged as an imminent SLA breach")
	f.DurationVar(&opts.LocationFreshness, "location-freshness", env.WithDefaultDuration("LOCATION_FRESHNESS", 5*time.Minute), "Maximum age of a driver location update before the driver stops being assignable")

	// Caching
	f.DurationVar(&opts.MetricsCacheTTL, "metrics-cache-ttl", env.WithDefaultDuration("METRICS_CACHE_TTL", 5*time.Minute), "Lifetime of a metrics cache entry")
	f.DurationVar(&opts.MetricsCacheSweepInterval, "metrics-cache-sweep-interval", env.WithDefaultDuration("METRICS_CACHE_SWEEP_INTERVAL", time.Minute), "How often expired metrics cache entries are swept")

	// Collaborators
	f.StringVar(&opts.AdvisorEndpoint, "advisor-endpoint", env.WithDefaultString("ADVISOR_ENDPOINT", ""), "Optional parameter advisor endpoint; when empty the compiled-in defaults are used")
	f.DurationVar(&opts.AdvisorTimeout, "advisor-timeout", env.WithDefaultDuration("ADVISOR_TIMEOUT", 10*time.Second), "Per-call timeout for the parameter advisor")
	f.StringVar(&opts.StoreEndpoint, "store-endpoint", env.WithDefaultString("STORE_ENDPOINT", ""), "Optional store endpoint; when empty the in-process store is used")
	return opts
}

// MustParse reads the user passed flags, environment variables, and default values.
// Options are validated and panics if an error is returned
func (o *Options) MustParse() *Options {
	err := o.Parse(os.Args[1:])

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		panic(err)
	}
	return o
}

// Parse parses the arguments, layers in the optional config file, and validates.
func (o *Options) Parse(args []string) error {
	if err := o.FlagSet.Parse(args); err != nil {
		return fmt.Errorf("parsing flags, %w", err)
	}
	return o.Resolve()
}

// Resolve layers in the optional config file and validates. Parse calls it
// after reading flags; an external flag parser (cobra) calls it once its own
// pass has filled the fields.
func (o *Options) Resolve() error {
	if o.ConfigFile != "" {
		file, err := ReadFile(o.ConfigFile)
		if err != nil {
			return fmt.Errorf("reading config file %q, %w", o.ConfigFile, err)
		}
		o.File = file
	}
	if err := o.Validate(); err != nil {
		return fmt.Errorf("validating options, %w", err)
	}
	return nil
}

func (o Options) Validate() (err error) {
	if !lo.Contains(validLogLevels, o.LogLevel) {
		err = multierr.Append(err, fmt.Errorf("log-level may only be one of debug, info, or error"))
	}
	if !lo.Contains(validLogEncodings, o.LogEncoding) {
		err = multierr.Append(err, fmt.Errorf("log-encoding may only be either json or console"))
	}
	if !lo.Contains(validPresets, o.WeightsPreset) {
		err = multierr.Append(err, fmt.Errorf("weights-preset %q is not a recognised preset", o.WeightsPreset))
	}
	if !lo.Contains(validDistributions, o.DistributionStrategy) {
		err = multierr.Append(err, fmt.Errorf("distribution-strategy may only be either best_match or balanced"))
	}
	for name, engine := range map[string]EngineOptions{"dispatch": o.Dispatch, "batching": o.Batching, "reopt": o.Reoptimization, "sla": o.SLA} {
		if engine.Interval <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s-interval must be positive", name))
		}
		if engine.Concurrency < 1 {
			err = multierr.Append(err, fmt.Errorf("%s-concurrency must be at least 1", name))
		}
	}
	if o.OptimizerTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("optimizer-timeout must be positive"))
	}
	if o.MaxBatchSize < 1 {
		err = multierr.Append(err, fmt.Errorf("max-batch-size must be at least 1"))
	}
	if o.ReoptMovementThreshold < 0 {
		err = multierr.Append(err, fmt.Errorf("reopt-movement-threshold-km must not be negative"))
	}
	if o.ReoptImprovementPercent < 0 {
		err = multierr.Append(err, fmt.Errorf("reopt-improvement-percent must not be negative"))
	}
	err = multierr.Append(err, o.validateEndpoint("advisor-endpoint", o.AdvisorEndpoint))
	err = multierr.Append(err, o.validateEndpoint("store-endpoint", o.StoreEndpoint))
	if o.File != nil {
		err = multierr.Append(err, o.File.Validate())
	}
	return err
}

func (o Options) validateEndpoint(name, value string) error {
	if value == "" {
		return nil
	}
	endpoint, err := url.Parse(value)
	// url.Parse() will accept a lot of input without error; make
	// sure it's a real URL
	if err != nil || !endpoint.IsAbs() || endpoint.Hostname() == "" {
		return fmt.Errorf("%q not a valid %s URL", value, name)
	}
	return nil
}

func (o *Options) ToContext(ctx context.Context) context.Context {
	return ToContext(ctx, o)
}

func ToContext(ctx context.Context, opts *Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, opts)
}

func FromContext(ctx context.Context) *Options {
	retval := ctx.Value(optionsKey{})
	if retval == nil {
		// This is a developer error if this happens, so we should panic
		panic("options doesn't exist in context")
	}
	return retval.(*Options)
}
