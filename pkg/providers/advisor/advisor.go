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

// Package advisor asks an external parameter-tuning service for clustering
// weight suggestions. The provider boots on compiled-in defaults and only
// moves off them for a response that satisfies the full schema; a missing,
// slow, or malformed advisor leaves the previous values standing, so the
// optimizer never observes a half-applied suggestion.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/operator/logging"
	"github.com/courierd/courierd/pkg/optimization"
	"github.com/courierd/courierd/pkg/utils/pretty"
)

const (
	// DefaultSuggestionTTL bounds how often Refresh goes back out to the
	// advisor. A suggestion younger than this short-circuits the call.
	DefaultSuggestionTTL = 10 * time.Minute

	suggestionKey = "suggestion"
)

// Snapshot summarizes the live system for the advisor to reason over.
type Snapshot struct {
	PendingOrders    int     `json:"pendingOrders"`
	OpenOrders       int     `json:"openOrders"`
	AvailableDrivers int     `json:"availableDrivers"`
	ActiveRoutes     int     `json:"activeRoutes"`
	AvgRouteKm       float64 `json:"avgRouteKm"`
}

// Suggestion is one accepted advisor response.
type Suggestion struct {
	Weights                 v1.Weights
	UseBalancedDistribution bool
	Comments                string
}

// Strategy maps the advisor's distribution flag onto a strategy name.
func (s Suggestion) Strategy() v1.DistributionStrategy {
	return lo.Ternary(s.UseBalancedDistribution, v1.DistributionBalanced, v1.DistributionBestMatch)
}

// Provider holds the weight vector and distribution strategy currently
// suggested by the advisor. A nil client (no endpoint configured) pins the
// provider to its defaults forever.
type Provider struct {
	client      *resty.Client
	cm          *pretty.ChangeMonitor
	suggestions *cache.Cache

	mu         sync.RWMutex
	weights    v1.Weights
	strategy   v1.DistributionStrategy
	suggestion *Suggestion
}

func NewProvider(endpoint string, timeout, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = DefaultSuggestionTTL
	}
	p := &Provider{
		cm:          pretty.NewChangeMonitor(),
		suggestions: cache.New(ttl, ttl),
	}
	if endpoint != "" {
		p.client = resty.New().SetBaseURL(endpoint).SetTimeout(timeout)
	}
	p.Reset()
	return p
}

// Weights returns the clustering weights currently in force.
func (p *Provider) Weights() v1.Weights {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.weights
}

// Distribution returns the distribution strategy currently in force.
func (p *Provider) Distribution() v1.DistributionStrategy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.strategy
}

// Suggestion returns the last applied suggestion. The boolean reports
// whether any suggestion has ever landed; callers that retune downstream
// components must not act on the compiled-in defaults.
func (p *Provider) Suggestion() (Suggestion, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.suggestion == nil {
		return Suggestion{}, false
	}
	return *p.suggestion, true
}

// Reset returns the provider to the compiled-in defaults and forgets any
// cached suggestion.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.weights = optimization.PresetWeights(v1.PresetDefault)
	p.strategy = v1.DistributionBestMatch
	p.suggestion = nil
	p.mu.Unlock()
	p.suggestions.Flush()
}

func (p *Provider) LivenessProbe(_ *http.Request) error {
	// ensure we don't deadlock and nolint for the empty critical section
	p.mu.Lock()
	//nolint: staticcheck
	p.mu.Unlock()
	return nil
}

// Refresh posts the snapshot and applies the advisor's suggestion. A
// suggestion still inside its TTL short-circuits the call. Transport
// failures, non-2xx statuses, and schema violations return an error with the
// previous values left standing; each distinct failure is logged once.
func (p *Provider) Refresh(ctx context.Context, snapshot Snapshot) error {
	if p.client == nil {
		return nil
	}
	if _, fresh := p.suggestions.Get(suggestionKey); fresh {
		return nil
	}
	var resp *resty.Response
	err := retry.Do(func() error {
		var err error
		resp, err = p.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(snapshot).
			Post("/suggestions")
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return fmt.Errorf("advisor returned %s", resp.Status())
		}
		return nil
	}, retry.Attempts(3), retry.Delay(1*time.Second), retry.DelayType(retry.FixedDelay), retry.LastErrorOnly(true))
	if err != nil {
		p.logOnce(ctx, "advisor-unreachable", err)
		refreshesTotal.WithLabelValues(outcomeUnreachable).Inc()
		return fmt.Errorf("refreshing advisor suggestion, %w", err)
	}
	suggestion, err := parseSuggestion(resp.Body())
	if err != nil {
		p.logOnce(ctx, "advisor-schema", err)
		refreshesTotal.WithLabelValues(outcomeRejected).Inc()
		return fmt.Errorf("rejecting advisor suggestion, %w", err)
	}
	p.apply(ctx, suggestion)
	refreshesTotal.WithLabelValues(outcomeApplied).Inc()
	return nil
}

func (p *Provider) apply(ctx context.Context, suggestion *Suggestion) {
	p.mu.Lock()
	p.weights = suggestion.Weights
	p.strategy = suggestion.Strategy()
	p.suggestion = suggestion
	p.mu.Unlock()
	p.suggestions.SetDefault(suggestionKey, *suggestion)
	if p.cm.HasChanged("advisor-suggestion", *suggestion) {
		logging.FromContext(ctx).Info("applied advisor suggestion",
			"strategy", suggestion.Strategy(), "comments", suggestion.Comments)
	}
}

func (p *Provider) logOnce(ctx context.Context, key string, err error) {
	if p.cm.HasChanged(key, err.Error()) {
		logging.FromContext(ctx).Error(err, "advisor suggestion not applied")
	}
}

// suggestionWire is the decode target. Pointer fields make a missing key
// distinguishable from a zero value.
type suggestionWire struct {
	VehicleToPickupDistance    *float64 `json:"vehicleToPickupDistance"`
	PickupToDeliveryDistance   *float64 `json:"pickupToDeliveryDistance"`
	DeliveryClusterDensity     *float64 `json:"deliveryClusterDensity"`
	VehicleLoadBalance         *float64 `json:"vehicleLoadBalance"`
	ExistingRouteCompatibility *float64 `json:"existingRouteCompatibility"`
	UseBalancedDistribution    *bool    `json:"useBalancedDistribution"`
	Comments                   *string  `json:"comments"`
}

// parseSuggestion enforces the schema: exactly the five weight fields, the
// distribution flag, and a comments string, with every weight in [0, 1] and
// the vector not identically zero.
func parseSuggestion(body []byte) (*Suggestion, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	wire := suggestionWire{}
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding suggestion, %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after suggestion")
	}
	var missing []string
	for field, present := range map[string]bool{
		"vehicleToPickupDistance":    wire.VehicleToPickupDistance != nil,
		"pickupToDeliveryDistance":   wire.PickupToDeliveryDistance != nil,
		"deliveryClusterDensity":     wire.DeliveryClusterDensity != nil,
		"vehicleLoadBalance":         wire.VehicleLoadBalance != nil,
		"existingRouteCompatibility": wire.ExistingRouteCompatibility != nil,
		"useBalancedDistribution":    wire.UseBalancedDistribution != nil,
		"comments":                   wire.Comments != nil,
	} {
		if !present {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("suggestion is missing fields %v", missing)
	}
	weights := v1.Weights{
		VehicleToPickupDistance:    *wire.VehicleToPickupDistance,
		PickupToDeliveryDistance:   *wire.PickupToDeliveryDistance,
		DeliveryClusterDensity:     *wire.DeliveryClusterDensity,
		VehicleLoadBalance:         *wire.VehicleLoadBalance,
		ExistingRouteCompatibility: *wire.ExistingRouteCompatibility,
	}
	for field, value := range map[string]float64{
		"vehicleToPickupDistance":    weights.VehicleToPickupDistance,
		"pickupToDeliveryDistance":   weights.PickupToDeliveryDistance,
		"deliveryClusterDensity":     weights.DeliveryClusterDensity,
		"vehicleLoadBalance":         weights.VehicleLoadBalance,
		"existingRouteCompatibility": weights.ExistingRouteCompatibility,
	} {
		if value < 0 || value > 1 {
			return nil, fmt.Errorf("field %s=%v is outside [0, 1]", field, value)
		}
	}
	if weights.Sum() <= 0 {
		return nil, fmt.Errorf("suggestion weights sum to zero")
	}
	return &Suggestion{
		Weights:                 weights,
		UseBalancedDistribution: *wire.UseBalancedDistribution,
		Comments:                *wire.Comments,
	}, nil
}
