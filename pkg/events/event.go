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

package events

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Type enumerates the closed set of event types carried by the hub.
type Type string

const (
	OrderAssigned        Type = "order-assigned"
	OrderUnassigned      Type = "order-unassigned"
	DeliveryComplete     Type = "delivery-complete"
	StateChanged         Type = "state-changed"
	SLABreachImminent    Type = "sla-breach-imminent"
	SLABreachConfirmed   Type = "sla-breach-confirmed"
	BreakerOpened        Type = "breaker_opened"
	BreakerRecovered     Type = "breaker_recovered"
	EngineDegraded       Type = "engine_degraded"
	EngineHealthy        Type = "engine_healthy"
	EngineStoppedUnclean Type = "engine_stopped_unclean"
	SubscriberLag        Type = "subscriber_lag"
)

// Event is one hub message. DedupeValues suppress repeats of the same event
// within DedupeTimeout; RateLimiter, when set, caps the publish rate of the
// call site that owns it.
type Event struct {
	Type          Type
	Payload       map[string]any
	Timestamp     time.Time
	DedupeValues  []string
	DedupeTimeout time.Duration
	RateLimiter   *rate.Limiter
}

func (e Event) dedupeKey() string {
	return fmt.Sprintf("%s-%s",
		string(e.Type),
		strings.Join(e.DedupeValues, "-"),
	)
}

// Publisher is the write side of the hub.
type Publisher interface {
	Publish(...Event)
}
