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
	"golang.org/x/time/rate"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/events"
)

// ReasonNoDriverAvailable rides inside order-unassigned; the hub's event
// type set is closed.
const ReasonNoDriverAvailable = "no_driver_available"

func Assigned(order *v1.Order, driver *v1.Driver, score float64) events.Event {
	return events.Event{
		Type: events.OrderAssigned,
		Payload: map[string]any{
			"orderId":  order.ID,
			"driverId": driver.ID,
			"score":    score,
		},
	}
}

// Unassigned reports an order nobody could take this tick. Per-order dedupe
// plus the engine's shared rate limiter keep a stuck backlog from flooding
// the hub every five seconds.
func Unassigned(order *v1.Order, criteria map[string]any, limiter *rate.Limiter) events.Event {
	return events.Event{
		Type: events.OrderUnassigned,
		Payload: map[string]any{
			"orderId":  order.ID,
			"reason":   ReasonNoDriverAvailable,
			"criteria": criteria,
		},
		DedupeValues: []string{order.ID, ReasonNoDriverAvailable},
		RateLimiter:  limiter,
	}
}
