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

package sla

import (
	"time"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/events"
)

// Severities carried in breach event payloads.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// BreachImminent warns that an order is projected to land inside the
// imminent band. The controller's band memory gives once-per-deadline
// semantics; the dedupe values are a hub-level backstop.
func BreachImminent(order *v1.Order, timeRemainingMin float64) events.Event {
	return events.Event{
		Type:         events.SLABreachImminent,
		Payload:      payload(order, SeverityWarning, timeRemainingMin),
		DedupeValues: []string{order.ID, order.SLADeadline.Format(time.RFC3339Nano)},
	}
}

// BreachConfirmed reports an order past its deadline.
func BreachConfirmed(order *v1.Order, timeRemainingMin float64) events.Event {
	return events.Event{
		Type:         events.SLABreachConfirmed,
		Payload:      payload(order, SeverityCritical, timeRemainingMin),
		DedupeValues: []string{order.ID, order.SLADeadline.Format(time.RFC3339Nano)},
	}
}

func payload(order *v1.Order, severity string, timeRemainingMin float64) map[string]any {
	return map[string]any{
		"orderId":       order.ID,
		"driverId":      order.DriverID,
		"severity":      severity,
		"timeRemaining": timeRemainingMin,
	}
}
