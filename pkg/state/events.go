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

package state

import (
	"github.com/courierd/courierd/pkg/events"
)

// Changed reports a committed registry transition. Transitions are never
// deduplicated; every committed edge is observable.
func Changed(kind, id, from, to string) events.Event {
	return events.Event{
		Type: events.StateChanged,
		Payload: map[string]any{
			"kind": kind,
			"id":   id,
			"from": from,
			"to":   to,
		},
	}
}

// DeliveryCompleted reports a driver landing their active delivery.
func DeliveryCompleted(driverID, orderID string) events.Event {
	return events.Event{
		Type: events.DeliveryComplete,
		Payload: map[string]any{
			"driverId": driverID,
			"orderId":  orderID,
		},
	}
}
