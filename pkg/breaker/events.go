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

package breaker

import (
	"github.com/courierd/courierd/pkg/events"
)

func Opened(name string, failures int, failureRate float64) events.Event {
	return events.Event{
		Type: events.BreakerOpened,
		Payload: map[string]any{
			"name":        name,
			"failures":    failures,
			"failureRate": failureRate,
		},
		DedupeValues: []string{name, "opened"},
	}
}

func Recovered(name string) events.Event {
	return events.Event{
		Type: events.BreakerRecovered,
		Payload: map[string]any{
			"name": name,
		},
		DedupeValues: []string{name, "recovered"},
	}
}
