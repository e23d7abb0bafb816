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

package engine

import (
	"time"

	"github.com/courierd/courierd/pkg/events"
)

func Degraded(name string, failureRate float64) events.Event {
	return events.Event{
		Type: events.EngineDegraded,
		Payload: map[string]any{
			"engine":      name,
			"failureRate": failureRate,
		},
		DedupeValues: []string{name, "degraded"},
	}
}

func Healthy(name string) events.Event {
	return events.Event{
		Type: events.EngineHealthy,
		Payload: map[string]any{
			"engine": name,
		},
		DedupeValues: []string{name, "healthy"},
	}
}

func StoppedUnclean(name string, timeout time.Duration) events.Event {
	return events.Event{
		Type: events.EngineStoppedUnclean,
		Payload: map[string]any{
			"engine":  name,
			"timeout": timeout.String(),
		},
		DedupeValues: []string{name, "stopped_unclean"},
	}
}
