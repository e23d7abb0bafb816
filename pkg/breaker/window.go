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
	"time"

	"github.com/courierd/courierd/pkg/utils/ringbuffer"
)

// windowCapacity bounds the number of samples kept regardless of span.
const windowCapacity = 256

type sample struct {
	success bool
	at      time.Time
}

// window is a sliding record of call outcomes over a fixed span. Not safe
// for concurrent use; the owning breaker holds its lock.
type window struct {
	samples *ringbuffer.RingBuffer[sample]
	span    time.Duration
}

func newWindow(span time.Duration) *window {
	return &window{
		samples: ringbuffer.New[sample](windowCapacity),
		span:    span,
	}
}

func (w *window) observe(now time.Time, success bool) {
	w.prune(now)
	w.samples.Add(sample{success: success, at: now})
}

// failureRate returns the in-window share of failed calls, zero when empty.
func (w *window) failureRate(now time.Time) float64 {
	w.prune(now)
	total := w.samples.Len()
	if total == 0 {
		return 0
	}
	failures := 0
	for _, s := range w.samples.Items() {
		if !s.success {
			failures++
		}
	}
	return float64(failures) / float64(total)
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	w.samples.Filter(func(s sample) bool { return !s.at.Before(cutoff) })
}
