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
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"
)

const (
	defaultDedupeTimeout = 2 * time.Minute
	defaultQueueDepth    = 1024
)

// Hub is the single-process publish/subscribe channel between subsystems.
// Publishes are serialised under the hub lock, so delivery order is FIFO per
// publisher; slow subscribers lose their oldest queued events rather than
// blocking publishers.
type Hub struct {
	mu     sync.Mutex
	clk    clock.Clock
	dedupe *cache.Cache
	subs   []*Subscription
}

// Subscription is one subscriber's bounded event queue.
type Subscription struct {
	name  string
	types sets.Set[Type]
	ch    chan Event
	hub   *Hub

	closed bool
}

func NewHub(clk clock.Clock) *Hub {
	return &Hub{
		clk:    clk,
		dedupe: cache.New(defaultDedupeTimeout, 10*time.Second),
	}
}

// Subscribe registers for the given event types, or for every type when none
// are passed. The subscriber owns the returned Subscription and must Close it.
func (h *Hub) Subscribe(name string, types ...Type) *Subscription {
	return h.SubscribeBuffered(name, defaultQueueDepth, types...)
}

// SubscribeBuffered is Subscribe with an explicit queue depth.
func (h *Hub) SubscribeBuffered(name string, depth int, types ...Type) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscription{
		name:  name,
		types: sets.New(types...),
		ch:    make(chan Event, lo.Ternary(depth > 0, depth, defaultQueueDepth)),
		hub:   h,
	}
	h.subs = append(h.subs, sub)
	queueDepth.WithLabelValues(name).Set(0)
	return sub
}

// Publish delivers the events to every matching subscriber. It never blocks:
// a full subscriber queue drops its oldest entry and a subscriber_lag event
// is published in its place.
func (h *Hub) Publish(evts ...Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, evt := range evts {
		h.publish(evt)
	}
}

func (h *Hub) publish(evt Event) {
	// Dedupe same events that are close together
	timeout := lo.Ternary(evt.DedupeTimeout != 0, evt.DedupeTimeout, defaultDedupeTimeout)
	if len(evt.DedupeValues) > 0 && !h.shouldPublish(evt.dedupeKey(), timeout) {
		droppedTotal.WithLabelValues(string(evt.Type), "dedupe").Inc()
		return
	}
	if evt.RateLimiter != nil && !evt.RateLimiter.Allow() {
		droppedTotal.WithLabelValues(string(evt.Type), "rate_limit").Inc()
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = h.clk.Now()
	}
	publishedTotal.WithLabelValues(string(evt.Type)).Inc()
	for _, sub := range h.subs {
		if sub.closed || !sub.matches(evt.Type) {
			continue
		}
		h.enqueue(sub, evt)
	}
}

func (h *Hub) enqueue(sub *Subscription, evt Event) {
	select {
	case sub.ch <- evt:
		queueDepth.WithLabelValues(sub.name).Set(float64(len(sub.ch)))
		return
	default:
	}
	// Queue full: drop the oldest entry to make room for the new one. Only
	// the hub sends on sub.ch, so the freed slot cannot be taken before the
	// second send below.
	var droppedType Type
	select {
	case dropped := <-sub.ch:
		droppedType = dropped.Type
		droppedTotal.WithLabelValues(string(dropped.Type), "subscriber_lag").Inc()
	default:
	}
	select {
	case sub.ch <- evt:
	default:
	}
	queueDepth.WithLabelValues(sub.name).Set(float64(len(sub.ch)))
	// Lag events are never re-reported, otherwise a lagging subscriber of
	// subscriber_lag would recurse.
	if droppedType != "" && droppedType != SubscriberLag {
		h.publish(Event{
			Type:      SubscriberLag,
			Timestamp: h.clk.Now(),
			Payload: map[string]any{
				"subscriber":  sub.name,
				"droppedType": string(droppedType),
			},
			DedupeValues:  []string{sub.name},
			DedupeTimeout: 10 * time.Second,
		})
	}
}

func (h *Hub) shouldPublish(key string, timeout time.Duration) bool {
	if _, exists := h.dedupe.Get(key); exists {
		return false
	}
	h.dedupe.Set(key, nil, timeout)
	return true
}

func (s *Subscription) matches(t Type) bool {
	return s.types.Len() == 0 || s.types.Has(t)
}

// Events is the receive side of the subscription.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close removes the subscription from the hub and closes its channel.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.hub.subs = lo.Reject(s.hub.subs, func(other *Subscription, _ int) bool { return other == s })
	close(s.ch)
}
