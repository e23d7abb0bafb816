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

package batching

import (
	"sort"

	"github.com/samber/lo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/geo"
)

// Groups partitions pending orders into batches: identical pickup point,
// mutually overlapping delivery windows, at most maxSize orders each. A
// window-less order is compatible with any batch. Lone orders are not
// batches; dispatch handles those one at a time.
func Groups(orders []*v1.Order, maxSize int) [][]*v1.Order {
	if maxSize < 2 {
		maxSize = 2
	}
	byPickup := lo.GroupBy(orders, func(order *v1.Order) string { return order.Pickup.ID })
	var groups [][]*v1.Order
	for _, pickupID := range lo.Keys(byPickup) {
		groups = append(groups, chain(byPickup[pickupID], maxSize)...)
	}
	// Map iteration order is random; batch order must not be.
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups
}

// chain walks one pickup's orders in window order and extends the current
// batch while the running window intersection stays open. Each member's
// window must overlap every other member's, which the intersection encodes.
func chain(members []*v1.Order, maxSize int) [][]*v1.Order {
	sort.Slice(members, func(i, j int) bool {
		wi, wj := members[i].Delivery.TimeWindow, members[j].Delivery.TimeWindow
		if (wi == nil) != (wj == nil) {
			return wi == nil
		}
		if wi != nil && wi.StartMinute() != wj.StartMinute() {
			return wi.StartMinute() < wj.StartMinute()
		}
		return members[i].ID < members[j].ID
	})

	var batches [][]*v1.Order
	var current []*v1.Order
	var intersection *geo.TimeWindow
	flush := func() {
		if len(current) >= 2 {
			batches = append(batches, current)
		}
		current, intersection = nil, nil
	}
	for _, order := range members {
		window := order.Delivery.TimeWindow
		switch {
		case len(current) >= maxSize:
			flush()
		case window != nil && intersection != nil && !window.Overlaps(*intersection):
			flush()
		}
		current = append(current, order)
		if window == nil {
			continue
		}
		if intersection == nil {
			w := *window
			intersection = &w
			continue
		}
		narrowed := geo.NewTimeWindow(
			max(intersection.StartMinute(), window.StartMinute()),
			min(intersection.EndMinute(), window.EndMinute()),
		)
		intersection = &narrowed
	}
	flush()
	return batches
}
