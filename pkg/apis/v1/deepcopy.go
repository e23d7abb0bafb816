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

package v1

// Deep copies for the records that registries and stores hand out. Readers
// own their copies; sharing interior pointers across goroutines is never
// safe here.

func cloneWindow(w *TimeWindow) *TimeWindow {
	if w == nil {
		return nil
	}
	out := *w
	return &out
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	out := *i
	return &out
}

// DeepCopy returns a copy sharing no pointers with the original.
func (in *PickupPoint) DeepCopy() *PickupPoint {
	if in == nil {
		return nil
	}
	out := *in
	out.WorkingHours = cloneWindow(in.WorkingHours)
	return &out
}

// DeepCopy returns a copy sharing no pointers with the original.
func (in *DeliveryPoint) DeepCopy() *DeliveryPoint {
	if in == nil {
		return nil
	}
	out := *in
	out.Priority = cloneInt(in.Priority)
	out.TimeWindow = cloneWindow(in.TimeWindow)
	return &out
}

// DeepCopy returns a copy sharing no pointers with the original.
func (in *Order) DeepCopy() *Order {
	if in == nil {
		return nil
	}
	out := *in
	out.Pickup = *in.Pickup.DeepCopy()
	out.Delivery = *in.Delivery.DeepCopy()
	return &out
}

// DeepCopy returns a copy sharing no pointers with the original.
func (in *Driver) DeepCopy() *Driver {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

// DeepCopy returns a copy sharing no pointers with the original.
func (in *Waypoint) DeepCopy() *Waypoint {
	if in == nil {
		return nil
	}
	out := *in
	out.TimeWindow = cloneWindow(in.TimeWindow)
	return &out
}

// DeepCopy returns a copy sharing no pointers with the original.
func (in *Route) DeepCopy() *Route {
	if in == nil {
		return nil
	}
	out := *in
	if in.Waypoints != nil {
		out.Waypoints = make([]Waypoint, len(in.Waypoints))
		for i := range in.Waypoints {
			out.Waypoints[i] = *in.Waypoints[i].DeepCopy()
		}
	}
	return &out
}
