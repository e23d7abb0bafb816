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

import (
	"time"

	"github.com/courierd/courierd/pkg/geo"
)

// DriverState is the five-valued label governing whether a driver may be
// assigned an order. States move only through the compare-and-swap
// transition function of the driver registry, which enforces the legal
// transition table and publishes state-changed events.
type DriverState string

const (
	DriverStateOffline   DriverState = "offline"
	DriverStateAvailable DriverState = "available"
	DriverStateBusy      DriverState = "busy"
	DriverStateReturning DriverState = "returning"
	DriverStateOnBreak   DriverState = "on_break"
)

// Working-limit defaults applied when a driver record leaves the field
// unset.
const (
	DefaultMaxWorkingHours = 12.0
	DefaultBreakThreshold  = 5
)

// Driver is the process-long state record for one driver. Only the dispatch
// engine and the driver registry's transition function mutate it.
type Driver struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	VehicleID string `json:"vehicleId,omitempty"`
	// Active marks the driver as on shift; inactive drivers never leave
	// offline.
	Active bool `json:"active"`
	// Rating is the driver's 0..5 service score used by assignment scoring.
	Rating                float64        `json:"rating,omitempty"`
	State                 DriverState    `json:"state"`
	StateSince            time.Time      `json:"stateSince,omitzero"`
	ActiveDeliveryID      string         `json:"activeDeliveryId,omitempty"`
	ConsecutiveDeliveries int            `json:"consecutiveDeliveries"`
	CompletedToday        int            `json:"completedToday"`
	TargetDeliveries      int            `json:"targetDeliveries,omitempty"`
	HoursWorkedToday      float64        `json:"hoursWorkedToday"`
	MaxWorkingHours       float64        `json:"maxWorkingHours,omitempty"`
	BreakThreshold        int            `json:"breakThreshold,omitempty"`
	LastLocation          geo.Coordinate `json:"lastLocation"`
	LastLocationUpdate    time.Time      `json:"lastLocationUpdate,omitzero"`
	// Base is the driver's home station, used to decide between available
	// and returning after a completed delivery.
	Base geo.Coordinate `json:"base"`
}

// TargetGap returns how many deliveries remain until the driver's daily
// target, never negative.
func (d Driver) TargetGap() int {
	gap := d.TargetDeliveries - d.CompletedToday
	if gap < 0 {
		return 0
	}
	return gap
}

// EffectiveMaxWorkingHours returns the per-driver shift ceiling, defaulted.
func (d Driver) EffectiveMaxWorkingHours() float64 {
	if d.MaxWorkingHours <= 0 {
		return DefaultMaxWorkingHours
	}
	return d.MaxWorkingHours
}

// EffectiveBreakThreshold returns how many consecutive deliveries force a
// break, defaulted.
func (d Driver) EffectiveBreakThreshold() int {
	if d.BreakThreshold <= 0 {
		return DefaultBreakThreshold
	}
	return d.BreakThreshold
}
