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
	"github.com/courierd/courierd/pkg/geo"
)

// Zone is a closed polygon of at least three vertices.
type Zone struct {
	Name    string      `json:"name,omitempty"`
	Polygon geo.Polygon `json:"polygon"`
}

// RestrictedZone is a zone that must be avoided while its window is active.
type RestrictedZone struct {
	Zone
	Window TimeWindow `json:"window"`
}

// BusinessRules carries the per-request operating constraints.
type BusinessRules struct {
	MaxDriverHours           float64          `json:"maxDriverHours,omitempty"`
	RestPeriodMin            int              `json:"restPeriodMin,omitempty"`
	MaxConsecutiveDriveHours float64          `json:"maxConsecutiveDriveHours,omitempty"`
	AllowedZones             []Zone           `json:"allowedZones,omitempty"`
	RestrictedZones          []RestrictedZone `json:"restrictedZones,omitempty"`
}
