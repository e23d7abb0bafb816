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

package geo

// Polygon is a closed ring of vertices. A ring bounds an area only with
// three or more vertices; smaller rings contain nothing.
type Polygon []Coordinate

// Contains reports whether c lies inside the polygon using the even-odd
// ray-casting rule. Edge cases on the boundary may resolve to either side,
// which is acceptable for zone checks.
func (p Polygon) Contains(c Coordinate) bool {
	if len(p) < 3 {
		return false
	}
	inside := false
	j := len(p) - 1
	for i := 0; i < len(p); i++ {
		vi, vj := p[i], p[j]
		if (vi.Lat > c.Lat) != (vj.Lat > c.Lat) &&
			c.Lng < (vj.Lng-vi.Lng)*(c.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lng {
			inside = !inside
		}
		j = i
	}
	return inside
}
