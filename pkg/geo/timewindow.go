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

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ClosedWindow is the wire literal for a service day with no window.
const ClosedWindow = "closed"

var windowShape = regexp.MustCompile(`^([0-2][0-9]):([0-5][0-9])-([0-2][0-9]):([0-5][0-9])$`)

// TimeWindow is a wall-clock interval on a service day, carried on the wire
// as "HH:MM-HH:MM" or the literal "closed". A closed window overlaps
// nothing.
type TimeWindow struct {
	start  int // minutes since midnight
	end    int
	closed bool
}

// ParseTimeWindow parses the "HH:MM-HH:MM" shape with HH in [00..23] and MM
// in [00..59], or the literal "closed".
func ParseTimeWindow(s string) (TimeWindow, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, ClosedWindow) {
		return TimeWindow{closed: true}, nil
	}
	m := windowShape.FindStringSubmatch(s)
	if m == nil {
		return TimeWindow{}, fmt.Errorf("time window %q does not match HH:MM-HH:MM", s)
	}
	startHour, _ := strconv.Atoi(m[1])
	endHour, _ := strconv.Atoi(m[3])
	if startHour > 23 || endHour > 23 {
		return TimeWindow{}, fmt.Errorf("time window %q has an hour outside [00..23]", s)
	}
	startMin, _ := strconv.Atoi(m[2])
	endMin, _ := strconv.Atoi(m[4])
	w := TimeWindow{start: startHour*60 + startMin, end: endHour*60 + endMin}
	if w.start > w.end {
		return TimeWindow{}, fmt.Errorf("time window %q ends before it starts", s)
	}
	return w, nil
}

// NewTimeWindow builds a window from minutes since midnight. Intended for
// tests and derived windows; wire input goes through ParseTimeWindow.
func NewTimeWindow(startMinute, endMinute int) TimeWindow {
	return TimeWindow{start: startMinute, end: endMinute}
}

// StartMinute returns the window start in minutes since midnight.
func (w TimeWindow) StartMinute() int { return w.start }

// EndMinute returns the window end in minutes since midnight.
func (w TimeWindow) EndMinute() int { return w.end }

// IsClosed reports whether the window is the special "closed" value.
func (w TimeWindow) IsClosed() bool { return w.closed }

// Overlaps reports whether two windows share at least one minute. Closed
// windows never overlap anything.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	if w.closed || o.closed {
		return false
	}
	return w.start <= o.end && o.start <= w.end
}

func (w TimeWindow) String() string {
	if w.closed {
		return ClosedWindow
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.start/60, w.start%60, w.end/60, w.end%60)
}

func (w TimeWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

func (w *TimeWindow) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshaling time window, %w", err)
	}
	parsed, err := ParseTimeWindow(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
