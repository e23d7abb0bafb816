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
	"sync"

	"k8s.io/utils/clock"

	"github.com/courierd/courierd/pkg/events"
)

// Manager hands out one breaker per dependency name. The map has its own
// lock so creating a breaker for a new name never blocks calls flowing
// through existing breakers.
type Manager struct {
	clk       clock.Clock
	recorder  events.Publisher
	defaults  Settings
	overrides map[string]Settings

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewManager(clk clock.Clock, recorder events.Publisher, defaults Settings, overrides map[string]Settings) *Manager {
	return &Manager{
		clk:       clk,
		recorder:  recorder,
		defaults:  defaults.withDefaults(),
		overrides: overrides,
		breakers:  map[string]*Breaker{},
	}
}

// Breaker returns the breaker for name, creating it on first use with the
// name's override settings when present.
func (m *Manager) Breaker(name string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[name]; ok {
		return b
	}
	settings := m.defaults
	if override, ok := m.overrides[name]; ok {
		settings = merged(m.defaults, override)
	}
	b = New(name, settings, m.clk, m.recorder)
	m.breakers[name] = b
	return b
}

// States snapshots the current position of every known breaker.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make(map[string]State, len(m.breakers))
	for name, b := range m.breakers {
		states[name] = b.State()
	}
	return states
}

// IsHealthy reports whether every known breaker is healthy. A manager with
// no breakers yet is healthy.
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.breakers {
		if !b.IsHealthy() {
			return false
		}
	}
	return true
}

// merged overlays the non-zero fields of override onto base.
func merged(base, override Settings) Settings {
	if override.FailureThreshold != 0 {
		base.FailureThreshold = override.FailureThreshold
	}
	if override.SuccessThreshold != 0 {
		base.SuccessThreshold = override.SuccessThreshold
	}
	if override.Timeout != 0 {
		base.Timeout = override.Timeout
	}
	if override.ResetTimeout != 0 {
		base.ResetTimeout = override.ResetTimeout
	}
	if override.MonitoringWindow != 0 {
		base.MonitoringWindow = override.MonitoringWindow
	}
	return base
}
