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

// Package supervisor owns the automation engines as a group. Engines
// register under their ticker name; StartAll honours each engine's enabled
// gate, while starting an engine by name is always explicit and bypasses it.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/courierd/courierd/pkg/controllers/engine"
)

type Supervisor struct {
	mu      sync.Mutex
	order   []string
	engines map[string]*engine.Engine
	enabled map[string]bool
}

func New() *Supervisor {
	return &Supervisor{
		engines: map[string]*engine.Engine{},
		enabled: map[string]bool{},
	}
}

// Register adds an engine under its name. A disabled engine sits out
// StartAll but stays visible to Status and an explicit Start.
func (s *Supervisor) Register(eng *engine.Engine, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.engines[eng.Name()]; ok {
		return fmt.Errorf("engine %q is already registered", eng.Name())
	}
	s.order = append(s.order, eng.Name())
	s.engines[eng.Name()] = eng
	s.enabled[eng.Name()] = enabled
	return nil
}

func (s *Supervisor) Start(ctx context.Context, name string) error {
	eng, err := s.engine(name)
	if err != nil {
		return err
	}
	return eng.Start(ctx)
}

func (s *Supervisor) Stop(name string) error {
	eng, err := s.engine(name)
	if err != nil {
		return err
	}
	return eng.Stop()
}

func (s *Supervisor) Status(name string) (engine.Status, error) {
	eng, err := s.engine(name)
	if err != nil {
		return engine.Status{}, err
	}
	return eng.Status(), nil
}

// Trigger requests an immediate tick of one engine, typically in response to
// an event rather than the interval.
func (s *Supervisor) Trigger(name string) error {
	eng, err := s.engine(name)
	if err != nil {
		return err
	}
	eng.Trigger()
	return nil
}

// StartAll starts every enabled engine in registration order. One engine
// failing to start does not keep the rest down; failures are combined.
func (s *Supervisor) StartAll(ctx context.Context) error {
	var errs error
	for _, eng := range s.list() {
		if !s.isEnabled(eng.Name()) {
			continue
		}
		if err := eng.Start(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// StopAll stops every running engine in reverse start order. Engines that
// are already stopped are left alone.
func (s *Supervisor) StopAll() error {
	var errs error
	engines := s.list()
	for i := len(engines) - 1; i >= 0; i-- {
		switch engines[i].Status().State {
		case engine.StateRunning, engine.StateDegraded:
		default:
			continue
		}
		if err := engines[i].Stop(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// StatusAll snapshots every registered engine in registration order.
func (s *Supervisor) StatusAll() []engine.Status {
	return lo.Map(s.list(), func(eng *engine.Engine, _ int) engine.Status {
		return eng.Status()
	})
}

// LivenessProbe fails when any engine was abandoned mid-stop. An unclean
// stop leaks the tick goroutine, so the process should be recycled.
func (s *Supervisor) LivenessProbe(_ *http.Request) error {
	for _, status := range s.StatusAll() {
		if status.State == engine.StateStoppedUnclean {
			return fmt.Errorf("engine %q stopped with its tick still running", status.Name)
		}
	}
	return nil
}

func (s *Supervisor) engine(name string) (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.engines[name]
	if !ok {
		return nil, fmt.Errorf("engine %q is not registered", name)
	}
	return eng, nil
}

func (s *Supervisor) list() []*engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.order, func(name string, _ int) *engine.Engine {
		return s.engines[name]
	})
}

func (s *Supervisor) isEnabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[name]
}
