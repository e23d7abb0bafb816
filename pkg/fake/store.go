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

// Package fake holds the injectable test doubles shared across suites.
package fake

import (
	"context"
	"sync"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/providers/store"
)

// Store wraps a delegate store with failure and blocking injection for
// breaker and degraded-mode tests. WriteError arms Create/Update calls,
// ReadError arms Get/List calls, and a non-nil WaitBefore parks every call
// until the channel closes or the caller's context ends. Behaviors must be
// reset between tests.
type Store struct {
	WriteError AtomicError
	ReadError  AtomicError

	mu         sync.Mutex
	waitBefore chan struct{}
	calls      map[string]int
	inner      store.Store
}

func NewStore(inner store.Store) *Store {
	return &Store{
		calls: map[string]int{},
		inner: inner,
	}
}

func (s *Store) Reset() {
	s.WriteError.Reset()
	s.ReadError.Reset()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitBefore = nil
	s.calls = map[string]int{}
}

// BlockOn parks every subsequent call on gate until it closes.
func (s *Store) BlockOn(gate chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitBefore = gate
}

// Calls reports how many times a method has been invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Store) before(ctx context.Context, method string, injected *AtomicError) error {
	s.mu.Lock()
	s.calls[method]++
	wait := s.waitBefore
	s.mu.Unlock()
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return injected.Get()
}

func (s *Store) CreateOrder(ctx context.Context, order *v1.Order) error {
	if err := s.before(ctx, "CreateOrder", &s.WriteError); err != nil {
		return err
	}
	return s.inner.CreateOrder(ctx, order)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*v1.Order, error) {
	if err := s.before(ctx, "GetOrder", &s.ReadError); err != nil {
		return nil, err
	}
	return s.inner.GetOrder(ctx, id)
}

func (s *Store) UpdateOrder(ctx context.Context, order *v1.Order) error {
	if err := s.before(ctx, "UpdateOrder", &s.WriteError); err != nil {
		return err
	}
	return s.inner.UpdateOrder(ctx, order)
}

func (s *Store) ListOrders(ctx context.Context, filter store.OrderFilter) ([]*v1.Order, error) {
	if err := s.before(ctx, "ListOrders", &s.ReadError); err != nil {
		return nil, err
	}
	return s.inner.ListOrders(ctx, filter)
}

func (s *Store) CreateDriver(ctx context.Context, driver *v1.Driver) error {
	if err := s.before(ctx, "CreateDriver", &s.WriteError); err != nil {
		return err
	}
	return s.inner.CreateDriver(ctx, driver)
}

func (s *Store) GetDriver(ctx context.Context, id string) (*v1.Driver, error) {
	if err := s.before(ctx, "GetDriver", &s.ReadError); err != nil {
		return nil, err
	}
	return s.inner.GetDriver(ctx, id)
}

func (s *Store) UpdateDriver(ctx context.Context, driver *v1.Driver) error {
	if err := s.before(ctx, "UpdateDriver", &s.WriteError); err != nil {
		return err
	}
	return s.inner.UpdateDriver(ctx, driver)
}

func (s *Store) ListDrivers(ctx context.Context, filter store.DriverFilter) ([]*v1.Driver, error) {
	if err := s.before(ctx, "ListDrivers", &s.ReadError); err != nil {
		return nil, err
	}
	return s.inner.ListDrivers(ctx, filter)
}

func (s *Store) CreateRoute(ctx context.Context, route *v1.Route) error {
	if err := s.before(ctx, "CreateRoute", &s.WriteError); err != nil {
		return err
	}
	return s.inner.CreateRoute(ctx, route)
}

func (s *Store) GetRoute(ctx context.Context, id string) (*v1.Route, error) {
	if err := s.before(ctx, "GetRoute", &s.ReadError); err != nil {
		return nil, err
	}
	return s.inner.GetRoute(ctx, id)
}

func (s *Store) UpdateRoute(ctx context.Context, route *v1.Route) error {
	if err := s.before(ctx, "UpdateRoute", &s.WriteError); err != nil {
		return err
	}
	return s.inner.UpdateRoute(ctx, route)
}

func (s *Store) ListRoutes(ctx context.Context, filter store.RouteFilter) ([]*v1.Route, error) {
	if err := s.before(ctx, "ListRoutes", &s.ReadError); err != nil {
		return nil, err
	}
	return s.inner.ListRoutes(ctx, filter)
}
