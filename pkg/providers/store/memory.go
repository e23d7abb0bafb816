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

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
)

// Memory is the in-process Store used by serve mode and tests. List results
// are sorted by id so callers iterate deterministically.
type Memory struct {
	mu      sync.RWMutex
	orders  map[string]*v1.Order
	drivers map[string]*v1.Driver
	routes  map[string]*v1.Route
}

func NewMemory() *Memory {
	return &Memory{
		orders:  map[string]*v1.Order{},
		drivers: map[string]*v1.Driver{},
		routes:  map[string]*v1.Route{},
	}
}

func (m *Memory) CreateOrder(_ context.Context, order *v1.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return fmt.Errorf("creating order %q, %w", order.ID, ErrConflict)
	}
	m.orders[order.ID] = order.DeepCopy()
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (*v1.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("getting order %q, %w", id, ErrNotFound)
	}
	return order.DeepCopy(), nil
}

func (m *Memory) UpdateOrder(_ context.Context, order *v1.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; !ok {
		return fmt.Errorf("updating order %q, %w", order.ID, ErrNotFound)
	}
	m.orders[order.ID] = order.DeepCopy()
	return nil
}

func (m *Memory) ListOrders(_ context.Context, filter OrderFilter) ([]*v1.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*v1.Order
	for _, order := range m.orders {
		if filter.Matches(order) {
			out = append(out, order.DeepCopy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateDriver(_ context.Context, driver *v1.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[driver.ID]; ok {
		return fmt.Errorf("creating driver %q, %w", driver.ID, ErrConflict)
	}
	m.drivers[driver.ID] = driver.DeepCopy()
	return nil
}

func (m *Memory) GetDriver(_ context.Context, id string) (*v1.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, fmt.Errorf("getting driver %q, %w", id, ErrNotFound)
	}
	return driver.DeepCopy(), nil
}

func (m *Memory) UpdateDriver(_ context.Context, driver *v1.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[driver.ID]; !ok {
		return fmt.Errorf("updating driver %q, %w", driver.ID, ErrNotFound)
	}
	m.drivers[driver.ID] = driver.DeepCopy()
	return nil
}

func (m *Memory) ListDrivers(_ context.Context, filter DriverFilter) ([]*v1.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*v1.Driver
	for _, driver := range m.drivers {
		if filter.Matches(driver) {
			out = append(out, driver.DeepCopy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateRoute(_ context.Context, route *v1.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[route.ID]; ok {
		return fmt.Errorf("creating route %q, %w", route.ID, ErrConflict)
	}
	m.routes[route.ID] = route.DeepCopy()
	return nil
}

func (m *Memory) GetRoute(_ context.Context, id string) (*v1.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	route, ok := m.routes[id]
	if !ok {
		return nil, fmt.Errorf("getting route %q, %w", id, ErrNotFound)
	}
	return route.DeepCopy(), nil
}

func (m *Memory) UpdateRoute(_ context.Context, route *v1.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[route.ID]; !ok {
		return fmt.Errorf("updating route %q, %w", route.ID, ErrNotFound)
	}
	m.routes[route.ID] = route.DeepCopy()
	return nil
}

func (m *Memory) ListRoutes(_ context.Context, filter RouteFilter) ([]*v1.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*v1.Route
	for _, route := range m.routes {
		if filter.Matches(route) {
			out = append(out, route.DeepCopy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
