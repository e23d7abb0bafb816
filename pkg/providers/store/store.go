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

// Package store abstracts the durable record store for orders, drivers, and
// routes. The control plane only talks to it through circuit breakers; no
// SQL or key-value shape is part of the contract.
package store

import (
	"context"
	"errors"

	"github.com/samber/lo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
)

var (
	// ErrNotFound is returned when no record exists for the id.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a create collides with an existing id.
	ErrConflict = errors.New("record conflict")
)

// IsNotFound returns true if the err is ErrNotFound, even if it's wrapped.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the err is ErrConflict, even if it's wrapped.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// OrderFilter narrows ListOrders. Zero fields match everything.
type OrderFilter struct {
	Statuses []v1.OrderStatus
	DriverID string
	BatchID  string
}

func (f OrderFilter) Matches(order *v1.Order) bool {
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, order.Status) {
		return false
	}
	if f.DriverID != "" && order.DriverID != f.DriverID {
		return false
	}
	if f.BatchID != "" && order.BatchID != f.BatchID {
		return false
	}
	return true
}

// DriverFilter narrows ListDrivers. Zero fields match everything.
type DriverFilter struct {
	States []v1.DriverState
	Active *bool
}

func (f DriverFilter) Matches(driver *v1.Driver) bool {
	if len(f.States) > 0 && !lo.Contains(f.States, driver.State) {
		return false
	}
	if f.Active != nil && driver.Active != *f.Active {
		return false
	}
	return true
}

// RouteFilter narrows ListRoutes. Zero fields match everything.
type RouteFilter struct {
	VehicleID string
}

func (f RouteFilter) Matches(route *v1.Route) bool {
	return f.VehicleID == "" || route.Vehicle.ID == f.VehicleID
}

// Store is the durable record interface. Implementations return copies;
// mutating a returned record never changes stored state without an Update.
type Store interface {
	CreateOrder(ctx context.Context, order *v1.Order) error
	GetOrder(ctx context.Context, id string) (*v1.Order, error)
	UpdateOrder(ctx context.Context, order *v1.Order) error
	ListOrders(ctx context.Context, filter OrderFilter) ([]*v1.Order, error)

	CreateDriver(ctx context.Context, driver *v1.Driver) error
	GetDriver(ctx context.Context, id string) (*v1.Driver, error)
	UpdateDriver(ctx context.Context, driver *v1.Driver) error
	ListDrivers(ctx context.Context, filter DriverFilter) ([]*v1.Driver, error)

	CreateRoute(ctx context.Context, route *v1.Route) error
	GetRoute(ctx context.Context, id string) (*v1.Route, error)
	UpdateRoute(ctx context.Context, route *v1.Route) error
	ListRoutes(ctx context.Context, filter RouteFilter) ([]*v1.Route, error)
}
