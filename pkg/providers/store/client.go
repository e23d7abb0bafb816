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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
)

// DefaultClientTimeout bounds one remote store call. The store breaker
// carries its own, looser timeout; this one keeps a wedged connection from
// eating the whole breaker budget.
const DefaultClientTimeout = 10 * time.Second

// Client is a remote Store over HTTP. The resource layout is conventional:
// POST creates, GET by id reads, PUT by id replaces, and GET on the
// collection lists with the filter encoded as query parameters. The server
// signals a missing record with 404 and an id collision with 409.
type Client struct {
	client *resty.Client
}

func NewClient(endpoint string) *Client {
	return &Client{client: resty.New().SetBaseURL(endpoint).SetTimeout(DefaultClientTimeout)}
}

func (c *Client) CreateOrder(ctx context.Context, order *v1.Order) error {
	return c.create(ctx, "/orders", order)
}

func (c *Client) GetOrder(ctx context.Context, id string) (*v1.Order, error) {
	order := &v1.Order{}
	if err := c.get(ctx, "/orders/"+id, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Client) UpdateOrder(ctx context.Context, order *v1.Order) error {
	return c.update(ctx, "/orders/"+order.ID, order)
}

func (c *Client) ListOrders(ctx context.Context, filter OrderFilter) ([]*v1.Order, error) {
	query := map[string]string{}
	if len(filter.Statuses) > 0 {
		query["status"] = strings.Join(lo.Map(filter.Statuses, func(s v1.OrderStatus, _ int) string { return string(s) }), ",")
	}
	if filter.DriverID != "" {
		query["driverId"] = filter.DriverID
	}
	if filter.BatchID != "" {
		query["batchId"] = filter.BatchID
	}
	var orders []*v1.Order
	if err := c.list(ctx, "/orders", query, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) CreateDriver(ctx context.Context, driver *v1.Driver) error {
	return c.create(ctx, "/drivers", driver)
}

func (c *Client) GetDriver(ctx context.Context, id string) (*v1.Driver, error) {
	driver := &v1.Driver{}
	if err := c.get(ctx, "/drivers/"+id, driver); err != nil {
		return nil, err
	}
	return driver, nil
}

func (c *Client) UpdateDriver(ctx context.Context, driver *v1.Driver) error {
	return c.update(ctx, "/drivers/"+driver.ID, driver)
}

func (c *Client) ListDrivers(ctx context.Context, filter DriverFilter) ([]*v1.Driver, error) {
	query := map[string]string{}
	if len(filter.States) > 0 {
		query["state"] = strings.Join(lo.Map(filter.States, func(s v1.DriverState, _ int) string { return string(s) }), ",")
	}
	if filter.Active != nil {
		query["active"] = fmt.Sprintf("%t", *filter.Active)
	}
	var drivers []*v1.Driver
	if err := c.list(ctx, "/drivers", query, &drivers); err != nil {
		return nil, err
	}
	return drivers, nil
}

func (c *Client) CreateRoute(ctx context.Context, route *v1.Route) error {
	return c.create(ctx, "/routes", route)
}

func (c *Client) GetRoute(ctx context.Context, id string) (*v1.Route, error) {
	route := &v1.Route{}
	if err := c.get(ctx, "/routes/"+id, route); err != nil {
		return nil, err
	}
	return route, nil
}

func (c *Client) UpdateRoute(ctx context.Context, route *v1.Route) error {
	return c.update(ctx, "/routes/"+route.ID, route)
}

func (c *Client) ListRoutes(ctx context.Context, filter RouteFilter) ([]*v1.Route, error) {
	query := map[string]string{}
	if filter.VehicleID != "" {
		query["vehicleId"] = filter.VehicleID
	}
	var routes []*v1.Route
	if err := c.list(ctx, "/routes", query, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

func (c *Client) create(ctx context.Context, path string, record any) error {
	resp, err := c.client.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(record).
		Post(path)
	return c.check(resp, err, path)
}

func (c *Client) update(ctx context.Context, path string, record any) error {
	resp, err := c.client.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(record).
		Put(path)
	return c.check(resp, err, path)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.client.R().SetContext(ctx).Get(path)
	if err := c.check(resp, err, path); err != nil {
		return err
	}
	return c.decode(resp, path, out)
}

func (c *Client) list(ctx context.Context, path string, query map[string]string, out any) error {
	resp, err := c.client.R().SetContext(ctx).SetQueryParams(query).Get(path)
	if err := c.check(resp, err, path); err != nil {
		return err
	}
	return c.decode(resp, path, out)
}

func (c *Client) check(resp *resty.Response, err error, path string) error {
	if err != nil {
		return fmt.Errorf("calling store %s, %w", path, err)
	}
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("store %s, %w", path, ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("store %s, %w", path, ErrConflict)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("store returned %s for %s", resp.Status(), path)
	}
	return nil
}

func (c *Client) decode(resp *resty.Response, path string, out any) error {
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decoding store response for %s, %w", path, err)
	}
	return nil
}
