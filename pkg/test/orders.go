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

package test

import (
	"fmt"
	"strings"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/imdario/mergo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
)

// OrderOptions customizes an Order.
type OrderOptions struct {
	ID                    string
	Pickup                v1.PickupPoint
	Delivery              v1.DeliveryPoint
	Status                v1.OrderStatus
	DriverID              string
	BatchID               string
	RouteID               string
	SLADeadline           time.Time
	EstimatedRemainingMin float64
	CreatedAt             time.Time
}

// Order creates a test order with defaults that can be overridden by
// OrderOptions. Overrides are applied in order, with a last write wins
// semantic.
func Order(overrides ...OrderOptions) *v1.Order {
	options := OrderOptions{}
	for _, opts := range overrides {
		if err := mergo.Merge(&options, opts, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge order options: %s", err.Error()))
		}
	}
	if options.ID == "" {
		options.ID = strings.ToLower(randomdata.SillyName())
	}
	if options.Pickup.ID == "" {
		options.Pickup = Pickup()
	}
	if options.Delivery.ID == "" {
		options.Delivery = Delivery()
	}
	return &v1.Order{
		ID:                    options.ID,
		Pickup:                options.Pickup,
		Delivery:              options.Delivery,
		Status:                options.Status,
		DriverID:              options.DriverID,
		BatchID:               options.BatchID,
		RouteID:               options.RouteID,
		SLADeadline:           options.SLADeadline,
		EstimatedRemainingMin: options.EstimatedRemainingMin,
		CreatedAt:             options.CreatedAt,
	}
}
