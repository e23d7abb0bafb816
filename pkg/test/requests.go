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

	"github.com/imdario/mergo"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
)

// RequestOptions customizes an OptimizationRequest.
type RequestOptions struct {
	ServiceType    v1.ServiceType
	PickupPoints   []v1.PickupPoint
	DeliveryPoints []v1.DeliveryPoint
	Fleet          []v1.Vehicle
	BusinessRules  *v1.BusinessRules
	Preferences    *v1.Preferences
	Context        *v1.RequestContext
}

// Request creates a minimal valid optimization request with defaults that
// can be overridden by RequestOptions: one pickup, one delivery, one
// vehicle.
func Request(overrides ...RequestOptions) *v1.OptimizationRequest {
	options := RequestOptions{}
	for _, opts := range overrides {
		if err := mergo.Merge(&options, opts, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge request options: %s", err.Error()))
		}
	}
	if options.PickupPoints == nil {
		options.PickupPoints = []v1.PickupPoint{Pickup(PickupOptions{ID: "pickup-1"})}
	}
	if options.DeliveryPoints == nil {
		options.DeliveryPoints = []v1.DeliveryPoint{Delivery(DeliveryOptions{ID: "delivery-1"})}
	}
	if options.Fleet == nil {
		options.Fleet = []v1.Vehicle{Vehicle(VehicleOptions{ID: "vehicle-1"})}
	}
	return &v1.OptimizationRequest{
		ServiceType:    options.ServiceType,
		PickupPoints:   options.PickupPoints,
		DeliveryPoints: options.DeliveryPoints,
		Fleet:          options.Fleet,
		BusinessRules:  options.BusinessRules,
		Preferences:    options.Preferences,
		Context:        options.Context,
	}
}
