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

package optimization

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/errors"
	"github.com/courierd/courierd/pkg/operator/logging"
)

// MaxPoints bounds each point list in a single request.
const MaxPoints = 500

// Validate canonicalizes the request in place and rejects structural
// violations. Enum fields outside their vocabulary normalize to the
// documented defaults; coordinates, priorities, weights and capacities
// outside their ranges are hard errors. Point IDs share one namespace per
// request; vehicle IDs share another.
func Validate(ctx context.Context, request *v1.OptimizationRequest) error {
	if len(request.PickupPoints) == 0 {
		return errors.NewValidation("pickupPoints", "must not be empty")
	}
	if len(request.PickupPoints) > MaxPoints {
		return errors.NewValidation("pickupPoints", "must not exceed %d points, got %d", MaxPoints, len(request.PickupPoints))
	}
	if len(request.DeliveryPoints) == 0 {
		return errors.NewValidation("deliveryPoints", "must not be empty")
	}
	if len(request.DeliveryPoints) > MaxPoints {
		return errors.NewValidation("deliveryPoints", "must not exceed %d points, got %d", MaxPoints, len(request.DeliveryPoints))
	}
	if len(request.Fleet) == 0 {
		return errors.NewValidation("fleet", "must not be empty")
	}

	normalized := 0
	canonEnum := func(current, canonical string) string {
		if current != canonical {
			normalized++
		}
		return canonical
	}
	request.ServiceType = v1.ServiceType(canonEnum(string(request.ServiceType), string(v1.NormalizeServiceType(string(request.ServiceType)))))

	pointIDs := sets.New[string]()
	for i := range request.PickupPoints {
		pickup := &request.PickupPoints[i]
		trimPoint(&pickup.Point)
		if err := validatePoint(pickup.Point, pointIDs, "pickupPoints", i); err != nil {
			return err
		}
		pickup.LocationType = v1.LocationType(canonEnum(string(pickup.LocationType), string(v1.NormalizeLocationType(string(pickup.LocationType)))))
	}
	for i := range request.DeliveryPoints {
		delivery := &request.DeliveryPoints[i]
		trimPoint(&delivery.Point)
		if err := validatePoint(delivery.Point, pointIDs, "deliveryPoints", i); err != nil {
			return err
		}
		if delivery.WeightKg < 0 {
			return errors.NewValidation(indexed("deliveryPoints", i, "weightKg"), "must not be negative, got %v", delivery.WeightKg)
		}
		if p := delivery.Priority; p != nil && (*p < 1 || *p > 10) {
			return errors.NewValidation(indexed("deliveryPoints", i, "priority"), "must be within [1, 10], got %d", *p)
		}
		delivery.PickupHint = strings.TrimSpace(delivery.PickupHint)
	}

	vehicleIDs := sets.New[string]()
	for i := range request.Fleet {
		vehicle := &request.Fleet[i]
		vehicle.ID = strings.TrimSpace(vehicle.ID)
		if vehicle.ID == "" {
			return errors.NewValidation(indexed("fleet", i, "id"), "must not be empty")
		}
		if vehicleIDs.Has(vehicle.ID) {
			return errors.NewValidation(indexed("fleet", i, "id"), "%q is not unique within the fleet", vehicle.ID)
		}
		vehicleIDs.Insert(vehicle.ID)
		if !vehicle.Start().Valid() {
			return errors.NewValidation(indexed("fleet", i, "start"), "(%v, %v) is not a finite WGS84 position", vehicle.StartLat, vehicle.StartLng)
		}
		if vehicle.CapacityKg <= 0 {
			return errors.NewValidation(indexed("fleet", i, "capacityKg"), "must be positive, got %v", vehicle.CapacityKg)
		}
		vehicle.Kind = v1.VehicleKind(canonEnum(string(vehicle.Kind), string(v1.NormalizeVehicleKind(string(vehicle.Kind)))))
		vehicle.Status = v1.VehicleStatus(canonEnum(string(vehicle.Status), string(v1.NormalizeVehicleStatus(string(vehicle.Status)))))
	}

	if err := validateRules(request.BusinessRules); err != nil {
		return err
	}
	// Empty preference and context fields stay empty so downstream
	// resolution can distinguish "unset" from an explicit default.
	if prefs := request.Preferences; prefs != nil {
		if prefs.Preset != "" {
			prefs.Preset = v1.WeightsPreset(canonEnum(string(prefs.Preset), string(v1.NormalizePreset(string(prefs.Preset)))))
		}
		if prefs.Distribution != "" {
			prefs.Distribution = v1.DistributionStrategy(canonEnum(string(prefs.Distribution), string(v1.NormalizeDistribution(string(prefs.Distribution)))))
		}
	}
	if rc := request.Context; rc != nil {
		if rc.Weather != "" {
			rc.Weather = v1.Weather(canonEnum(string(rc.Weather), string(v1.NormalizeWeather(string(rc.Weather)))))
		}
		if rc.Traffic != "" {
			rc.Traffic = v1.Traffic(canonEnum(string(rc.Traffic), string(v1.NormalizeTraffic(string(rc.Traffic)))))
		}
	}

	if normalized > 0 {
		logging.FromContext(ctx).V(1).Info("normalized request enums to defaults", "fields", normalized)
	}
	return nil
}

func validatePoint(point v1.Point, seen sets.Set[string], list string, i int) error {
	if point.ID == "" {
		return errors.NewValidation(indexed(list, i, "id"), "must not be empty")
	}
	if seen.Has(point.ID) {
		return errors.NewValidation(indexed(list, i, "id"), "%q is not unique within the request", point.ID)
	}
	seen.Insert(point.ID)
	if !point.Coordinate().Valid() {
		return errors.NewValidation(indexed(list, i, "coordinates"), "(%v, %v) is not a finite WGS84 position", point.Lat, point.Lng)
	}
	return nil
}

func validateRules(rules *v1.BusinessRules) error {
	if rules == nil {
		return nil
	}
	if h := rules.MaxDriverHours; h != 0 && (h < 1 || h > 24) {
		return errors.NewValidation("businessRules.maxDriverHours", "must be within [1, 24], got %v", h)
	}
	if m := rules.RestPeriodMin; m < 0 || m > 120 {
		return errors.NewValidation("businessRules.restPeriodMin", "must be within [0, 120], got %d", m)
	}
	if h := rules.MaxConsecutiveDriveHours; h != 0 && (h < 1 || h > 12) {
		return errors.NewValidation("businessRules.maxConsecutiveDriveHours", "must be within [1, 12], got %v", h)
	}
	for i, zone := range rules.AllowedZones {
		if len(zone.Polygon) < 3 {
			return errors.NewValidation(indexed("businessRules.allowedZones", i, "polygon"), "must have at least 3 vertices, got %d", len(zone.Polygon))
		}
	}
	for i, zone := range rules.RestrictedZones {
		if len(zone.Polygon) < 3 {
			return errors.NewValidation(indexed("businessRules.restrictedZones", i, "polygon"), "must have at least 3 vertices, got %d", len(zone.Polygon))
		}
	}
	return nil
}

func trimPoint(point *v1.Point) {
	point.ID = strings.TrimSpace(point.ID)
	point.Name = strings.TrimSpace(point.Name)
	point.Address = strings.TrimSpace(point.Address)
}

func indexed(list string, i int, field string) string {
	return fmt.Sprintf("%s[%d].%s", list, i, field)
}
