// Package vehicle holds the active vehicle snapshot and the per-VIN cache of
// partial snapshots that telemetry and enrichment merge into.
package vehicle

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Identity is one entry of the user's vehicle list.
type Identity struct {
	VIN                    string
	MarketingName          string
	VehicleVariant         string
	Color                  string
	ExteriorColor          string
	InteriorColor          string
	YearOfProduct          int
	VehicleName            string
	CustomizedVehicleName  string
	UserVehicleType        string
	VehicleImage           string
	ProfileImage           string
	WarrantyExpirationDate string
	WarrantyMileage        *float64
	// BatteryCapacityKWh is nil when the list entry carries no usable value.
	BatteryCapacityKWh *float64
}

// DisplayName returns the user's name for the vehicle, falling back to the
// marketing name and then the VIN.
func (id Identity) DisplayName() string {
	switch {
	case id.CustomizedVehicleName != "":
		return id.CustomizedVehicleName
	case id.VehicleName != "":
		return id.VehicleName
	case id.MarketingName != "":
		return id.MarketingName
	}
	return id.VIN
}

// IdentityFromMap decodes a vehicle-list entry. Entries without a vinCode
// are rejected.
func IdentityFromMap(m map[string]any) (Identity, bool) {
	vin := str(m["vinCode"])
	if vin == "" {
		return Identity{}, false
	}
	id := Identity{
		VIN:                    vin,
		MarketingName:          str(m["marketingName"]),
		VehicleVariant:         str(m["vehicleVariant"]),
		Color:                  str(m["color"]),
		ExteriorColor:          str(m["exteriorColor"]),
		InteriorColor:          str(m["interiorColor"]),
		VehicleName:            str(m["vehicleName"]),
		CustomizedVehicleName:  str(m["customizedVehicleName"]),
		UserVehicleType:        str(m["userVehicleType"]),
		VehicleImage:           str(m["vehicleImage"]),
		ProfileImage:           str(m["profileImage"]),
		WarrantyExpirationDate: str(m["warrantyExpirationDate"]),
		BatteryCapacityKWh:     ParseBatteryCapacity(m),
	}
	if y, ok := toFloat(m["yearOfProduct"]); ok {
		id.YearOfProduct = int(y)
	}
	if w, ok := toFloat(m["warrantyMileage"]); ok {
		id.WarrantyMileage = &w
	}
	return id, true
}

var batteryCapacityFields = []string{"batteryCapacity", "battery_capacity", "batteryCapacityKwh", "batteryCapacityKWH"}

// ParseBatteryCapacity reads the pack capacity in kWh from whichever field
// name the list entry uses.
func ParseBatteryCapacity(m map[string]any) *float64 {
	for _, name := range batteryCapacityFields {
		v, ok := m[name]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return nil
		}
		return &f
	}
	return nil
}

// basePartial is the identity-derived layer applied on top of the reset
// defaults when a vehicle becomes active.
func basePartial(id Identity, currentAvatar any) Partial {
	color := id.ExteriorColor
	if color == "" {
		color = id.Color
	}
	name := id.CustomizedVehicleName
	if name == "" {
		name = id.VehicleName
	}
	avatar := currentAvatar
	if id.ProfileImage != "" {
		avatar = id.ProfileImage
	}
	p := Partial{
		FieldVIN:                 id.VIN,
		"marketingName":          id.MarketingName,
		"vehicleVariant":         id.VehicleVariant,
		"color":                  color,
		"yearOfProduct":          id.YearOfProduct,
		"interiorColor":          id.InteriorColor,
		"customizedVehicleName":  name,
		"userVehicleType":        id.UserVehicleType,
		"vehicleImage":           id.VehicleImage,
		"vinfast_profile_image":  id.ProfileImage,
		"user_avatar":            avatar,
		"warrantyExpirationDate": nullableString(id.WarrantyExpirationDate),
		"warrantyMileage":        nullableFloat(id.WarrantyMileage),
		"battery_capacity_kwh":   nullableFloat(id.BatteryCapacityKWh),
	}
	return p
}

// seedPartial is the cache entry written for every vehicle when the list
// is loaded.
func seedPartial(id Identity) Partial {
	p := basePartial(id, nil)
	delete(p, "user_avatar")
	delete(p, "vinfast_profile_image")
	return p
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
