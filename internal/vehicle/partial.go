package vehicle

import (
	"maps"
	"strings"
	"time"
)

// Partial is a sparse set of snapshot fields. An absent key means "no
// news"; a present nil value is an explicit null.
type Partial map[string]any

const (
	FieldVIN         = "vin"
	FieldLastUpdated = "lastUpdated"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
)

// Map center used until the vehicle reports a position.
const (
	DefaultLatitude  = 21.0285
	DefaultLongitude = 105.8542
)

const placeholder = "--"

// resetDefaults is applied to the active snapshot on every vehicle switch
// so one vehicle's telemetry never shows under another's identity.
var resetDefaults = Partial{
	"battery_level":                nil,
	"range":                        nil,
	"odometer":                     nil,
	"charging_status":              false,
	"speed":                        nil,
	FieldLatitude:                  DefaultLatitude,
	FieldLongitude:                 DefaultLongitude,
	"gear_position":                nil,
	"is_locked":                    nil,
	"climate_driver_temp":          nil,
	"climate_passenger_temp":       nil,
	"fan_speed":                    nil,
	"outside_temp":                 nil,
	"inside_temp":                  nil,
	"tire_pressure_fl":             nil,
	"tire_temp_fl":                 nil,
	"tire_pressure_fr":             nil,
	"tire_temp_fr":                 nil,
	"tire_pressure_rl":             nil,
	"tire_temp_rl":                 nil,
	"tire_pressure_rr":             nil,
	"tire_temp_rr":                 nil,
	"door_fl":                      false,
	"door_fr":                      false,
	"door_rl":                      false,
	"door_rr":                      false,
	"trunk_status":                 false,
	"hood_status":                  false,
	"handbrake_status":             false,
	"target_soc":                   nil,
	"remaining_charging_time":      nil,
	"soh_percentage":               nil,
	"battery_health_12v":           nil,
	"battery_nominal_capacity_kwh": nil,
	"battery_type":                 placeholder,
	"battery_serial":               nil,
	"battery_manufacture_date":     nil,
	"bms_version":                  placeholder,
	"gateway_version":              placeholder,
	"ecu_head_unit":                placeholder,
	"ignition_status":              nil,
	"heading":                      0.0,
	"mhu_version":                  placeholder,
	"vcu_version":                  placeholder,
	"bcm_version":                  placeholder,
	"firmware_version":             placeholder,
	"tbox_version":                 placeholder,
	"thermal_warning":              0.0,
	"service_alert":                0.0,
	"next_service_mileage":         nil,
	"next_service_date":            nil,
	"service_appointment_id":       nil,
	"service_appointment_status":   nil,
}

// telemetrySignals are the fields that count as real telemetry when
// deciding whether a cached partial can be shown without a refresh.
// Identity fields seeded from the vehicle list never count.
var telemetrySignals = []string{
	"battery_level",
	"range",
	"speed",
	"odometer",
	"remaining_charging_time",
	"battery_health_12v",
	"soh_percentage",
	"tire_pressure_fl",
	"tire_pressure_fr",
	"tire_pressure_rl",
	"tire_pressure_rr",
	FieldLatitude,
	FieldLongitude,
	"outside_temp",
	"inside_temp",
}

// Clone returns a shallow copy. Values are scalars so this is sufficient.
func (p Partial) Clone() Partial {
	if p == nil {
		return Partial{}
	}
	return maps.Clone(p)
}

// LastUpdated returns the partial's update time in epoch-ms.
func (p Partial) LastUpdated() (int64, bool) {
	f, ok := toFloat(p[FieldLastUpdated])
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Coordinates returns the partial's position when both axes are numeric.
func (p Partial) Coordinates() (lat, lon float64, ok bool) {
	lat, okLat := toFloat(p[FieldLatitude])
	lon, okLon := toFloat(p[FieldLongitude])
	return lat, lon, okLat && okLon
}

// freshness decides whether cached telemetry is recent enough to skip the
// refreshing indicator.
type freshness struct {
	window     time.Duration
	futureSkew time.Duration
}

func (f freshness) has(p Partial, now time.Time) bool {
	if len(p) == 0 {
		return false
	}
	lu, ok := p.LastUpdated()
	if !ok {
		return false
	}
	nowMS := now.UnixMilli()
	if lu > nowMS+f.futureSkew.Milliseconds() {
		return false
	}
	if nowMS-lu > f.window.Milliseconds() {
		return false
	}
	for _, key := range telemetrySignals {
		if validSignal(p[key]) {
			return true
		}
	}
	return false
}

func validSignal(v any) bool {
	switch s := v.(type) {
	case nil:
		return false
	case bool:
		return true
	case string:
		t := strings.TrimSpace(s)
		return t != "" && t != placeholder
	}
	_, ok := toFloat(v)
	return ok
}
