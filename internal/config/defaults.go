package config

import "maps"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Source: SourceConfig{
			Region:           "vn",
			RequestTimeoutMS: 15000,
		},
		Telemetry: TelemetryConfig{
			CatalogTTLDays: 14,
			Ordering:       "arrival",
			Fields:         make(map[string]string),
			Aliases:        map[string]string{"34180|1|1": "VINFAST_VEHICLE_IDENTIFIER_VIN_NUMBER"},
			AliasFields:    DefaultAliasFields(),
		},
		Vehicle: VehicleConfig{
			FreshnessSeconds:           300,
			FutureSkewSeconds:          300,
			DeepScanCacheSeconds:       300,
			DeepScanWaitMS:             5000,
			DeepScanPollMS:             500,
			DeepScanMinWaitMS:          1000,
			DeepScanRetryWindowSeconds: 30,
		},
		Enrichment: EnrichmentConfig{
			Enabled:        true,
			WindowSeconds:  180,
			DistanceMeters: 500,
			TimeoutMS:      5000,
			NominatimURL:   "https://nominatim.openstreetmap.org/reverse",
			OpenMeteoURL:   "https://api.open-meteo.com/v1/forecast",
		},
		History: HistoryConfig{
			PageSize:       500,
			RevalidateSize: 50,
			Concurrency:    5,
			TTLHours:       24,
			MaxCachedVINs:  6,
		},
		Storage: StorageConfig{
			Backend:       "sqlite",
			DBPath:        "~/.local/share/vf-top/vf-top.db",
			RetentionDays: 30,
		},
		Display: DisplayConfig{
			RefreshRateMS:    500,
			NoticeBufferSize: 200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaultAliasFields routes the dashboard's core signals to snapshot fields
// by alias name. A signal reaches the snapshot once [telemetry.aliases]
// names its canonical key; explicit [telemetry.fields] entries win.
var defaultAliasFields = map[string]string{
	"VEHICLE_STATUS_HV_BATTERY_SOC":                   "battery_level",
	"VEHICLE_STATUS_LV_BATTERY_SOC":                   "battery_health_12v",
	"VEHICLE_STATUS_REMAINING_DISTANCE":               "range",
	"VEHICLE_STATUS_ODOMETER":                         "odometer",
	"VEHICLE_STATUS_VEHICLE_SPEED":                    "speed",
	"VEHICLE_STATUS_GEAR_POSITION":                    "gear_position",
	"VEHICLE_STATUS_IGNITION_STATUS":                  "ignition_status",
	"VEHICLE_STATUS_HANDBRAKE_STATUS":                 "handbrake_status",
	"VEHICLE_STATUS_AMBIENT_TEMPERATURE":              "outside_temp",
	"VEHICLE_STATUS_INTERIOR_TEMPERATURE":             "inside_temp",
	"VEHICLE_STATUS_FRONT_LEFT_TIRE_PRESSURE":         "tire_pressure_fl",
	"VEHICLE_STATUS_FRONT_RIGHT_TIRE_PRESSURE":        "tire_pressure_fr",
	"VEHICLE_STATUS_REAR_LEFT_TIRE_PRESSURE":          "tire_pressure_rl",
	"VEHICLE_STATUS_REAR_RIGHT_TIRE_PRESSURE":         "tire_pressure_rr",
	"VEHICLE_STATUS_FRONT_LEFT_TIRE_TEMPERATURE":      "tire_temp_fl",
	"VEHICLE_STATUS_FRONT_RIGHT_TIRE_TEMPERATURE":     "tire_temp_fr",
	"VEHICLE_STATUS_REAR_LEFT_TIRE_TEMPERATURE":       "tire_temp_rl",
	"VEHICLE_STATUS_REAR_RIGHT_TIRE_TEMPERATURE":      "tire_temp_rr",
	"CHARGING_STATUS_CHARGING_STATUS":                 "charging_status",
	"CHARGING_STATUS_CHARGING_REMAINING_TIME":         "remaining_charging_time",
	"CHARGE_CONTROL_CURRENT_TARGET_SOC":               "target_soc",
	"REMOTE_CONTROL_CHARGE_PORT_STATUS":               "charge_port_status",
	"REMOTE_CONTROL_DOOR_STATUS":                      "is_locked",
	"REMOTE_CONTROL_WINDOW_STATUS":                    "window_status",
	"DOOR_AJAR_FRONT_LEFT_DOOR_STATUS":                "door_fl",
	"DOOR_AJAR_FRONT_RIGHT_DOOR_STATUS":               "door_fr",
	"DOOR_AJAR_REAR_LEFT_DOOR_STATUS":                 "door_rl",
	"DOOR_AJAR_REAR_RIGHT_DOOR_STATUS":                "door_rr",
	"DOOR_BONNET_DOOR_STATUS":                         "hood_status",
	"DOOR_TRUNK_DOOR_STATUS":                          "trunk_status",
	"CLIMATE_INFORMATION_DRIVER_TEMPERATURE":          "climate_driver_temp",
	"CLIMATE_INFORMATION_PASSENGER_TEMPERATURE":       "climate_passenger_temp",
	"CLIMATE_INFORMATION_DRIVER_AIR_BLOW_LEVEL":       "fan_speed",
	"PET_MODE_CONTROL_STATUS":                         "pet_mode",
	"CAMP_MODE_CONTROL_STATUS":                        "camp_mode",
	"LOCATION_LATITUDE":                               "latitude",
	"LOCATION_LONGITUDE":                              "longitude",
	"BMS_STATUS_STATE_OF_HEALTH":                      "soh_percentage",
	"BMS_STATUS_NOMINAL_CAPACITY_OF_THE_BATTERY_PACK": "battery_nominal_capacity_kwh",
	"BMS_STATUS_BATTERY_TYPE":                         "battery_type",
	"BMS_STATUS_BATTERY_SERIAL_NUMBER":                "battery_serial",
	"BMS_STATUS_BATTERY_DECODED_MANUFACTURE_DATE":     "battery_manufacture_date",
	"BMS_STATUS_THERMAL_RUNAWAY_WARNING":              "thermal_warning",
	"FIRMWARE_UPDATE_CURRENT_PKG_VERSION":             "firmware_version",
	"VERSION_INFO_TBOX_SOFTWARE_VERSION":              "tbox_version",
	"VINFAST_VEHICLE_IDENTIFIER_VEHICLE_MANUFACTURER": "manufacturer",
}

// DefaultAliasFields returns a copy of the built-in alias-to-field table.
func DefaultAliasFields() map[string]string {
	return maps.Clone(defaultAliasFields)
}
