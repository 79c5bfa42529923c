package telemetry

import "strings"

// Aliases maps canonical keys to the manufacturer's UPPER_SNAKE signal
// names, e.g. "34180|1|1" → "VINFAST_VEHICLE_IDENTIFIER_VIN_NUMBER".
type Aliases map[string]string

// NewAliases normalizes the configured keys the same way NewFieldMap does.
// Entries whose key does not parse are dropped.
func NewAliases(names map[string]string) Aliases {
	return Aliases(NewFieldMap(names))
}

// Lookup returns the alias for a canonical key or device key.
func (a Aliases) Lookup(key string) (string, bool) {
	if len(a) == 0 {
		return "", false
	}
	if name, ok := a[key]; ok {
		return name, true
	}
	k, ok := splitDeviceKey(key)
	if !ok {
		k, ok = ParseKey(key)
		if !ok {
			return "", false
		}
	}
	norm, ok := Normalize(map[string]any{"objectId": k.Object, "instanceId": k.Instance, "resourceId": k.Resource})
	if !ok {
		return "", false
	}
	name, ok := a[norm.String()]
	return name, ok
}

// Fields routes every aliased key whose alias appears in byAlias to that
// snapshot field.
func (a Aliases) Fields(byAlias map[string]string) FieldMap {
	fm := make(FieldMap)
	for key, name := range a {
		if field := byAlias[name]; field != "" {
			fm[key] = field
		}
	}
	return fm
}

// Label returns the readable label for key, or "" when it has no alias.
func (a Aliases) Label(key string) string {
	name, ok := a.Lookup(key)
	if !ok {
		return ""
	}
	return HumanizeAlias(name)
}

// aliasPrefixes are the signal-group prefixes stripped from aliases,
// longest first so the most specific group matches.
var aliasPrefixes = []string{
	"VINFAST_VEHICLE_MASTER_INFO_",
	"VINFAST_VEHICLE_IDENTIFIER_",
	"NETWORK_ACCESS_DEVICE_INFO_",
	"TBOX_MANUAL_SOFTWARE_UPDATE_INFO_",
	"ASSUARANCE_SERVICE_DATA_",
	"TELEMATICS_LOG_RECORD_UPLINK_",
	"TELEMATICS_LOG_RECORD_",
	"REALTIME_BUS_MONITORING_NULL_",
	"REALTIME_BUS_MONITORING_",
	"DRIVING_STATISTICS_REPORT_",
	"VEHICLE_CRASH_STATUS_",
	"TELLTALES_NOTIFICATION_",
	"CYBERSECURITY_INFO_",
	"TBOX_RUNTIME_INFO_",
	"VISION_SNAPSHOT_",
	"SEAT_BELT_STATUS_",
	"TRIPS_INFORMATION_",
	"CLIMATE_INFORMATION_",
	"CLIMATE_SCHEDULE_",
	"CLIMATE_CONTROL_",
	"CHARGING_STATUS_",
	"CHARGE_CONTROL_",
	"FIRMWARE_UPDATE_",
	"ECUS_INFORMATION_",
	"VEHICLE_WARNINGS_",
	"VEHICLE_STATUS_",
	"REMOTE_CONTROL_",
	"REMOTE_DIAGNOCTICS_",
	"DRIVER_ASSISTANCE_",
	"PNC_INFORMATION_",
	"CCARSERVICE_OBJECT_",
	"DATABASE_EXCHANGE_",
	"NETWORK_ACCESS_",
	"VINFAST_ECU_",
	"ADAS_REMOTE_CONTROL_",
	"ADAS_RP_INFORMATION_",
	"ADAS_SUMMON_INFORMATION_",
	"ADAS_USAGE_INFORMATION_",
	"DOOR_AJAR_",
	"DOOR_BONNET_",
	"DOOR_TRUNK_",
	"BMS_STATUS_",
	"BATTERY_LEASING_INFO_",
	"CAMP_MODE_CONTROL_",
	"PET_MODE_CONTROL_",
	"VALET_MODE_CONTROL_",
	"SENTRY_MODE_CONTROL_",
	"IMMOBILIZATION_AWS_",
	"IMMOBILIZATION_",
	"INTRUSION_",
	"DTCS_RECORD_",
	"ISA_MAP_",
	"MHU_ACCESS_",
	"CAPP_PAIRING_INFO_",
	"CAPP_PAIRING_",
	"FOTA_COMMAND_",
	"ECALL_INFO_",
	"ESYNC_PROVISION_",
	"DATA_PRIVACY_",
	"VERSION_INFO_",
	"WINDOW_AJAR_",
	"WINDOW_SUNROOF_",
	"WINDOW_SUNSHADE_",
	"WINDOW_",
	"LIGHT_",
	"LOCATION_",
	"REALTIME_BUS_",
}

// acronyms stay upper-case in labels.
var acronyms = map[string]bool{
	"SOC": true, "SOH": true, "HV": true, "LV": true, "BMS": true, "TPMS": true,
	"GPS": true, "VCU": true, "BCM": true, "ECU": true, "MHU": true, "ACM": true,
	"XGW": true, "ETG": true, "ABS": true, "ESP": true, "EBD": true, "DRL": true,
	"VIN": true, "ADAS": true, "OTA": true, "USB": true, "AC": true, "DC": true,
	"HVAC": true, "LED": true, "OBD": true, "PNC": true, "DTC": true, "DTCS": true,
	"ICCID": true, "IMEI": true, "RSA": true, "MSD": true, "GNSS": true, "JSON": true,
	"PKG": true, "SW": true, "HW": true, "ID": true, "UID": true, "IP": true,
	"URL": true, "API": true, "AWS": true, "SUL": true, "ISO": true, "CAN": true,
	"LIN": true, "MCU": true, "SPI": true, "UART": true, "PWM": true, "ADC": true,
	"DAC": true, "ROM": true, "RAM": true, "CPU": true, "DSM": true, "EPB": true,
	"ESC": true, "TCS": true, "ACC": true, "AEB": true, "LKA": true, "LDW": true,
	"BSM": true, "RPA": true, "NFC": true, "OBC": true, "PDC": true, "USS": true,
	"ISA": true, "TBOX": true, "EV": true, "RP": true,
}

// HumanizeAlias turns an UPPER_SNAKE alias into a title-cased label with its
// signal-group prefix removed:
//
//	"VEHICLE_STATUS_HV_BATTERY_SOC" → "HV Battery SOC"
func HumanizeAlias(alias string) string {
	if alias == "" {
		return ""
	}

	rest := alias
	for _, p := range aliasPrefixes {
		if strings.HasPrefix(rest, p) {
			rest = rest[len(p):]
			break
		}
	}
	if len(rest) < 2 {
		rest = alias
	}

	var words []string
	for _, w := range strings.Split(rest, "_") {
		if w == "" {
			continue
		}
		upper := strings.ToUpper(w)
		if acronyms[upper] || isDigits(w) {
			words = append(words, upper)
			continue
		}
		words = append(words, upper[:1]+strings.ToLower(w[1:]))
	}
	return strings.Join(words, " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
