package telemetry

import "testing"

func TestHumanizeAlias(t *testing.T) {
	tests := []struct {
		alias string
		want  string
	}{
		{"ECUS_INFORMATION_HEAD_UNIT_SOFTWARE_VERSION", "Head Unit Software Version"},
		{"BMS_STATUS_PACK_TEMPERATURE", "Pack Temperature"},
		{"VEHICLE_STATUS_HV_BATTERY_SOC", "HV Battery SOC"},
		{"WINDOW_SUNROOF_POSITION", "Position"},
		{"LOCATION_X", "Location X"},
		{"TRIPS_INFORMATION_TRIP_2_DISTANCE", "Trip 2 Distance"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			if got := HumanizeAlias(tt.alias); got != tt.want {
				t.Errorf("HumanizeAlias(%q): want %q, got %q", tt.alias, tt.want, got)
			}
		})
	}
}

func TestAliases_Lookup(t *testing.T) {
	a := NewAliases(map[string]string{
		"34180|01|1": "VINFAST_VEHICLE_IDENTIFIER_VIN_NUMBER",
		"bogus":      "IGNORED",
	})
	if len(a) != 1 {
		t.Fatalf("want 1 alias, got %d", len(a))
	}

	for _, key := range []string{"34180|1|1", "34180_1_1", "34180_01_001"} {
		name, ok := a.Lookup(key)
		if !ok || name != "VINFAST_VEHICLE_IDENTIFIER_VIN_NUMBER" {
			t.Errorf("Lookup(%q): got %q, %v", key, name, ok)
		}
	}
	if _, ok := a.Lookup("1_2_3"); ok {
		t.Error("unknown key should miss")
	}
	if got := a.Label("34180_1_1"); got != "VIN Number" {
		t.Errorf("Label: got %q", got)
	}
	if got := Aliases(nil).Label("34180|1|1"); got != "" {
		t.Errorf("empty table label: got %q", got)
	}
}

func TestAliases_FieldsMergeUnderExplicitMap(t *testing.T) {
	a := NewAliases(map[string]string{
		"34183|1|9":  "VEHICLE_STATUS_HV_BATTERY_SOC",
		"34183|1|10": "VEHICLE_STATUS_ODOMETER",
		"34183|1|11": "UNROUTED_SIGNAL",
	})
	byAlias := map[string]string{
		"VEHICLE_STATUS_HV_BATTERY_SOC": "battery_level",
		"VEHICLE_STATUS_ODOMETER":       "odometer",
	}

	fm := NewFieldMap(map[string]string{"34183|1|10": "odometer_km"}).Merge(a.Fields(byAlias))
	if fm["34183|1|9"] != "battery_level" {
		t.Errorf("aliased key should route by alias, got %v", fm)
	}
	if fm["34183|1|10"] != "odometer_km" {
		t.Errorf("explicit entry should win, got %q", fm["34183|1|10"])
	}
	if _, ok := fm["34183|1|11"]; ok {
		t.Error("alias without a field should not be routed")
	}

	got := fm.Derive([]Record{{Key: "34183|1|9", Value: "81"}})
	if got["battery_level"] != 81.0 {
		t.Errorf("Derive through alias: got %v", got)
	}
}
