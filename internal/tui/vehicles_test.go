package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/nixlim/vf-top/internal/history"
	"github.com/nixlim/vf-top/internal/vehicle"
)

func TestFormatVehicleRow_MissingYear(t *testing.T) {
	row := stripAnsi(formatVehicleRow(vehicle.Identity{VIN: "V1", VehicleName: "VF8"}, false, 80))
	fields := strings.Fields(row)
	if got := fields[len(fields)-1]; got != "-" {
		t.Errorf("year placeholder = %q, want %q (row %q)", got, "-", row)
	}

	row = stripAnsi(formatVehicleRow(vehicle.Identity{VIN: "V1", VehicleName: "VF8", YearOfProduct: 2024}, false, 80))
	if !strings.HasSuffix(strings.TrimRight(row, " "), "2024") {
		t.Errorf("row = %q, want year 2024", row)
	}
}

func TestFormatSessionRow_MissingTime(t *testing.T) {
	row := formatSessionRow(history.Session{ChargingStationName: "Depot"}, time.UTC)
	fields := strings.Fields(row)
	if len(fields) == 0 || fields[0] != "-" {
		t.Errorf("date placeholder missing: %q", row)
	}
	if strings.ContainsRune(row, '—') {
		t.Errorf("row contains an em-dash: %q", row)
	}
}
