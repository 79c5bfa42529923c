package tui

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nixlim/vf-top/internal/config"
	"github.com/nixlim/vf-top/internal/vehicle"
)

func TestComputeDimensions_LargeTerminal(t *testing.T) {
	dims := computeDimensions(120, 40)

	if dims.vehicleListW < 30 || dims.vehicleListW > 50 {
		t.Errorf("vehicleListW = %d, want ~42", dims.vehicleListW)
	}
	if dims.vehicleListW+dims.snapshotW != 120 {
		t.Errorf("vehicleListW(%d) + snapshotW(%d) != 120", dims.vehicleListW, dims.snapshotW)
	}
	if dims.snapshotH != dims.vehicleListH {
		t.Errorf("snapshotH = %d, want vehicleListH = %d", dims.snapshotH, dims.vehicleListH)
	}

	totalH := dims.headerH + dims.vehicleListH + dims.noticesH
	if totalH != 40 {
		t.Errorf("headerH(%d) + vehicleListH(%d) + noticesH(%d) = %d, want 40",
			dims.headerH, dims.vehicleListH, dims.noticesH, totalH)
	}
}

func TestComputeDimensions_MinimumTerminal(t *testing.T) {
	dims := computeDimensions(20, 8)

	if dims.vehicleListW <= 0 || dims.snapshotW <= 0 {
		t.Errorf("widths = %d/%d, want > 0", dims.vehicleListW, dims.snapshotW)
	}
	if dims.noticesH < noticesMinHeight {
		t.Errorf("noticesH = %d, want >= %d", dims.noticesH, noticesMinHeight)
	}
	if dims.vehicleListH < 4 {
		t.Errorf("vehicleListH = %d, want >= 4", dims.vehicleListH)
	}
}

func TestNoticesHeight_Bounds(t *testing.T) {
	for h, want := range map[int]int{10: noticesMinHeight, 30: 6, 100: noticesMaxHeight} {
		if got := noticesHeight(h); got != want {
			t.Errorf("noticesHeight(%d) = %d, want %d", h, got, want)
		}
	}
}

func TestStripAnsi(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "hello world", "hello world"},
		{"with colors", "\x1b[31mred\x1b[0m text", "red text"},
		{"bold", "\x1b[1mbold\x1b[0m", "bold"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripAnsi(tt.input)
			if got != tt.want {
				t.Errorf("stripAnsi(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderBorderedPanel_ClampsContent(t *testing.T) {
	tests := []struct {
		name        string
		contentRows int
		w, h        int
	}{
		{"content_fits", 4, 40, 8},
		{"content_overflows", 10, 40, 8},
		{"small_panel", 5, 40, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lines []string
			for i := range tt.contentRows {
				lines = append(lines, fmt.Sprintf("line %d content here", i))
			}

			result := renderBorderedPanel(strings.Join(lines, "\n"), tt.w, tt.h)
			if got := len(strings.Split(result, "\n")); got != tt.h {
				t.Errorf("renderBorderedPanel() produced %d lines, want exactly %d", got, tt.h)
			}
		})
	}
}

func TestModel_ViewNilProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, v := range []ViewState{ViewDashboard, ViewHistory, ViewInspector} {
		t.Run(v.String(), func(t *testing.T) {
			m := NewModel(cfg, WithStartView(v))
			_ = m.View()
			m.width, m.height = 80, 24
			if out := m.View(); !strings.Contains(out, "vf-top") {
				t.Errorf("view should render the header, got %q", out)
			}
		})
	}
}

func TestModel_ViewClampedToTerminalHeight(t *testing.T) {
	e := &mockEngine{
		active:   vehicle.Snapshot{VIN: "RLLV1234567890123", Fields: vehicle.Partial{"battery_level": 80.0}},
		vehicles: []vehicle.Identity{{VIN: "RLLV1234567890123"}},
	}
	sizes := []struct {
		name          string
		width, height int
	}{
		{"small_15", 80, 15},
		{"small_12", 80, 12},
		{"minimum_10", 40, 10},
	}

	for _, sz := range sizes {
		for _, v := range []ViewState{ViewDashboard, ViewHistory, ViewInspector} {
			t.Run(sz.name+"_"+v.String(), func(t *testing.T) {
				m := newTestModel(e, WithStartView(v))
				m.width = sz.width
				m.height = sz.height

				lines := strings.Split(m.View(), "\n")
				if len(lines) > sz.height {
					t.Errorf("View() output has %d lines, want at most %d", len(lines), sz.height)
				}
				if !strings.Contains(lines[0], "vf-top") {
					t.Errorf("first line = %q, want to contain 'vf-top'", lines[0])
				}
			})
		}
	}
}

func TestModel_DashboardShowsSnapshot(t *testing.T) {
	e := &mockEngine{
		active: vehicle.Snapshot{
			VIN:          "RLLV1234567890123",
			IsRefreshing: true,
			Fields: vehicle.Partial{
				"battery_level":        15.0,
				"odometer":             12034.0,
				"location_address":     "Ba Dinh, Ha Noi, VN",
				"weather_outside_temp": 31.5,
				"weather_address":      "Ha Noi, VN",
				"bms_version":          "--",
				"firmware_version":     "1.2.3",
			},
		},
		vehicles: []vehicle.Identity{{VIN: "RLLV1234567890123", VehicleName: "VF 8"}},
	}
	out := stripAnsi(newTestModel(e).View())

	for _, want := range []string{"15%", "12,034 km", "Ba Dinh, Ha Noi, VN", "31.5°C", "refreshing", "firmware_version", "VF 8"} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard should contain %q", want)
		}
	}
	if strings.Contains(out, "bms_version") {
		t.Error("placeholder fields should be hidden")
	}
}

func TestModel_DetailOverlayScroll(t *testing.T) {
	m := newTestModel(&mockEngine{})
	m.detailOverlay = true
	m.detailTitle = "Charging Session"
	m.detailContent = strings.Repeat("line\n", 50)

	if out := stripAnsi(m.View()); !strings.Contains(out, "Charging Session") {
		t.Error("overlay title missing")
	}
	updated, _ := m.Update(keyRune('j'))
	if updated.(Model).detailScrollPos != 1 {
		t.Error("down should scroll the overlay")
	}
	updated, _ = updated.(Model).Update(keyRune('r'))
	if !updated.(Model).detailOverlay {
		t.Error("overlay should swallow other keys")
	}
}

func TestNoPersistenceIndicator(t *testing.T) {
	for _, persistent := range []bool{false, true} {
		m := newTestModel(&mockEngine{}, WithPersistenceFlag(persistent))
		has := strings.Contains(m.View(), "No persistence")
		if has == persistent {
			t.Errorf("persistent=%v: indicator shown=%v", persistent, has)
		}
	}
}

func TestDroppedNoticesIndicator(t *testing.T) {
	m := newTestModel(&mockEngine{dropped: 3})
	if !strings.Contains(m.View(), "Notices dropped") {
		t.Error("dropped notices should be flagged in the header")
	}
}

func TestParseView(t *testing.T) {
	for in, want := range map[string]ViewState{"history": ViewHistory, "Inspector": ViewInspector, "DASHBOARD": ViewDashboard} {
		got, err := ParseView(in)
		if err != nil || got != want {
			t.Errorf("ParseView(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseView("charts"); err == nil {
		t.Error("unknown view should fail")
	}
}
