package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nixlim/vf-top/internal/events"
	"github.com/nixlim/vf-top/internal/vehicle"
)

// renderVehicleListPanel renders the vehicle list with the active vehicle
// marked and the cursor highlighted.
func (m Model) renderVehicleListPanel(w, h int) string {
	vehicles := m.getVehicles()
	active := m.activeVIN()

	contentW := w - 4
	if contentW < 16 {
		contentW = 16
	}

	lines := []string{panelTitleStyle.Render("Vehicles") + dimStyle.Render(fmt.Sprintf(" [%d]", len(vehicles)))}

	if len(vehicles) == 0 {
		lines = append(lines, "", dimStyle.Render("No vehicles loaded"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
	}

	header := formatVehicleHeader(contentW)
	lines = append(lines, dimStyle.Render(header))
	lines = append(lines, dimStyle.Render(strings.Repeat("─", min(contentW, len(header)))))

	for i, id := range vehicles {
		line := formatVehicleRow(id, id.VIN == active, contentW)
		if i == m.vehicleCursor {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
}

func formatVehicleHeader(maxW int) string {
	if maxW >= 40 {
		return fmt.Sprintf("  %-10s %-16s %-4s", "VIN", "Name", "Year")
	}
	return fmt.Sprintf("  %-10s %-8s", "VIN", "Name")
}

func formatVehicleRow(id vehicle.Identity, active bool, maxW int) string {
	marker := "  "
	if active {
		marker = liveStyle.Render("▶ ")
	}
	vin := events.ShortVIN(id.VIN)
	if maxW >= 40 {
		year := "-"
		if id.YearOfProduct > 0 {
			year = fmt.Sprintf("%d", id.YearOfProduct)
		}
		return fmt.Sprintf("%s%-10s %-16s %-4s", marker, vin, truncateStr(id.DisplayName(), 16), year)
	}
	return fmt.Sprintf("%s%-10s %-8s", marker, vin, truncateStr(id.DisplayName(), 8))
}

// headlineFields are shown first in the snapshot panel, in this order.
var headlineFields = []struct{ key, label string }{
	{"battery_level", "Battery"},
	{"range", "Range"},
	{"odometer", "Odometer"},
	{"speed", "Speed"},
	{"charging_status", "Charging"},
	{"remaining_charging_time", "Time to full"},
	{"location_address", "Location"},
	{"weather_outside_temp", "Weather"},
}

// renderSnapshotPanel renders the active vehicle's snapshot: headline
// fields, status flags, then every other non-empty field by name.
func (m Model) renderSnapshotPanel(w, h int) string {
	lines := []string{panelTitleStyle.Render("Snapshot")}
	if m.vehicles == nil {
		lines = append(lines, "", dimStyle.Render("No vehicle selected"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
	}

	snap := m.vehicles.Active()
	if snap.VIN == "" {
		lines = append(lines, "", dimStyle.Render("No vehicle selected"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
	}

	lines[0] += dimStyle.Render(" [" + snap.VIN + "]")
	lines = append(lines, m.renderFlags(snap))

	shown := make(map[string]bool)
	for _, f := range headlineFields {
		shown[f.key] = true
		v, ok := snap.Fields[f.key]
		if !ok || v == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-14s %s", f.label, renderField(f.key, v, snap.Fields)))
	}
	shown["weather_code"] = true
	shown["weather_address"] = true

	var rest []string
	for k, v := range snap.Fields {
		if shown[k] || isEmptyField(v) {
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)
	if len(rest) > 0 {
		lines = append(lines, dimStyle.Render(strings.Repeat("─", min(w-4, 40))))
		for _, k := range rest {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("%-24s", truncateStr(k, 24)))+" "+fmt.Sprint(snap.Fields[k]))
		}
	}

	if m.lastScan != nil && m.lastScan.VIN == snap.VIN {
		lines = append(lines, "", dimStyle.Render(formatScanSummary(*m.lastScan)))
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
}

func (m Model) renderFlags(snap vehicle.Snapshot) string {
	var parts []string
	if snap.IsRefreshing {
		parts = append(parts, staleStyle.Render("refreshing"))
	}
	if snap.IsScanning {
		parts = append(parts, staleStyle.Render("scanning"))
	}
	if snap.IsEnriching {
		parts = append(parts, staleStyle.Render("locating"))
	}
	updated := snap.LastUpdated()
	age := events.FormatAge(updated, m.now())
	if !updated.IsZero() && m.now().Sub(updated) < time.Minute {
		parts = append(parts, liveStyle.Render("live")+dimStyle.Render(" "+age))
	} else {
		parts = append(parts, dimStyle.Render("updated "+age))
	}
	return strings.Join(parts, " ")
}

func renderField(key string, v any, fields vehicle.Partial) string {
	switch key {
	case "battery_level":
		f, ok := v.(float64)
		if !ok {
			return fmt.Sprint(v)
		}
		s := fmt.Sprintf("%.0f%%", f)
		switch {
		case f >= 50:
			return batteryHighStyle.Render(s)
		case f >= 20:
			return batteryMidStyle.Render(s)
		default:
			return batteryLowStyle.Render(s)
		}
	case "range", "odometer":
		if f, ok := v.(float64); ok {
			return formatNumber(int64(f)) + " km"
		}
	case "speed":
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.0f km/h", f)
		}
	case "remaining_charging_time":
		if f, ok := v.(float64); ok {
			return events.FormatDuration(time.Duration(f) * time.Minute)
		}
	case "weather_outside_temp":
		s := fmt.Sprint(v)
		if f, ok := v.(float64); ok {
			s = fmt.Sprintf("%.1f°C", f)
		}
		if place, ok := fields["weather_address"].(string); ok && place != "" {
			s += dimStyle.Render(" " + place)
		}
		return s
	case "charging_status":
		if b, ok := v.(bool); ok {
			if b {
				return liveStyle.Render("yes")
			}
			return "no"
		}
	}
	return fmt.Sprint(v)
}

func isEmptyField(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return s == "" || s == "--"
	}
	return false
}

func formatScanSummary(r vehicle.ScanResult) string {
	switch {
	case r.TimedOut:
		return fmt.Sprintf("deep scan timed out after %s (retry %d)", events.FormatDuration(r.Waited), r.Retry)
	case r.Cached:
		return fmt.Sprintf("deep scan: %d records (cached %s)", len(r.Records), r.At.Format("15:04:05"))
	}
	return fmt.Sprintf("deep scan: %d records at %s", len(r.Records), r.At.Format("15:04:05"))
}

// truncateStr truncates a string to maxLen characters.
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-1] + "."
}
