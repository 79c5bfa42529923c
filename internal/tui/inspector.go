package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/vf-top/internal/events"
)

// inspectRow is one line of the inspector table: a live record, or a
// catalogued key the live bucket no longer holds.
type inspectRow struct {
	Key         string
	DeviceKey   string
	Label       string
	Value       any
	LastUpdated int64
	Missing     bool
}

// inspectorChromeLines is the number of body lines above the key table
// besides the per-VIN summary: title, column header, rule.
const inspectorChromeLines = 3

func (m Model) inspectVisibleRows() int {
	summary := 1
	if m.inspector != nil {
		summary = max(1, len(m.inspector.Inspect(m.ctx, "")))
	}
	h := m.height - headerHeight - noticesHeight(m.height) - inspectorChromeLines - summary - 1
	if h < 1 {
		h = 1
	}
	return h
}

// inspectEntries lists the active vehicle's live records in key order,
// followed by its missing catalogued keys.
func (m Model) inspectEntries() []inspectRow {
	vin := m.activeVIN()
	if m.inspector == nil || vin == "" {
		return nil
	}
	var rows []inspectRow
	for _, e := range m.inspector.Snapshot(vin) {
		rows = append(rows, inspectRow{Key: e.Key, DeviceKey: e.DeviceKey, Label: m.inspector.Label(e.Key), Value: e.Value, LastUpdated: e.LastUpdated})
	}
	for _, in := range m.inspector.Inspect(m.ctx, vin) {
		for _, k := range in.Missing {
			rows = append(rows, inspectRow{Key: k, DeviceKey: strings.ReplaceAll(k, "|", "_"), Missing: true})
		}
	}
	return rows
}

func (m Model) renderInspector() string {
	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteByte('\n')

	bodyH := m.height - headerHeight - noticesHeight(m.height)
	lines := strings.Split(m.renderInspectorBody(), "\n")
	for len(lines) < bodyH {
		lines = append(lines, "")
	}
	if bodyH > 0 && len(lines) > bodyH {
		lines = lines[:bodyH]
	}
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteByte('\n')

	sb.WriteString(m.renderNoticePanel(m.width, noticesHeight(m.height)))
	return sb.String()
}

func (m Model) renderInspectorBody() string {
	if m.inspector == nil {
		return dimStyle.Render("  inspector unavailable")
	}

	lines := []string{"  " + panelTitleStyle.Render("Key Catalog") +
		dimStyle.Render(fmt.Sprintf("  version %d", m.inspector.Version()))}

	all := m.inspector.Inspect(m.ctx, "")
	if len(all) == 0 {
		lines = append(lines, dimStyle.Render("  No keys recorded yet"))
	}
	active := m.activeVIN()
	for _, in := range all {
		marker := "  "
		if in.VIN == active {
			marker = liveStyle.Render("▶ ")
		}
		line := fmt.Sprintf("%s%-18s live %4d  catalog %4d", marker, in.VIN, in.SnapshotCount, len(in.CatalogKeys))
		if n := len(in.Missing); n > 0 {
			line += staleStyle.Render(fmt.Sprintf("  missing %d", n))
		}
		lines = append(lines, line)
	}

	rows := m.inspectEntries()
	lines = append(lines, "")
	if active == "" {
		lines = append(lines, dimStyle.Render("  No vehicle selected"))
		return strings.Join(lines, "\n")
	}
	if len(rows) == 0 {
		lines = append(lines, dimStyle.Render("  No live records for "+events.ShortVIN(active)))
		return strings.Join(lines, "\n")
	}

	lines = append(lines, fmt.Sprintf("  %-16s %-24s %-24s %10s", "Key", "Signal", "Value", "Age"))
	lines = append(lines, dimStyle.Render("  "+strings.Repeat("─", 78)))

	visible := m.inspectVisibleRows()
	start := m.inspectScrollPos
	if start > len(rows)-visible {
		start = len(rows) - visible
	}
	if start < 0 {
		start = 0
	}
	end := min(start+visible, len(rows))

	now := m.now()
	for i := start; i < end; i++ {
		line := formatInspectRow(rows[i], now)
		if i == m.inspectCursor {
			line = selectedStyle.Render(line)
		} else if rows[i].Missing {
			line = dimStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if len(rows) > visible {
		lines = append(lines, dimStyle.Render("  "+formatScrollPos(start+1, end, len(rows))))
	}
	return strings.Join(lines, "\n")
}

func formatInspectRow(r inspectRow, now time.Time) string {
	name := r.Label
	if name == "" {
		name = r.DeviceKey
	}
	if r.Missing {
		return fmt.Sprintf("  %-16s %-24s %-24s %10s", truncateStr(r.Key, 16), truncateStr(name, 24), "(not live)", "")
	}
	age := ""
	if r.LastUpdated > 0 {
		age = events.FormatAge(time.UnixMilli(r.LastUpdated), now)
	}
	return fmt.Sprintf("  %-16s %-24s %-24s %10s",
		truncateStr(r.Key, 16), truncateStr(name, 24), truncateStr(fmt.Sprint(r.Value), 24), age)
}

func formatEntryDetail(r inspectRow, now time.Time) string {
	lines := []string{
		"Key:        " + r.Key,
		"Device key: " + r.DeviceKey,
	}
	if r.Label != "" {
		lines = append(lines, "Signal:     "+r.Label)
	}
	if r.Missing {
		lines = append(lines, "", "Catalogued for this vehicle but not in the live feed.")
		return strings.Join(lines, "\n")
	}
	lines = append(lines,
		fmt.Sprintf("Value:      %v (%T)", r.Value, r.Value),
	)
	if r.LastUpdated > 0 {
		t := time.UnixMilli(r.LastUpdated)
		lines = append(lines, "Updated:    "+t.Format("2006-01-02 15:04:05")+" ("+events.FormatAge(t, now)+")")
	}
	return strings.Join(lines, "\n")
}
