package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/vf-top/internal/events"
	"github.com/nixlim/vf-top/internal/history"
)

type historyRow struct {
	label    string
	energy   float64
	amount   float64
	sessions int
}

// historyChromeLines is the number of body lines above the session table:
// filter, status, totals, breakdown, column header, rule.
const historyChromeLines = 6

func (m Model) historyVisibleRows() int {
	h := m.height - headerHeight - noticesHeight(m.height) - historyChromeLines
	if h < 1 {
		h = 1
	}
	return h
}

func (m Model) renderHistory() string {
	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteByte('\n')

	bodyH := m.height - headerHeight - noticesHeight(m.height)
	body := m.renderHistoryBody()
	lines := strings.Split(body, "\n")
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

func (m Model) renderHistoryBody() string {
	if m.history == nil {
		return dimStyle.Render("  charging history is not configured (set source.api_base)")
	}
	st := m.history.History()
	if st.VIN == "" {
		if st.Error != "" {
			return errorStyle.Render("  " + st.Error)
		}
		return dimStyle.Render("  No history loaded")
	}

	var lines []string
	lines = append(lines, "  "+renderFilterLine(st.Filter))

	switch {
	case st.IsLoading:
		lines = append(lines, staleStyle.Render("  loading..."))
	case st.Error != "":
		lines = append(lines, errorStyle.Render("  "+st.Error))
	case st.Warning != "":
		lines = append(lines, staleStyle.Render("  "+st.Warning))
	default:
		lines = append(lines, dimStyle.Render(fmt.Sprintf("  %d of %d sessions loaded", st.TotalLoaded, st.TotalRecords)))
	}

	total := sumRows(st.Sessions)
	lines = append(lines, fmt.Sprintf("  %d sessions  %s  %s",
		total.sessions, events.FormatEnergy(total.energy), events.FormatAmount(total.amount)))

	breakdown := ""
	if st.Filter.Mode == history.ModeYear {
		var parts []string
		for _, r := range aggregateMonthly(st.Sessions, m.now().Location()) {
			parts = append(parts, r.label+" "+events.FormatEnergy(r.energy))
		}
		breakdown = "  " + strings.Join(parts, " · ")
	}
	lines = append(lines, dimStyle.Render(breakdown))

	if len(st.Sessions) == 0 {
		lines = append(lines, "", dimStyle.Render("  No sessions match the filter"))
		return strings.Join(lines, "\n")
	}

	lines = append(lines, fmt.Sprintf("  %-16s %-28s %10s %8s %10s",
		"Date", "Station", "Energy", "Time", "Amount"))
	lines = append(lines, dimStyle.Render("  "+strings.Repeat("─", 76)))

	visible := m.historyVisibleRows()
	start := m.historyScrollPos
	if start > len(st.Sessions)-visible {
		start = len(st.Sessions) - visible
	}
	if start < 0 {
		start = 0
	}
	end := min(start+visible, len(st.Sessions))

	loc := m.now().Location()
	for i := start; i < end; i++ {
		line := formatSessionRow(st.Sessions[i], loc)
		if i == m.historyCursor {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if len(st.Sessions) > visible {
		lines = append(lines, dimStyle.Render("  "+formatScrollPos(start+1, end, len(st.Sessions))))
	}
	return strings.Join(lines, "\n")
}

func renderFilterLine(f history.FilterState) string {
	var current string
	switch f.Mode {
	case history.ModeYear:
		current = fmt.Sprintf("Year %d", f.Year)
	case history.ModeMonth:
		current = fmt.Sprintf("Month T%d/%d", f.Month, f.Year)
	default:
		current = "All"
	}
	s := panelTitleStyle.Render("Filter: " + current)

	if len(f.AvailableYears) > 0 {
		years := make([]string, len(f.AvailableYears))
		for i, y := range f.AvailableYears {
			years[i] = fmt.Sprintf("%d", y)
		}
		s += dimStyle.Render("  years: " + strings.Join(years, " "))
	}
	if len(f.AvailableMonths) > 0 {
		months := make([]string, len(f.AvailableMonths))
		for i, mo := range f.AvailableMonths {
			months[i] = mo.Label
		}
		s += dimStyle.Render("  months: " + strings.Join(months, " "))
	}
	return s
}

func formatSessionRow(s history.Session, loc *time.Location) string {
	date := "-"
	if ms := s.SessionTime(); ms != 0 {
		date = time.UnixMilli(ms).In(loc).Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("  %-16s %-28s %10s %8s %10s",
		date,
		truncateStr(s.ChargingStationName, 28),
		events.FormatEnergy(s.Energy()),
		events.FormatDuration(s.Duration()),
		events.FormatAmount(sessionAmount(s)))
}

// sessionAmount is what the owner paid: the final amount, or the list
// amount for sessions that were never finalised.
func sessionAmount(s history.Session) float64 {
	if s.FinalAmount != 0 {
		return s.FinalAmount
	}
	return s.Amount
}

func formatSessionDetail(s history.Session) string {
	ts := func(ms int64) string {
		if ms == 0 {
			return "-"
		}
		return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
	}
	lines := []string{
		"ID:        " + s.ID,
		"Station:   " + s.ChargingStationName,
		"Address:   " + s.ChargingStationAddress,
		"Area:      " + strings.Trim(s.District+", "+s.Province, ", "),
		"",
		"Plugged:   " + ts(s.PluggedTime),
		"Started:   " + ts(s.StartChargeTime),
		"Ended:     " + ts(s.EndChargeTime),
		"Unplugged: " + ts(s.UnpluggedTime),
		"",
		"Energy:    " + events.FormatEnergy(s.Energy()),
		"Duration:  " + events.FormatDuration(s.Duration()),
		fmt.Sprintf("Amount:    %s (discount %s, final %s)",
			events.FormatAmount(s.Amount), events.FormatAmount(s.Discount), events.FormatAmount(s.FinalAmount)),
		fmt.Sprintf("Status:    %s (%d)", s.Status, s.OrderStatus),
	}
	return strings.Join(lines, "\n")
}

func sumRows(sessions []history.Session) historyRow {
	var r historyRow
	for _, s := range sessions {
		r.energy += s.Energy()
		r.amount += sessionAmount(s)
		r.sessions++
	}
	return r
}

// aggregateMonthly totals sessions per calendar month, in the order the
// months first appear.
func aggregateMonthly(sessions []history.Session, loc *time.Location) []historyRow {
	monthMap := make(map[string]*historyRow)
	var monthOrder []string

	for _, s := range sessions {
		ms := s.SessionTime()
		if ms == 0 {
			continue
		}
		t := time.UnixMilli(ms).In(loc)
		monthLabel := fmt.Sprintf("T%d", int(t.Month()))
		if _, exists := monthMap[monthLabel]; !exists {
			monthMap[monthLabel] = &historyRow{label: monthLabel}
			monthOrder = append(monthOrder, monthLabel)
		}
		r := monthMap[monthLabel]
		r.energy += s.Energy()
		r.amount += sessionAmount(s)
		r.sessions++
	}

	result := make([]historyRow, 0, len(monthOrder))
	for _, key := range monthOrder {
		result = append(result, *monthMap[key])
	}
	return result
}
