package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/vf-top/internal/events"
)

// noticeKindIcons maps notice kinds to their display icons.
var noticeKindIcons = map[events.Kind]string{
	events.KindTelemetry:  "TL",
	events.KindSnapshot:   "SN",
	events.KindVehicles:   "VL",
	events.KindHistory:    "HS",
	events.KindEnrichment: "GE",
	events.KindScan:       "DS",
	events.KindError:      "!!",
}

// noticeKindStyles maps notice kinds to their display styles.
var noticeKindStyles = map[events.Kind]lipgloss.Style{
	events.KindTelemetry:  lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
	events.KindSnapshot:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	events.KindVehicles:   lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	events.KindHistory:    lipgloss.NewStyle().Foreground(lipgloss.Color("222")),
	events.KindEnrichment: lipgloss.NewStyle().Foreground(lipgloss.Color("183")),
	events.KindScan:       lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	events.KindError:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
}

// renderNoticePanel renders the recent-notice strip, newest at the bottom.
func (m Model) renderNoticePanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}
	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	title := panelTitleStyle.Render("Notices")
	if m.noticeFilter.ActiveOnly {
		title += dimStyle.Render(" [active]")
	}
	if status := m.renderStatusLine(); status != "" {
		title += "  " + status
	}
	lines := []string{title}

	notices := m.getFilteredNotices(m.cfg.Display.NoticeBufferSize)
	if len(notices) == 0 {
		lines = append(lines, dimStyle.Render("No notices yet"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
	}

	visible := contentH - 1
	if visible < 1 {
		visible = 1
	}
	start := len(notices) - visible
	if start < 0 {
		start = 0
	}
	for _, n := range notices[start:] {
		lines = append(lines, renderNoticeLine(n, contentW))
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
}

// getFilteredNotices returns notices matching the current filter, oldest
// first.
func (m Model) getFilteredNotices(limit int) []events.Notice {
	if m.notices == nil {
		return nil
	}
	if limit <= 0 {
		limit = 200
	}
	active := m.activeVIN()
	recent := m.notices.Recent(limit)

	out := make([]events.Notice, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		if m.noticeFilter.Matches(recent[i], active) {
			out = append(out, recent[i])
		}
	}
	return out
}

// renderNoticeLine formats a single notice for display.
func renderNoticeLine(n events.Notice, maxW int) string {
	icon := noticeKindIcons[n.Kind]
	if icon == "" {
		icon = "??"
	}

	style, ok := noticeKindStyles[n.Kind]
	if !ok {
		style = dimStyle
	}

	formatted := events.FormatLine(n)
	maxFormatted := maxW - len(icon) - 1
	if len(formatted) > maxFormatted && maxFormatted > 3 {
		formatted = formatted[:maxFormatted-3] + "..."
	}

	return style.Render(icon + " " + formatted)
}

// formatScrollPos returns a string like "[10-20/100]".
func formatScrollPos(start, end, total int) string {
	return fmt.Sprintf("[%s-%s/%s]",
		formatNumber(int64(start)), formatNumber(int64(end)), formatNumber(int64(total)))
}

// formatNumber formats an int64 with comma separators (e.g., 1,234,567).
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}

	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
