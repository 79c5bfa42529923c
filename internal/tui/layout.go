package tui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/vf-top/internal/events"
)

const (
	minWidth     = 40
	minHeight    = 10
	headerHeight = 1

	noticesMinHeight = 4
	noticesMaxHeight = 8

	minPanelWidth = 20
)

// panelDimensions is the dashboard split: a header row, the vehicle list
// and snapshot side by side, and the notice strip along the bottom.
type panelDimensions struct {
	headerH                    int
	vehicleListW, vehicleListH int
	snapshotW, snapshotH       int
	noticesW, noticesH         int
}

// noticesHeight is the height of the notice strip shared by every view:
// a fifth of the terminal, within [noticesMinHeight, noticesMaxHeight].
func noticesHeight(totalH int) int {
	return clamp(totalH/5, noticesMinHeight, noticesMaxHeight)
}

func computeDimensions(totalW, totalH int) panelDimensions {
	totalW = max(totalW, minWidth)
	totalH = max(totalH, minHeight)

	notices := noticesHeight(totalH)
	bodyH := max(totalH-headerHeight-notices, 4)
	listW := clamp(totalW*35/100, minPanelWidth, totalW-minPanelWidth)

	return panelDimensions{
		headerH:      headerHeight,
		vehicleListW: listW,
		vehicleListH: bodyH,
		snapshotW:    max(totalW-listW, minPanelWidth),
		snapshotH:    bodyH,
		noticesW:     totalW,
		noticesH:     notices,
	}
}

// clamp bounds v to [lo, hi]; hi wins when the range is empty.
func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func bordered(color string) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(color))
}

var (
	headerStyle   = fg("15").Bold(true).Background(lipgloss.Color("62"))
	selectedStyle = headerStyle

	panelBorderStyle   = bordered("240")
	filterMenuStyle    = bordered("63").Padding(1, 2)
	detailOverlayStyle = bordered("69").Padding(1, 2)

	panelTitleStyle = fg("69").Bold(true)
	dimStyle        = fg("240")
	statusBarStyle  = fg("245")
	liveStyle       = fg("82")
	staleStyle      = fg("226")
	errorStyle      = fg("196").Bold(true)

	batteryHighStyle = fg("82").Bold(true)
	batteryMidStyle  = fg("226").Bold(true)
	batteryLowStyle  = fg("196").Bold(true)
)

func renderBorderedPanel(content string, w, h int) string {
	return renderBorderedPanelStyled(content, w, h, panelBorderStyle)
}

// renderBorderedPanelStyled renders content inside a w x h box, cutting
// rows that would push the box past h.
func renderBorderedPanelStyled(content string, w, h int, style lipgloss.Style) string {
	inner := max(h-2, 1)
	return style.Width(w - 2).Height(inner).Render(truncateLines(content, inner))
}

func truncateLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n")
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func (m Model) renderDashboard() string {
	d := computeDimensions(m.width, m.height)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderVehicleListPanel(d.vehicleListW, d.vehicleListH),
		m.renderSnapshotPanel(d.snapshotW, d.snapshotH),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		truncateLines(body, d.vehicleListH),
		m.renderNoticePanel(d.noticesW, d.noticesH),
	)
}

// renderHeader renders the title bar shared by every view.
func (m Model) renderHeader() string {
	left := " vf-top [" + m.view.String() + "]"
	if vin := m.activeVIN(); vin != "" {
		left += " " + events.ShortVIN(vin)
	}
	left += m.headerIndicators()
	right := m.headerHelp()

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return headerStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) headerHelp() string {
	switch m.view {
	case ViewHistory:
		return "a:All y:Year m:Month r:Reload Enter:Detail Tab:Inspector q:Quit "
	case ViewInspector:
		return "Enter:Detail c:Clear f:Filter Tab:Dashboard q:Quit "
	default:
		return "Enter:Switch r:Refresh s:Scan f:Filter Tab:History q:Quit "
	}
}

// renderStatusLine renders the outcome of the last action, or nothing.
func (m Model) renderStatusLine() string {
	if m.status == "" {
		return ""
	}
	return statusBarStyle.Render(" " + m.status)
}

func (m Model) overlayFilterMenu(base string) string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Notice Filter") + "\n\n")
	for i, opt := range m.filterMenu.Options {
		box := "[ ]"
		if opt.Enabled {
			box = "[x]"
		}
		if i == m.filterMenu.Cursor {
			b.WriteString(selectedStyle.Render("> "+box+" "+opt.Label) + "\n")
			continue
		}
		b.WriteString("  " + box + " " + opt.Label + "\n")
	}
	b.WriteString("\nEnter: Toggle  Esc: Close")

	return centerOverlay(filterMenuStyle.Render(b.String()), base)
}

func (m Model) overlayDetail(base string) string {
	w := clamp(m.width*70/100, 40, m.width-4)
	h := clamp(m.height*60/100, 10, m.height-4)
	textW := max(w-6, 10)
	textH := max(h-4, 3)

	lines := wrapLines(m.detailContent, textW)
	start := clamp(m.detailScrollPos, 0, max(len(lines)-textH, 0))
	end := min(start+textH, len(lines))

	footer := "Esc/Enter: Close"
	if len(lines) > textH {
		footer += "  Up/Down: Scroll"
	}

	content := panelTitleStyle.Render(m.detailTitle) + "\n\n" +
		strings.Join(lines[start:end], "\n") + "\n\n" +
		dimStyle.Render(footer)

	return centerOverlay(detailOverlayStyle.Width(w-2).Render(content), base)
}

// wrapLines splits text into lines of at most width bytes, breaking at
// the last space that fits when there is one.
func wrapLines(text string, width int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > width {
			cut := strings.LastIndexByte(line[:width+1], ' ')
			if cut <= 0 {
				cut = width
			}
			out = append(out, line[:cut])
			line = strings.TrimPrefix(line[cut:], " ")
		}
		out = append(out, line)
	}
	return out
}

// centerOverlay draws dialog centred over the area taken by base.
func centerOverlay(dialog, base string) string {
	return lipgloss.Place(
		lipgloss.Width(base), lipgloss.Height(base),
		lipgloss.Center, lipgloss.Center,
		dialog,
		lipgloss.WithWhitespaceChars(" "),
	)
}
