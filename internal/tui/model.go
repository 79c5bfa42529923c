package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/vf-top/internal/config"
	"github.com/nixlim/vf-top/internal/engine"
	"github.com/nixlim/vf-top/internal/events"
	"github.com/nixlim/vf-top/internal/history"
	"github.com/nixlim/vf-top/internal/telemetry"
	"github.com/nixlim/vf-top/internal/vehicle"
)

type ViewState int

const (
	ViewDashboard ViewState = iota
	ViewHistory
	ViewInspector
)

func (v ViewState) String() string {
	switch v {
	case ViewHistory:
		return "History"
	case ViewInspector:
		return "Inspector"
	}
	return "Dashboard"
}

// ParseView accepts a view name in any case.
func ParseView(s string) (ViewState, error) {
	for _, v := range []ViewState{ViewDashboard, ViewHistory, ViewInspector} {
		if strings.EqualFold(s, v.String()) {
			return v, nil
		}
	}
	return ViewDashboard, fmt.Errorf("unknown view %q (want dashboard, history or inspector)", s)
}

type tickMsg time.Time

// noticeMsg carries one notice from the engine subscription.
type noticeMsg events.Notice

// noticesClosedMsg is sent once the subscription channel closes.
type noticesClosedMsg struct{}

// actionMsg reports the outcome of a background action.
type actionMsg struct {
	label string
	err   error
}

type scanMsg struct {
	result vehicle.ScanResult
	err    error
}

type VehicleProvider interface {
	Active() vehicle.Snapshot
	Vehicles() []vehicle.Identity
	SwitchActive(ctx context.Context, vin string) error
	Refresh(ctx context.Context) error
	DeepScan(ctx context.Context, force bool) (vehicle.ScanResult, error)
}

type HistoryProvider interface {
	History() history.State
	LoadHistory(ctx context.Context, vin string, force bool) error
	SetHistoryFilter(sel history.Selection) error
}

type InspectProvider interface {
	Inspect(ctx context.Context, vin string) []engine.Inspection
	Snapshot(vin string) []telemetry.SnapshotEntry
	ClearTelemetry(ctx context.Context, vin string)
	Version() uint64
	Label(key string) string
}

type NoticeProvider interface {
	Recent(n int) []events.Notice
	Dropped() uint64
}

var (
	_ VehicleProvider = (*engine.Engine)(nil)
	_ HistoryProvider = (*engine.Engine)(nil)
	_ InspectProvider = (*engine.Engine)(nil)
	_ NoticeProvider  = (*engine.Engine)(nil)
)

type Model struct {
	view     ViewState
	width    int
	height   int
	keys     KeyMap
	quitting bool

	cfg config.Config
	ctx context.Context

	vehicles  VehicleProvider
	history   HistoryProvider
	inspector InspectProvider
	notices   NoticeProvider
	noticeCh  <-chan events.Notice

	vehicleCursor int

	historyCursor    int
	historyScrollPos int
	historyVIN       string

	inspectCursor    int
	inspectScrollPos int

	noticeFilter NoticeFilter
	filterMenu   FilterMenuState

	detailOverlay   bool
	detailContent   string
	detailTitle     string
	detailScrollPos int

	status   string
	lastScan *vehicle.ScanResult

	isPersistent bool
	now          func() time.Time
	refreshRate  time.Duration

	onShutdown func()
}

func NewModel(cfg config.Config, opts ...ModelOption) Model {
	m := Model{
		view:         ViewDashboard,
		keys:         DefaultKeyMap(),
		cfg:          cfg,
		ctx:          context.Background(),
		noticeFilter: NewNoticeFilter(),
		filterMenu:   NewFilterMenu(),
		now:          time.Now,
		refreshRate:  time.Duration(cfg.Display.RefreshRateMS) * time.Millisecond,
	}
	if m.refreshRate <= 0 {
		m.refreshRate = 500 * time.Millisecond
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

type ModelOption func(*Model)

func WithVehicleProvider(v VehicleProvider) ModelOption {
	return func(m *Model) { m.vehicles = v }
}

func WithHistoryProvider(h HistoryProvider) ModelOption {
	return func(m *Model) { m.history = h }
}

func WithInspectProvider(i InspectProvider) ModelOption {
	return func(m *Model) { m.inspector = i }
}

func WithNoticeProvider(n NoticeProvider) ModelOption {
	return func(m *Model) { m.notices = n }
}

// WithNotices wakes the model on every notice from ch in addition to the
// refresh tick.
func WithNotices(ch <-chan events.Notice) ModelOption {
	return func(m *Model) { m.noticeCh = ch }
}

// WithContext sets the context passed to engine actions.
func WithContext(ctx context.Context) ModelOption {
	return func(m *Model) { m.ctx = ctx }
}

func WithStartView(v ViewState) ModelOption {
	return func(m *Model) { m.view = v }
}

func WithOnShutdown(fn func()) ModelOption {
	return func(m *Model) { m.onShutdown = fn }
}

func WithPersistenceFlag(isPersistent bool) ModelOption {
	return func(m *Model) { m.isPersistent = isPersistent }
}

func WithClock(now func() time.Time) ModelOption {
	return func(m *Model) { m.now = now }
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.tickCmd(),
		m.waitForNotice(),
	)
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) waitForNotice() tea.Cmd {
	if m.noticeCh == nil {
		return nil
	}
	ch := m.noticeCh
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return noticesClosedMsg{}
		}
		return noticeMsg(n)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, m.tickCmd()

	case noticeMsg:
		// Views read state on render; the notice only wakes the program.
		return m, m.waitForNotice()

	case noticesClosedMsg:
		m.noticeCh = nil
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = msg.label + " failed: " + msg.err.Error()
		} else {
			m.status = msg.label + " done"
		}
		return m, nil

	case scanMsg:
		res := msg.result
		m.lastScan = &res
		if msg.err != nil {
			m.status = "deep scan: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("deep scan: %d records", len(res.Records))
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detailOverlay {
		return m.handleDetailOverlayKey(msg)
	}

	if m.filterMenu.Active {
		return m.handleFilterMenuKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.onShutdown != nil {
			m.onShutdown()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		m.view = (m.view + 1) % 3
		m.status = ""
		if m.view == ViewHistory {
			return m, m.loadHistoryCmd(false)
		}
		return m, nil

	case key.Matches(msg, m.keys.Filter):
		m.filterMenu.Active = true
		m.filterMenu.Cursor = 0
		return m, nil
	}

	switch m.view {
	case ViewDashboard:
		return m.handleDashboardKey(msg)
	case ViewHistory:
		return m.handleHistoryKey(msg)
	case ViewInspector:
		return m.handleInspectorKey(msg)
	}

	return m, nil
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	vehicles := m.getVehicles()

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.vehicleCursor > 0 {
			m.vehicleCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.vehicleCursor < len(vehicles)-1 {
			m.vehicleCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.vehicles == nil || m.vehicleCursor < 0 || m.vehicleCursor >= len(vehicles) {
			return m, nil
		}
		vin := vehicles[m.vehicleCursor].VIN
		m.status = "switching to " + events.ShortVIN(vin)
		return m, m.action("switch", func(ctx context.Context) error {
			return m.vehicles.SwitchActive(ctx, vin)
		})

	case key.Matches(msg, m.keys.Refresh):
		if m.vehicles == nil {
			return m, nil
		}
		m.status = "refreshing"
		return m, m.action("refresh", m.vehicles.Refresh)

	case key.Matches(msg, m.keys.Scan):
		if m.vehicles == nil {
			return m, nil
		}
		m.status = "deep scan running"
		v, ctx := m.vehicles, m.ctx
		return m, func() tea.Msg {
			res, err := v.DeepScan(ctx, false)
			return scanMsg{result: res, err: err}
		}
	}

	return m, nil
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.history == nil {
		return m, nil
	}
	st := m.history.History()

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.historyCursor > 0 {
			m.historyCursor--
		}
		if m.historyCursor < m.historyScrollPos {
			m.historyScrollPos = m.historyCursor
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.historyCursor < len(st.Sessions)-1 {
			m.historyCursor++
		}
		if visible := m.historyVisibleRows(); m.historyCursor >= m.historyScrollPos+visible {
			m.historyScrollPos = m.historyCursor - visible + 1
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.historyCursor >= 0 && m.historyCursor < len(st.Sessions) {
			m.detailOverlay = true
			m.detailTitle = "Charging Session"
			m.detailContent = formatSessionDetail(st.Sessions[m.historyCursor])
			m.detailScrollPos = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.status = "reloading history"
		return m, m.loadHistoryCmd(true)

	case key.Matches(msg, m.keys.FilterAll):
		return m.setFilter(history.Selection{Mode: history.ModeAll})

	case key.Matches(msg, m.keys.FilterYear):
		return m.setFilter(nextYear(st.Filter))

	case key.Matches(msg, m.keys.FilterMonth):
		sel, ok := nextMonth(st.Filter)
		if !ok {
			m.status = "no months to select"
			return m, nil
		}
		return m.setFilter(sel)
	}

	return m, nil
}

func (m Model) setFilter(sel history.Selection) (tea.Model, tea.Cmd) {
	if err := m.history.SetHistoryFilter(sel); err != nil {
		m.status = "filter: " + err.Error()
		return m, nil
	}
	m.historyCursor = 0
	m.historyScrollPos = 0
	m.status = ""
	return m, nil
}

// nextYear cycles through the available years, newest first.
func nextYear(f history.FilterState) history.Selection {
	if len(f.AvailableYears) == 0 {
		return history.Selection{Mode: history.ModeAll}
	}
	if f.Mode == history.ModeAll {
		return history.Selection{Mode: history.ModeYear, Year: f.AvailableYears[0]}
	}
	for i, y := range f.AvailableYears {
		if y == f.Year {
			return history.Selection{Mode: history.ModeYear, Year: f.AvailableYears[(i+1)%len(f.AvailableYears)]}
		}
	}
	return history.Selection{Mode: history.ModeYear, Year: f.AvailableYears[0]}
}

// nextMonth cycles through the months of the selected year.
func nextMonth(f history.FilterState) (history.Selection, bool) {
	if len(f.AvailableMonths) == 0 {
		return history.Selection{}, false
	}
	first := f.AvailableMonths[0]
	if f.Mode == history.ModeMonth {
		for i, mo := range f.AvailableMonths {
			if mo.Year == f.Year && mo.Month == f.Month {
				first = f.AvailableMonths[(i+1)%len(f.AvailableMonths)]
				break
			}
		}
	}
	return history.Selection{Mode: history.ModeMonth, Year: first.Year, Month: first.Month}, true
}

func (m Model) handleInspectorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	entries := m.inspectEntries()

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.inspectCursor > 0 {
			m.inspectCursor--
		}
		if m.inspectCursor < m.inspectScrollPos {
			m.inspectScrollPos = m.inspectCursor
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.inspectCursor < len(entries)-1 {
			m.inspectCursor++
		}
		if visible := m.inspectVisibleRows(); m.inspectCursor >= m.inspectScrollPos+visible {
			m.inspectScrollPos = m.inspectCursor - visible + 1
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.inspectCursor >= 0 && m.inspectCursor < len(entries) {
			m.detailOverlay = true
			m.detailTitle = "Signal " + entries[m.inspectCursor].Key
			m.detailContent = formatEntryDetail(entries[m.inspectCursor], m.now())
			m.detailScrollPos = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		if m.inspector == nil {
			return m, nil
		}
		m.inspector.ClearTelemetry(m.ctx, m.activeVIN())
		m.inspectCursor = 0
		m.inspectScrollPos = 0
		m.status = "telemetry cleared"
		return m, nil
	}

	return m, nil
}

func (m Model) handleDetailOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Enter):
		m.detailOverlay = false
		m.detailContent = ""
		m.detailTitle = ""
		m.detailScrollPos = 0
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.detailScrollPos > 0 {
			m.detailScrollPos--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.detailScrollPos++
		return m, nil
	}

	return m, nil
}

func (m Model) handleFilterMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Filter):
		m.filterMenu.Active = false
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.filterMenu.Cursor > 0 {
			m.filterMenu.Cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.filterMenu.Cursor < len(m.filterMenu.Options)-1 {
			m.filterMenu.Cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.filterMenu.Cursor >= 0 && m.filterMenu.Cursor < len(m.filterMenu.Options) {
			// Options is shared with the previous model value; copy before writing.
			opts := append([]FilterOption(nil), m.filterMenu.Options...)
			opts[m.filterMenu.Cursor].Enabled = !opts[m.filterMenu.Cursor].Enabled
			m.filterMenu.Options = opts
			m.filterMenu.apply(&m.noticeFilter)
		}
		return m, nil
	}
	return m, nil
}

// action runs fn off the update loop and reports its outcome.
func (m Model) action(label string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionMsg{label: label, err: fn(ctx)}
	}
}

func (m Model) loadHistoryCmd(force bool) tea.Cmd {
	if m.history == nil {
		return nil
	}
	vin := m.activeVIN()
	if vin == "" {
		return nil
	}
	h := m.history
	return m.action("history", func(ctx context.Context) error {
		return h.LoadHistory(ctx, vin, force)
	})
}

func (m Model) activeVIN() string {
	if m.vehicles == nil {
		return ""
	}
	return m.vehicles.Active().VIN
}

func (m Model) getVehicles() []vehicle.Identity {
	if m.vehicles == nil {
		return nil
	}
	return m.vehicles.Vehicles()
}

func (m Model) headerIndicators() string {
	var parts []string
	if !m.isPersistent {
		parts = append(parts, "[No persistence]")
	}
	if m.notices != nil && m.notices.Dropped() > 0 {
		parts = append(parts, "[!] Notices dropped")
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + dimStyle.Render(strings.Join(parts, " "))
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var output string
	switch m.view {
	case ViewDashboard:
		output = m.renderDashboard()
	case ViewHistory:
		output = m.renderHistory()
	case ViewInspector:
		output = m.renderInspector()
	}

	if m.filterMenu.Active {
		output = m.overlayFilterMenu(output)
	}
	if m.detailOverlay {
		output = m.overlayDetail(output)
	}

	if m.height > 0 {
		lines := strings.Split(output, "\n")
		if len(lines) > m.height {
			lines = lines[:m.height]
			output = strings.Join(lines, "\n")
		}
	}

	return output
}
