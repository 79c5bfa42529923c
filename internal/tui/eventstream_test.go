package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/nixlim/vf-top/internal/events"
	"github.com/nixlim/vf-top/internal/vehicle"
)

func TestRenderNoticePanel_Empty(t *testing.T) {
	m := newTestModel(&mockEngine{})
	if panel := m.renderNoticePanel(60, 6); !strings.Contains(panel, "No notices yet") {
		t.Error("empty notice strip should show 'No notices yet'")
	}
}

func TestRenderNoticePanel_NewestAtBottom(t *testing.T) {
	at := testNow
	e := &mockEngine{notices: []events.Notice{
		{Kind: events.KindTelemetry, VIN: "V1", Version: 3, At: at, Detail: "third"},
		{Kind: events.KindTelemetry, VIN: "V1", Version: 2, At: at, Detail: "second"},
		{Kind: events.KindTelemetry, VIN: "V1", Version: 1, At: at, Detail: "first"},
	}}
	m := newTestModel(e)

	panel := stripAnsi(m.renderNoticePanel(80, 8))
	first, third := strings.Index(panel, "first"), strings.Index(panel, "third")
	if first < 0 || third < 0 || first > third {
		t.Errorf("want oldest above newest:\n%s", panel)
	}
}

func TestRenderNoticePanel_ShowsStatus(t *testing.T) {
	m := newTestModel(&mockEngine{})
	m.status = "refresh done"
	if panel := stripAnsi(m.renderNoticePanel(80, 6)); !strings.Contains(panel, "refresh done") {
		t.Error("status should appear next to the strip title")
	}
}

func TestGetFilteredNotices(t *testing.T) {
	no := false
	e := &mockEngine{
		active: vehicle.Snapshot{VIN: "V1"},
		notices: []events.Notice{
			{Kind: events.KindSnapshot, VIN: "V1"},
			{Kind: events.KindTelemetry, VIN: "V2"},
			{Kind: events.KindScan, VIN: "V1", Success: &no},
			{Kind: events.KindVehicles},
		},
	}
	m := newTestModel(e)

	if got := m.getFilteredNotices(10); len(got) != 3 {
		t.Errorf("default filter hides snapshots only: want 3, got %d", len(got))
	}

	m.noticeFilter.ActiveOnly = true
	if got := m.getFilteredNotices(10); len(got) != 2 {
		t.Errorf("active only keeps V1 and VIN-less: want 2, got %d", len(got))
	}

	m.noticeFilter.FailureOnly = true
	got := m.getFilteredNotices(10)
	if len(got) != 1 || got[0].Kind != events.KindScan {
		t.Errorf("failure only: got %+v", got)
	}
}

func TestRenderNoticeLine(t *testing.T) {
	n := events.Notice{Kind: events.KindError, VIN: "V1", At: time.Date(2026, 7, 1, 9, 5, 7, 0, time.UTC), Detail: "page 2: timeout"}
	line := stripAnsi(renderNoticeLine(n, 80))
	if line != "!! 09:05:07 [V1] ✗ page 2: timeout" {
		t.Errorf("got %q", line)
	}

	long := events.Notice{Kind: events.KindHistory, VIN: "V1", Detail: strings.Repeat("x", 100)}
	if got := stripAnsi(renderNoticeLine(long, 40)); !strings.HasSuffix(got, "...") {
		t.Errorf("long line should be truncated, got %q", got)
	}
}

func TestFormatScrollPos(t *testing.T) {
	if got := formatScrollPos(1, 20, 1500); got != "[1-20/1,500]" {
		t.Errorf("got %q", got)
	}
}

func TestNoticeFilter_Matches(t *testing.T) {
	yes := true
	tests := []struct {
		name   string
		filter NoticeFilter
		n      events.Notice
		want   bool
	}{
		{"default passes telemetry", NewNoticeFilter(), events.Notice{Kind: events.KindTelemetry}, true},
		{"default hides snapshot", NewNoticeFilter(), events.Notice{Kind: events.KindSnapshot}, false},
		{"empty kinds pass all", NoticeFilter{}, events.Notice{Kind: events.KindSnapshot}, true},
		{"other vin hidden", NoticeFilter{ActiveOnly: true}, events.Notice{VIN: "V2"}, false},
		{"success hidden by failure only", NoticeFilter{FailureOnly: true}, events.Notice{Kind: events.KindScan, Success: &yes}, false},
		{"error kept by failure only", NoticeFilter{FailureOnly: true}, events.Notice{Kind: events.KindError}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.n, "V1"); got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}
