package tui

import "github.com/nixlim/vf-top/internal/events"

// NoticeFilter holds the current filter state for the notice strip.
type NoticeFilter struct {
	// ActiveOnly restricts the strip to notices about the active vehicle
	// and notices that carry no VIN.
	ActiveOnly bool

	// Kinds is the set of notice kinds to display. If empty, all kinds are shown.
	Kinds map[events.Kind]bool

	// FailureOnly when true shows only failures and errors.
	FailureOnly bool
}

// AllKinds returns every kind set to true, except snapshot changes which
// fire on every field update and would drown the strip.
func AllKinds() map[events.Kind]bool {
	return map[events.Kind]bool{
		events.KindTelemetry:  true,
		events.KindSnapshot:   false,
		events.KindVehicles:   true,
		events.KindHistory:    true,
		events.KindEnrichment: true,
		events.KindScan:       true,
		events.KindError:      true,
	}
}

func NewNoticeFilter() NoticeFilter {
	return NoticeFilter{Kinds: AllKinds()}
}

// Matches returns true if n passes the filter for the given active VIN.
func (f *NoticeFilter) Matches(n events.Notice, activeVIN string) bool {
	if f.ActiveOnly && n.VIN != "" && n.VIN != activeVIN {
		return false
	}
	if len(f.Kinds) > 0 && !f.Kinds[n.Kind] {
		return false
	}
	if f.FailureOnly {
		if n.Kind == events.KindError {
			return true
		}
		return n.Success != nil && !*n.Success
	}
	return true
}

// FilterMenuState tracks the interactive filter menu.
type FilterMenuState struct {
	Active  bool
	Cursor  int
	Options []FilterOption
}

// FilterOption is one toggleable entry of the filter menu. Kind is only
// meaningful when Key is "kind".
type FilterOption struct {
	Label   string
	Key     string
	Kind    events.Kind
	Enabled bool
}

// NewFilterMenu creates a filter menu matching NewNoticeFilter.
func NewFilterMenu() FilterMenuState {
	kinds := AllKinds()
	opt := func(label string, k events.Kind) FilterOption {
		return FilterOption{Label: label, Key: "kind", Kind: k, Enabled: kinds[k]}
	}
	return FilterMenuState{
		Options: []FilterOption{
			opt("Telemetry", events.KindTelemetry),
			opt("Snapshot Changes", events.KindSnapshot),
			opt("Vehicle List", events.KindVehicles),
			opt("History", events.KindHistory),
			opt("Enrichment", events.KindEnrichment),
			opt("Deep Scans", events.KindScan),
			opt("Errors", events.KindError),
			{Label: "Active Vehicle Only", Key: "active_only"},
			{Label: "Failures Only", Key: "failure_only"},
		},
	}
}

// apply rebuilds f from the menu options.
func (s FilterMenuState) apply(f *NoticeFilter) {
	f.Kinds = make(map[events.Kind]bool)
	f.ActiveOnly = false
	f.FailureOnly = false
	for _, opt := range s.Options {
		switch opt.Key {
		case "active_only":
			f.ActiveOnly = opt.Enabled
		case "failure_only":
			f.FailureOnly = opt.Enabled
		default:
			f.Kinds[opt.Kind] = opt.Enabled
		}
	}
}
