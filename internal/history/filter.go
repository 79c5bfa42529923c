package history

import (
	"fmt"
	"sort"
	"time"
)

// Mode is the granularity of the history filter.
type Mode string

const (
	ModeAll   Mode = "all"
	ModeYear  Mode = "year"
	ModeMonth Mode = "month"
)

// ParseMode accepts "all", "year" and "month".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAll, ModeYear, ModeMonth:
		return m, nil
	}
	return "", fmt.Errorf("history: unknown filter mode %q", s)
}

// Selection is a filter choice. Year and Month are zero when unused;
// Month is 1-12.
type Selection struct {
	Mode  Mode
	Year  int
	Month int
}

// MonthOption is one selectable month of a year.
type MonthOption struct {
	Year  int
	Month int
	Label string
}

func monthLabel(year, month int) string {
	return fmt.Sprintf("T%d/%d", month, year)
}

func sessionDate(s Session, loc *time.Location) (year, month int, ok bool) {
	ms := s.SessionTime()
	if ms == 0 {
		return 0, 0, false
	}
	t := time.UnixMilli(ms).In(loc)
	return t.Year(), int(t.Month()), true
}

// ExtractYears lists the years that have sessions, newest first.
func ExtractYears(sessions []Session, loc *time.Location) []int {
	seen := make(map[int]struct{})
	for _, s := range sessions {
		if y, _, ok := sessionDate(s, loc); ok {
			seen[y] = struct{}{}
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// ExtractMonths lists the months of year that have sessions, newest first.
func ExtractMonths(sessions []Session, year int, loc *time.Location) []MonthOption {
	seen := make(map[int]struct{})
	for _, s := range sessions {
		if y, m, ok := sessionDate(s, loc); ok && y == year {
			seen[m] = struct{}{}
		}
	}
	months := make([]int, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(months)))

	out := make([]MonthOption, len(months))
	for i, m := range months {
		out[i] = MonthOption{Year: year, Month: m, Label: monthLabel(year, m)}
	}
	return out
}

// Apply returns the sessions matching sel, preserving order. ModeAll
// returns sessions unchanged; other modes drop sessions with no time.
func Apply(sessions []Session, sel Selection, loc *time.Location) []Session {
	if sel.Mode == ModeAll || sel.Mode == "" {
		return sessions
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		y, m, ok := sessionDate(s, loc)
		if !ok || y != sel.Year {
			continue
		}
		if sel.Mode == ModeMonth && m != sel.Month {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SelectDefault picks the initial filter for a freshly loaded VIN. Small
// histories show everything; multi-year histories open on a year; a
// single year opens on its most relevant month.
func SelectDefault(sessions []Session, pageSize int, now time.Time) Selection {
	if len(sessions) == 0 || len(sessions) <= pageSize {
		return Selection{Mode: ModeAll}
	}
	loc := now.Location()
	thisYear, thisMonth := now.Year(), int(now.Month())

	years := ExtractYears(sessions, loc)
	if len(years) > 1 {
		year := years[0]
		for _, y := range years {
			if y == thisYear {
				year = thisYear
				break
			}
		}
		return Selection{Mode: ModeYear, Year: year}
	}

	year := thisYear
	if len(years) == 1 {
		year = years[0]
	}
	months := ExtractMonths(sessions, year, loc)
	month := thisMonth
	switch {
	case year == thisYear && hasMonth(months, thisMonth):
	case len(months) > 0:
		month = months[0].Month
	}
	return Selection{Mode: ModeMonth, Year: year, Month: month}
}

func hasMonth(months []MonthOption, month int) bool {
	for _, m := range months {
		if m.Month == month {
			return true
		}
	}
	return false
}
