package history

import (
	"reflect"
	"strconv"
	"testing"
	"time"
)

func at(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 8, 0, 0, 0, time.UTC).UnixMilli()
}

// spread returns n sessions, one per day counting back from the given day.
func spread(n int, from time.Time) []Session {
	out := make([]Session, n)
	for i := range out {
		out[i] = Session{ID: strconv.Itoa(i), StartChargeTime: from.AddDate(0, 0, -i).UnixMilli()}
	}
	return out
}

func TestSelectDefault(t *testing.T) {
	now := time.Date(2026, time.July, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		sessions []Session
		pageSize int
		want     Selection
	}{
		{
			name:     "empty",
			pageSize: 50,
			want:     Selection{Mode: ModeAll},
		},
		{
			name:     "fits one page",
			sessions: spread(30, time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)),
			pageSize: 50,
			want:     Selection{Mode: ModeAll},
		},
		{
			name:     "several years including this one",
			sessions: spread(400, now),
			pageSize: 50,
			want:     Selection{Mode: ModeYear, Year: 2026},
		},
		{
			name:     "several years before this one",
			sessions: spread(400, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)),
			pageSize: 50,
			want:     Selection{Mode: ModeYear, Year: 2024},
		},
		{
			name:     "this year with data this month",
			sessions: spread(60, now),
			pageSize: 50,
			want:     Selection{Mode: ModeMonth, Year: 2026, Month: 7},
		},
		{
			name:     "this year without data this month",
			sessions: spread(60, time.Date(2026, time.May, 20, 0, 0, 0, 0, time.UTC)),
			pageSize: 50,
			want:     Selection{Mode: ModeMonth, Year: 2026, Month: 5},
		},
		{
			name:     "a single earlier year",
			sessions: spread(40, time.Date(2025, time.October, 31, 0, 0, 0, 0, time.UTC)),
			pageSize: 30,
			want:     Selection{Mode: ModeMonth, Year: 2025, Month: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectDefault(tt.sessions, tt.pageSize, now); got != tt.want {
				t.Errorf("want %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestSelectDefault_DoesNotMutate(t *testing.T) {
	sessions := []Session{{ID: "b", StartChargeTime: at(2025, 1, 1)}, {ID: "a", StartChargeTime: at(2026, 1, 1)}}
	before := append([]Session(nil), sessions...)
	SelectDefault(sessions, 1, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if !reflect.DeepEqual(sessions, before) {
		t.Errorf("sessions mutated: %v", sessions)
	}
}

func TestExtractYearsAndMonths(t *testing.T) {
	sessions := []Session{
		{ID: "1", StartChargeTime: at(2026, 3, 2)},
		{ID: "2", StartChargeTime: at(2025, 12, 30)},
		{ID: "3", StartChargeTime: at(2026, 11, 9)},
		{ID: "4", StartChargeTime: at(2026, 3, 20)},
		{ID: "5"},
	}

	if got := ExtractYears(sessions, time.UTC); !reflect.DeepEqual(got, []int{2026, 2025}) {
		t.Errorf("years: got %v", got)
	}
	want := []MonthOption{
		{Year: 2026, Month: 11, Label: "T11/2026"},
		{Year: 2026, Month: 3, Label: "T3/2026"},
	}
	if got := ExtractMonths(sessions, 2026, time.UTC); !reflect.DeepEqual(got, want) {
		t.Errorf("months: got %v", got)
	}
}

func TestApply(t *testing.T) {
	sessions := []Session{
		{ID: "1", StartChargeTime: at(2026, 3, 2)},
		{ID: "2", StartChargeTime: at(2025, 3, 30)},
		{ID: "3", StartChargeTime: at(2026, 4, 9)},
		{ID: "4"},
	}
	ids := func(in []Session) []string {
		var out []string
		for _, s := range in {
			out = append(out, s.ID)
		}
		return out
	}

	if got := ids(Apply(sessions, Selection{Mode: ModeAll}, time.UTC)); len(got) != 4 {
		t.Errorf("all: got %v", got)
	}
	if got := ids(Apply(sessions, Selection{Mode: ModeYear, Year: 2026}, time.UTC)); !reflect.DeepEqual(got, []string{"1", "3"}) {
		t.Errorf("year: got %v", got)
	}
	if got := ids(Apply(sessions, Selection{Mode: ModeMonth, Year: 2026, Month: 4}, time.UTC)); !reflect.DeepEqual(got, []string{"3"}) {
		t.Errorf("month: got %v", got)
	}
}
