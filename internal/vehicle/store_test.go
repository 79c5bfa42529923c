package vehicle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nixlim/vf-top/internal/clock"
	"github.com/nixlim/vf-top/internal/telemetry"
)

type fakeSubscriber struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSubscriber) Resubscribe(_ context.Context, vin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, vin)
	return f.err
}

func (f *fakeSubscriber) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeReader struct {
	mu      sync.Mutex
	records map[string][]telemetry.Record
}

func (f *fakeReader) ReadAll(vin string) []telemetry.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]telemetry.Record(nil), f.records[vin]...)
}

func (f *fakeReader) set(vin string, recs ...telemetry.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		f.records = make(map[string][]telemetry.Record)
	}
	f.records[vin] = recs
}

type fixture struct {
	store  *Store
	clock  *clock.FakeClock
	sub    *fakeSubscriber
	reader *fakeReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:  clock.Fake(time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)),
		sub:    &fakeSubscriber{},
		reader: &fakeReader{},
	}
	f.store = NewStore(Options{Clock: f.clock, Subscriber: f.sub, Telemetry: f.reader})
	capacity := 87.7
	f.store.SetVehicles([]Identity{
		{VIN: "V1", MarketingName: "VF 8", ExteriorColor: "Blue", BatteryCapacityKWh: &capacity},
		{VIN: "V2", MarketingName: "VF 9", VehicleName: "Family"},
	})
	return f
}

func TestStore_SwitchUnknownVIN(t *testing.T) {
	f := newFixture(t)
	if err := f.store.SwitchActive(context.Background(), "V1"); err != nil {
		t.Fatalf("SwitchActive(V1): %v", err)
	}
	f.store.Wait()
	before := f.store.Active()

	err := f.store.SwitchActive(context.Background(), "NOPE")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown vin: want ErrNotFound, got %v", err)
	}
	f.store.Wait()

	after := f.store.Active()
	if after.VIN != before.VIN || after.IsRefreshing != before.IsRefreshing || len(after.Fields) != len(before.Fields) {
		t.Errorf("failed switch mutated state: before %+v after %+v", before, after)
	}
	if calls := f.sub.Calls(); len(calls) != 1 {
		t.Errorf("resubscribe calls: want 1, got %v", calls)
	}
}

func TestStore_SwitchWithEmptyCacheRefreshes(t *testing.T) {
	f := newFixture(t)
	if err := f.store.SwitchActive(context.Background(), "V1"); err != nil {
		t.Fatalf("SwitchActive: %v", err)
	}
	f.store.Wait()

	snap := f.store.Active()
	if !snap.IsRefreshing {
		t.Error("empty cache: want IsRefreshing")
	}
	if snap.Fields["marketingName"] != "VF 8" || snap.Fields["color"] != "Blue" {
		t.Errorf("identity not applied: %v", snap.Fields)
	}
	if snap.Fields["battery_capacity_kwh"] != 87.7 {
		t.Errorf("battery_capacity_kwh: want 87.7, got %v", snap.Fields["battery_capacity_kwh"])
	}
	if snap.Fields["battery_type"] != "--" || snap.Fields[FieldLatitude] != DefaultLatitude {
		t.Errorf("reset defaults not applied: %v", snap.Fields)
	}
	if calls := f.sub.Calls(); len(calls) != 1 || calls[0] != "V1" {
		t.Errorf("resubscribe: want [V1], got %v", calls)
	}
}

func TestStore_SwitchWithFreshCacheSkipsRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.Update(Partial{FieldVIN: "V2", "battery_level": 64.0, "odometer": 1200.0}, UpdateOptions{})
	if err := f.store.SwitchActive(ctx, "V1"); err != nil {
		t.Fatalf("SwitchActive(V1): %v", err)
	}
	f.store.Update(Partial{"battery_level": 12.0}, UpdateOptions{})

	if err := f.store.SwitchActive(ctx, "V2"); err != nil {
		t.Fatalf("SwitchActive(V2): %v", err)
	}
	f.store.Wait()

	snap := f.store.Active()
	if snap.IsRefreshing {
		t.Error("fresh cache: want IsRefreshing false")
	}
	if snap.Fields["battery_level"] != 64.0 {
		t.Errorf("battery_level: want cached 64, got %v", snap.Fields["battery_level"])
	}
	if snap.Fields["customizedVehicleName"] != "Family" {
		t.Errorf("customizedVehicleName: want Family, got %v", snap.Fields["customizedVehicleName"])
	}

	if err := f.store.SwitchActive(ctx, "V1"); err != nil {
		t.Fatalf("SwitchActive(V1): %v", err)
	}
	if got := f.store.Active().Fields["odometer"]; got != nil {
		t.Errorf("odometer from V2 leaked into V1: %v", got)
	}
}

func TestStore_SwitchDropsPreviousVehicleFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.SwitchActive(ctx, "V1"); err != nil {
		t.Fatalf("SwitchActive(V1): %v", err)
	}
	f.store.Update(Partial{
		"location_address":     "Ba Dinh, Ha Noi",
		"weather_outside_temp": 31.0,
		"user_avatar":          "https://img/avatar.png",
	}, UpdateOptions{})

	if err := f.store.SwitchActive(ctx, "V2"); err != nil {
		t.Fatalf("SwitchActive(V2): %v", err)
	}
	f.store.Wait()

	fields := f.store.Active().Fields
	for _, key := range []string{"location_address", "weather_outside_temp", FieldLastUpdated} {
		if v, ok := fields[key]; ok && v != nil {
			t.Errorf("%s carried over from V1: %v", key, v)
		}
	}
	if fields["user_avatar"] != "https://img/avatar.png" {
		t.Errorf("user_avatar: want kept across switch, got %v", fields["user_avatar"])
	}
}

func TestStore_NonTelemetryUpdateIsNotFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// V1 is seeded with a battery capacity from the vehicle list.
	f.store.Update(Partial{FieldVIN: "V1", "location_address": "Ba Dinh, Ha Noi"}, UpdateOptions{})
	if f.store.HasFreshTelemetry("V1") {
		t.Fatal("identity and enrichment fields alone should not count as fresh telemetry")
	}

	if err := f.store.SwitchActive(ctx, "V1"); err != nil {
		t.Fatalf("SwitchActive(V1): %v", err)
	}
	f.store.Wait()
	if !f.store.Active().IsRefreshing {
		t.Error("switch to a vehicle with no telemetry: want IsRefreshing")
	}
}

func TestStore_FreshnessBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		offset  time.Duration
		partial Partial
		want    bool
	}{
		{"recent numeric signal", -time.Minute, Partial{"range": 210.0}, true},
		{"exactly at window", -5 * time.Minute, Partial{"range": 210.0}, true},
		{"past window", -5*time.Minute - time.Millisecond, Partial{"range": 210.0}, false},
		{"slightly in future", 4 * time.Minute, Partial{"range": 210.0}, true},
		{"far in future", 5*time.Minute + time.Millisecond, Partial{"range": 210.0}, false},
		{"placeholder only", -time.Minute, Partial{"battery_health_12v": "--"}, false},
		{"text signal", -time.Minute, Partial{"battery_health_12v": "OK"}, true},
		{"null signals", -time.Minute, Partial{"range": nil, "speed": nil}, false},
		{"unrelated field", -time.Minute, Partial{"color": "Red"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := tt.partial.Clone()
			p[FieldVIN] = "V1"
			p[FieldLastUpdated] = f.clock.Now().Add(tt.offset).UnixMilli()
			f.store.Update(p, UpdateOptions{})
			if got := f.store.HasFreshTelemetry("V1"); got != tt.want {
				t.Errorf("HasFreshTelemetry: want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStore_UpdateNullHandling(t *testing.T) {
	f := newFixture(t)
	if err := f.store.SwitchActive(context.Background(), "V1"); err != nil {
		t.Fatalf("SwitchActive: %v", err)
	}
	f.store.Update(Partial{"battery_level": 80.0, "range": 300.0}, UpdateOptions{})

	f.store.Update(Partial{"battery_level": nil, "speed": 20.0}, UpdateOptions{SkipNullValues: true})
	snap := f.store.Active()
	if snap.Fields["battery_level"] != 80.0 {
		t.Errorf("skipped null overwrote value: %v", snap.Fields["battery_level"])
	}
	if snap.Fields["speed"] != 20.0 || snap.Fields["range"] != 300.0 {
		t.Errorf("merge lost fields: %v", snap.Fields)
	}

	f.store.Update(Partial{"battery_level": nil}, UpdateOptions{})
	if v, ok := f.store.Active().Fields["battery_level"]; !ok || v != nil {
		t.Errorf("explicit null: want nil, got %v (present=%v)", v, ok)
	}
	cached, _ := f.store.Cached("V1")
	if v, ok := cached["battery_level"]; !ok || v != nil {
		t.Errorf("cache explicit null: want nil, got %v (present=%v)", v, ok)
	}
	if cached["range"] != 300.0 {
		t.Errorf("cache lost unrelated field: %v", cached)
	}
}

func TestStore_BackgroundUpdateOnlyTouchesCache(t *testing.T) {
	f := newFixture(t)
	if err := f.store.SwitchActive(context.Background(), "V1"); err != nil {
		t.Fatalf("SwitchActive: %v", err)
	}
	f.store.Update(Partial{FieldVIN: "V2", "battery_level": 55.0}, UpdateOptions{})

	if got := f.store.Active().Fields["battery_level"]; got != nil {
		t.Errorf("active V1 received V2 update: %v", got)
	}
	cached, ok := f.store.Cached("V2")
	if !ok || cached["battery_level"] != 55.0 {
		t.Errorf("V2 cache: want battery_level 55, got %v", cached)
	}
	if _, ok := cached.LastUpdated(); !ok {
		t.Error("cache entry should carry lastUpdated")
	}
}

func TestStore_UpdateWithoutTarget(t *testing.T) {
	f := newFixture(t)
	if f.store.Update(Partial{"battery_level": 1.0}, UpdateOptions{}) {
		t.Error("update with no active vehicle and no vin should be rejected")
	}
}

func TestStore_ResubscribeFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.sub.err = errors.New("broker unavailable")

	if err := f.store.SwitchActive(context.Background(), "V2"); err != nil {
		t.Fatalf("SwitchActive should not surface resubscribe errors, got %v", err)
	}
	f.store.Wait()
	if f.store.ActiveVIN() != "V2" {
		t.Errorf("active vin: want V2, got %q", f.store.ActiveVIN())
	}
}

func TestStore_RefreshClearsFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.SwitchActive(ctx, "V1"); err != nil {
		t.Fatalf("SwitchActive: %v", err)
	}
	f.store.Wait()
	f.store.ClearRefreshing("V1")

	var seen []bool
	f.store.OnChange(func(string) { seen = append(seen, f.store.Active().IsRefreshing) })

	f.sub.err = errors.New("timeout")
	if err := f.store.Refresh(ctx, "V1"); err == nil {
		t.Error("Refresh: want resubscribe error")
	}
	if f.store.Active().IsRefreshing {
		t.Error("IsRefreshing should be cleared after a failed refresh")
	}
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("refreshing transitions: want [true false], got %v", seen)
	}
}

func TestStore_EnrichingOnlyForActive(t *testing.T) {
	f := newFixture(t)
	if err := f.store.SwitchActive(context.Background(), "V1"); err != nil {
		t.Fatalf("SwitchActive: %v", err)
	}
	f.store.SetEnriching("V2", true)
	if f.store.Active().IsEnriching {
		t.Error("enriching set for inactive vin")
	}
	f.store.SetEnriching("V1", true)
	if !f.store.Active().IsEnriching {
		t.Error("enriching not set for active vin")
	}
}

func TestStore_SetVehiclesDedupes(t *testing.T) {
	s := NewStore(Options{})
	s.SetVehicles([]Identity{{VIN: "A", MarketingName: "old"}, {VIN: "B"}, {VIN: "A", MarketingName: "new"}, {VIN: ""}})

	list := s.Vehicles()
	if len(list) != 2 || list[0].VIN != "A" || list[1].VIN != "B" {
		t.Fatalf("vehicles: got %+v", list)
	}
	if list[0].MarketingName != "new" {
		t.Errorf("duplicate should keep last entry, got %q", list[0].MarketingName)
	}
	cached, ok := s.Cached("A")
	if !ok || cached["marketingName"] != "new" {
		t.Errorf("seeded cache: got %v", cached)
	}
}

func TestIdentityFromMap(t *testing.T) {
	id, ok := IdentityFromMap(map[string]any{
		"vinCode":          "RLLV1234",
		"marketingName":    "VF e34",
		"yearOfProduct":    float64(2023),
		"battery_capacity": "42",
		"warrantyMileage":  float64(160000),
	})
	if !ok {
		t.Fatal("IdentityFromMap rejected a valid entry")
	}
	if id.BatteryCapacityKWh == nil || *id.BatteryCapacityKWh != 42 {
		t.Errorf("battery capacity: want 42, got %v", id.BatteryCapacityKWh)
	}
	if id.YearOfProduct != 2023 || id.WarrantyMileage == nil || *id.WarrantyMileage != 160000 {
		t.Errorf("numeric fields: got %+v", id)
	}
	if id.DisplayName() != "VF e34" {
		t.Errorf("DisplayName: want VF e34, got %q", id.DisplayName())
	}

	if _, ok := IdentityFromMap(map[string]any{"marketingName": "no vin"}); ok {
		t.Error("entry without vinCode should be rejected")
	}
	if c := ParseBatteryCapacity(map[string]any{"batteryCapacity": "n/a"}); c != nil {
		t.Errorf("non-numeric capacity: want nil, got %v", *c)
	}
	if c := ParseBatteryCapacity(map[string]any{"batteryCapacity": "", "batteryCapacityKWH": 75.3}); c == nil || *c != 75.3 {
		t.Errorf("fallback field: want 75.3, got %v", c)
	}
}
