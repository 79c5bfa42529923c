package telemetry

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nixlim/vf-top/internal/clock"
	"github.com/nixlim/vf-top/internal/storage"
)

func newTestCatalog(store storage.Store) (*Catalog, *clock.FakeClock) {
	fc := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewCatalog(store, DefaultCatalogTTL, fc, nil), fc
}

func TestCatalog_UnionNeverShrinks(t *testing.T) {
	ctx := context.Background()
	c, fc := newTestCatalog(storage.NewMemoryStore())

	c.RecordKeys(ctx, "V1", []string{"1|0|1", "1|0|2"})
	fc.Advance(time.Hour)
	c.RecordKeys(ctx, "V1", []string{"1|0|2", "1|0|3"})

	want := []string{"1|0|1", "1|0|2", "1|0|3"}
	if got := c.GetKeys(ctx, "V1"); !reflect.DeepEqual(got, want) {
		t.Errorf("GetKeys: want %v, got %v", want, got)
	}
}

func TestCatalog_TTLBoundary(t *testing.T) {
	ctx := context.Background()
	c, fc := newTestCatalog(storage.NewMemoryStore())

	c.RecordKeys(ctx, "V1", []string{"1|0|1"})
	fc.Advance(DefaultCatalogTTL)
	if got := c.GetKeys(ctx, "V1"); len(got) != 1 {
		t.Errorf("at TTL: want entry served, got %v", got)
	}
	fc.Advance(time.Millisecond)
	if got := c.GetKeys(ctx, "V1"); got != nil {
		t.Errorf("past TTL: want nil, got %v", got)
	}

	c.RecordKeys(ctx, "V1", []string{"9|0|9"})
	if got := c.GetKeys(ctx, "V1"); !reflect.DeepEqual(got, []string{"9|0|9"}) {
		t.Errorf("stale set should be replaced, got %v", got)
	}
}

func TestCatalog_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first, _ := newTestCatalog(store)
	first.RecordKeys(ctx, "V1", []string{"1|0|1"})
	first.RecordKeys(ctx, "V2", []string{"2|0|2"})

	second, _ := newTestCatalog(store)
	if got := second.GetKeys(ctx, "V2"); !reflect.DeepEqual(got, []string{"2|0|2"}) {
		t.Errorf("reloaded V2: want [2|0|2], got %v", got)
	}
	all := second.All(ctx)
	if len(all) != 2 || all[0].VIN != "V1" || all[1].VIN != "V2" {
		t.Errorf("All: got %+v", all)
	}
}

func TestCatalog_CorruptDataFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Set(ctx, CatalogStorageKey, []byte{0x7f, 0x01, 0x02}); err != nil {
		t.Fatalf("seeding corrupt catalog: %v", err)
	}

	c, _ := newTestCatalog(store)
	if got := c.GetKeys(ctx, "V1"); got != nil {
		t.Errorf("corrupt catalog: want empty, got %v", got)
	}
	c.RecordKeys(ctx, "V1", []string{"1|0|1"})
	if got := c.GetKeys(ctx, "V1"); len(got) != 1 {
		t.Errorf("catalog should recover after corrupt load, got %v", got)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}
func (failingStore) Set(context.Context, string, []byte) error { return errors.New("disk on fire") }
func (failingStore) Delete(context.Context, string) error      { return errors.New("disk on fire") }
func (failingStore) Close() error                              { return nil }

func TestCatalog_StorageErrorsAreNotFatal(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(failingStore{})

	c.RecordKeys(ctx, "V1", []string{"1|0|1"})
	if got := c.GetKeys(ctx, "V1"); len(got) != 1 {
		t.Errorf("in-memory catalog should still serve keys, got %v", got)
	}
	c.Clear(ctx, "")
}

func TestCatalog_Clear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c, _ := newTestCatalog(store)

	c.RecordKeys(ctx, "V1", []string{"1|0|1"})
	c.RecordKeys(ctx, "V2", []string{"2|0|2"})

	c.Clear(ctx, "V1")
	if c.GetKeys(ctx, "V1") != nil || c.GetKeys(ctx, "V2") == nil {
		t.Error("Clear(V1) should remove only V1")
	}

	c.Clear(ctx, "")
	if len(c.All(ctx)) != 0 {
		t.Error("Clear(\"\") should remove every entry")
	}
	if _, ok, _ := store.Get(ctx, CatalogStorageKey); ok {
		t.Error("empty catalog should be deleted from storage")
	}
}

func TestFieldMap_Derive(t *testing.T) {
	fm := NewFieldMap(map[string]string{
		"100|0|5":     "battery_level",
		"0034183|1|1": "odometer",
		"bad_key":     "ignored",
		"7|0|1":       "is_locked",
	})
	if _, ok := fm["34183|1|1"]; !ok {
		t.Errorf("keys should be normalized, got %v", fm)
	}
	if len(fm) != 3 {
		t.Errorf("malformed keys should be dropped, got %v", fm)
	}

	partial := fm.Derive([]Record{
		{Key: "100|0|5", Value: "42"},
		{Key: "34183|1|1", Value: 1200.5},
		{Key: "7|0|1", Value: true},
		{Key: "9|9|9", Value: 1},
	})
	want := map[string]any{"battery_level": 42.0, "odometer": 1200.5, "is_locked": true}
	if !reflect.DeepEqual(partial, want) {
		t.Errorf("Derive: want %v, got %v", want, partial)
	}

	if got := fm.Derive([]Record{{Key: "100|0|5", Value: nil}}); got == nil || got["battery_level"] != nil {
		t.Errorf("explicit null should map through, got %v", got)
	}
	if _, present := fm.Derive([]Record{{Key: "100|0|5", Value: nil}})["battery_level"]; !present {
		t.Error("explicit null should be present in partial")
	}

	for _, raw := range []string{"1_000", "0x1p3", "Inf"} {
		if got := fm.Derive([]Record{{Key: "100|0|5", Value: raw}}); got["battery_level"] != raw {
			t.Errorf("%q should stay a string, got %#v", raw, got["battery_level"])
		}
	}
}
