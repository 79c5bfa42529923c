package telemetry

import (
	"encoding/json"
	"maps"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nixlim/vf-top/internal/clock"
)

// Ordering decides whether a newer arrival may replace a stored record.
type Ordering int

const (
	// OrderArrival lets the last record to arrive win.
	OrderArrival Ordering = iota
	// OrderTimestamp rejects a record whose producer timestamp is older
	// than the stored one when both carry a timestamp.
	OrderTimestamp
)

func ParseOrdering(s string) Ordering {
	if s == "timestamp" {
		return OrderTimestamp
	}
	return OrderArrival
}

// Record is the latest observation of one signal for one vehicle.
type Record struct {
	Key        string
	ObjectID   string
	InstanceID string
	ResourceID string
	DeviceKey  string
	Value      any
	// LastUpdated is epoch-ms: the producer timestamp if present, else the
	// receipt time.
	LastUpdated int64
	// HasProducerTime is false when LastUpdated was assigned on receipt.
	HasProducerTime bool
	Raw             map[string]any
}

// IngestResult summarizes one Ingest call.
type IngestResult struct {
	Accepted int
	Skipped  int
	Stale    int
	Keys     []string
	Records  []Record
	Version  uint64
	Bumped   bool
}

// Bucket is the latest-value-per-key map for every vehicle. The version
// counter is global and bumps at most once per Ingest call.
type Bucket struct {
	mu       sync.RWMutex
	vins     map[string]map[string]Record
	version  atomic.Uint64
	clock    clock.Clock
	ordering Ordering
}

func NewBucket(c clock.Clock, ordering Ordering) *Bucket {
	return &Bucket{
		vins:     make(map[string]map[string]Record),
		clock:    clock.OrReal(c),
		ordering: ordering,
	}
}

// Ingest upserts every identifiable record for vin. Items that are not
// objects or whose key cannot be normalized are skipped.
func (b *Bucket) Ingest(vin string, items []any) IngestResult {
	var res IngestResult
	if vin == "" {
		res.Skipped = len(items)
		res.Version = b.version.Load()
		return res
	}
	now := b.clock.Now().UnixMilli()

	b.mu.Lock()
	entries, ok := b.vins[vin]
	if !ok {
		entries = make(map[string]Record)
		b.vins[vin] = entries
	}
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			res.Skipped++
			continue
		}
		k, ok := Normalize(raw)
		if !ok {
			res.Skipped++
			continue
		}
		rec := newRecord(k, raw, now)
		if b.ordering == OrderTimestamp {
			if prev, exists := entries[rec.Key]; exists && prev.HasProducerTime && rec.HasProducerTime && rec.LastUpdated < prev.LastUpdated {
				res.Stale++
				continue
			}
		}
		entries[rec.Key] = rec
		res.Accepted++
		res.Keys = append(res.Keys, rec.Key)
		res.Records = append(res.Records, rec)
	}
	b.mu.Unlock()

	if res.Accepted > 0 {
		res.Version = b.version.Add(1)
		res.Bumped = true
	} else {
		res.Version = b.version.Load()
	}
	return res
}

func newRecord(k Key, raw map[string]any, now int64) Record {
	rec := Record{
		Key:         k.String(),
		ObjectID:    k.Object,
		InstanceID:  k.Instance,
		ResourceID:  k.Resource,
		DeviceKey:   k.DeviceKey(),
		Value:       raw["value"],
		LastUpdated: now,
		Raw:         maps.Clone(raw),
	}
	if ts, ok := millis(raw["timestamp"]); ok && ts > 0 {
		rec.LastUpdated = ts
		rec.HasProducerTime = true
	}
	return rec
}

func millis(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// ReadAll returns the current records for vin in key order.
func (b *Bucket) ReadAll(vin string) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.vins[vin]
	out := make([]Record, 0, len(entries))
	for _, r := range entries {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Get returns the record stored under the canonical key.
func (b *Bucket) Get(vin, key string) (Record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.vins[vin][key]
	return r, ok
}

// Keys returns the sorted canonical keys held for vin.
func (b *Bucket) Keys(vin string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.vins[vin]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of records held for vin.
func (b *Bucket) Len(vin string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.vins[vin])
}

// VINs returns every vehicle with at least one record.
func (b *Bucket) VINs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.vins))
	for vin, entries := range b.vins {
		if len(entries) > 0 {
			out = append(out, vin)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Bucket) Version() uint64 {
	return b.version.Load()
}

// Clear drops the records for vin, or for every vehicle when vin is empty.
func (b *Bucket) Clear(vin string) {
	b.mu.Lock()
	if vin == "" {
		b.vins = make(map[string]map[string]Record)
	} else {
		delete(b.vins, vin)
	}
	b.mu.Unlock()
	b.version.Add(1)
}
