package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FieldMap maps canonical keys to vehicle snapshot field names.
type FieldMap map[string]string

// NewFieldMap normalizes the configured keys. Entries whose key does not
// parse as a canonical key are dropped.
func NewFieldMap(fields map[string]string) FieldMap {
	fm := make(FieldMap, len(fields))
	for raw, field := range fields {
		if field == "" {
			continue
		}
		k, ok := ParseKey(raw)
		if !ok {
			continue
		}
		norm, ok := Normalize(map[string]any{
			"objectId":   k.Object,
			"instanceId": k.Instance,
			"resourceId": k.Resource,
		})
		if !ok {
			continue
		}
		fm[norm.String()] = field
	}
	return fm
}

// Merge adds the entries of other whose key fm does not map yet.
func (fm FieldMap) Merge(other FieldMap) FieldMap {
	for key, field := range other {
		if _, ok := fm[key]; !ok {
			fm[key] = field
		}
	}
	return fm
}

// Derive builds a snapshot partial from records. Later records win when two
// map to the same field. A nil value is kept so an explicit "went to null"
// signal reaches the snapshot.
func (fm FieldMap) Derive(records []Record) map[string]any {
	if len(fm) == 0 || len(records) == 0 {
		return nil
	}
	var out map[string]any
	for _, r := range records {
		field, ok := fm[r.Key]
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[field] = coerceValue(r.Value)
	}
	return out
}

func coerceValue(v any) any {
	switch n := v.(type) {
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return n
		}
		if !isDecimal(s) {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
		return n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return v
}

// SnapshotEntry is the inspector view of one live record.
type SnapshotEntry struct {
	Key         string
	DeviceKey   string
	Value       any
	LastUpdated int64
}

// Snapshot returns the inspector view of vin's live records in key order.
func (b *Bucket) Snapshot(vin string) []SnapshotEntry {
	records := b.ReadAll(vin)
	out := make([]SnapshotEntry, len(records))
	for i, r := range records {
		out[i] = SnapshotEntry{Key: r.Key, DeviceKey: r.DeviceKey, Value: r.Value, LastUpdated: r.LastUpdated}
	}
	return out
}
