// Package telemetry holds the live per-vehicle signal state: canonical key
// normalization, the latest-value bucket and the durable key catalog.
package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Key identifies one telemetry signal.
type Key struct {
	Object   string
	Instance string
	Resource string
}

// String returns the canonical form "object|instance|resource".
func (k Key) String() string {
	return k.Object + "|" + k.Instance + "|" + k.Resource
}

// DeviceKey returns the display form "object_instance_resource".
func (k Key) DeviceKey() string {
	return k.Object + "_" + k.Instance + "_" + k.Resource
}

// ParseKey splits a canonical key produced by Key.String.
func ParseKey(s string) (Key, bool) {
	first := strings.IndexByte(s, '|')
	if first <= 0 {
		return Key{}, false
	}
	second := strings.IndexByte(s[first+1:], '|')
	if second < 0 {
		return Key{}, false
	}
	second += first + 1
	k := Key{Object: s[:first], Instance: s[first+1 : second], Resource: s[second+1:]}
	if k.Resource == "" || k.Instance == "" {
		return Key{}, false
	}
	return k, true
}

var (
	objectFields   = []string{"objectId", "object_id", "oid"}
	instanceFields = []string{"instanceId", "instance_id", "iid"}
	resourceFields = []string{"resourceId", "resource_id", "rid"}
)

// Normalize derives the signal key of a raw record. It accepts either a
// delimited deviceKey ("12_0_7" or "12/0/7") or separate object, instance
// and resource fields. Object and resource must be numeric; an absent or
// non-numeric instance becomes "0".
func Normalize(rec map[string]any) (Key, bool) {
	if dk, ok := rec["deviceKey"].(string); ok && dk != "" {
		if k, ok := splitDeviceKey(dk); ok {
			return k, true
		}
	}
	return newKey(
		firstPresent(rec, objectFields),
		firstPresent(rec, instanceFields),
		firstPresent(rec, resourceFields),
	)
}

func newKey(object, instance, resource any) (Key, bool) {
	k := Key{
		Object:   normInt(object, ""),
		Instance: normInt(instance, "0"),
		Resource: normInt(resource, ""),
	}
	if k.Object == "" || k.Resource == "" {
		return Key{}, false
	}
	return k, true
}

// NormalizeKey returns the canonical key string, or "" when rec cannot be
// identified.
func NormalizeKey(rec map[string]any) string {
	k, ok := Normalize(rec)
	if !ok {
		return ""
	}
	return k.String()
}

func splitDeviceKey(dk string) (Key, bool) {
	sep := byte('_')
	if strings.IndexByte(dk, '/') >= 0 {
		sep = '/'
	}
	p0 := strings.IndexByte(dk, sep)
	if p0 <= 0 {
		return Key{}, false
	}
	p1 := strings.IndexByte(dk[p0+1:], sep)
	if p1 < 0 {
		return Key{}, false
	}
	p1 += p0 + 1

	return newKey(dk[:p0], dk[p0+1:p1], dk[p1+1:])
}

func firstPresent(rec map[string]any, names []string) any {
	for _, n := range names {
		if v, ok := rec[n]; ok && v != nil {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return v
		}
	}
	return nil
}

// normInt coerces v to a truncated decimal integer string. nil, "",
// non-numeric and non-finite values yield fallback.
func normInt(v any, fallback string) string {
	var f float64
	switch n := v.(type) {
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if !isDecimal(s) {
			return fallback
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fallback
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	case json.Number:
		return normInt(string(n), fallback)
	default:
		return fallback
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return strconv.FormatInt(int64(math.Trunc(f)), 10)
}

// isDecimal reports whether s uses only plain decimal number syntax.
// strconv.ParseFloat alone would also take "1_2", "0x1p3" and "Inf".
func isDecimal(s string) bool {
	digits := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-':
		default:
			return false
		}
	}
	return digits
}
