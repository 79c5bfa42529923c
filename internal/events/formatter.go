// Package events carries change notices from the engine to its consumers:
// a non-blocking bus, a ring buffer of recent notices, and display
// formatting for both.
package events

import (
	"fmt"
	"strings"
	"time"
)

// Format renders a notice as one display line:
//   - telemetry:  "[VIN] telemetry v12: 3 keys"
//   - history:    "[VIN] history: 120 sessions"
//   - enrichment: "[VIN] enrichment ✓ Ba Dinh, Ha Noi, VN"
//   - error:      "[VIN] ✗ page 2: timeout"
func Format(n Notice) string {
	vin := ShortVIN(n.VIN)
	if vin == "" {
		vin = "-"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", vin)
	switch n.Kind {
	case KindError:
		b.WriteString("✗")
	case KindTelemetry:
		fmt.Fprintf(&b, "%s v%d", n.Kind, n.Version)
	default:
		b.WriteString(n.Kind.String())
		if n.Success != nil {
			if *n.Success {
				b.WriteString(" ✓")
			} else {
				b.WriteString(" ✗")
			}
		}
	}
	if n.Detail != "" {
		if n.Kind == KindError || n.Success != nil {
			b.WriteString(" ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(truncate(n.Detail, 80))
	}
	return b.String()
}

// FormatLine prefixes Format with the notice time.
func FormatLine(n Notice) string {
	return n.At.Format("15:04:05") + " " + Format(n)
}

// ShortVIN keeps the last 8 characters of a VIN, which is what owners
// recognise from the registration papers.
func ShortVIN(vin string) string {
	if len(vin) <= 8 {
		return vin
	}
	return "…" + vin[len(vin)-8:]
}

// FormatEnergy renders kWh with one decimal.
func FormatEnergy(kwh float64) string {
	return fmt.Sprintf("%.1f kWh", kwh)
}

// FormatAmount renders a VND amount as thousands, e.g. 35000 -> "35.0k₫".
func FormatAmount(vnd float64) string {
	if vnd >= 1000 {
		return fmt.Sprintf("%.1fk₫", vnd/1000)
	}
	return fmt.Sprintf("%.0f₫", vnd)
}

// FormatDuration renders d as "1h05m", "12m" or "45s".
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

// FormatAge renders how long ago t was relative to now.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < time.Second {
		return "just now"
	}
	return FormatDuration(d) + " ago"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
