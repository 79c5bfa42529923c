package events

import "time"

// Kind classifies a Notice.
type Kind int

const (
	KindTelemetry Kind = iota + 1
	KindSnapshot
	KindVehicles
	KindHistory
	KindEnrichment
	KindScan
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindTelemetry:
		return "telemetry"
	case KindSnapshot:
		return "snapshot"
	case KindVehicles:
		return "vehicles"
	case KindHistory:
		return "history"
	case KindEnrichment:
		return "enrichment"
	case KindScan:
		return "scan"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Notice tells consumers that some engine state changed. It carries no
// state itself; consumers re-read what they display.
type Notice struct {
	Kind    Kind
	VIN     string
	Version uint64 // telemetry version at publish time
	At      time.Time
	Detail  string
	Success *bool // nil if not applicable
}
