package source

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nixlim/vf-top/internal/clock"
)

// Recorder captures received signal frames for offline debugging.
// Implementations must be safe for concurrent use.
type Recorder interface {
	RecordBatch(b Batch)
}

// NopRecorder discards every frame.
type NopRecorder struct{}

func (NopRecorder) RecordBatch(Batch) {}

// recordEntry is one line written by FileRecorder.
type recordEntry struct {
	Timestamp string `json:"ts"`
	VIN       string `json:"vin"`
	Count     int    `json:"count"`
	Records   []any  `json:"records"`
}

// FileRecorder writes each frame as a JSON line, stamped with the time it
// was received.
type FileRecorder struct {
	w     io.Writer
	clock clock.Clock
	mu    sync.Mutex
}

func NewFileRecorder(w io.Writer, c clock.Clock) *FileRecorder {
	return &FileRecorder{w: w, clock: clock.OrReal(c)}
}

// RecordBatch writes b. Frames that cannot be serialised are dropped.
func (r *FileRecorder) RecordBatch(b Batch) {
	data, err := json.Marshal(recordEntry{
		Timestamp: r.clock.Now().UTC().Format(time.RFC3339Nano),
		VIN:       b.VIN,
		Count:     len(b.Records),
		Records:   b.Records,
	})
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s\n", data)
}
