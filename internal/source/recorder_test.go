package source

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nixlim/vf-top/internal/clock"
)

func TestFileRecorder_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	clk := clock.Fake(time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC))
	r := NewFileRecorder(&buf, clk)

	r.RecordBatch(Batch{VIN: "V1", Records: []any{map[string]any{"deviceKey": "34183_1_9", "value": 80.0}}})
	r.RecordBatch(Batch{VIN: "V2"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %q", len(lines), buf.String())
	}

	var entry recordEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line 1 is not JSON: %v", err)
	}
	if entry.Timestamp != "2026-07-15T09:00:00Z" {
		t.Errorf("ts: want 2026-07-15T09:00:00Z, got %s", entry.Timestamp)
	}
	if entry.VIN != "V1" || entry.Count != 1 || len(entry.Records) != 1 {
		t.Errorf("entry: got %+v", entry)
	}
}

func TestFileRecorder_DropsUnserialisable(t *testing.T) {
	var buf bytes.Buffer
	r := NewFileRecorder(&buf, nil)
	r.RecordBatch(Batch{VIN: "V1", Records: []any{make(chan int)}})
	if buf.Len() != 0 {
		t.Errorf("want nothing written, got %q", buf.String())
	}
}

func TestFileRecorder_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	r := NewFileRecorder(&buf, nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordBatch(Batch{VIN: "V1", Records: []any{i}})
		}()
	}
	wg.Wait()

	for i, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !json.Valid([]byte(line)) {
			t.Errorf("line %d is not valid JSON: %q", i, line)
		}
	}
}
