package events

import (
	"fmt"
	"slices"
	"sync"
	"testing"
)

func fill(buf *RingBuffer, count int) {
	for i := range count {
		buf.Add(Notice{Kind: KindTelemetry, VIN: "V1", Detail: fmt.Sprintf("n%d", i)})
	}
}

func details(ns []Notice) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Detail
	}
	return out
}

func TestRingBuffer_KeepsNewestOldestFirst(t *testing.T) {
	tests := []struct {
		capacity, adds int
		want           []string
	}{
		{capacity: 5, adds: 0, want: []string{}},
		{capacity: 5, adds: 2, want: []string{"n0", "n1"}},
		{capacity: 3, adds: 3, want: []string{"n0", "n1", "n2"}},
		{capacity: 3, adds: 4, want: []string{"n1", "n2", "n3"}},
		{capacity: 3, adds: 10, want: []string{"n7", "n8", "n9"}},
		{capacity: 1, adds: 2, want: []string{"n1"}},
		{capacity: 0, adds: 2, want: []string{"n1"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("cap%d_adds%d", tt.capacity, tt.adds), func(t *testing.T) {
			buf := NewRingBuffer(tt.capacity)
			fill(buf, tt.adds)

			if got := details(buf.ListAll()); !slices.Equal(got, tt.want) {
				t.Errorf("ListAll = %v, want %v", got, tt.want)
			}
			if buf.Len() != len(tt.want) {
				t.Errorf("Len = %d, want %d", buf.Len(), len(tt.want))
			}
			if buf.Cap() != max(tt.capacity, 1) {
				t.Errorf("Cap = %d", buf.Cap())
			}
		})
	}
}

func TestRingBuffer_EmptyListIsNil(t *testing.T) {
	if all := NewRingBuffer(4).ListAll(); all != nil {
		t.Errorf("want nil, got %v", all)
	}
}

func TestRingBuffer_Filters(t *testing.T) {
	buf := NewRingBuffer(10)
	for _, n := range []Notice{
		{VIN: "V1", Kind: KindTelemetry, Detail: "a"},
		{VIN: "V2", Kind: KindTelemetry, Detail: "b"},
		{VIN: "V1", Kind: KindError, Detail: "c"},
		{VIN: "V3", Kind: KindHistory, Detail: "d"},
	} {
		buf.Add(n)
	}

	if got := details(buf.ListByVIN("V1")); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("ListByVIN(V1) = %v", got)
	}
	if got := buf.ListByVIN("V9"); len(got) != 0 {
		t.Errorf("unknown VIN: %v", got)
	}
	if got := details(buf.ListByKind(KindTelemetry)); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("ListByKind(telemetry) = %v", got)
	}
	if got := buf.ListByKind(KindScan); len(got) != 0 {
		t.Errorf("no scans expected: %v", got)
	}
}

func TestRingBuffer_Latest(t *testing.T) {
	buf := NewRingBuffer(3)
	fill(buf, 5)

	if got := details(buf.Latest(2)); !slices.Equal(got, []string{"n4", "n3"}) {
		t.Errorf("Latest(2) = %v", got)
	}
	if got := details(buf.Latest(10)); !slices.Equal(got, []string{"n4", "n3", "n2"}) {
		t.Errorf("Latest(10) = %v", got)
	}
	if got := buf.Latest(-1); len(got) != 0 {
		t.Errorf("Latest(-1) = %v", got)
	}
}

func TestRingBuffer_LargeEviction(t *testing.T) {
	buf := NewRingBuffer(1000)
	fill(buf, 1001)

	all := buf.ListAll()
	if len(all) != 1000 || all[0].Detail != "n1" || all[999].Detail != "n1000" {
		t.Errorf("got %d notices, first %q last %q", len(all), all[0].Detail, all[len(all)-1].Detail)
	}
}

func TestRingBuffer_ConcurrentAccess(t *testing.T) {
	buf := NewRingBuffer(100)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			buf.Add(Notice{Kind: KindTelemetry, VIN: fmt.Sprintf("V%d", i%5)})
		})
	}
	for range 20 {
		wg.Go(func() {
			buf.ListAll()
			buf.ListByVIN("V0")
			buf.Latest(5)
		})
	}
	wg.Wait()

	if buf.Len() != 50 {
		t.Errorf("Len = %d, want 50", buf.Len())
	}
}
