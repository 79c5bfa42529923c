package events

import "sync"

// RingBuffer keeps the most recent Notices up to a fixed capacity. Adding
// to a full buffer evicts the oldest notice. Safe for concurrent use.
type RingBuffer struct {
	mu   sync.RWMutex
	buf  []Notice
	next int // slot the next Add writes
	n    int
}

// NewRingBuffer creates a RingBuffer holding at least one notice.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{buf: make([]Notice, max(capacity, 1))}
}

func (rb *RingBuffer) Add(n Notice) {
	rb.mu.Lock()
	rb.buf[rb.next] = n
	rb.next = (rb.next + 1) % len(rb.buf)
	rb.n = min(rb.n+1, len(rb.buf))
	rb.mu.Unlock()
}

// at returns the i-th stored notice counting from the oldest.
// Caller holds the lock.
func (rb *RingBuffer) at(i int) Notice {
	return rb.buf[(rb.next-rb.n+i+len(rb.buf))%len(rb.buf)]
}

// ListAll returns every notice, oldest first.
func (rb *RingBuffer) ListAll() []Notice {
	return rb.collect(nil)
}

// ListByVIN returns the notices for vin, oldest first.
func (rb *RingBuffer) ListByVIN(vin string) []Notice {
	return rb.collect(func(n Notice) bool { return n.VIN == vin })
}

// ListByKind returns the notices of kind k, oldest first.
func (rb *RingBuffer) ListByKind(k Kind) []Notice {
	return rb.collect(func(n Notice) bool { return n.Kind == k })
}

// Latest returns up to n of the newest notices, newest first.
func (rb *RingBuffer) Latest(n int) []Notice {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]Notice, 0, min(max(n, 0), rb.n))
	for i := rb.n - 1; i >= 0 && len(out) < cap(out); i-- {
		out = append(out, rb.at(i))
	}
	return out
}

// collect returns the notices keep accepts, oldest first. A nil keep
// accepts everything.
func (rb *RingBuffer) collect(keep func(Notice) bool) []Notice {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []Notice
	for i := range rb.n {
		if n := rb.at(i); keep == nil || keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}

func (rb *RingBuffer) Cap() int {
	return len(rb.buf)
}
