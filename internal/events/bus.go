package events

import (
	"sync"
	"sync/atomic"
)

// Subscription receives notices on C until it is cancelled or the bus is
// closed.
type Subscription struct {
	C <-chan Notice

	bus *Bus
	id  int
}

// Cancel detaches the subscription and closes C.
func (s *Subscription) Cancel() {
	s.bus.remove(s.id)
}

// Bus fans notices out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the notice and the drop is counted. Every
// published notice is also kept in Recent.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Notice
	nextID int
	closed bool

	dropped atomic.Uint64
	recent  *RingBuffer
}

func NewBus(recent int) *Bus {
	return &Bus{
		subs:   make(map[int]chan Notice),
		recent: NewRingBuffer(recent),
	}
}

// Subscribe registers a subscriber with the given channel buffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Notice, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.closed {
		close(ch)
	} else {
		b.subs[id] = ch
	}
	return &Subscription{C: ch, bus: b, id: id}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers n to every subscriber that has room.
func (b *Bus) Publish(n Notice) {
	b.recent.Add(n)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped is the number of notices not delivered to a full subscriber.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Recent is the buffer of the latest published notices.
func (b *Bus) Recent() *RingBuffer {
	return b.recent
}

// Close closes every subscription. Later subscriptions are closed at once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
