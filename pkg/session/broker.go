package session

import (
	"log/slog"
	"sync"

	parlorlog "github.com/papercomputeco/parlor/pkg/logger"
)

const defaultSubscriberBuffer = 64

// Broker fans session events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Broker struct {
	mu      sync.Mutex
	subs    map[uint64]chan Event
	next    uint64
	buffer  int
	closed  bool
	dropped uint64
	logger  *slog.Logger
}

// NewBroker creates a broker whose subscriber channels hold buffer events.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	if logger == nil {
		logger = parlorlog.Nop()
	}
	return &Broker{
		subs:   map[uint64]chan Event{},
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel. The channel is also closed when the broker closes.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers ev to every subscriber with buffer space.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
			b.logger.Warn("subscriber too slow, event dropped",
				"session_id", ev.Session,
				"subscriber", id,
				"event", string(ev.Type),
				"seq", ev.Seq,
			)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns the number of events dropped for slow subscribers.
func (b *Broker) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broker) Close() {
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
