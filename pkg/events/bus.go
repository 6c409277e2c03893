package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/llmspell-dev/llmspell/internal/observability"
)

// defaultBufferSize is the per-subscription queue depth.
const defaultBufferSize = 256

// Subscription is one pattern-matched delivery queue. When the queue is
// full, new events for this subscriber are dropped and counted; the bus
// never blocks a publisher on a slow consumer.
type Subscription struct {
	id      string
	pattern string
	ch      chan Event
	dropped atomic.Uint64
	closed  atomic.Bool
}

// ID returns the subscription identifier used for Unsubscribe.
func (s *Subscription) ID() string { return s.id }

// Pattern returns the subscribed pattern.
func (s *Subscription) Pattern() string { return s.pattern }

// Events is the delivery channel. It is closed by Unsubscribe and Bus.Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped reports how many events were discarded due to a full queue.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// BusStats summarizes bus activity.
type BusStats struct {
	Published     uint64 `json:"published"`
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
	Expired       uint64 `json:"expired"`
	Subscriptions int    `json:"subscriptions"`
}

// Bus is the in-process event bus. Events delivered to a single
// subscription preserve publish order; across subscriptions no ordering is
// implied. Safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscription

	bufferSize int
	seq        atomic.Uint64
	published  atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	expired    atomic.Uint64

	now func() time.Time
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBufferSize sets the per-subscription queue depth.
func WithBufferSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:       make(map[string]*Subscription),
		bufferSize: defaultBufferSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a pattern and returns its delivery queue.
func (b *Bus) Subscribe(pattern string) *Subscription {
	sub := &Subscription{
		id:      uuid.New().String(),
		pattern: pattern,
		ch:      make(chan Event, b.bufferSize),
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok && sub.closed.CompareAndSwap(false, true) {
		close(sub.ch)
	}
}

// Publish assigns the event its sequence number and fans it out to every
// matching subscription. Full queues drop the event for that subscriber;
// expired events are dropped for everyone. Publish never blocks.
func (b *Bus) Publish(_ context.Context, event Event) Event {
	event.Sequence = b.seq.Add(1)
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}
	b.published.Add(1)
	observability.RecordEventPublished(event.Type)

	if event.Expired(b.now()) {
		b.expired.Add(1)
		return event
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !MatchPattern(sub.pattern, event.Type) {
			continue
		}
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- event:
			b.delivered.Add(1)
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
	return event
}

// Stats reports bus-level counters.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return BusStats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Dropped:       b.dropped.Load(),
		Expired:       b.expired.Load(),
		Subscriptions: n,
	}
}

// Close tears down every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
		delete(b.subs, id)
	}
}
