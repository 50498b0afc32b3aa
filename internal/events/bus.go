package events

import "sync"

const subscriberBuffer = 64

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	closed    bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[chan Event]struct{})}
}

// Subscribe returns a channel receiving every subsequent event and a
// cancel func that unregisters and closes it.
func (b *Bus) Subscribe() (ch chan Event, cancel func()) {
	ch = make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	cancel = func() {
		b.mu.Lock()
		if _, ok := b.listeners[ch]; ok {
			delete(b.listeners, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers e to every subscriber. A nil bus is a no-op so
// components can be built without one.
func (b *Bus) Publish(e Event) {
	if b == nil || e == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.listeners {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.listeners {
		close(ch)
	}
	b.listeners = nil
}
