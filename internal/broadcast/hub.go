// Package broadcast fans a stream of values out to subscribers that only care
// about the most recent one.
package broadcast

import "sync"

// Hub delivers the latest published value to every subscriber. A slow
// subscriber never blocks Publish: an unread value is replaced by the newer
// one, so each subscriber always ends up holding the last value published.
type Hub[T any] struct {
	mu        sync.Mutex
	subs      map[int]chan T
	next      int
	latest    T
	hasLatest bool
	closed    bool
}

// New returns an empty hub.
func New[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]chan T)}
}

// Publish records v as the latest value and hands it to every subscriber.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest = v
	h.hasLatest = true
	for _, ch := range h.subs {
		offer(ch, v)
	}
}

// Subscribe registers a new subscriber. The channel receives the latest value
// immediately when one was already published. cancel unregisters and closes
// the channel; it is safe to call more than once.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan T, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	if h.hasLatest {
		ch <- h.latest
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Latest returns the last published value.
func (h *Hub[T]) Latest() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.hasLatest
}

// Len returns the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// offer replaces any unread value in ch with v. Callers hold the hub lock, so
// ch has exactly one free slot after the drain.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
