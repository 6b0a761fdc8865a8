package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	ch        chan Event
	// strict subscriptions end instead of missing an event.
	strict bool
	cancel func()
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of evt.Kind.
// Delivery never blocks; it returns how many subscribers had a full buffer and missed it.
// Strict subscribers with a full buffer are ended instead.
func (b *Bus) Publish(evt Event) (dropped int) {
	var overflowed []func()
	b.mu.RLock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			dropped++
			if sub.strict {
				overflowed = append(overflowed, sub.cancel)
			}
		}
	}
	b.mu.RUnlock()
	for _, cancel := range overflowed {
		cancel()
	}
	return dropped
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. The returned function unsubscribes and closes
// the channel; it is safe to call more than once.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, false)
}

// SubscribeStrict is Subscribe for consumers that cannot tolerate gaps: the first
// time an event would be dropped the subscription ends and its channel is closed
// after the events already queued.
func (b *Bus) SubscribeStrict(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, true)
}

func (b *Bus) subscribe(namespace string, bufSize int, strict bool) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	sub := &subscription{namespace: namespace, ch: ch, strict: strict}

	var once sync.Once
	b.mu.Lock()
	id := b.next
	b.next++
	sub.cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	b.subs[id] = sub
	b.mu.Unlock()
	return ch, sub.cancel
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
