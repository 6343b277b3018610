// Package events fans committed engine events out to in-process subscribers,
// such as server-sent event streams. Every subscriber is bound to one tenant.
package events

import (
	"context"
	"sync"

	"allot.org/internal/alloc"
)

const subscriberBuffer = 16

type subscriber struct {
	tenantID string
	ch       chan alloc.Event
}

// Bus fan-outs events to all active subscribers of the event's tenant.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

var _ alloc.Hook = (*Bus)(nil)

// New initialises an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for tenantID and returns a channel which
// will receive that tenant's events. The channel is closed when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, tenantID string) <-chan alloc.Event {
	ch := make(chan alloc.Event, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{tenantID: tenantID, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to the subscribers of its tenant.
func (b *Bus) Publish(evt alloc.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.tenantID == "" || sub.tenantID != evt.TenantID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking the writer.
		}
	}
}

// AfterCommit implements alloc.Hook.
func (b *Bus) AfterCommit(_ context.Context, evt alloc.Event) error {
	b.Publish(evt)
	return nil
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
