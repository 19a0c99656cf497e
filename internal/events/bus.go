// Package events fans status updates out to SSE subscribers.
package events

import (
	"sync"

	"github.com/micro-nova/gpiointr/internal/models"
)

const subBufferSize = 8

// Bus is a non-blocking publish-subscribe bus for status snapshots.
// A subscriber whose buffer is full loses its oldest pending update, never the
// newest one: a slow reader may skip counts but always converges on the
// latest status.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]chan models.Status
	last   models.Status
	primed bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan models.Status),
	}
}

// Subscribe creates a new subscription with the given ID. If a status has
// already been published it is queued on the new channel right away.
// Call Unsubscribe when done to clean up.
func (b *Bus) Subscribe(id string) <-chan models.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	ch := make(chan models.Status, subBufferSize)
	if b.primed {
		ch <- b.last
	}
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish sends a status update to all subscribers without blocking.
func (b *Bus) Publish(st models.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last, b.primed = st, true
	for _, ch := range b.subs {
		for {
			select {
			case ch <- st:
			default:
				// full: drop the oldest and retry
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Latest returns the most recently published status and whether there was one.
func (b *Bus) Latest() (models.Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.primed
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
