package events

import (
	"sync"

	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
)

// Resolved announces that an item's model is decoded and ready to display.
// RequestID names the catalog request that asked for it; it is empty when the
// acquisition was triggered outside a catalog request, e.g. by a layout load.
type Resolved struct {
	RequestID string
	ItemName  string
	Asset     *model3d.Asset
}

// Handler receives events. Handlers run on the publisher's goroutine.
type Handler func(Resolved)

// Bus broadcasts Resolved events to every subscriber in subscription order
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn Handler
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev synchronously to a snapshot of the current subscribers
func (b *Bus) Publish(ev Resolved) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
