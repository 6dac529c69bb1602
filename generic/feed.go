/*
feed.go - Change notifications for derived views

PURPOSE:
  The persistence collaborator exposes a subscribe-to-collection primitive.
  Stores publish one Change per committed document write; derived views
  (inventory levels, websocket clients) register interest in a collection
  and recompute on each notification.

DELIVERY:
  Bus delivers synchronously, in publish order, on the publisher's goroutine.
  Subscribers must not block and must not write back to the store from
  inside the callback. A view that needs fresh data re-reads the store.

  Stores publish only after a write is durable: a rolled-back transaction
  publishes nothing.

SEE ALSO:
  - stock/view.go: InventoryView recomputes on stockMovements/articles changes
  - api/hub.go: forwards every change to websocket clients
*/
package generic

import (
	"sync"
	"time"
)

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change describes one committed write to one document.
type Change struct {
	Collection Collection `json:"collection"`
	Kind       ChangeKind `json:"kind"`
	ID         string     `json:"id"`
	At         time.Time  `json:"at"`
}

// Feed is the subscription side of the store.
type Feed interface {
	// Subscribe registers fn for changes on c. The returned func unsubscribes.
	Subscribe(c Collection, fn func(Change)) (unsubscribe func())
}

// Publisher is the write side used by stores.
type Publisher interface {
	Publish(changes ...Change)
}

// =============================================================================
// BUS - In-process Feed + Publisher
// =============================================================================

type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[Collection]map[int]func(Change)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Collection]map[int]func(Change))}
}

func (b *Bus) Subscribe(c Collection, fn func(Change)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	if b.subs[c] == nil {
		b.subs[c] = make(map[int]func(Change))
	}
	b.subs[c][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[c], id)
			b.mu.Unlock()
		})
	}
}

// SubscribeAll registers fn on every collection.
func (b *Bus) SubscribeAll(fn func(Change)) func() {
	unsubs := make([]func(), 0, len(Collections))
	for _, c := range Collections {
		unsubs = append(unsubs, b.Subscribe(c, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (b *Bus) Publish(changes ...Change) {
	for _, ch := range changes {
		b.mu.RLock()
		fns := make([]func(Change), 0, len(b.subs[ch.Collection]))
		for _, fn := range b.subs[ch.Collection] {
			fns = append(fns, fn)
		}
		b.mu.RUnlock()

		for _, fn := range fns {
			fn(ch)
		}
	}
}

// NopPublisher drops every change. Used when a store runs without a feed.
type NopPublisher struct{}

func (NopPublisher) Publish(...Change) {}
