// Package eventbus implements core.IEventBus: synchronous dispatch of
// domain events to strategy subscribers from the connector's single event
// loop goroutine (spec.md §5).
package eventbus

import (
	"sync"

	"exchangeconnector/internal/core"
)

type subscription struct {
	id      uint64
	kind    core.EventKind
	handler func(core.Event)
}

// Bus is a minimal pub/sub keyed by EventKind. Publish is synchronous:
// handlers run inline on the publishing goroutine and must not block.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[core.EventKind][]subscription
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[core.EventKind][]subscription)}
}

// Subscribe registers handler for kind, returning a func that removes it.
func (b *Bus) Subscribe(kind core.EventKind, handler func(core.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, kind: kind, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[kind]
		for i, s := range subs {
			if s.id == id {
				b.subs[kind] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish dispatches evt to every subscriber of evt.Kind, in registration
// order. A panic in one handler does not prevent the rest from running.
func (b *Bus) Publish(evt core.Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[evt.Kind]))
	copy(subs, b.subs[evt.Kind])
	b.mu.Unlock()

	for _, s := range subs {
		b.dispatch(s, evt)
	}
}

func (b *Bus) dispatch(s subscription, evt core.Event) {
	defer func() {
		_ = recover()
	}()
	s.handler(evt)
}
