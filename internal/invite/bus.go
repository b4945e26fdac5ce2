package invite

import (
	"sync"

	"github.com/medibridge/telecall/internal/signaling"
)

// Bus is an in-process broadcast channel: every subscriber receives every
// published message, the publisher included. It stands in for the signaling
// broker when both endpoints run in one process (demos, tests); production
// invitations travel over signaling.Channel instead.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan signaling.Message
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan signaling.Message)}
}

// Subscribe returns a stream of all bus traffic and a cancel func.
func (b *Bus) Subscribe() (<-chan signaling.Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan signaling.Message, 32)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish fans msg out to all subscribers without blocking; slow subscribers
// lose messages, matching the at-least-effort semantics of a browser
// broadcast channel.
func (b *Bus) Publish(msg signaling.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub <- msg:
		default:
		}
	}
}

// Close drops all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
