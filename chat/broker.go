package chat

import (
	"slices"
	"sync"
)

// Broker fans events out to any number of subscribers. Publish never blocks;
// a subscriber that falls behind its channel buffer loses events rather than
// stalling the read loop.
type Broker[T any] struct {
	mu   sync.Mutex
	subs []chan T
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{}
}

func (b *Broker[T]) Publish(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
		}
	}
}

// Subscribe returns a receive channel and an unsubscribe func. Unsubscribing
// closes the channel; doing so twice is a no-op.
func (b *Broker[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = slices.Delete(b.subs, i, i+1)
				close(ch)
				return
			}
		}
	}
}
