package events

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

// Broker fans events out to in-process subscribers of a session. Delivery is
// best effort: a subscriber whose buffer is full misses the event and is
// expected to re-read the session status.
type Broker struct {
	mu   sync.RWMutex
	subs map[int64]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int64]map[chan Event]struct{})}
}

// Subscribe registers for events of one session. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe(sessionID int64) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[sessionID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, sessionID)
				}
			}
			close(ch)
		})
	}
}

func (b *Broker) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[e.SessionID] {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for a session.
func (b *Broker) Subscribers(sessionID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
