package broadcast

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

// Memory is a channel-backed broadcaster for dev and testing. Events are
// dropped for subscribers whose buffer is full rather than blocking the
// publisher.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

type memorySub struct {
	ch   chan Event
	once sync.Once
}

// NewMemory creates an in-process broadcaster.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*memorySub]struct{})}
}

// Publish delivers ev to every current subscriber of the class channel.
func (m *Memory) Publish(_ context.Context, classID string, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs[classID] {
		select {
		case sub.ch <- ev:
		default: // slow observer, drop
		}
	}
	return nil
}

// Subscribe joins the class channel.
func (m *Memory) Subscribe(_ context.Context, classID string) (*Subscription, error) {
	sub := &memorySub{ch: make(chan Event, subscriberBuffer)}

	m.mu.Lock()
	set, ok := m.subs[classID]
	if !ok {
		set = make(map[*memorySub]struct{})
		m.subs[classID] = set
	}
	set[sub] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if set, ok := m.subs[classID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(m.subs, classID)
			}
		}
		m.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
	return &Subscription{C: sub.ch, cancel: cancel}, nil
}
