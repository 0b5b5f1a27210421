package audit

import (
	"context"
	"sync"
)

// Sink receives audit events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a sink that can also be queried. The in-memory store and the
// Postgres store satisfy it; the Kafka sink is append-only.
type Store interface {
	Sink
	ListByRecipient(ctx context.Context, recipient string) ([]Event, error)
	ListByAction(ctx context.Context, action string) ([]Event, error)
}

// MemoryStore keeps events in insertion order. Suitable for tests and
// single-process deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListByRecipient(ctx context.Context, recipient string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Recipient == recipient {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByAction(ctx context.Context, action string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns a copy of every recorded event in order.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
