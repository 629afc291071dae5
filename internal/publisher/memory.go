package publisher

import (
	"context"
	"sync"

	"github.com/tropicallease/adcontext/internal/ads"
)

// Memory records published events for inspection in tests.
type Memory struct {
	mu     sync.RWMutex
	events []ads.ContextReadyEvent
}

// NewMemory returns a Memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// PublishContextReady records the event.
func (m *Memory) PublishContextReady(_ context.Context, event ads.ContextReadyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []ads.ContextReadyEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ads.ContextReadyEvent, len(m.events))
	copy(out, m.events)
	return out
}
