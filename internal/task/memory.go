package task

import (
	"context"
	"sort"
	"sync"
)

// MemorySink keeps every event in memory, grouped by task id.
type MemorySink struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{events: make(map[string][]Event)}
}

// Publish implements Sink.
func (m *MemorySink) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.TaskID] = append(m.events[event.TaskID], event)
	return nil
}

// Events returns the events of one task in publish order.
func (m *MemorySink) Events(taskID string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events[taskID]...)
}

// TaskIDs lists every task that published an event.
func (m *MemorySink) TaskIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.events))
	for id := range m.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
