package kafka

import (
	"context"
	"sync"
)

// MockUsageProducer records produced usage events for tests.
type MockUsageProducer struct {
	mu     sync.Mutex
	Events []UsageEvent
	Err    error
}

func (m *MockUsageProducer) ProduceUsage(ctx context.Context, event *UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, *event)
	return nil
}

func (m *MockUsageProducer) Close() error {
	return nil
}

// Produced returns a copy of the recorded events.
func (m *MockUsageProducer) Produced() []UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UsageEvent(nil), m.Events...)
}
