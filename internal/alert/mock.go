package alert

import (
	"context"
	"sync"
)

// MockSink records every emitted alert in order, for assertions in
// orchestrator and monitor tests.
type MockSink struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

// NewMockSink returns an empty recorder.
func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) Emit(ctx context.Context, a Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.alerts = append(m.alerts, a)
	return nil
}

// SetErr makes every subsequent Emit call fail with err.
func (m *MockSink) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Alerts returns a copy of every alert recorded so far.
func (m *MockSink) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// CountKind reports how many alerts of kind have been recorded.
func (m *MockSink) CountKind(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

var _ Sink = (*MockSink)(nil)
