package notify

import "sync"

// MockNotifier records alerts for tests
type MockNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	Err    error // Returned from Send when set
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(alert Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.alerts = append(m.alerts, alert)
	return nil
}

// Alerts returns a copy of all recorded alerts
func (m *MockNotifier) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
