package notify

// Alert carries a single operator notification
type Alert struct {
	Subject string            // Short summary line
	Body    string            // The content or message to send
	Data    map[string]string // Additional metadata (e.g., device id, event kind)
}

// Notifier delivers operator alerts. Implementations must not block the
// calling request path for long; callers fire alerts from goroutines.
type Notifier interface {
	Send(alert Alert) error
}
