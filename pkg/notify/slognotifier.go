package notify

import "log/slog"

// SlogNotifier writes alerts to the process log. It is the default when no
// SMTP configuration is present, so an alert is never silently dropped.
type SlogNotifier struct{}

func NewSlogNotifier() *SlogNotifier {
	return &SlogNotifier{}
}

func (n *SlogNotifier) Send(alert Alert) error {
	args := []any{"subject", alert.Subject, "body", alert.Body}
	for k, v := range alert.Data {
		args = append(args, k, v)
	}
	slog.Warn("operator alert", args...)
	return nil
}
