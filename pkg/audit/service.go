package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hushapp/anonid/pkg/notify"
)

// Service records and summarizes security events
type Service struct {
	eventRepository EventRepository
	notifier        notify.Notifier
}

// NewService creates a new audit service with the given repository.
// When notifier is nil, append failures are alarmed through the process log.
func NewService(eventRepository EventRepository, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.NewSlogNotifier()
	}
	return &Service{
		eventRepository: eventRepository,
		notifier:        notifier,
	}
}

// Append records a security event. It never returns an error and never
// blocks the triggering operation on delivery: persistence failures are
// logged and alarmed, not propagated.
func (s *Service) Append(ctx context.Context, event SecurityEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	err := s.eventRepository.AppendEvent(ctx, event)
	if err == nil {
		return
	}

	slog.Error("Failed to append security event", "kind", event.Kind, "deviceID", event.DeviceID, "err", err)

	// Alarm out-of-band so a broken audit store is noticed without failing
	// the request that tried to log.
	go func() {
		alertErr := s.notifier.Send(notify.Alert{
			Subject: "audit log append failed",
			Body:    fmt.Sprintf("failed to persist %s event: %v", event.Kind, err),
			Data: map[string]string{
				"kind":      string(event.Kind),
				"severity":  string(event.Severity),
				"device_id": event.DeviceID,
			},
		})
		if alertErr != nil {
			slog.Error("Failed to send audit failure alert", "err", alertErr)
		}
	}()
}

// Summarize aggregates event counts by severity and kind over the trailing
// window ending now. The dashboard polls this.
func (s *Service) Summarize(ctx context.Context, window time.Duration) (Summary, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	events, err := s.eventRepository.FindEventsSince(ctx, start)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize security events: %w", err)
	}

	summary := Summary{
		WindowStart: start,
		WindowEnd:   end,
		BySeverity:  make(map[Severity]int),
		ByKind:      make(map[Kind]int),
	}
	for _, e := range events {
		summary.Total++
		summary.BySeverity[e.Severity]++
		summary.ByKind[e.Kind]++
	}
	return summary, nil
}

// Recent returns up to limit raw events, newest first, for the dashboard feed
func (s *Service) Recent(ctx context.Context, limit int) ([]SecurityEvent, error) {
	events, err := s.eventRepository.FindRecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent security events: %w", err)
	}
	return events, nil
}

// ForDevice returns up to limit events attributed to one device, newest first
func (s *Service) ForDevice(ctx context.Context, deviceID string, limit int) ([]SecurityEvent, error) {
	events, err := s.eventRepository.FindEventsByDevice(ctx, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find security events for device: %w", err)
	}
	return events, nil
}
