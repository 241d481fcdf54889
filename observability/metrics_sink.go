package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"supportdesk/domain/event"
)

// MetricsSink counts broadcast events by kind. It attaches to the bus
// telemetry feed as a permanent sink.
type MetricsSink struct {
	events metric.Int64Counter
}

func NewMetricsSink(meter metric.Meter) (*MetricsSink, error) {
	events, err := meter.Int64Counter("chat.events",
		metric.WithDescription("Domain events broadcast by the bus"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricsSink{events: events}, nil
}

func (s *MetricsSink) Consume(ctx context.Context, e event.DomainEvent) error {
	s.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kindOf(e))))
	return nil
}

func kindOf(e event.DomainEvent) string {
	switch e.(type) {
	case event.NewMessage:
		return "new_message"
	case event.Typing:
		return "typing"
	case event.PresenceChange:
		return "presence_change"
	case event.SessionStatusChanged:
		return "session_status_changed"
	case event.AdminNotification:
		return "admin_notification"
	}
	return "unknown"
}
