package service

import (
	"context"
	"fmt"
	"time"

	"product-rec-agent/internal/pkg/logger"
	"product-rec-agent/pkg/agent"
	"product-rec-agent/pkg/events"
)

// EventPublisher is satisfied by pkg/nats.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// DiagnosticsService forwards transport notifications to the event bus. Publishing runs in the
// background and its failures are only logged.
type DiagnosticsService struct {
	publisher EventPublisher
	logger    logger.ILogger
	timeout   time.Duration
}

var _ agent.Notifier = (*DiagnosticsService)(nil)

func NewDiagnosticsService(publisher EventPublisher, log logger.ILogger) *DiagnosticsService {
	return &DiagnosticsService{
		publisher: publisher,
		logger:    log,
		timeout:   5 * time.Second,
	}
}

func (s *DiagnosticsService) Notify(ctx context.Context, n agent.Notification) {
	if s == nil || s.publisher == nil {
		return
	}

	event := ToEvent(n)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("DIAGNOSTICS", "Diagnostics publisher panicked", map[string]interface{}{
					"type":  event.Type,
					"error": fmt.Sprint(r),
				})
			}
		}()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := s.publisher.Publish(pubCtx, event); err != nil {
			s.logger.Warn("DIAGNOSTICS", "Failed to publish diagnostics event", map[string]interface{}{
				"type":  event.Type,
				"error": err.Error(),
			})
		}
	}()
}

// ToEvent maps a transport notification onto a bus event.
func ToEvent(n agent.Notification) events.BaseEvent {
	data := map[string]interface{}{
		"type":     string(n.Type),
		"message":  n.Message,
		"status":   n.Status,
		"endpoint": n.Endpoint,
	}

	eventType := events.TypeChildAppError
	if n.Type == agent.NotificationToolAuthRequired {
		eventType = events.TypeToolAuthRequired
		if n.ToolAuth != nil {
			data["tool_name"] = n.ToolAuth.ToolName
			data["tool_source"] = n.ToolAuth.ToolSource
			data["action_names"] = n.ToolAuth.ActionNames
			data["reason"] = n.ToolAuth.Reason
		}
	}

	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	data["timestamp"] = ts.Format(time.RFC3339)

	return events.BaseEvent{Type: eventType, Data: data, OccurredAt: ts}
}
