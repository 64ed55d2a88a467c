package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		// Extract common fields from payload if available
		var sessionID, state, status string
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if id, ok := payload["session_id"].(string); ok {
				sessionID = id
			}
			if st, ok := payload["state"].(string); ok {
				state = st
			}
			if s, ok := payload["status"].(string); ok {
				status = s
			}
		}

		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if sessionID != "" {
			logEvent = logEvent.Str("session_id", sessionID)
		}
		if state != "" {
			logEvent = logEvent.Str("state", state)
		}
		if status != "" {
			logEvent = logEvent.Str("status", status)
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventLoginStarted,
		interfaces.EventFlowStateChanged,
		interfaces.EventLoginFinished,
		interfaces.EventCookiesUpdated,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return err
		}
	}

	return nil
}
