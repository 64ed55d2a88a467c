package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/interfaces"
)

// TestSubscribeRejectsNilHandler verifies nil handlers are refused up front
func TestSubscribeRejectsNilHandler(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()

	if err := eventService.Subscribe(interfaces.EventLoginStarted, nil); err == nil {
		t.Error("Expected error subscribing a nil handler")
	}
}

// TestPublishWithoutSubscribers verifies publishing into the void is a no-op
func TestPublishWithoutSubscribers(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()

	err := eventService.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventCookiesUpdated,
		Payload: map[string]interface{}{"source": "manual"},
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// TestPublishDeliversAsynchronously verifies handlers receive events published
// without waiting
func TestPublishDeliversAsynchronously(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()

	received := make(chan interfaces.Event, 1)
	handler := func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}

	if err := eventService.Subscribe(interfaces.EventLoginFinished, handler); err != nil {
		t.Fatalf("Failed to subscribe handler: %v", err)
	}

	event := interfaces.Event{
		Type: interfaces.EventLoginFinished,
		Payload: map[string]interface{}{
			"session_id": "session-123",
			"status":     "success",
		},
	}
	if err := eventService.Publish(context.Background(), event); err != nil {
		t.Fatalf("Expected no error publishing, got: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != interfaces.EventLoginFinished {
			t.Errorf("Expected event type %s, got %s", interfaces.EventLoginFinished, got.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handler never received the published event")
	}
}

// TestPublishSyncWaitsForHandlers verifies synchronous publishing completes
// every handler before returning
func TestPublishSyncWaitsForHandlers(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()

	callCount := 0
	handler := func(ctx context.Context, event interfaces.Event) error {
		callCount++
		return nil
	}

	if err := eventService.Subscribe(interfaces.EventLoginStarted, handler); err != nil {
		t.Fatalf("Failed to subscribe handler: %v", err)
	}

	event := interfaces.Event{
		Type:    interfaces.EventLoginStarted,
		Payload: map[string]interface{}{"session_id": "session-123"},
	}
	if err := eventService.PublishSync(context.Background(), event); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if callCount != 1 {
		t.Errorf("Expected handler to be called once, got: %d", callCount)
	}
}

// TestPublishSyncCollectsHandlerErrors verifies a failing handler surfaces
// in the synchronous publish result
func TestPublishSyncCollectsHandlerErrors(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()

	failing := func(ctx context.Context, event interfaces.Event) error {
		return errors.New("handler broke")
	}
	succeeding := func(ctx context.Context, event interfaces.Event) error {
		return nil
	}

	if err := eventService.Subscribe(interfaces.EventFlowStateChanged, failing); err != nil {
		t.Fatalf("Failed to subscribe handler: %v", err)
	}
	if err := eventService.Subscribe(interfaces.EventFlowStateChanged, succeeding); err != nil {
		t.Fatalf("Failed to subscribe handler: %v", err)
	}

	err := eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventFlowStateChanged,
		Payload: map[string]interface{}{"state": "navigating_to_login"},
	})
	if err == nil {
		t.Error("Expected handler failure to surface from PublishSync")
	}
}

// TestNewLoggerSubscriber verifies the logger subscriber handles events with
// and without payloads
func TestNewLoggerSubscriber(t *testing.T) {
	subscriber := NewLoggerSubscriber(arbor.NewLogger())

	ctx := context.Background()
	event := interfaces.Event{
		Type: interfaces.EventFlowStateChanged,
		Payload: map[string]interface{}{
			"session_id": "session-123",
			"state":      "awaiting_outcome",
			"status":     "success",
		},
	}
	if err := subscriber(ctx, event); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	bare := interfaces.Event{
		Type:    interfaces.EventLoginStarted,
		Payload: nil,
	}
	if err := subscriber(ctx, bare); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// TestSubscribeLoggerToAllEvents verifies every known event type accepts the
// logging subscriber
func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := NewService(logger)
	defer eventService.Close()

	if err := SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		t.Fatalf("Failed to subscribe logger: %v", err)
	}

	ctx := context.Background()
	eventTypes := []interfaces.EventType{
		interfaces.EventLoginStarted,
		interfaces.EventFlowStateChanged,
		interfaces.EventLoginFinished,
		interfaces.EventCookiesUpdated,
	}

	for _, eventType := range eventTypes {
		event := interfaces.Event{
			Type:    eventType,
			Payload: map[string]interface{}{"session_id": "session-123"},
		}
		if err := eventService.Publish(ctx, event); err != nil {
			t.Errorf("Expected no error publishing %s event, got: %v", eventType, err)
		}
	}
}
