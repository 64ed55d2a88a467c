package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/services/events"
)

func countGoroutines() int {
	return runtime.NumGoroutine()
}

// dialTestClient connects a WebSocket client to the handler under test
func dialTestClient(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket client: %v", err)
	}
	return conn
}

// readTypedMessages reads until count messages of the given type arrive,
// skipping the status frames the handler interleaves.
func readTypedMessages(t *testing.T, conn *websocket.Conn, msgType string, count int) []WSMessage {
	t.Helper()
	var collected []WSMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for len(collected) < count {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Read failed after %d/%d %s messages: %v", len(collected), count, msgType, err)
		}
		if msg.Type == msgType {
			collected = append(collected, msg)
		}
	}
	return collected
}

// TestLogBroadcastFanOut verifies log broadcasts reach every connected
// client without blocking or leaking goroutines
func TestLogBroadcastFanOut(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{})
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	initialGoroutines := countGoroutines()

	numSubscribers := 3
	subscribers := make([]*websocket.Conn, numSubscribers)
	for i := 0; i < numSubscribers; i++ {
		subscribers[i] = dialTestClient(t, server)
	}

	// Wait until the handler has registered every connection
	deadline := time.Now().Add(2 * time.Second)
	for {
		handler.mu.RLock()
		connected := len(handler.clients)
		handler.mu.RUnlock()
		if connected == numSubscribers || time.Now().After(deadline) {
			if connected != numSubscribers {
				t.Fatalf("Expected %d connected clients, got %d", numSubscribers, connected)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	testLogs := []LogEntry{
		{Timestamp: "10:00:01", Level: "info", Message: "Starting login flow"},
		{Timestamp: "10:00:02", Level: "info", Message: "Flow variant detected"},
		{Timestamp: "10:00:03", Level: "warn", Message: "Handoff navigation failed"},
		{Timestamp: "10:00:04", Level: "info", Message: "Login flow finished"},
	}

	// Broadcast concurrently to exercise the per-client write mutexes
	var sendWg sync.WaitGroup
	for _, entry := range testLogs {
		entry := entry
		sendWg.Add(1)
		go func() {
			defer sendWg.Done()
			handler.BroadcastLog(entry)
		}()
	}
	sendWg.Wait()

	for i, conn := range subscribers {
		received := readTypedMessages(t, conn, "log", len(testLogs))

		seen := make(map[string]bool)
		for _, msg := range received {
			data, _ := json.Marshal(msg.Payload)
			var entry LogEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				t.Fatalf("Subscriber %d received malformed log payload: %v", i, err)
			}
			seen[entry.Message] = true
		}
		for _, want := range testLogs {
			if !seen[want.Message] {
				t.Errorf("Subscriber %d missing log %q", i, want.Message)
			}
		}
	}

	for _, conn := range subscribers {
		conn.Close()
	}

	// Handler should drop every client once its read loop errors out
	deadline = time.Now().Add(2 * time.Second)
	for {
		handler.mu.RLock()
		remaining := len(handler.clients)
		mutexes := len(handler.clientMutex)
		handler.mu.RUnlock()
		if (remaining == 0 && mutexes == 0) || time.Now().After(deadline) {
			if remaining != 0 || mutexes != 0 {
				t.Errorf("Expected all clients cleaned up, got %d clients and %d mutexes", remaining, mutexes)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if diff := countGoroutines() - initialGoroutines; diff > 2 {
		t.Errorf("Potential goroutine leak: %d goroutines remain", diff)
	}
}

// TestFlowEventsReachClients verifies the event subscriptions forward flow
// lifecycle events onto the stream, throttling intermediate transitions but
// never terminal ones.
func TestFlowEventsReachClients(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	defer eventService.Close()

	handler := NewWebSocketHandler(eventService, logger, &common.WebSocketConfig{
		ThrottleIntervals: map[string]string{"flow_state_changed": "1h"},
	})
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dialTestClient(t, server)
	defer conn.Close()

	// The first frame is the initial status snapshot
	var initial WSMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("Failed to read initial status: %v", err)
	}
	if initial.Type != "status" {
		t.Fatalf("Expected initial status message, got %q", initial.Type)
	}

	ctx := context.Background()
	publish := func(state string) {
		if err := eventService.PublishSync(ctx, interfaces.Event{
			Type: interfaces.EventFlowStateChanged,
			Payload: map[string]interface{}{
				"session_id": "session-123",
				"state":      state,
			},
		}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	// First transition consumes the throttle token, the second is dropped,
	// the terminal state bypasses the throttle entirely.
	publish("navigating_to_login")
	publish("variant_detected")
	publish("success")

	updates := readTypedMessages(t, conn, "flow_state_changed", 2)

	first, _ := updates[0].Payload.(map[string]interface{})
	if first["state"] != "navigating_to_login" {
		t.Errorf("Expected first update 'navigating_to_login', got %v", first["state"])
	}
	second, _ := updates[1].Payload.(map[string]interface{})
	if second["state"] != "success" {
		t.Errorf("Expected terminal update 'success' despite throttling, got %v", second["state"])
	}
}

// TestLoginFinishedRefreshesStatus verifies a finished flow pushes both the
// result and a fresh status frame.
func TestLoginFinishedRefreshesStatus(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	defer eventService.Close()

	handler := NewWebSocketHandler(eventService, logger, &common.WebSocketConfig{})
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dialTestClient(t, server)
	defer conn.Close()

	if err := eventService.PublishSync(context.Background(), interfaces.Event{
		Type: interfaces.EventLoginFinished,
		Payload: map[string]interface{}{
			"session_id": "session-123",
			"status":     "success",
			"error_kind": "",
			"duration":   "14.2s",
		},
	}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	finished := readTypedMessages(t, conn, "login_finished", 1)
	payload, _ := finished[0].Payload.(map[string]interface{})
	if payload["status"] != "success" {
		t.Errorf("Expected status 'success', got %v", payload["status"])
	}
	if payload["duration"] != "14.2s" {
		t.Errorf("Expected duration '14.2s', got %v", payload["duration"])
	}

	// A status refresh follows the result frame
	var next WSMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("Failed to read trailing status: %v", err)
	}
	if next.Type != "status" {
		t.Errorf("Expected status refresh after login_finished, got %q", next.Type)
	}
}
