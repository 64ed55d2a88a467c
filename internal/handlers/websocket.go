// -----------------------------------------------------------------------
// WebSocket Flow Event Stream
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// FlowStatusProvider supplies the current flow status for newly connected
// clients and the periodic status broadcast.
type FlowStatusProvider interface {
	Status() interfaces.FlowStatus
}

type WebSocketHandler struct {
	logger             arbor.ILogger
	clients            map[*websocket.Conn]bool
	clientMutex        map[*websocket.Conn]*sync.Mutex
	mu                 sync.RWMutex
	eventService       interfaces.EventService
	statusProvider     FlowStatusProvider
	flowStateThrottler *rate.Limiter // Rate limiter for flow_state_changed events
	serverInstanceID   string        // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	// Initialize throttlers from config (only if explicitly configured)
	// Nil throttler = no throttling (disabled)
	if config != nil && len(config.ThrottleIntervals) > 0 {
		if intervalStr, ok := config.ThrottleIntervals["flow_state_changed"]; ok {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				h.flowStateThrottler = rate.NewLimiter(rate.Every(duration), 1)
				logger.Debug().
					Str("event_type", "flow_state_changed").
					Str("interval", intervalStr).
					Msg("Throttler initialized for flow_state_changed events")
			} else {
				logger.Warn().
					Err(err).
					Str("interval", intervalStr).
					Msg("Failed to parse flow_state_changed throttle interval - throttler disabled")
			}
		}
	}

	// Subscribe to flow events if eventService is provided
	if eventService != nil {
		h.SubscribeToFlowEvents()
	}

	return h
}

// SetStatusProvider sets the provider queried for flow status updates
func (h *WebSocketHandler) SetStatusProvider(provider FlowStatusProvider) {
	h.statusProvider = provider
}

// Message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	Service          string `json:"service"`
	Status           string `json:"status"` // "idle" or "running"
	SessionID        string `json:"session_id,omitempty"`
	State            string `json:"state,omitempty"`
	LastRunAt        string `json:"last_run_at,omitempty"`
	ServerInstanceID string `json:"serverInstanceId"` // Unique ID per server startup - clients clear state on change
}

type FlowStateUpdate struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Variant   string    `json:"variant,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type LoginFinishedUpdate struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CookiesUpdate struct {
	Source    string    `json:"source"`
	Names     []string  `json:"names"`
	SavedAt   string    `json:"saved_at"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry is a display-ready log line streamed to clients.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", len(h.clients))

	// Send initial status
	h.sendStatus(conn)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// statusUpdate builds the current status payload from the flow status provider.
func (h *WebSocketHandler) statusUpdate() StatusUpdate {
	status := StatusUpdate{
		Service:          "ONLINE",
		Status:           "idle",
		ServerInstanceID: h.serverInstanceID,
	}

	if h.statusProvider != nil {
		flowStatus := h.statusProvider.Status()
		if flowStatus.Active {
			status.Status = "running"
		}
		if flowStatus.Session != nil {
			status.SessionID = flowStatus.Session.ID
			status.State = string(flowStatus.Session.State)
		}
		status.LastRunAt = flowStatus.LastRunAt
	}

	return status
}

// sendStatus sends current status to a specific client
func (h *WebSocketHandler) sendStatus(conn *websocket.Conn) {
	msg := WSMessage{
		Type:    "status",
		Payload: h.statusUpdate(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal initial status")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send initial status")
		}
	}
}

// broadcast marshals a message and fans it out to every connected client.
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msgf("Failed to marshal %s message", msg.Type)
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msgf("Failed to send %s to client", msg.Type)
		}
	}
}

// BroadcastStatus sends status updates to all connected clients
func (h *WebSocketHandler) BroadcastStatus(status StatusUpdate) {
	h.broadcast(WSMessage{Type: "status", Payload: status})
}

// BroadcastFlowState sends a flow state transition to all connected clients
func (h *WebSocketHandler) BroadcastFlowState(update FlowStateUpdate) {
	h.broadcast(WSMessage{Type: "flow_state_changed", Payload: update})
}

// BroadcastLog sends a log entry to all connected clients
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	msg := WSMessage{
		Type:    "log",
		Payload: entry,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()
	}

	// NOTE: Don't log here - a log line about a failed log broadcast would
	// flow back through the log stream and create an infinite loop
}

// StartStatusBroadcaster starts periodic status updates
func (h *WebSocketHandler) StartStatusBroadcaster() {
	ticker := time.NewTicker(5 * time.Second)

	go func() {
		for range ticker.C {
			h.mu.RLock()
			clientCount := len(h.clients)
			h.mu.RUnlock()

			if clientCount > 0 {
				h.BroadcastStatus(h.statusUpdate())
			}
		}
	}()
}

// SubscribeToFlowEvents wires flow lifecycle events to the WebSocket stream
func (h *WebSocketHandler) SubscribeToFlowEvents() {
	if h.eventService == nil {
		return
	}

	h.eventService.Subscribe(interfaces.EventLoginStarted, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid login started event payload type")
			return nil
		}

		h.broadcast(WSMessage{
			Type: "login_started",
			Payload: map[string]interface{}{
				"session_id": getString(payload, "session_id"),
				"timestamp":  time.Now().Format(time.RFC3339),
			},
		})
		return nil
	})

	h.eventService.Subscribe(interfaces.EventFlowStateChanged, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid flow state event payload type")
			return nil
		}

		state := getString(payload, "state")

		// Throttle intermediate transitions to prevent WebSocket flooding.
		// Terminal states always go out so clients never miss the outcome.
		if h.flowStateThrottler != nil && !models.FlowState(state).IsTerminal() && !h.flowStateThrottler.Allow() {
			return nil
		}

		update := FlowStateUpdate{
			SessionID: getString(payload, "session_id"),
			State:     state,
			Variant:   getString(payload, "variant"),
			LastError: getString(payload, "last_error"),
			Timestamp: time.Now(),
		}

		h.BroadcastFlowState(update)
		return nil
	})

	h.eventService.Subscribe(interfaces.EventLoginFinished, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid login finished event payload type")
			return nil
		}

		update := LoginFinishedUpdate{
			SessionID: getString(payload, "session_id"),
			Status:    getString(payload, "status"),
			ErrorKind: getString(payload, "error_kind"),
			Duration:  getString(payload, "duration"),
			Timestamp: time.Now(),
		}

		h.broadcast(WSMessage{Type: "login_finished", Payload: update})

		// Refresh the status panel now that the flow is idle again
		h.BroadcastStatus(h.statusUpdate())
		return nil
	})

	h.eventService.Subscribe(interfaces.EventCookiesUpdated, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid cookies updated event payload type")
			return nil
		}

		update := CookiesUpdate{
			Source:    getString(payload, "source"),
			Names:     getStringSlice(payload, "names"),
			SavedAt:   getString(payload, "saved_at"),
			Timestamp: time.Now(),
		}

		h.broadcast(WSMessage{Type: "cookies_updated", Payload: update})
		return nil
	})
}

// Helper functions for safe type conversion from map[string]interface{}
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getStringSlice(m map[string]interface{}, key string) []string {
	if val, ok := m[key]; ok {
		// Try to convert from []interface{} (JSON arrays)
		if arr, ok := val.([]interface{}); ok {
			result := make([]string, 0, len(arr))
			for _, item := range arr {
				if str, ok := item.(string); ok {
					result = append(result, str)
				}
			}
			return result
		}
		// Try direct []string type assertion
		if arr, ok := val.([]string); ok {
			return arr
		}
	}
	return []string{}
}
