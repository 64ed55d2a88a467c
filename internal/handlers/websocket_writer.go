package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/clavis/internal/common"
)

const (
	// Buffer size for the log batch channel arbor writes into
	defaultWebSocketLogBuffer = 10
)

// WebSocketWriter consumes log batches from arbor's context channel and
// broadcasts them to WebSocket clients. Attach its channel to the root
// logger with SetChannel, then call Start.
type WebSocketWriter struct {
	handler         *WebSocketHandler
	logger          arbor.ILogger
	channel         chan []arbormodels.LogEvent
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	minLevel        levels.LogLevel
	excludePatterns []string
}

// NewWebSocketWriter creates a new WebSocket log writer
func NewWebSocketWriter(handler *WebSocketHandler, wsConfig *common.WebSocketConfig, logger arbor.ILogger) *WebSocketWriter {
	// Nil-safety check: use safe defaults if wsConfig is nil
	var minLevel levels.LogLevel
	var excludePatterns []string

	if wsConfig == nil {
		minLevel = levels.InfoLevel
		excludePatterns = defaultExcludePatterns()
	} else {
		minLevel = parseLogLevel(wsConfig.MinLevel)

		excludePatterns = wsConfig.ExcludePatterns
		if len(excludePatterns) == 0 {
			excludePatterns = defaultExcludePatterns()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketWriter{
		handler:         handler,
		logger:          logger,
		channel:         make(chan []arbormodels.LogEvent, defaultWebSocketLogBuffer),
		ctx:             ctx,
		cancel:          cancel,
		minLevel:        minLevel,
		excludePatterns: excludePatterns,
	}
}

// defaultExcludePatterns lists log messages that must never reach the
// stream: connection lifecycle and event plumbing lines would feed back
// into the stream they describe.
func defaultExcludePatterns() []string {
	return []string{
		"WebSocket client connected",
		"WebSocket client disconnected",
		"HTTP request",
		"HTTP response",
		"Publishing event",
	}
}

// Channel returns the channel for arbor to send log batches to
func (w *WebSocketWriter) Channel() chan []arbormodels.LogEvent {
	return w.channel
}

// Start launches the consumer goroutine
func (w *WebSocketWriter) Start() {
	w.wg.Add(1)
	go w.consume()
}

// Close shuts down the consumer and waits for it to drain
func (w *WebSocketWriter) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

// consume processes log batches from arbor and broadcasts matching entries
func (w *WebSocketWriter) consume() {
	defer w.wg.Done()

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("WebSocket log writer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-w.channel:
			if !ok {
				// Channel closed, exit gracefully
				return
			}

			for _, event := range batch {
				if entry, ok := w.transform(event); ok {
					w.handler.BroadcastLog(entry)
				}
			}

		case <-w.ctx.Done():
			// Context cancelled, exit gracefully
			return
		}
	}
}

// transform filters an arbor log event and converts it to the LogEntry
// format clients render. The second return is false when the event is
// below the minimum level or matches an exclude pattern.
func (w *WebSocketWriter) transform(event arbormodels.LogEvent) (LogEntry, bool) {
	if event.Message == "" {
		return LogEntry{}, false
	}

	arborLevel := plogToArborLevel(event.Level)
	if arborLevel < w.minLevel {
		return LogEntry{}, false
	}

	for _, pattern := range w.excludePatterns {
		if strings.Contains(event.Message, pattern) {
			return LogEntry{}, false
		}
	}

	// Append structured fields to the message for display
	message := event.Message
	for key, value := range event.Fields {
		message += fmt.Sprintf(" %s=%v", key, value)
	}

	return LogEntry{
		Timestamp: event.Timestamp.Format("15:04:05"),
		Level:     mapLevel(arborLevel),
		Message:   message,
		SessionID: event.CorrelationID,
	}, true
}

// plogToArborLevel converts phuslu/log.Level to arbor levels.LogLevel
func plogToArborLevel(level plog.Level) levels.LogLevel {
	switch level {
	case plog.ErrorLevel:
		return levels.ErrorLevel
	case plog.WarnLevel:
		return levels.WarnLevel
	case plog.InfoLevel:
		return levels.InfoLevel
	case plog.DebugLevel:
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// parseLogLevel converts string log level to arbor levels.LogLevel
func parseLogLevel(level string) levels.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return levels.ErrorLevel
	case "warn", "warning":
		return levels.WarnLevel
	case "info":
		return levels.InfoLevel
	case "debug":
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// mapLevel maps arbor log levels to UI strings
func mapLevel(level levels.LogLevel) string {
	switch level {
	case levels.ErrorLevel:
		return "error"
	case levels.WarnLevel:
		return "warn"
	case levels.InfoLevel:
		return "info"
	case levels.DebugLevel:
		return "debug"
	default:
		return "info"
	}
}
