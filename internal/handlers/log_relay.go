package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/nuntio/internal/common"
)

// Buffer for log batches between arbor and the relay goroutine.
const logRelayBufferSize = 10

// defaultExcludePatterns drops chatty handler logs that would feed back
// into the socket they describe.
var defaultExcludePatterns = []string{
	"WebSocket client connected",
	"WebSocket client disconnected",
	"HTTP request",
	"HTTP response",
	"Subscriber buffer full",
}

// LogRelay consumes log batches from arbor's channel and broadcasts them
// to WebSocket clients after level and pattern filtering.
type LogRelay struct {
	handler         *WebSocketHandler
	channel         chan []arbormodels.LogEvent
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	minLevel        levels.LogLevel
	excludePatterns []string
}

// NewLogRelay creates a relay for the given WebSocket handler. Register its
// Channel with the arbor logger via SetChannel to start receiving batches.
func NewLogRelay(handler *WebSocketHandler, wsConfig *common.WebSocketConfig) *LogRelay {
	minLevel := levels.InfoLevel
	excludePatterns := defaultExcludePatterns

	if wsConfig != nil {
		minLevel = parseLogLevel(wsConfig.MinLevel)
		if len(wsConfig.ExcludePatterns) > 0 {
			excludePatterns = wsConfig.ExcludePatterns
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LogRelay{
		handler:         handler,
		channel:         make(chan []arbormodels.LogEvent, logRelayBufferSize),
		ctx:             ctx,
		cancel:          cancel,
		minLevel:        minLevel,
		excludePatterns: excludePatterns,
	}
}

// Channel returns the channel for arbor to send log batches to.
func (r *LogRelay) Channel() chan []arbormodels.LogEvent {
	return r.channel
}

// Start launches the relay goroutine.
func (r *LogRelay) Start() {
	r.wg.Add(1)
	go r.consume()
}

// Close stops the relay and waits for the goroutine to drain.
func (r *LogRelay) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *LogRelay) consume() {
	defer r.wg.Done()

	defer func() {
		if rec := recover(); rec != nil {
			// Cannot log through arbor here without re-entering the channel.
			fmt.Printf("LogRelay panic recovered: %v\n", rec)
		}
	}()

	for {
		select {
		case batch, ok := <-r.channel:
			if !ok {
				return
			}
			for _, event := range batch {
				if r.shouldBroadcast(event) {
					r.handler.BroadcastLog(LogEntry{
						Timestamp: event.Timestamp.Format("15:04:05"),
						Level:     mapLevel(plogToArborLevel(event.Level)),
						Message:   event.Message,
					})
				}
			}
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *LogRelay) shouldBroadcast(event arbormodels.LogEvent) bool {
	if plogToArborLevel(event.Level) < r.minLevel {
		return false
	}
	for _, pattern := range r.excludePatterns {
		if strings.Contains(event.Message, pattern) {
			return false
		}
	}
	return true
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
