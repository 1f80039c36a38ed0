package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local admin clients only
	},
}

// WSMessage is the envelope for every frame pushed to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler streams job log lines and crawl events to connected
// clients. Delivery is best-effort: a client whose write fails is dropped,
// throttled frames are skipped, and the badger stores stay the source of
// truth for anything a client missed.
type WebSocketHandler struct {
	logger           arbor.ILogger
	jobs             interfaces.JobStorage
	excludePatterns  []string
	throttlers       map[string]*rate.Limiter
	serverInstanceID string

	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
}

// NewWebSocketHandler creates the live stream handler. Throttle intervals
// come from config keyed by message type; a type without an interval is
// broadcast unthrottled.
func NewWebSocketHandler(jobs interfaces.JobStorage, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		jobs:             jobs,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		throttlers:       make(map[string]*rate.Limiter),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		h.excludePatterns = config.ExcludePatterns
		for messageType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("message_type", messageType).
					Str("interval", intervalStr).
					Msg("Invalid throttle interval, leaving message type unthrottled")
				continue
			}
			h.throttlers[messageType] = rate.NewLimiter(rate.Every(duration), 1)
		}
	}

	return h
}

// HandleWebSocket upgrades the connection and holds it open until the client
// goes away
// GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", total)

	h.sendTo(conn, WSMessage{
		Type: "connected",
		Payload: map[string]interface{}{
			"server_instance_id": h.serverInstanceID,
			"version":            common.GetVersion(),
		},
	})

	defer h.dropClient(conn)

	// Hold the read side open to notice disconnects. Client frames carry
	// nothing we act on.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

// StreamLog feeds one persisted job log line to connected clients. Wired as
// the log consumer's live tap, so it must not block.
func (h *WebSocketHandler) StreamLog(jobID string, entry models.JobLogEntry) {
	for _, pattern := range h.excludePatterns {
		if strings.Contains(entry.Message, pattern) {
			return
		}
	}
	if !h.allow("log_event") {
		return
	}

	h.broadcast(WSMessage{
		Type: "log_event",
		Payload: map[string]interface{}{
			"job_id":    jobID,
			"timestamp": entry.FullTimestamp,
			"level":     entry.Level,
			"message":   entry.Message,
		},
	})
}

// StreamEvent feeds one crawl event to connected clients, followed by a
// throttled progress snapshot for the event's job. Wired as the event
// service's live tap.
func (h *WebSocketHandler) StreamEvent(event *models.CrawlEvent) {
	if event == nil {
		return
	}
	if h.allow("crawl_event") {
		h.broadcast(WSMessage{Type: "crawl_event", Payload: event})
	}

	if !h.hasClients() || !h.allow("crawl_progress") {
		return
	}
	job, err := h.jobs.GetJob(context.Background(), event.JobID)
	if err != nil {
		return
	}
	h.broadcast(WSMessage{
		Type: "crawl_progress",
		Payload: map[string]interface{}{
			"job_id":   job.ID,
			"status":   job.Status,
			"progress": job.Progress,
		},
	})
}

// Close disconnects every client, used at shutdown
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientMutex = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *WebSocketHandler) allow(messageType string) bool {
	limiter, ok := h.throttlers[messageType]
	if !ok {
		return true
	}
	return limiter.Allow()
}

func (h *WebSocketHandler) hasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

func (h *WebSocketHandler) dropClient(conn *websocket.Conn) {
	h.mu.Lock()
	_, known := h.clients[conn]
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	remaining := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	if known {
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}
}

// broadcast writes the message to every client, dropping clients whose
// writes fail
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return
	}
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	for i, conn := range clients {
		mutexes[i].Lock()
		writeErr := conn.WriteMessage(websocket.TextMessage, data)
		mutexes[i].Unlock()
		if writeErr != nil {
			h.dropClient(conn)
		}
	}
}

// sendTo writes one message to a single client
func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	defer mutex.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write WebSocket greeting")
	}
}
