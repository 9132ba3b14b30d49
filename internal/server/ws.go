package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/live-subtitle-service/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeTimeout     = 5 * time.Second
	clientSendBuffer = 64
)

// Hub fans pipeline events out to websocket subscribers. Each client gets
// a bounded send buffer; a client that cannot keep up loses events rather
// than stalling the fan-out.
type Hub struct {
	logger  *slog.Logger
	clients map[*websocket.Conn]chan []byte
	mu      sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Run consumes pipeline events and broadcasts them until the context is
// cancelled. Must be called exactly once.
func (h *Hub) Run(ctx context.Context, events <-chan pipeline.Event) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e := <-events:
			payload, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("Failed to marshal event", slog.String("error", err.Error()))
				continue
			}
			h.broadcast(payload)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, send := range h.clients {
		select {
		case send <- payload:
		default:
			// Slow client, skip this event for it
			_ = conn
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) chan []byte {
	send := make(chan []byte, clientSendBuffer)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()
	return send
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
	conn.Close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for conn, send := range h.clients {
		close(send)
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]chan []byte)
	h.mu.Unlock()
}

// handleWS upgrades the connection and streams pipeline events to it. The
// current subtitle snapshot is sent first so a new client paints the
// display immediately.
func (h *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.logger.Info("Websocket client connected", slog.String("remote", conn.RemoteAddr().String()))

	snap := h.pipeline.Snapshot()
	initial, err := json.Marshal(pipeline.Event{Type: pipeline.EventSubtitle, Snapshot: &snap})
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, initial); err != nil {
			conn.Close()
			return
		}
	}

	send := h.hub.add(conn)

	// Writer loop
	go func() {
		for payload := range send {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.hub.remove(conn)
				return
			}
		}
	}()

	// Reader loop: clients send nothing meaningful, but reading is what
	// detects disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.logger.Info("Websocket client disconnected",
					slog.String("remote", conn.RemoteAddr().String()))
				h.hub.remove(conn)
				return
			}
		}
	}()
}
