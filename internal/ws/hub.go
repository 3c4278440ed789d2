package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"wifi-rtt-sync/internal/models"
	"wifi-rtt-sync/internal/services"
	"wifi-rtt-sync/internal/state"
)

const writeTimeout = 10 * time.Second

type clientCommand struct {
	Action string `json:"action"`
}

type displayFrame struct {
	Type    string                `json:"type"`
	Entries []models.DisplayEntry `json:"entries,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// Hub streams every display publish to connected WebSocket clients and
// accepts trigger commands from them. Clients get the current list on
// attach, so a UI never starts from a blank screen.
type Hub struct {
	display *state.DisplayState
	scans   *services.ScanService
	logger  zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex

	stop func()
}

func NewHub(display *state.DisplayState, scans *services.ScanService, logger zerolog.Logger) *Hub {
	return &Hub{
		display: display,
		scans:   scans,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

func (h *Hub) Start() {
	updates, cancel := h.display.Subscribe()
	h.stop = cancel

	go func() {
		for entries := range updates {
			h.broadcast(entries)
		}
	}()

	h.logger.Info().Msg("WebSocket hub started")
}

func (h *Hub) Stop() {
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}

	h.mu.Lock()
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and serves it until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	writeMu := &sync.Mutex{}

	h.mu.Lock()
	h.clients[conn] = writeMu
	h.mu.Unlock()

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	h.send(conn, writeMu, displayFrame{Type: "display", Entries: h.display.Get()})

	go h.readLoop(conn, writeMu, r.RemoteAddr)
}

func (h *Hub) readLoop(conn *websocket.Conn, writeMu *sync.Mutex, remote string) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()

		_ = conn.Close()
		h.logger.Debug().Str("remote", remote).Msg("WebSocket client disconnected")
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var command clientCommand
		if err := json.Unmarshal(payload, &command); err != nil {
			h.send(conn, writeMu, displayFrame{Type: "error", Error: "invalid command"})
			continue
		}

		switch command.Action {
		case "trigger":
			h.handleTrigger(conn, writeMu, remote)
		default:
			h.send(conn, writeMu, displayFrame{Type: "error", Error: "unknown action"})
		}
	}
}

func (h *Hub) handleTrigger(conn *websocket.Conn, writeMu *sync.Mutex, remote string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := h.scans.Trigger(ctx)
	if errors.Is(err, services.ErrCycleActive) {
		h.logger.Debug().Str("remote", remote).Msg("Trigger rejected, cycle active")
		h.send(conn, writeMu, displayFrame{Type: "error", Error: "scan cycle already active"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("remote", remote).Msg("Trigger failed")
		h.send(conn, writeMu, displayFrame{Type: "error", Error: "trigger failed"})
	}
}

func (h *Hub) broadcast(entries []models.DisplayEntry) {
	h.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, writeMu := range h.clients {
		conns[conn] = writeMu
	}
	h.mu.Unlock()

	frame := displayFrame{Type: "display", Entries: entries}
	for conn, writeMu := range conns {
		h.send(conn, writeMu, frame)
	}
}

func (h *Hub) send(conn *websocket.Conn, writeMu *sync.Mutex, frame displayFrame) {
	writeMu.Lock()
	defer writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write failed")
	}
}
