// Package trade — WebSocket presence hub. Connected users are marked ONLINE
// with a fresh socket id and receive trade event broadcasts; disconnecting
// flips them back to OFFLINE.
package trade

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yLucasx3/gh-economy/internal/auth"
	"github.com/yLucasx3/gh-economy/internal/metrics"
	"github.com/yLucasx3/gh-economy/internal/model"
	"github.com/yLucasx3/gh-economy/internal/store"
)

// Event is a JSON message sent to connected clients when a trade settles.
type Event struct {
	Type           string `json:"type"`
	TransactionID  string `json:"transaction_id"`
	AnnouncementID string `json:"announcement_id"`
	ItemName       string `json:"item_name"`
	Quantity       int64  `json:"quantity,omitempty"`
	Amount         string `json:"amount,omitempty"`
	Status         string `json:"status,omitempty"`
	FromUserID     string `json:"from_user_id,omitempty"`
	ToUserID       string `json:"to_user_id,omitempty"`
}

// client is one live presence connection.
type client struct {
	conn     *websocket.Conn
	userID   string
	socketID string
}

// PresenceHub manages WebSocket connections, tracks which users are online,
// and broadcasts trade events to all connected clients.
type PresenceHub struct {
	st         store.Store
	clients    map[*websocket.Conn]*client
	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewPresenceHub creates a new presence hub backed by st.
func NewPresenceHub(st store.Store) *PresenceHub {
	return &PresenceHub{
		st:         st,
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *PresenceHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.conn] = c
			total := len(h.clients)
			h.mu.Unlock()
			metrics.OnlineUsers.Set(float64(total))
			slog.Info("presence client connected", "user", c.userID, "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			c, ok := h.clients[conn]
			if ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.OnlineUsers.Set(float64(total))
			if ok {
				h.markOffline(c)
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					// Closing makes the read pump fail and unregister the
					// client, which also flips presence to OFFLINE.
					conn.Close()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends an event to all connected clients.
func (h *PresenceHub) Broadcast(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking trade execution.
	}
}

func (h *PresenceHub) markOffline(c *client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.st.UpdateUserPresence(ctx, c.userID, model.PresenceOffline, ""); err != nil {
		slog.Error("presence offline update failed", "user", c.userID, "err", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
// Requires the caller identity from the auth middleware; the user is marked
// ONLINE with a fresh socket id for the lifetime of the connection.
func (h *PresenceHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	// Only a live connection may flip the user ONLINE; a failed upgrade must
	// leave presence untouched.
	socketID := uuid.New().String()
	if err := h.st.UpdateUserPresence(r.Context(), userID, model.PresenceOnline, socketID); err != nil {
		slog.Error("presence online update failed", "user", userID, "err", err)
		conn.Close()
		return
	}

	c := &client{conn: conn, userID: userID, socketID: socketID}
	h.register <- c

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
