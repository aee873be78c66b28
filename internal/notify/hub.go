// Package notify pushes freshly created notifications to connected
// clients over websockets.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/model"
)

// Publisher receives notifications after they have been persisted.
// Publishing is best effort and returns without waiting on clients.
type Publisher interface {
	Publish(n model.Notification)
}

// Nop discards everything.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(model.Notification) {}

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// sendBuffer is how many notifications may queue for one connection
	// before new ones are dropped.
	sendBuffer = 32
)

// conn is one websocket with the owning user. Only writePump writes to
// ws; everything else queues on send.
type conn struct {
	ws     *websocket.Conn
	userID string
	send   chan model.Notification
}

// Hub tracks websocket connections per user.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu    sync.RWMutex
	conns map[string]map[*conn]struct{}
}

// NewHub returns a hub accepting connections from the given origins.
// An empty list accepts any origin.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		logger: logger.With(zap.String("component", "notify")),
		conns:  make(map[string]map[*conn]struct{}),
	}
}

// Serve upgrades the request and streams notifications for userID until
// the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := h.add(userID, ws)
	defer h.remove(c)

	done := make(chan struct{})
	defer close(done)
	go h.writePump(c, done)

	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the send queue and pings the client. A failed write
// closes the socket, which ends the read loop in Serve.
func (h *Hub) writePump(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		var err error
		select {
		case <-done:
			return
		case n := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.ws.WriteJSON(n); err != nil {
				h.logger.Warn("websocket send failed",
					zap.String("user_id", c.userID),
					zap.String("notification_id", n.ID),
					zap.Error(err),
				)
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err = c.ws.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			_ = c.ws.Close()
			return
		}
	}
}

func (h *Hub) add(userID string, ws *websocket.Conn) *conn {
	c := &conn{ws: ws, userID: userID, send: make(chan model.Notification, sendBuffer)}

	h.mu.Lock()
	if _, ok := h.conns[userID]; !ok {
		h.conns[userID] = make(map[*conn]struct{})
	}
	h.conns[userID][c] = struct{}{}
	total := len(h.conns[userID])
	h.mu.Unlock()

	h.logger.Debug("websocket connected", zap.String("user_id", userID), zap.Int("connections", total))
	return c
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	if set, ok := h.conns[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
		}
	}
	h.mu.Unlock()

	_ = c.ws.Close()
	h.logger.Debug("websocket disconnected", zap.String("user_id", c.userID))
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Publish queues n for every connection of its owner. It never waits on
// a client: when a connection's queue is full the notification is dropped
// for that connection, and the client catches up from the list endpoint.
func (h *Hub) Publish(n model.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns[n.UserID] {
		select {
		case c.send <- n:
		default:
			h.logger.Warn("websocket queue full, dropping notification",
				zap.String("user_id", n.UserID),
				zap.String("notification_id", n.ID),
			)
		}
	}
}
