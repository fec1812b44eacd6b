// internal/notify/hub.go
package notify

import (
	"context"
	"sync"
	"time"

	"deposit-service/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection wraps websocket.Conn; gorilla allows one concurrent writer
type Connection struct {
	conn     *websocket.Conn
	userID   string
	writeMu  sync.Mutex
	lastSeen time.Time
}

func (c *Connection) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *Connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

// Touch records activity from the client
func (c *Connection) Touch() {
	c.writeMu.Lock()
	c.lastSeen = time.Now()
	c.writeMu.Unlock()
}

// Hub tracks live websocket connections per user and pushes notifications to them
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[*Connection]struct{}),
		logger:      logger,
	}
}

// Add registers a connection for a user
func (h *Hub) Add(userID string, conn *websocket.Conn) *Connection {
	c := &Connection{conn: conn, userID: userID, lastSeen: time.Now()}

	h.mu.Lock()
	if _, ok := h.connections[userID]; !ok {
		h.connections[userID] = make(map[*Connection]struct{})
	}
	h.connections[userID][c] = struct{}{}
	total := len(h.connections[userID])
	h.mu.Unlock()

	h.logger.Info("ws connected", zap.String("user_id", userID), zap.Int("connections", total))
	return c
}

// Remove disconnects and removes a connection
func (h *Hub) Remove(c *Connection) {
	h.mu.Lock()
	if conns, ok := h.connections[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.connections, c.userID)
		}
	}
	h.mu.Unlock()

	_ = c.conn.Close()
	h.logger.Info("ws disconnected", zap.String("user_id", c.userID))
}

// ConnectionCount returns the number of live connections for a user
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

func (h *Hub) snapshot(userID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.connections[userID]))
	for c := range h.connections[userID] {
		conns = append(conns, c)
	}
	return conns
}

// NotifyUser pushes to every live connection of the user. Users without a
// connection are not an error.
func (h *Hub) NotifyUser(_ context.Context, n domain.Notification) error {
	for _, c := range h.snapshot(n.UserID) {
		if err := c.writeJSON(n); err != nil {
			h.logger.Warn("failed ws send",
				zap.String("user_id", n.UserID),
				zap.Error(err))
			go h.Remove(c)
		}
	}
	return nil
}

// NotifyOps is a no-op; operators are reached through the event stream
func (h *Hub) NotifyOps(context.Context, domain.Notification) error {
	return nil
}

// Heartbeat pings all connections until ctx is done, dropping stale ones
func (h *Hub) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			var all []*Connection
			for _, conns := range h.connections {
				for c := range conns {
					all = append(all, c)
				}
			}
			h.mu.RUnlock()

			for _, c := range all {
				c.writeMu.Lock()
				stale := time.Since(c.lastSeen) > 3*interval
				c.writeMu.Unlock()
				if stale {
					go h.Remove(c)
					continue
				}
				if err := c.ping(); err != nil {
					go h.Remove(c)
				}
			}
		}
	}
}
