package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukex/flowstudio/pkg/eventbus"
	"github.com/dukex/flowstudio/pkg/events"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 512
	wsBufferSize     = 1024
	clientBufferSize = 64

	// UserIDParam is the query parameter naming the subscriber.
	UserIDParam = "user_id"
)

// Hub pushes execution events to the WebSocket connections of their owner.
// A slow client whose buffer fills up is disconnected instead of blocking the run.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("module", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsBufferSize,
			WriteBufferSize: wsBufferSize,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades GET /ws?user_id=<id> and streams that user's events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get(UserIDParam)
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)

		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)

		return
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, clientBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected", "user_id", userID)

	go h.writePump(c)
	go h.readPump(c)
}

// Notify queues the event for every connection of its owner.
func (h *Hub) Notify(_ context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	h.mu.RLock()

	stale := make([]*client, 0)

	for c := range h.clients {
		if c.userID != event.UserID {
			continue
		}

		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}

	h.mu.RUnlock()

	for _, c := range stale {
		h.logger.Warn("Dropping slow WebSocket client", "user_id", c.userID)
		h.remove(c)
	}

	return nil
}

// Subscribe feeds the hub from the event bus, for deployments where runs
// execute in another process.
func (h *Hub) Subscribe(bus eventbus.EventSubscriber) error {
	for _, eventType := range events.ExecutionEventTypes {
		err := bus.Handle(eventType, h.handleBusEvent)
		if err != nil {
			return err
		}
	}

	return nil
}

func (h *Hub) handleBusEvent(ctx context.Context, event any) error {
	executionEvent, ok := event.(*events.Event)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	return h.Notify(ctx, *executionEvent)
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))

	for c := range h.clients {
		clients = append(clients, c)
	}

	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()

		close(c.send)
	})
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			err := c.conn.WriteMessage(websocket.TextMessage, payload)
			if err != nil {
				h.logger.Error("WebSocket write failed", "user_id", c.userID, "error", err)
				h.remove(c)

				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				h.remove(c)

				return
			}
		}
	}
}
