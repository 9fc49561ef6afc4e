package statusapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"robotfleet/internal/robotapi"
	"robotfleet/internal/session"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames; clients are not expected to send any
	maxMessageSize = 4 << 10

	sendBuffer      = 64
	broadcastBuffer = 256
)

// StreamMessage is one websocket frame pushed to view clients.
type StreamMessage struct {
	Type        session.EventKind    `json:"type"`
	Robots      robotapi.PositionSet `json:"robots,omitempty"`
	Count       *int                 `json:"count,omitempty"`
	AutoRunning *bool                `json:"autoRunning,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// NewStreamMessage converts a session event to its wire form.
func NewStreamMessage(ev session.Event) StreamMessage {
	msg := StreamMessage{Type: ev.Kind}
	switch ev.Kind {
	case session.EventPositions:
		n := len(ev.Positions)
		msg.Robots = ev.Positions
		msg.Count = &n
	case session.EventAutoRun:
		on := ev.AutoRunning
		msg.AutoRunning = &on
	case session.EventError:
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
	}
	return msg
}

// StreamMetrics is an optional interface for counting stream clients.
type StreamMetrics interface {
	RecordStreamClient(ctx context.Context, delta int64)
}

// Hub fans session events out to websocket clients. Slow clients are
// dropped rather than allowed to stall the rest.
type Hub struct {
	logger   *slog.Logger
	metrics  StreamMetrics
	upgrader websocket.Upgrader

	clients    map[*streamClient]struct{}
	broadcast  chan []byte
	register   chan *streamClient
	unregister chan *streamClient
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a hub. Call Run before serving clients.
func NewHub(logger *slog.Logger, metrics StreamMetrics) *Hub {
	if logger == nil {
		logger = slog.With("component", "stream")
	}
	return &Hub{
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*streamClient]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.count(1)
			h.logger.Info("Stream client connected", "clients", count)

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				h.drop(c)
			}
			count := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.logger.Info("Stream client disconnected", "clients", count)
			}

		case data := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.drop(c)
					h.logger.Warn("Dropped slow stream client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *streamClient) {
	delete(h.clients, c)
	close(c.send)
	h.count(-1)
}

func (h *Hub) count(delta int64) {
	if h.metrics != nil {
		h.metrics.RecordStreamClient(context.Background(), delta)
	}
}

// Broadcast queues data for every client. It never blocks.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Stream broadcast buffer full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// Forward broadcasts session events until ctx is done or events is closed.
func (h *Hub) Forward(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.BroadcastJSON(NewStreamMessage(ev)); err != nil {
				h.logger.Error("Failed to encode stream message", "error", err)
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

// streamClient represents a single websocket connection.
type streamClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump only detects disconnection and handles pongs.
func (c *streamClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine writing to the connection.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
