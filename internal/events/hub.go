package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	clientSendBuffer  = 256
	hubBroadcastDepth = 256
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 54 * time.Second
	maxInboundSize    = 512
)

// ErrHubStopped is returned when publishing after the hub loop has exited.
var ErrHubStopped = errors.New("events: hub stopped")

var upgrader = websocket.Upgrader{
	// The storefront and admin dashboard are served from a different origin
	// than the API, so cross-origin upgrades are expected.
	CheckOrigin: func(*http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan Event
	hub  *Hub
}

// Hub fans broadcast events out to every connected WebSocket client.
// Delivery is at-most-once; clients that cannot keep up are dropped.
type Hub struct {
	logger *zap.Logger

	broadcast  chan Event
	register   chan *client
	unregister chan *client
	done       chan struct{}

	clientCount atomic.Int64
	stopped     atomic.Bool
}

// NewHub constructs a Hub. Run must be started for events to flow.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan Event, hubBroadcastDepth),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run owns the client registry until ctx is cancelled. All registry access
// happens on this goroutine, so no locking is needed.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]bool)

	defer func() {
		h.stopped.Store(true)
		close(h.done)
		for c := range clients {
			close(c.send)
			delete(clients, c)
		}
		h.clientCount.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			clients[c] = true
			h.clientCount.Store(int64(len(clients)))
			h.logger.Info("websocket client connected", zap.Int("client_count", len(clients)))

		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
			}
			h.clientCount.Store(int64(len(clients)))
			h.logger.Info("websocket client disconnected", zap.Int("client_count", len(clients)))

		case event := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- event:
				default:
					delete(clients, c)
					close(c.send)
					h.logger.Warn("dropping slow websocket client", zap.String("event_type", event.Type))
				}
			}
			h.clientCount.Store(int64(len(clients)))
		}
	}
}

// Publish implements Publisher. The send is non-blocking; when the broadcast
// queue is full the event is dropped and reported.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if h == nil {
		return ErrHubStopped
	}
	if h.stopped.Load() {
		return ErrHubStopped
	}
	select {
	case h.broadcast <- event:
		return nil
	default:
		return errors.New("events: broadcast queue full")
	}
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	return int(h.clientCount.Load())
}

// HandleWebSocket upgrades the request and attaches the connection to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan Event, clientSendBuffer),
		hub:  h,
	}
	// Nothing receives on register once the run loop has exited, so the send
	// must race against done or this goroutine parks forever.
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump drains inbound frames so control messages are processed; the API
// never acts on client payloads.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			payload, err := json.Marshal(event)
			if err != nil {
				c.hub.logger.Error("websocket event marshal failed", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
