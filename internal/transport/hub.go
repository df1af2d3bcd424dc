package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pairshare/pairshare/internal/relay"
	"github.com/pairshare/pairshare/internal/sessions"
)

// Default connection tunables
const (
	DefaultPingInterval  = 30 * time.Second
	DefaultPongWait      = 60 * time.Second
	DefaultWriteWait     = 10 * time.Second
	DefaultMaxFrameBytes = 64 * 1024
	DefaultSendQueue     = 256
)

// Config holds the WebSocket transport settings
type Config struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxFrameBytes  int64
	SendQueue      int
	AllowAnyOrigin bool
}

func (c *Config) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.SendQueue <= 0 {
		c.SendQueue = DefaultSendQueue
	}
}

// Relay is the part of the relay engine the transport drives
type Relay interface {
	CreateSession(ctx context.Context, conn sessions.ConnectionID) (string, error)
	Join(ctx context.Context, code string, conn sessions.ConnectionID) error
	SendMessage(ctx context.Context, code string, conn sessions.ConnectionID, text string) (sessions.Message, error)
	AnnounceFile(ctx context.Context, code string, conn sessions.ConnectionID, meta sessions.FileMeta) (sessions.FileRecord, error)
	Leave(ctx context.Context, conn sessions.ConnectionID)
}

// Hub tracks live WebSocket connections and implements relay.Notifier by
// enqueuing onto each connection's bounded send queue.
type Hub struct {
	config   Config
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[sessions.ConnectionID]*client
}

// NewHub creates a new connection hub
func NewHub(config Config, logger *zap.Logger) *Hub {
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hub{
		config:  config,
		logger:  logger,
		clients: make(map[sessions.ConnectionID]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if config.AllowAnyOrigin {
		h.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return h
}

// Deliver enqueues an event for conn without blocking
func (h *Hub) Deliver(conn sessions.ConnectionID, event relay.Event) error {
	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()

	if !ok {
		return ErrUnknownConnection
	}
	return c.enqueue(event)
}

// Len returns the number of live connections
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every live connection. Their read loops then run the usual
// disconnect path.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

// Shutdown closes every live connection and waits until each has finished
// leaving its session, or ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.Close()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for h.Len() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d connections still open: %w", h.Len(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Handler upgrades GET /ws requests and serves the connection until it closes
func (h *Hub) Handler(engine Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the HTTP error
			h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
			return
		}

		// the request context ends with the handler; the connection outlives it
		h.serve(context.WithoutCancel(c.Request.Context()), engine, ws)
	}
}

func (h *Hub) serve(ctx context.Context, engine Relay, ws *websocket.Conn) {
	id := sessions.ConnectionID(uuid.New().String())
	c := newClient(id, ws, h.config, h.logger)

	h.register(c)
	defer func() {
		c.close()
		engine.Leave(ctx, id)
		h.unregister(id)
		c.logger.Info("Connection closed")
	}()

	c.logger.Info("Connection opened", zap.String("remote_addr", ws.RemoteAddr().String()))

	go c.writePump()
	if err := c.enqueue(relay.Event{Type: EventConnected, Data: ConnectedPayload{ID: id}}); err != nil {
		return
	}
	c.readPump(ctx, engine)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(id sessions.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

var (
	_ relay.Notifier = (*Hub)(nil)
	_ Relay          = (*relay.Engine)(nil)
)
