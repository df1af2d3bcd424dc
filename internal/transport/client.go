package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pairshare/pairshare/internal/relay"
	"github.com/pairshare/pairshare/internal/sessions"
)

// client is one live WebSocket connection. Only the write pump writes data
// frames; everything else enqueues onto send.
type client struct {
	id     sessions.ConnectionID
	conn   *websocket.Conn
	send   chan relay.Event
	done   chan struct{}
	once   sync.Once
	config Config
	logger *zap.Logger
}

func newClient(id sessions.ConnectionID, conn *websocket.Conn, config Config, logger *zap.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan relay.Event, config.SendQueue),
		done:   make(chan struct{}),
		config: config,
		logger: logger.With(zap.String("connection_id", string(id))),
	}
}

// enqueue never blocks. A full queue means the peer is not reading, so the
// connection is dropped instead of stalling the session.
func (c *client) enqueue(event relay.Event) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- event:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.logger.Warn("Send queue full, closing connection", zap.String("event", string(event.Type)))
		c.close()
		return ErrSlowConsumer
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Debug("Failed to write frame", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait)); err != nil {
				c.logger.Debug("Failed to write ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *client) readPump(ctx context.Context, engine Relay) {
	c.conn.SetReadLimit(c.config.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.closed() {
				c.logger.Debug("Connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reject(errInvalidRequest)
			continue
		}
		if err := c.dispatch(ctx, engine, frame); err != nil {
			c.reject(err)
		}
	}
}

func (c *client) dispatch(ctx context.Context, engine Relay, frame InboundFrame) error {
	switch frame.Type {
	case FrameCreateSession:
		_, err := engine.CreateSession(ctx, c.id)
		return err

	case FrameJoinSession:
		var req joinRequest
		if err := decodeData(frame, &req); err != nil {
			return err
		}
		return engine.Join(ctx, req.Code, c.id)

	case FrameSendMessage:
		var req messageRequest
		if err := decodeData(frame, &req); err != nil {
			return err
		}
		_, err := engine.SendMessage(ctx, req.Code, c.id, req.Text)
		return err

	case FrameFileAnnounce:
		var req fileRequest
		if err := decodeData(frame, &req); err != nil {
			return err
		}
		_, err := engine.AnnounceFile(ctx, req.Code, c.id, req.File)
		return err

	case FrameLeaveSession:
		engine.Leave(ctx, c.id)
		return nil

	default:
		return errInvalidRequest
	}
}

// reject reports a failed request to this connection only
func (c *client) reject(err error) {
	if !errors.Is(err, errInvalidRequest) && relay.Reason(err) == relay.ReasonInternal {
		c.logger.Error("Request failed", zap.Error(err))
	}
	if sendErr := c.enqueue(errorEvent(err)); sendErr != nil {
		c.logger.Debug("Failed to send error frame", zap.Error(sendErr))
	}
}
