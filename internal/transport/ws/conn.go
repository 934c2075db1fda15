package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/transport"
	"github.com/mcoot/soundboard-relay/internal/transport/codec"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// ErrSendBufferFull is returned when a slow client cannot keep up
var ErrSendBufferFull = errors.New("send buffer full")

// FrameHandler consumes the frames read from a connection
type FrameHandler interface {
	Handle(ctx context.Context, connID model.ConnectionID, frame transport.Frame)
}

// Conn is one websocket connection. It implements hub.Peer.
type Conn struct {
	id     model.ConnectionID
	ws     *websocket.Conn
	codec  codec.Codec
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id model.ConnectionID, ws *websocket.Conn, c codec.Codec, bufferSize int, logger *slog.Logger) *Conn {
	return &Conn{
		id:     id,
		ws:     ws,
		codec:  c,
		logger: logger.With(slog.String("connection_id", string(id))),
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Conn) ID() model.ConnectionID {
	return c.id
}

// Send encodes and queues a frame without blocking
func (c *Conn) Send(frame transport.Frame) error {
	data, err := c.codec.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump reads frames until the connection fails and hands them to the
// handler in order
func (c *Conn) readPump(ctx context.Context, handler FrameHandler, maxMessageSize int64) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", slog.Any("error", err))
			}
			return
		}

		var frame transport.Frame
		if err := c.codec.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("malformed frame", slog.Any("error", err))
			continue
		}
		if frame.Event == "" {
			c.logger.Warn("frame without event")
			continue
		}

		handler.Handle(ctx, c.id, frame)
	}
}

// writePump writes queued frames and keeps the connection alive with pings
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	messageType := websocket.TextMessage
	if c.codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(messageType, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
