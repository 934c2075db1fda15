package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mcoot/soundboard-relay/internal/dependencies/random"
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/transport/codec"
	"github.com/mcoot/soundboard-relay/internal/transport/hub"
)

// Config holds websocket settings
type Config struct {
	// AllowedOrigins lists the browser origins allowed to connect. Empty or
	// "*" allows any origin.
	AllowedOrigins []string

	// MaxMessageSize bounds an inbound frame in bytes
	MaxMessageSize int64

	// SendBufferSize is the number of outbound frames queued per connection
	SendBufferSize int
}

// DefaultConfig returns default websocket configuration
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: 1 << 20,
		SendBufferSize: 256,
	}
}

// ParseOrigins splits a comma or semicolon separated origin list
func ParseOrigins(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	origins := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			origins = append(origins, f)
		}
	}
	return origins
}

// Lifecycle connects and disconnects peers and consumes their frames
type Lifecycle interface {
	FrameHandler
	Connect(peer hub.Peer) error
	Disconnect(ctx context.Context, connID model.ConnectionID)
}

// Handler upgrades HTTP requests to websocket connections
type Handler struct {
	lifecycle Lifecycle
	random    random.Random
	cfg       Config
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	mu    sync.Mutex
	conns map[model.ConnectionID]*Conn
}

// NewHandler creates a new websocket Handler
func NewHandler(lifecycle Lifecycle, random random.Random, cfg Config, logger *slog.Logger) *Handler {
	defaults := DefaultConfig()
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}

	h := &Handler{
		lifecycle: lifecycle,
		random:    random,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "websocket")),
		conns:     make(map[model.ConnectionID]*Conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    codec.Subprotocols(),
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
	return false
}

// ServeHTTP upgrades the request and serves the connection until it closes
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c, ok := codec.Lookup(wsConn.Subprotocol())
	if !ok {
		h.logger.Error("negotiated unknown subprotocol", slog.String("subprotocol", wsConn.Subprotocol()))
		_ = wsConn.Close()
		return
	}

	conn := newConn(model.ConnectionID(h.random.NewID()), wsConn, c, h.cfg.SendBufferSize, h.logger)
	if err := h.lifecycle.Connect(conn); err != nil {
		h.logger.Warn("connection refused", slog.Any("error", err))
		conn.close()
		return
	}

	h.track(conn)
	defer h.untrack(conn)

	// Cancelled on disconnect so relays waiting on behalf of this
	// connection give up
	ctx, cancel := context.WithCancel(context.Background())

	go conn.writePump()
	conn.readPump(ctx, h.lifecycle, h.cfg.MaxMessageSize)

	cancel()
	h.lifecycle.Disconnect(context.Background(), conn.ID())
	conn.close()
}

func (h *Handler) track(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID()] = conn
}

func (h *Handler) untrack(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn.ID())
}

// CloseAll closes every open connection. Each connection still runs its
// disconnect transition as its read loop ends.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	h.logger.Info("closed websocket connections", slog.Int("count", len(conns)))
}
