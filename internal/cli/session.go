package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mcoot/soundboard-relay/internal/dependencies/random"
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/transport"
	"github.com/mcoot/soundboard-relay/internal/transport/codec"
)

// ErrSessionClosed is returned for requests on a closed session
var ErrSessionClosed = errors.New("session closed")

// Session is a websocket connection to the relay. It correlates request
// acks, answers the server's own requests and queues broadcast events.
type Session struct {
	conn   *websocket.Conn
	codec  codec.Codec
	random random.Random

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan transport.Frame

	events    chan transport.Frame
	done      chan struct{}
	closeOnce sync.Once
}

// SocketURL converts an HTTP server URL into the websocket endpoint URL
func SocketURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// Dial opens a session to the server
func Dial(ctx context.Context, serverURL string) (*Session, error) {
	socketURL, err := SocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{Subprotocols: []string{codec.SubprotocolJSON}}
	conn, _, err := dialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	s := &Session{
		conn:    conn,
		codec:   codec.JSON{},
		random:  random.New(),
		pending: make(map[string]chan transport.Frame),
		events:  make(chan transport.Frame, 64),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events delivers broadcasts and server requests in arrival order. The
// channel is closed when the connection ends.
func (s *Session) Events() <-chan transport.Frame {
	return s.events
}

// Done is closed when the connection ends
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Request sends event and waits for its ack. An error reported by the
// server is returned as a *model.ProtocolError.
func (s *Session) Request(ctx context.Context, event string, data any) (any, error) {
	id := s.random.NewID()
	ch := make(chan transport.Frame, 1)

	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if err := s.write(transport.Frame{Event: event, ID: id, Data: data}); err != nil {
		return nil, err
	}

	select {
	case ack := <-ch:
		if ack.Error != nil {
			return nil, ack.Error
		}
		return ack.Data, nil
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Emit sends event without asking for an ack
func (s *Session) Emit(event string, data any) error {
	return s.write(transport.Frame{Event: event, Data: data})
}

// Close says goodbye to the server and closes the connection
func (s *Session) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.shutdown()
}

func (s *Session) shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

func (s *Session) write(frame transport.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	data, err := s.codec.Marshal(frame)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) readLoop() {
	defer func() {
		close(s.done)
		close(s.events)
		_ = s.shutdown()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame transport.Frame
		if err := s.codec.Unmarshal(data, &frame); err != nil {
			continue
		}

		if frame.Event == model.EventAck {
			s.pendingMu.Lock()
			ch, ok := s.pending[frame.ID]
			s.pendingMu.Unlock()
			if ok {
				ch <- frame
			}
			continue
		}

		if frame.ID != "" {
			s.answer(frame)
		}

		select {
		case s.events <- frame:
		default:
			// Nobody is draining events; drop rather than stall acks
		}
	}
}

// answer replies to a server request. This client keeps no sounds, so it
// shares an empty list and never has a missing sound cached.
func (s *Session) answer(frame transport.Frame) {
	var ack transport.Frame
	switch frame.Event {
	case model.EventSoundFetch:
		ack = transport.Ack(frame.ID, []any{}, nil)
	case model.EventSoundMissing:
		var payload model.SoundIDPayload
		_ = decodeInto(frame.Data, &payload)
		ack = transport.Ack(frame.ID, nil, model.NewProtocolError(model.CodeSoundNotCached, payload.SoundID))
	default:
		ack = transport.Ack(frame.ID, nil, model.NewProtocolError(model.CodeInvalidArguments, frame.Event))
	}
	_ = s.write(ack)
}

// decodeInto converts a generic decoded document into a typed value
func decodeInto(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
