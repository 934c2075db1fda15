package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/soundboard-relay/internal/dependencies/mocks"
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/testutil"
	"github.com/mcoot/soundboard-relay/internal/transport"
	"github.com/mcoot/soundboard-relay/internal/transport/codec"
	"github.com/mcoot/soundboard-relay/internal/transport/hub"
)

// echoLifecycle answers every frame carrying an id with its own data and error
type echoLifecycle struct {
	mu           sync.Mutex
	peers        map[model.ConnectionID]hub.Peer
	disconnected []model.ConnectionID
}

func newEchoLifecycle() *echoLifecycle {
	return &echoLifecycle{peers: make(map[model.ConnectionID]hub.Peer)}
}

func (l *echoLifecycle) Connect(peer hub.Peer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers[peer.ID()] = peer
	return nil
}

func (l *echoLifecycle) Disconnect(ctx context.Context, connID model.ConnectionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.peers, connID)
	l.disconnected = append(l.disconnected, connID)
}

func (l *echoLifecycle) Handle(ctx context.Context, connID model.ConnectionID, frame transport.Frame) {
	l.mu.Lock()
	peer := l.peers[connID]
	l.mu.Unlock()
	if peer != nil && frame.ID != "" {
		_ = peer.Send(transport.Ack(frame.ID, frame.Data, frame.Error))
	}
}

func (l *echoLifecycle) disconnectedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.disconnected)
}

type HandlerSuite struct {
	suite.Suite
	lifecycle *echoLifecycle
	handler   *Handler
	server    *httptest.Server
	url       string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.lifecycle = newEchoLifecycle()
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://board.example"}
	s.handler = NewHandler(s.lifecycle, mocks.NewMockRandom(), cfg, testutil.NopLogger())

	s.server = httptest.NewServer(s.handler)
	s.url = "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlerSuite) dial(subprotocols []string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{Subprotocols: subprotocols, HandshakeTimeout: time.Second}
	return dialer.Dial(s.url, header)
}

func (s *HandlerSuite) TestJSONIsTheDefault() {
	conn, _, err := s.dial(nil, nil)
	s.Require().NoError(err)
	defer conn.Close()

	s.Require().NoError(conn.WriteJSON(transport.Frame{Event: "ping", ID: "1", Data: map[string]any{"a": "b"}}))

	var ack transport.Frame
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	s.Require().NoError(conn.ReadJSON(&ack))
	s.Equal(model.EventAck, ack.Event)
	s.Equal("1", ack.ID)
	s.Equal(map[string]any{"a": "b"}, ack.Data)
}

func (s *HandlerSuite) TestErrorValuesSurviveTheRoundTrip() {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			"object with extra fields",
			`{"event":"relay","id":"5","error":{"code":"SoundNotCached","message":"gone","details":{"k":1}}}`,
			`{"event":"ack","id":"5","error":{"code":"SoundNotCached","message":"gone","details":{"k":1}}}`,
		},
		{
			"bare string",
			`{"event":"relay","id":"6","error":"SoundNotCached"}`,
			`{"event":"ack","id":"6","error":"SoundNotCached"}`,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			conn, _, err := s.dial(nil, nil)
			s.Require().NoError(err)
			defer conn.Close()

			s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(tt.message)))

			_ = conn.SetReadDeadline(time.Now().Add(time.Second))
			_, data, err := conn.ReadMessage()
			s.Require().NoError(err)
			s.JSONEq(tt.want, string(data))
		})
	}
}

func (s *HandlerSuite) TestCBORSubprotocol() {
	conn, _, err := s.dial([]string{codec.SubprotocolCBOR}, nil)
	s.Require().NoError(err)
	defer conn.Close()
	s.Equal(codec.SubprotocolCBOR, conn.Subprotocol())

	data, err := codec.CBOR{}.Marshal(transport.Frame{Event: "ping", ID: "7", Data: "hello"})
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteMessage(websocket.BinaryMessage, data))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	messageType, reply, err := conn.ReadMessage()
	s.Require().NoError(err)
	s.Equal(websocket.BinaryMessage, messageType)

	var ack transport.Frame
	s.Require().NoError(codec.CBOR{}.Unmarshal(reply, &ack))
	s.Equal("7", ack.ID)
	s.Equal("hello", ack.Data)
}

func (s *HandlerSuite) TestMalformedFramesAreSkipped() {
	conn, _, err := s.dial(nil, nil)
	s.Require().NoError(err)
	defer conn.Close()

	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"no-event"}`)))
	s.Require().NoError(conn.WriteJSON(transport.Frame{Event: "ping", ID: "2"}))

	var ack transport.Frame
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	s.Require().NoError(conn.ReadJSON(&ack))
	s.Equal("2", ack.ID)
}

func (s *HandlerSuite) TestAllowedOrigin() {
	conn, _, err := s.dial(nil, http.Header{"Origin": {"https://board.example"}})
	s.Require().NoError(err)
	conn.Close()
}

func (s *HandlerSuite) TestRejectedOrigin() {
	_, resp, err := s.dial(nil, http.Header{"Origin": {"https://evil.example"}})
	s.Require().Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlerSuite) TestCloseTriggersDisconnect() {
	conn, _, err := s.dial(nil, nil)
	s.Require().NoError(err)

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	s.Eventually(func() bool {
		return s.lifecycle.disconnectedCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func (s *HandlerSuite) TestCloseAll() {
	conn, _, err := s.dial(nil, nil)
	s.Require().NoError(err)
	defer conn.Close()

	// Make sure the server side is fully set up before closing it
	s.Require().NoError(conn.WriteJSON(transport.Frame{Event: "ping", ID: "1"}))
	var ack transport.Frame
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	s.Require().NoError(conn.ReadJSON(&ack))

	s.handler.CloseAll()

	_, _, err = conn.ReadMessage()
	s.Error(err)
	s.Eventually(func() bool {
		return s.lifecycle.disconnectedCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", []string{}},
		{"https://a.example", []string{"https://a.example"}},
		{"https://a.example, https://b.example;https://c.example", []string{"https://a.example", "https://b.example", "https://c.example"}},
		{" ; ,", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOrigins(tt.raw))
		})
	}
}
