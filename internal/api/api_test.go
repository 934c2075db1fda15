package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/soundboard-relay/internal/api"
	"github.com/mcoot/soundboard-relay/internal/api/apierr"
	"github.com/mcoot/soundboard-relay/internal/api/response"
	"github.com/mcoot/soundboard-relay/internal/factory"
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/protocol"
	"github.com/mcoot/soundboard-relay/internal/transport"
)

type doc = map[string]any

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	// API tests are integration tests - use production factory with real random/clock
	app, err := factory.New(factory.Config{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	router := api.NewRouter(api.RouterConfig{
		Logger: logger,
		Stats:  app.Dispatcher,
		Socket: app.WSHandler,
	})

	return &testServer{handler: router, app: app}
}

func (ts *testServer) request(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// dial opens a websocket to a live server running the router
func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// call sends a request frame and returns its ack, skipping broadcasts
func call(t *testing.T, conn *websocket.Conn, event, id string, data any) transport.Frame {
	t.Helper()
	require.NoError(t, conn.WriteJSON(transport.Frame{Event: event, ID: id, Data: data}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame transport.Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event == model.EventAck && frame.ID == id {
			return frame
		}
	}
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp response.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestStatsEmpty(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/stats")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp response.StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, response.StatsResponse{}, resp)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/boards")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, apierr.CodeNotFound, resp.Error.Code)
}

func TestWrongMethod(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/health")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestWebsocketCreateBoard(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	ack := call(t, conn, model.EventBoardCreate, "1", doc{"clientData": doc{"name": "Alice"}})
	require.Nil(t, ack.Error)

	board, ok := ack.Data.(map[string]any)
	require.True(t, ok, "board should decode as an object, got %T", ack.Data)
	assert.NotEmpty(t, board["id"])
	assert.Equal(t, false, board["locked"])

	rr := ts.request(http.MethodGet, "/api/v1/stats")
	var stats response.StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Boards)
	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, 1, stats.Groups)
}

func TestWebsocketJoinUnknownBoard(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	ack := call(t, conn, model.EventBoardJoin, "1", doc{
		"clientData": doc{},
		"boardId":    "9b2d1f0e-4c7a-4a51-8d59-0f8c3c1e2a77",
	})
	require.NotNil(t, ack.Error)
	assert.Equal(t, model.CodeInvalidBoardID, ack.Error.Code)
	assert.Equal(t, "Invalid board id", ack.Error.Message)
}

func TestWebsocketDisconnectRemovesBoard(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	ack := call(t, conn, model.EventBoardCreate, "1", doc{"clientData": doc{}})
	require.Nil(t, ack.Error)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		n, err := ts.app.Registry.Count(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

type failingStats struct{}

func (failingStats) Stats(context.Context) (protocol.Stats, error) {
	return protocol.Stats{}, errors.New("storage down")
}

func TestStatsUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
	router := api.NewRouter(api.RouterConfig{Logger: logger, Stats: failingStats{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
