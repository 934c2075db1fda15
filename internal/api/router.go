package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/soundboard-relay/internal/api/apierr"
	"github.com/mcoot/soundboard-relay/internal/api/handler"
	"github.com/mcoot/soundboard-relay/internal/api/middleware"
	logmw "github.com/mcoot/soundboard-relay/internal/middleware"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Stats       handler.StatsSource
	Socket      http.Handler
	SocketPaths []string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	// Create handlers
	statusHandler := handler.NewStatusHandler(cfg.Stats, cfg.Logger)

	// Create middleware
	loggingMiddleware := logmw.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// Websocket endpoint, logged once the connection closes
	socketPaths := cfg.SocketPaths
	if len(socketPaths) == 0 {
		socketPaths = []string{"/ws"}
	}
	if cfg.Socket != nil {
		for _, path := range socketPaths {
			r.Handle(path, loggingMiddleware(cfg.Socket)).Methods(http.MethodGet)
		}
	}

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	api.HandleFunc("/health", statusHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/stats", statusHandler.Stats).Methods(http.MethodGet)

	return r
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, apierr.NewNotFoundError())
}

func methodNotAllowedHandler(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, apierr.NewMethodNotAllowedError())
}
