package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mcoot/soundboard-relay/internal/api/apierr"
	"github.com/mcoot/soundboard-relay/internal/api/response"
	"github.com/mcoot/soundboard-relay/internal/protocol"
)

// StatsSource reports current server load
type StatsSource interface {
	Stats(ctx context.Context) (protocol.Stats, error)
}

// StatusHandler handles the health and stats endpoints
type StatusHandler struct {
	stats  StatsSource
	logger *slog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(stats StatsSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{stats: stats, logger: logger}
}

// Health handles GET /api/v1/health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.HealthResponse{Status: "ok"})
}

// Stats handles GET /api/v1/stats
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats unavailable", slog.Any("error", err))
		apierr.WriteError(w, apierr.NewUnavailableError("Stats unavailable"))
		return
	}
	response.JSON(w, http.StatusOK, response.StatsResponseFromProtocol(stats))
}
