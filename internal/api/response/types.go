package response

import (
	"github.com/mcoot/soundboard-relay/internal/protocol"
)

// HealthResponse is the response for the health endpoint
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse reports server load
type StatsResponse struct {
	Boards          int `json:"boards"`
	Connections     int `json:"connections"`
	Groups          int `json:"groups"`
	PendingRequests int `json:"pendingRequests"`
}

// StatsResponseFromProtocol converts dispatcher stats to a StatsResponse
func StatsResponseFromProtocol(s protocol.Stats) StatsResponse {
	return StatsResponse{
		Boards:          s.Boards,
		Connections:     s.Connections,
		Groups:          s.Groups,
		PendingRequests: s.PendingRequests,
	}
}
