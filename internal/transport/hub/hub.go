package hub

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mcoot/soundboard-relay/internal/dependencies/random"
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/transport"
)

// Peer is one registered connection
type Peer interface {
	ID() model.ConnectionID
	// Send queues a frame for delivery. It must not block.
	Send(frame transport.Frame) error
}

type reply struct {
	frame transport.Frame
	err   error
}

// pendingRequest is a request awaiting its ack
type pendingRequest struct {
	target model.ConnectionID
	event  string
	ch     chan reply
}

// Hub is the in-process Transport. It tracks connected peers, their groups
// in join order and the requests awaiting a reply.
type Hub struct {
	random random.Random
	logger *slog.Logger

	mu     sync.RWMutex
	peers  map[model.ConnectionID]Peer
	groups map[string][]model.ConnectionID
	closed bool

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest
}

// Ensure Hub implements Transport
var _ transport.Transport = (*Hub)(nil)

// New creates a new Hub
func New(random random.Random, logger *slog.Logger) *Hub {
	return &Hub{
		random:  random,
		logger:  logger.With(slog.String("component", "hub")),
		peers:   make(map[model.ConnectionID]Peer),
		groups:  make(map[string][]model.ConnectionID),
		pending: make(map[string]*pendingRequest),
	}
}

// Register adds a peer to the hub
func (h *Hub) Register(peer Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return transport.ErrClosed
	}
	h.peers[peer.ID()] = peer
	h.logger.Debug("peer registered",
		slog.String("connection_id", string(peer.ID())),
		slog.Int("total_peers", len(h.peers)))
	return nil
}

// Unregister removes a peer from the hub and from every group. Requests
// still waiting on the peer fail with ErrPeerGone.
func (h *Hub) Unregister(connID model.ConnectionID) {
	h.mu.Lock()
	delete(h.peers, connID)
	for groupID := range h.groups {
		h.removeMemberLocked(connID, groupID)
	}
	peerCount := len(h.peers)
	h.mu.Unlock()

	h.pendingMu.Lock()
	abandoned := 0
	for id, req := range h.pending {
		if req.target == connID {
			req.ch <- reply{err: transport.ErrPeerGone}
			delete(h.pending, id)
			abandoned++
		}
	}
	h.pendingMu.Unlock()

	h.logger.Debug("peer unregistered",
		slog.String("connection_id", string(connID)),
		slog.Int("abandoned_requests", abandoned),
		slog.Int("total_peers", peerCount))
}

// JoinGroup appends the connection to the group. Joining twice is a no-op.
func (h *Hub) JoinGroup(connID model.ConnectionID, groupID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[connID]; !ok {
		return fmt.Errorf("join group %s: %w", groupID, transport.ErrPeerNotFound)
	}
	if slices.Contains(h.groups[groupID], connID) {
		return nil
	}
	h.groups[groupID] = append(h.groups[groupID], connID)
	return nil
}

// LeaveGroup removes the connection from the group
func (h *Hub) LeaveGroup(connID model.ConnectionID, groupID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeMemberLocked(connID, groupID)
	return nil
}

func (h *Hub) removeMemberLocked(connID model.ConnectionID, groupID string) {
	members := slices.DeleteFunc(h.groups[groupID], func(id model.ConnectionID) bool {
		return id == connID
	})
	if len(members) == 0 {
		delete(h.groups, groupID)
		return
	}
	h.groups[groupID] = members
}

// Members returns a snapshot of the group in join order
func (h *Hub) Members(ctx context.Context, groupID string) ([]model.ConnectionID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.groups[groupID]), nil
}

// Broadcast sends an event to the group. Delivery failures to individual
// peers are logged and do not stop the broadcast.
func (h *Hub) Broadcast(groupID, event string, payload any, except model.ConnectionID) error {
	h.mu.RLock()
	targets := make([]Peer, 0, len(h.groups[groupID]))
	for _, id := range h.groups[groupID] {
		if id == except {
			continue
		}
		if peer, ok := h.peers[id]; ok {
			targets = append(targets, peer)
		}
	}
	h.mu.RUnlock()

	frame := transport.Frame{Event: event, Data: payload}
	dropped := 0
	for _, peer := range targets {
		if err := peer.Send(frame); err != nil {
			dropped++
			h.logger.Warn("broadcast delivery failed",
				slog.String("connection_id", string(peer.ID())),
				slog.String("event", event),
				slog.Any("error", err))
		}
	}
	if dropped > 0 {
		h.logger.Warn("broadcast partial failure",
			slog.String("group", groupID),
			slog.Int("sent", len(targets)-dropped),
			slog.Int("dropped", dropped))
	}
	return nil
}

// Send delivers a frame to one connection without waiting for a reply
func (h *Hub) Send(connID model.ConnectionID, frame transport.Frame) error {
	h.mu.RLock()
	peer, ok := h.peers[connID]
	h.mu.RUnlock()

	if !ok {
		return transport.ErrPeerNotFound
	}
	return peer.Send(frame)
}

// Request sends an event carrying a fresh correlation id to one connection
// and waits for the matching ack or for ctx to end. An abandoned request is
// forgotten, so a late ack is ignored.
func (h *Hub) Request(ctx context.Context, connID model.ConnectionID, event string, payload any) (any, error) {
	id := h.random.NewID()
	req := &pendingRequest{target: connID, event: event, ch: make(chan reply, 1)}

	// Register before looking up the peer: an Unregister that runs after the
	// lookup is then guaranteed to see the request and fail it.
	h.pendingMu.Lock()
	h.pending[id] = req
	h.pendingMu.Unlock()

	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, id)
		h.pendingMu.Unlock()
	}()

	h.mu.RLock()
	peer, ok := h.peers[connID]
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return nil, transport.ErrClosed
	}
	if !ok {
		return nil, transport.ErrPeerNotFound
	}

	if err := peer.Send(transport.Frame{Event: event, ID: id, Data: payload}); err != nil {
		return nil, err
	}

	select {
	case r := <-req.ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.frame.Error != nil {
			return nil, r.frame.Error
		}
		return r.frame.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve completes the pending request named by the ack's id. Only the
// connection the request was sent to may answer it. It returns false when
// no such request is waiting, which is the case for late replies.
func (h *Hub) Resolve(from model.ConnectionID, ack transport.Frame) bool {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	req, ok := h.pending[ack.ID]
	if !ok || req.target != from {
		return false
	}
	delete(h.pending, ack.ID)
	req.ch <- reply{frame: ack}
	h.logger.Debug("request resolved",
		slog.String("connection_id", string(from)),
		slog.String("event", req.event))
	return true
}

// Stats describes the hub's current load
type Stats struct {
	Connections     int `json:"connections"`
	Groups          int `json:"groups"`
	PendingRequests int `json:"pendingRequests"`
}

// Stats returns a snapshot of the hub's counters
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	stats := Stats{Connections: len(h.peers), Groups: len(h.groups)}
	h.mu.RUnlock()

	h.pendingMu.Lock()
	stats.PendingRequests = len(h.pending)
	h.pendingMu.Unlock()
	return stats
}

// Close refuses new peers and fails every pending request
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	peerCount := len(h.peers)
	h.mu.Unlock()

	h.pendingMu.Lock()
	for id, req := range h.pending {
		req.ch <- reply{err: transport.ErrClosed}
		delete(h.pending, id)
	}
	h.pendingMu.Unlock()

	h.logger.Info("hub closed", slog.Int("connected_peers", peerCount))
}
