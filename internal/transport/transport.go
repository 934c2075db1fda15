// Package transport defines the group messaging primitives the protocol
// layer is built on.
package transport

import (
	"context"
	"errors"

	"github.com/mcoot/soundboard-relay/internal/model"
)

// Transport errors
var (
	ErrPeerNotFound = errors.New("peer not found")
	ErrPeerGone     = errors.New("peer disconnected before replying")
	ErrClosed       = errors.New("transport closed")
)

// Frame is one message on the wire. Frames carrying an ID expect exactly one
// ack frame with the same ID in return. An Error decoded from the wire keeps
// the peer's original value in Raw.
type Frame struct {
	Event string               `json:"event"`
	ID    string               `json:"id,omitempty"`
	Data  any                  `json:"data,omitempty"`
	Error *model.ProtocolError `json:"error,omitempty"`
}

// Ack builds the reply to a frame carrying id
func Ack(id string, data any, err *model.ProtocolError) Frame {
	return Frame{Event: model.EventAck, ID: id, Data: data, Error: err}
}

// Transport provides connection groups, broadcast and direct request/reply
type Transport interface {
	JoinGroup(connID model.ConnectionID, groupID string) error
	LeaveGroup(connID model.ConnectionID, groupID string) error

	// Broadcast sends event to every member of the group except the
	// connection named by except. An empty except reaches the whole group.
	Broadcast(groupID, event string, payload any, except model.ConnectionID) error

	// Request sends event to one connection and waits for its reply or for
	// ctx to end. A failure reported by the peer is returned as a
	// *model.ProtocolError whose Raw holds the peer's error unchanged.
	Request(ctx context.Context, connID model.ConnectionID, event string, payload any) (any, error)

	// Members lists the group in join order
	Members(ctx context.Context, groupID string) ([]model.ConnectionID, error)
}
