package testutil

import (
	"sync"
	"time"

	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/transport"
)

// Resolver completes pending requests, as the hub does
type Resolver interface {
	Resolve(from model.ConnectionID, ack transport.Frame) bool
}

// Responder answers a request frame. Returning ok=false leaves the request
// unanswered.
type Responder func(frame transport.Frame) (data any, perr *model.ProtocolError, ok bool)

// FakePeer records every frame sent to it and optionally answers requests
type FakePeer struct {
	id model.ConnectionID

	mu        sync.Mutex
	frames    []transport.Frame
	resolver  Resolver
	responder Responder
	sendErr   error
}

// NewFakePeer creates a FakePeer with the given connection id
func NewFakePeer(id model.ConnectionID) *FakePeer {
	return &FakePeer{id: id}
}

// ID implements hub.Peer
func (p *FakePeer) ID() model.ConnectionID {
	return p.id
}

// Send implements hub.Peer
func (p *FakePeer) Send(frame transport.Frame) error {
	p.mu.Lock()
	if p.sendErr != nil {
		err := p.sendErr
		p.mu.Unlock()
		return err
	}
	p.frames = append(p.frames, frame)
	resolver, responder := p.resolver, p.responder
	p.mu.Unlock()

	if frame.ID != "" && resolver != nil && responder != nil {
		go func() {
			data, perr, ok := responder(frame)
			if ok {
				resolver.Resolve(p.id, transport.Ack(frame.ID, data, perr))
			}
		}()
	}
	return nil
}

// Respond makes the peer answer requests through resolver
func (p *FakePeer) Respond(resolver Resolver, responder Responder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolver = resolver
	p.responder = responder
}

// FailSends makes every following Send return err
func (p *FakePeer) FailSends(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

// Frames returns a copy of the frames received so far
func (p *FakePeer) Frames() []transport.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transport.Frame, len(p.frames))
	copy(out, p.frames)
	return out
}

// Received returns the frames with the given event name
func (p *FakePeer) Received(event string) []transport.Frame {
	var out []transport.Frame
	for _, f := range p.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// WaitFor polls until a frame with the given event arrives or the timeout
// passes
func (p *FakePeer) WaitFor(event string, timeout time.Duration) (transport.Frame, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if frames := p.Received(event); len(frames) > 0 {
			return frames[0], true
		}
		if time.Now().After(deadline) {
			return transport.Frame{}, false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Reset forgets the recorded frames
func (p *FakePeer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}
