// Package protocol routes inbound frames to the board and sound services and
// writes their replies.
package protocol

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/soundboard-relay/internal/dependencies/clock"
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/services/board"
	"github.com/mcoot/soundboard-relay/internal/services/session"
	"github.com/mcoot/soundboard-relay/internal/services/sound"
	"github.com/mcoot/soundboard-relay/internal/transport"
	"github.com/mcoot/soundboard-relay/internal/transport/hub"
)

// BoardCounter reports the number of live boards
type BoardCounter interface {
	Count(ctx context.Context) (int, error)
}

// Dispatcher owns the connection lifecycle: it registers peers, opens their
// sessions, routes their frames and runs the leave transition on disconnect
type Dispatcher struct {
	hub      *hub.Hub
	sessions *session.Store
	boards   *board.Service
	sounds   *sound.Service
	counter  BoardCounter
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(
	hub *hub.Hub,
	sessions *session.Store,
	boards *board.Service,
	sounds *sound.Service,
	counter BoardCounter,
	clock clock.Clock,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		hub:      hub,
		sessions: sessions,
		boards:   boards,
		sounds:   sounds,
		counter:  counter,
		clock:    clock,
		logger:   logger.With(slog.String("component", "protocol")),
	}
}

// Connect registers a new connection and opens its session
func (d *Dispatcher) Connect(peer hub.Peer) error {
	if err := d.hub.Register(peer); err != nil {
		return err
	}
	d.sessions.Open(peer.ID())
	d.logger.Info("client connected", slog.String("connection_id", string(peer.ID())))
	return nil
}

// Disconnect runs the leave transition for the connection, then forgets it.
// It is safe to call more than once.
func (d *Dispatcher) Disconnect(ctx context.Context, connID model.ConnectionID) {
	sess, ok := d.sessions.Get(connID)
	if !ok {
		return
	}

	// Leave before unregistering so the member count still includes us
	if _, err := d.boards.Leave(ctx, sess); err != nil {
		d.logger.Error("leave on disconnect failed",
			slog.String("connection_id", string(connID)),
			slog.Any("error", err))
	}
	d.sessions.Close(connID)
	d.hub.Unregister(connID)

	d.logger.Info("client disconnected",
		slog.String("connection_id", string(connID)),
		slog.Duration("connection_duration", d.clock.Now().Sub(sess.ConnectedAt)))
}

// Handle processes one inbound frame. Frames of one connection must be
// handled in order; relayed requests complete in the background so the
// connection can keep answering requests addressed to it meanwhile.
func (d *Dispatcher) Handle(ctx context.Context, connID model.ConnectionID, frame transport.Frame) {
	if frame.Event == model.EventAck {
		if !d.hub.Resolve(connID, frame) {
			d.logger.Debug("ignored ack without pending request",
				slog.String("connection_id", string(connID)),
				slog.String("request_id", frame.ID))
		}
		return
	}

	sess, ok := d.sessions.Get(connID)
	if !ok {
		d.logger.Warn("frame from unknown connection",
			slog.String("connection_id", string(connID)),
			slog.String("event", frame.Event))
		return
	}

	switch frame.Event {
	case model.EventBoardCreate:
		board, err := d.boards.Create(ctx, sess, frame.Data)
		d.reply(sess, frame, board, err)

	case model.EventBoardJoin:
		board, err := d.boards.Join(ctx, sess, frame.Data)
		d.reply(sess, frame, board, err)

	case model.EventBoardLeave:
		left, err := d.boards.Leave(ctx, sess)
		if err == nil && !left {
			err = model.ErrDropped
		}
		d.reply(sess, frame, nil, err)

	case model.EventBoardUpdate:
		board, err := d.boards.Update(ctx, sess, frame.Data)
		d.reply(sess, frame, board, err)

	case model.EventBoardClientUpdate:
		data, err := d.boards.UpdateClientData(ctx, sess, frame.Data)
		d.reply(sess, frame, data, err)

	case model.EventSoundPlay:
		d.reply(sess, frame, nil, d.sounds.Play(ctx, sess, frame.Data))

	case model.EventSoundUpdate:
		d.reply(sess, frame, nil, d.sounds.UpdateSound(ctx, sess, frame.Data))

	case model.EventSoundDelete:
		d.reply(sess, frame, nil, d.sounds.DeleteSound(ctx, sess, frame.Data))

	case model.EventSoundMissing:
		go func() {
			sound, err := d.sounds.Missing(ctx, sess, frame.Data)
			d.reply(sess, frame, sound, err)
		}()

	case model.EventSoundFetch:
		go func() {
			sounds, err := d.sounds.Fetch(ctx, sess)
			d.reply(sess, frame, sounds, err)
		}()

	default:
		d.logger.Warn("unknown event",
			slog.String("connection_id", string(connID)),
			slog.String("event", frame.Event))
		d.reply(sess, frame, nil, model.NewProtocolError(model.CodeInvalidArguments, frame.Event))
	}
}

// reply acks the frame when the client asked for one. Dropped requests get
// no ack at all.
func (d *Dispatcher) reply(sess *session.Session, frame transport.Frame, data any, err error) {
	if errors.Is(err, model.ErrDropped) {
		d.logger.Debug("request dropped",
			slog.String("connection_id", string(sess.ID)),
			slog.String("event", frame.Event))
		return
	}

	var perr *model.ProtocolError
	if err != nil {
		perr = model.ToProtocolError(err, nil)
		if perr.Code == model.CodeInternal {
			d.logger.Error("request failed",
				slog.String("connection_id", string(sess.ID)),
				slog.String("event", frame.Event),
				slog.Any("error", err))
		} else {
			d.logger.Debug("request rejected",
				slog.String("connection_id", string(sess.ID)),
				slog.String("event", frame.Event),
				slog.String("code", string(perr.Code)))
		}
		data = nil
	}

	if frame.ID == "" {
		return
	}
	if err := d.hub.Send(sess.ID, transport.Ack(frame.ID, data, perr)); err != nil {
		d.logger.Warn("ack delivery failed",
			slog.String("connection_id", string(sess.ID)),
			slog.String("event", frame.Event),
			slog.Any("error", err))
	}
}

// Stats combines the live board count with the hub's counters
type Stats struct {
	Boards int `json:"boards"`
	hub.Stats
}

// Stats returns current server load
func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	n, err := d.counter.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Boards: n, Stats: d.hub.Stats()}, nil
}
