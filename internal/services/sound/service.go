package sound

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/services/session"
	"github.com/mcoot/soundboard-relay/internal/transport"
	"github.com/mcoot/soundboard-relay/internal/validator"
)

var (
	soundIDSchema = validator.MustParse(map[string]any{"soundId": "string"})
	soundSchema   = validator.MustParse(map[string]any{"sound": map[string]any{"id": "string"}})
)

// Config holds configuration for the sound relay
type Config struct {
	// FetchTimeout bounds how long the host may take to answer sound:fetch
	FetchTimeout time.Duration
}

// DefaultConfig returns default sound relay configuration
func DefaultConfig() Config {
	return Config{
		FetchTimeout: 5 * time.Second,
	}
}

// Service relays sound events between the members of a board. Every
// operation is dropped silently for sessions not bound to a board.
type Service struct {
	sessions  *session.Store
	transport transport.Transport
	cfg       Config
	logger    *slog.Logger
}

// New creates a new sound Service
func New(sessions *session.Store, transport transport.Transport, cfg Config, logger *slog.Logger) *Service {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Service{
		sessions:  sessions,
		transport: transport,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "sound")),
	}
}

// Play records that the session played the sound and tells the whole group
func (s *Service) Play(ctx context.Context, sess *session.Session, args any) error {
	boardID, bound := sess.BoardID()
	if !bound {
		return model.ErrDropped
	}
	if !validator.Validate(args, soundIDSchema) {
		return model.NewProtocolError(model.CodeInvalidArguments, args)
	}

	soundID := validator.Field(args, "soundId").(string)
	sess.MarkPlayed(soundID)
	if err := s.transport.Broadcast(string(boardID), model.EventSoundPlayed,
		model.SoundIDPayload{SoundID: soundID}, ""); err != nil {
		return err
	}

	s.logger.Debug("sound played",
		slog.String("connection_id", string(sess.ID)),
		slog.String("board_id", string(boardID)),
		slog.String("sound_id", soundID))
	return nil
}

// UpdateSound relays a changed sound to the whole group
func (s *Service) UpdateSound(ctx context.Context, sess *session.Session, args any) error {
	boardID, bound := sess.BoardID()
	if !bound {
		return model.ErrDropped
	}
	if !validator.Validate(args, soundSchema) {
		return model.NewProtocolError(model.CodeInvalidArguments, args)
	}

	sound := validator.Field(args, "sound")
	if err := s.transport.Broadcast(string(boardID), model.EventSoundUpdated,
		model.SoundPayload{Sound: sound}, ""); err != nil {
		return err
	}

	s.logger.Debug("sound updated",
		slog.String("connection_id", string(sess.ID)),
		slog.String("board_id", string(boardID)),
		slog.Any("sound_id", validator.Field(sound, "id")))
	return nil
}

// DeleteSound relays a sound deletion to the whole group
func (s *Service) DeleteSound(ctx context.Context, sess *session.Session, args any) error {
	boardID, bound := sess.BoardID()
	if !bound {
		return model.ErrDropped
	}
	if !validator.Validate(args, soundIDSchema) {
		return model.NewProtocolError(model.CodeInvalidArguments, args)
	}

	soundID := validator.Field(args, "soundId").(string)
	if err := s.transport.Broadcast(string(boardID), model.EventSoundDeleted,
		model.SoundIDPayload{SoundID: soundID}, ""); err != nil {
		return err
	}

	s.logger.Debug("sound deleted",
		slog.String("connection_id", string(sess.ID)),
		slog.String("board_id", string(boardID)),
		slog.String("sound_id", soundID))
	return nil
}

// Missing asks the first member that played the sound to supply it and
// returns that member's answer unchanged. When nobody played it the request
// is dropped and the caller has to time out on its own.
func (s *Service) Missing(ctx context.Context, sess *session.Session, args any) (any, error) {
	boardID, bound := sess.BoardID()
	if !bound {
		return nil, model.ErrDropped
	}
	if !validator.Validate(args, soundIDSchema) {
		return nil, model.NewProtocolError(model.CodeInvalidArguments, args)
	}
	soundID := validator.Field(args, "soundId").(string)

	holder, found, err := s.findHolder(ctx, boardID, soundID)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.Debug("no holder for missing sound",
			slog.String("connection_id", string(sess.ID)),
			slog.String("board_id", string(boardID)),
			slog.String("sound_id", soundID))
		return nil, model.ErrDropped
	}

	s.logger.Debug("relaying missing sound",
		slog.String("connection_id", string(sess.ID)),
		slog.String("holder_id", string(holder)),
		slog.String("board_id", string(boardID)),
		slog.String("sound_id", soundID))

	sound, err := s.transport.Request(ctx, holder, model.EventSoundMissing, model.SoundIDPayload{SoundID: soundID})
	if err != nil {
		var perr *model.ProtocolError
		if errors.As(err, &perr) {
			return nil, perr
		}
		// The holder went away or the caller disconnected
		return nil, model.ErrDropped
	}
	return sound, nil
}

// Fetch asks the board host, the first member in join order, for its sound
// list. A host that does not answer within FetchTimeout yields Timeout.
func (s *Service) Fetch(ctx context.Context, sess *session.Session) (any, error) {
	boardID, bound := sess.BoardID()
	if !bound {
		return nil, model.ErrDropped
	}

	members, err := s.transport.Members(ctx, string(boardID))
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, model.NewProtocolError(model.CodeTimeout, nil)
	}
	host := members[0]

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	sounds, err := s.transport.Request(ctx, host, model.EventSoundFetch, nil)
	if err != nil {
		var perr *model.ProtocolError
		if errors.As(err, &perr) {
			return nil, perr
		}
		s.logger.Warn("sound fetch failed",
			slog.String("connection_id", string(sess.ID)),
			slog.String("host_id", string(host)),
			slog.String("board_id", string(boardID)),
			slog.Any("error", err))
		return nil, model.NewProtocolError(model.CodeTimeout, nil)
	}

	s.logger.Debug("sound list fetched",
		slog.String("connection_id", string(sess.ID)),
		slog.String("host_id", string(host)),
		slog.String("board_id", string(boardID)))
	return sounds, nil
}

func (s *Service) findHolder(ctx context.Context, boardID model.BoardID, soundID string) (model.ConnectionID, bool, error) {
	members, err := s.transport.Members(ctx, string(boardID))
	if err != nil {
		return "", false, err
	}
	for _, id := range members {
		member, ok := s.sessions.Get(id)
		if ok && member.HasPlayed(soundID) {
			return id, true, nil
		}
	}
	return "", false, nil
}
