package board

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/soundboard-relay/internal/dependencies/random"
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/services/registry"
	"github.com/mcoot/soundboard-relay/internal/services/session"
	"github.com/mcoot/soundboard-relay/internal/transport"
	"github.com/mcoot/soundboard-relay/internal/validator"
)

var (
	createSchema = validator.MustParse(map[string]any{
		"clientData": map[string]any{},
		"auth":       "string?",
		"locked":     "boolean?",
		"boardData":  map[string]any{validator.DefaultOptionalKey: true},
	})
	joinSchema = validator.MustParse(map[string]any{
		"clientData": map[string]any{},
		"boardId":    "string",
		"auth":       "string?",
	})
	optionsSchema = validator.MustParse(map[string]any{
		"auth":   "string?",
		"locked": "boolean?",
	})
	clientDataSchema = validator.MustParse(map[string]any{})
)

// Service runs the board membership state machine of each connection.
// A session is either unbound or bound to exactly one board.
type Service struct {
	registry  *registry.Registry
	transport transport.Transport
	logger    *slog.Logger
}

// New creates a new board Service
func New(registry *registry.Registry, transport transport.Transport, logger *slog.Logger) *Service {
	return &Service{
		registry:  registry,
		transport: transport,
		logger:    logger.With(slog.String("component", "board")),
	}
}

// Create registers a new board and binds the session to it. A session that
// is already bound gets its current board back unchanged.
func (s *Service) Create(ctx context.Context, sess *session.Session, args any) (*model.Board, error) {
	if !validator.Validate(args, createSchema) {
		return nil, model.NewProtocolError(model.CodeInvalidArguments, args)
	}
	input := model.BoardInput{}
	if boardData := validator.Field(args, "boardData"); boardData != validator.Undefined {
		// Sequences satisfy object schemas but cannot be stored as board data
		data, ok := boardData.(map[string]any)
		if !ok {
			return nil, model.NewProtocolError(model.CodeInvalidArguments, args)
		}
		input.Data = data
	}

	if boardID, bound := sess.BoardID(); bound {
		current, err := s.registry.Get(ctx, boardID)
		if err == nil {
			return current, nil
		}
		if !errors.Is(err, model.ErrBoardNotFound) {
			return nil, err
		}
		// The board vanished under us; drop its group and create a new one
		if err := s.transport.LeaveGroup(sess.ID, string(boardID)); err != nil {
			return nil, err
		}
		sess.Unbind()
	}

	sess.SetClientData(validator.Field(args, "clientData"))
	if _, err := s.Leave(ctx, sess); err != nil {
		return nil, err
	}

	if auth, ok := validator.Field(args, "auth").(string); ok {
		input.Auth = &auth
	}
	if locked, ok := validator.Field(args, "locked").(bool); ok {
		input.Locked = locked
	}

	board, err := s.registry.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	sess.Bind(board.ID)
	if err := s.transport.JoinGroup(sess.ID, string(board.ID)); err != nil {
		return nil, err
	}

	s.logger.Info("board created",
		slog.String("connection_id", string(sess.ID)),
		slog.String("board_id", string(board.ID)),
		slog.Bool("locked", board.Locked),
		slog.Bool("auth", board.HasAuth()))
	return board, nil
}

// Join binds the session to an existing board, leaving its current one
// first. Joining the board the session is already bound to returns it
// without side effects.
func (s *Service) Join(ctx context.Context, sess *session.Session, args any) (*model.Board, error) {
	if !validator.Validate(args, joinSchema) {
		return nil, model.NewProtocolError(model.CodeInvalidArguments, args)
	}
	sess.SetClientData(validator.Field(args, "clientData"))

	boardID := model.BoardID(validator.Field(args, "boardId").(string))
	board, err := s.registry.Get(ctx, boardID)
	if err != nil && !errors.Is(err, model.ErrBoardNotFound) {
		return nil, err
	}

	if current, bound := sess.BoardID(); board != nil && bound && current == board.ID {
		return board, nil
	}

	if board == nil || !random.IsID(string(board.ID)) {
		s.logger.Warn("join rejected",
			slog.String("connection_id", string(sess.ID)),
			slog.String("board_id", string(boardID)),
			slog.String("reason", string(model.CodeInvalidBoardID)))
		return nil, model.NewProtocolError(model.CodeInvalidBoardID, string(boardID))
	}

	if board.Locked {
		s.logger.Warn("join rejected",
			slog.String("connection_id", string(sess.ID)),
			slog.String("board_id", string(boardID)),
			slog.String("reason", string(model.CodeBoardLocked)))
		return nil, model.NewProtocolError(model.CodeBoardLocked, string(boardID))
	}

	provided := validator.Field(args, "auth")
	var secret *string
	if auth, ok := provided.(string); ok {
		secret = &auth
	}
	ok, err := s.registry.CheckAuth(ctx, board.ID, secret)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("join rejected",
			slog.String("connection_id", string(sess.ID)),
			slog.String("board_id", string(boardID)),
			slog.String("reason", string(model.CodeAuthFailed)))
		return nil, model.NewProtocolError(model.CodeAuthFailed, validator.Defined(provided))
	}

	if _, err := s.Leave(ctx, sess); err != nil {
		return nil, err
	}

	sess.Bind(board.ID)
	if err := s.transport.JoinGroup(sess.ID, string(board.ID)); err != nil {
		return nil, err
	}
	if err := s.transport.Broadcast(string(board.ID), model.EventBoardJoined,
		model.ClientPayload{Client: sess.Client()}, sess.ID); err != nil {
		return nil, err
	}

	s.logger.Info("board joined",
		slog.String("connection_id", string(sess.ID)),
		slog.String("board_id", string(board.ID)))
	return board, nil
}

// Leave unbinds the session from its board, telling the whole group. The
// last member out removes the board. It returns false when there was
// nothing to leave, which is also the case for a session whose client data
// was never set.
func (s *Service) Leave(ctx context.Context, sess *session.Session) (bool, error) {
	boardID, bound := sess.BoardID()
	if !bound {
		return false, nil
	}
	if _, hasClient := sess.ClientData(); !hasClient {
		return false, nil
	}

	group := string(boardID)
	if err := s.transport.Broadcast(group, model.EventBoardLeft,
		model.ClientPayload{Client: sess.Client()}, ""); err != nil {
		return false, err
	}

	members, err := s.transport.Members(ctx, group)
	if err != nil {
		return false, err
	}
	removed := false
	if len(members) <= 1 {
		if _, err := s.registry.Remove(ctx, boardID); err != nil && !errors.Is(err, model.ErrBoardNotFound) {
			return false, err
		}
		removed = true
	}

	sess.Unbind()
	if err := s.transport.LeaveGroup(sess.ID, group); err != nil {
		return false, err
	}

	s.logger.Info("board left",
		slog.String("connection_id", string(sess.ID)),
		slog.String("board_id", group),
		slog.Bool("board_removed", removed))
	return true, nil
}

// Update changes the bound board's lock state, data or credential and
// broadcasts the new state to the whole group. Unbound sessions are ignored.
func (s *Service) Update(ctx context.Context, sess *session.Session, args any) (*model.Board, error) {
	boardID, bound := sess.BoardID()
	if !bound {
		return nil, model.ErrDropped
	}

	options := validator.Field(args, "options")
	if !validator.Validate(options, optionsSchema) {
		return nil, model.NewProtocolError(model.CodeInvalidArguments, args)
	}
	// A sequence passes the options schema and carries no options
	raw, _ := options.(map[string]any)
	opts, ok := parseOptions(raw)
	if !ok {
		return nil, model.NewProtocolError(model.CodeInvalidArguments, args)
	}

	board, err := s.registry.Update(ctx, boardID, opts)
	if err != nil {
		if errors.Is(err, model.ErrBoardNotFound) {
			return nil, model.NewProtocolError(model.CodeNotInABoard, nil)
		}
		return nil, err
	}

	if err := s.transport.Broadcast(string(board.ID), model.EventBoardUpdated,
		model.BoardPayload{Board: board}, ""); err != nil {
		return nil, err
	}

	s.logger.Info("board updated",
		slog.String("connection_id", string(sess.ID)),
		slog.String("board_id", string(board.ID)))
	return board, nil
}

// UpdateClientData replaces the session's client data and tells the other
// members. Unbound sessions are ignored.
func (s *Service) UpdateClientData(ctx context.Context, sess *session.Session, args any) (any, error) {
	boardID, bound := sess.BoardID()
	if !bound {
		return nil, model.ErrDropped
	}

	clientData := validator.Field(args, "clientData")
	if !validator.Validate(clientData, clientDataSchema) {
		return nil, model.NewProtocolError(model.CodeInvalidArguments, args)
	}

	sess.SetClientData(clientData)
	if err := s.transport.Broadcast(string(boardID), model.EventBoardClientUpdated,
		model.ClientPayload{Client: sess.Client()}, sess.ID); err != nil {
		return nil, err
	}

	s.logger.Debug("client data updated",
		slog.String("connection_id", string(sess.ID)),
		slog.String("board_id", string(boardID)))
	return clientData, nil
}

// parseOptions reads board options. A missing or null field leaves the board
// field alone, except auth where null removes the credential.
func parseOptions(raw map[string]any) (model.BoardOptions, bool) {
	var opts model.BoardOptions

	if locked, ok := raw["locked"].(bool); ok {
		opts.Locked = &locked
	}

	if data, present := raw["data"]; present && data != nil {
		doc, ok := data.(map[string]any)
		if !ok {
			return opts, false
		}
		opts.Data = doc
	}

	if auth, present := raw["auth"]; present {
		if secret, ok := auth.(string); ok {
			opts.Auth = model.AuthSet(secret)
		} else {
			opts.Auth = model.AuthClear()
		}
	}
	return opts, true
}
