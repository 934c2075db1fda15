package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcoot/soundboard-relay/internal/dependencies/clock"
	"github.com/mcoot/soundboard-relay/internal/dependencies/random"
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/storage"
)

// maxIDAttempts bounds id regeneration on the (practically impossible) event
// of a collision
const maxIDAttempts = 5

// ErrIDExhausted is returned when no free board id could be generated
var ErrIDExhausted = errors.New("could not generate a unique board id")

// Hasher digests and compares board secrets
type Hasher interface {
	Hash(secret string) string
	Equal(secret, digest string) bool
}

// Registry is the authoritative store of board state. It knows nothing about
// connections or transport.
type Registry struct {
	storage storage.Storage
	hasher  Hasher
	clock   clock.Clock
	random  random.Random
}

// NewRegistry creates a new board Registry
func NewRegistry(
	storage storage.Storage,
	hasher Hasher,
	clock clock.Clock,
	random random.Random,
) *Registry {
	return &Registry{
		storage: storage,
		hasher:  hasher,
		clock:   clock,
		random:  random,
	}
}

// Create registers a new board with a fresh id. The input data is deep
// copied and the secret, if any, is stored only as a digest.
func (r *Registry) Create(ctx context.Context, input model.BoardInput) (*model.Board, error) {
	id, err := r.newID(ctx)
	if err != nil {
		return nil, err
	}

	data := model.CloneDocument(input.Data)
	if data == nil {
		data = map[string]any{}
	}

	board := &model.Board{
		ID:        id,
		Locked:    input.Locked,
		Data:      data,
		CreatedAt: r.clock.Now(),
	}
	if input.Auth != nil {
		board.AuthHash = r.hasher.Hash(*input.Auth)
	}

	if err := r.storage.SaveBoard(ctx, board); err != nil {
		return nil, err
	}
	return board, nil
}

// Get retrieves a board by id
func (r *Registry) Get(ctx context.Context, id model.BoardID) (*model.Board, error) {
	return r.storage.GetBoard(ctx, id)
}

// Remove deletes a board and returns its last state
func (r *Registry) Remove(ctx context.Context, id model.BoardID) (*model.Board, error) {
	return r.storage.DeleteBoard(ctx, id)
}

// Update applies a partial update. Locked and Data replace the stored fields
// wholesale when set; Auth keeps, clears or replaces the credential.
func (r *Registry) Update(ctx context.Context, id model.BoardID, opts model.BoardOptions) (*model.Board, error) {
	var authHash string
	secret, setAuth := opts.Auth.Secret()
	if setAuth {
		authHash = r.hasher.Hash(secret)
	}

	return r.storage.UpdateBoard(ctx, id, func(board *model.Board) error {
		if opts.Locked != nil {
			board.Locked = *opts.Locked
		}
		if opts.Data != nil {
			board.Data = model.CloneDocument(opts.Data)
		}
		switch {
		case setAuth:
			board.AuthHash = authHash
		case opts.Auth.IsClear():
			board.AuthHash = ""
		}
		return nil
	})
}

// CheckAuth reports whether secret grants access to the board. Unknown boards
// never pass; open boards always do.
func (r *Registry) CheckAuth(ctx context.Context, id model.BoardID, secret *string) (bool, error) {
	board, err := r.storage.GetBoard(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrBoardNotFound) {
			return false, nil
		}
		return false, err
	}
	if !board.HasAuth() {
		return true, nil
	}
	if secret == nil {
		return false, nil
	}
	return r.hasher.Equal(*secret, board.AuthHash), nil
}

// Count returns the number of live boards
func (r *Registry) Count(ctx context.Context) (int, error) {
	return r.storage.CountBoards(ctx)
}

func (r *Registry) newID(ctx context.Context) (model.BoardID, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := model.BoardID(r.random.NewID())
		exists, err := r.storage.BoardExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check board id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}
