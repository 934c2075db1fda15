package storage

import (
	"context"
	"errors"

	"github.com/mcoot/soundboard-relay/internal/model"
)

// ErrConflict is returned when an atomic update keeps losing races with
// concurrent writers
var ErrConflict = errors.New("concurrent update conflict")

// UpdateFunc mutates a board inside an atomic read-modify-write. Returning an
// error aborts the update and leaves the stored board untouched.
type UpdateFunc func(board *model.Board) error

// Storage defines the interface for board persistence. Implementations never
// hand out references to their internal state: boards are copied on the way
// in and on the way out.
type Storage interface {
	SaveBoard(ctx context.Context, board *model.Board) error
	GetBoard(ctx context.Context, id model.BoardID) (*model.Board, error)
	BoardExists(ctx context.Context, id model.BoardID) (bool, error)

	// DeleteBoard removes the board and returns its last stored value
	DeleteBoard(ctx context.Context, id model.BoardID) (*model.Board, error)

	// UpdateBoard applies fn atomically and returns the stored result
	UpdateBoard(ctx context.Context, id model.BoardID, fn UpdateFunc) (*model.Board, error)

	CountBoards(ctx context.Context) (int, error)
}
