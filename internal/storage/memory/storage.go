package memory

import (
	"context"
	"sync"

	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu     sync.RWMutex
	boards map[model.BoardID]*model.Board
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		boards: make(map[model.BoardID]*model.Board),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) SaveBoard(ctx context.Context, board *model.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[board.ID] = board.Clone()
	return nil
}

func (s *Storage) GetBoard(ctx context.Context, id model.BoardID) (*model.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, ok := s.boards[id]
	if !ok {
		return nil, model.ErrBoardNotFound
	}
	return board.Clone(), nil
}

func (s *Storage) BoardExists(ctx context.Context, id model.BoardID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.boards[id]
	return ok, nil
}

func (s *Storage) DeleteBoard(ctx context.Context, id model.BoardID) (*model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[id]
	if !ok {
		return nil, model.ErrBoardNotFound
	}
	delete(s.boards, id)
	return board, nil
}

func (s *Storage) UpdateBoard(ctx context.Context, id model.BoardID, fn storage.UpdateFunc) (*model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.boards[id]
	if !ok {
		return nil, model.ErrBoardNotFound
	}

	// Work on a copy so a failing fn leaves the stored board untouched
	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.ID = id
	s.boards[id] = updated
	return updated.Clone(), nil
}

func (s *Storage) CountBoards(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.boards), nil
}
