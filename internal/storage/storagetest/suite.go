// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/storage"
)

// Suite runs the common storage tests. Backends embed it and set Storage in
// their SetupTest.
type Suite struct {
	suite.Suite
	Storage storage.Storage
	Ctx     context.Context
}

func newBoard(id model.BoardID) *model.Board {
	return &model.Board{
		ID:        id,
		Data:      map[string]any{"name": "Board " + string(id)},
		CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *Suite) TestSaveAndGetBoard() {
	board := newBoard("board-1")
	board.AuthHash = "abc"
	board.Locked = true

	err := s.Storage.SaveBoard(s.Ctx, board)
	s.Require().NoError(err)

	retrieved, err := s.Storage.GetBoard(s.Ctx, "board-1")
	s.Require().NoError(err)
	s.Equal(board.ID, retrieved.ID)
	s.True(retrieved.Locked)
	s.Equal("abc", retrieved.AuthHash)
	s.Equal("Board board-1", retrieved.Data["name"])
	s.True(board.CreatedAt.Equal(retrieved.CreatedAt))
}

func (s *Suite) TestGetBoardNotFound() {
	_, err := s.Storage.GetBoard(s.Ctx, "nonexistent")
	s.ErrorIs(err, model.ErrBoardNotFound)
}

func (s *Suite) TestReturnedBoardIsACopy() {
	_ = s.Storage.SaveBoard(s.Ctx, newBoard("board-1"))

	retrieved, _ := s.Storage.GetBoard(s.Ctx, "board-1")
	retrieved.Data["name"] = "mutated"
	retrieved.Locked = true

	again, err := s.Storage.GetBoard(s.Ctx, "board-1")
	s.Require().NoError(err)
	s.Equal("Board board-1", again.Data["name"])
	s.False(again.Locked)
}

func (s *Suite) TestBoardExists() {
	exists, err := s.Storage.BoardExists(s.Ctx, "board-1")
	s.Require().NoError(err)
	s.False(exists)

	_ = s.Storage.SaveBoard(s.Ctx, newBoard("board-1"))

	exists, err = s.Storage.BoardExists(s.Ctx, "board-1")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *Suite) TestDeleteBoardReturnsRemoved() {
	_ = s.Storage.SaveBoard(s.Ctx, newBoard("board-1"))

	removed, err := s.Storage.DeleteBoard(s.Ctx, "board-1")
	s.Require().NoError(err)
	s.Equal(model.BoardID("board-1"), removed.ID)

	_, err = s.Storage.GetBoard(s.Ctx, "board-1")
	s.ErrorIs(err, model.ErrBoardNotFound)
}

func (s *Suite) TestDeleteUnknownBoard() {
	_, err := s.Storage.DeleteBoard(s.Ctx, "nonexistent")
	s.ErrorIs(err, model.ErrBoardNotFound)
}

func (s *Suite) TestUpdateBoard() {
	_ = s.Storage.SaveBoard(s.Ctx, newBoard("board-1"))

	updated, err := s.Storage.UpdateBoard(s.Ctx, "board-1", func(b *model.Board) error {
		b.Locked = true
		b.Data = map[string]any{"name": "renamed"}
		return nil
	})
	s.Require().NoError(err)
	s.True(updated.Locked)
	s.Equal("renamed", updated.Data["name"])

	stored, _ := s.Storage.GetBoard(s.Ctx, "board-1")
	s.True(stored.Locked)
	s.Equal("renamed", stored.Data["name"])
}

func (s *Suite) TestUpdateBoardCannotChangeID() {
	_ = s.Storage.SaveBoard(s.Ctx, newBoard("board-1"))

	updated, err := s.Storage.UpdateBoard(s.Ctx, "board-1", func(b *model.Board) error {
		b.ID = "other"
		return nil
	})
	s.Require().NoError(err)
	s.Equal(model.BoardID("board-1"), updated.ID)

	exists, _ := s.Storage.BoardExists(s.Ctx, "other")
	s.False(exists)
}

func (s *Suite) TestUpdateBoardNotFound() {
	called := false
	_, err := s.Storage.UpdateBoard(s.Ctx, "nonexistent", func(b *model.Board) error {
		called = true
		return nil
	})
	s.ErrorIs(err, model.ErrBoardNotFound)
	s.False(called)
}

func (s *Suite) TestUpdateBoardErrorLeavesBoardUntouched() {
	_ = s.Storage.SaveBoard(s.Ctx, newBoard("board-1"))
	errAbort := errors.New("abort")

	_, err := s.Storage.UpdateBoard(s.Ctx, "board-1", func(b *model.Board) error {
		b.Locked = true
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	stored, _ := s.Storage.GetBoard(s.Ctx, "board-1")
	s.False(stored.Locked)
}

func (s *Suite) TestCountBoards() {
	count, err := s.Storage.CountBoards(s.Ctx)
	s.Require().NoError(err)
	s.Equal(0, count)

	_ = s.Storage.SaveBoard(s.Ctx, newBoard("board-1"))
	_ = s.Storage.SaveBoard(s.Ctx, newBoard("board-2"))
	_, _ = s.Storage.DeleteBoard(s.Ctx, "board-1")

	count, err = s.Storage.CountBoards(s.Ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *Suite) TestConcurrentUpdatesAreAtomic() {
	board := newBoard("board-1")
	board.Data = map[string]any{"n": 0.0}
	_ = s.Storage.SaveBoard(s.Ctx, board)

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Storage.UpdateBoard(s.Ctx, "board-1", func(b *model.Board) error {
				n, _ := b.Data["n"].(float64)
				b.Data["n"] = n + 1
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	stored, err := s.Storage.GetBoard(s.Ctx, "board-1")
	s.Require().NoError(err)
	s.Equal(float64(writers), stored.Data["n"])
}
