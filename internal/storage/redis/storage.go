package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
	keys   keyspace
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	defaults := DefaultConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = defaults.MaxTxRetries
	}

	return &Storage{
		client: client,
		cfg:    cfg,
		keys:   newKeyspace(cfg.KeyPrefix, cfg.InstanceID),
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// InstanceID returns the id scoping this instance's keys
func (s *Storage) InstanceID() string {
	return s.cfg.InstanceID
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) SaveBoard(ctx context.Context, board *model.Board) error {
	data, err := json.Marshal(board)
	if err != nil {
		return err
	}

	// Use pipeline for atomic save + index update
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keys.board(board.ID), data, s.cfg.BoardTTL)
	pipe.SAdd(ctx, s.keys.boardIndex(), string(board.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetBoard(ctx context.Context, id model.BoardID) (*model.Board, error) {
	var (
		data []byte
		err  error
	)
	if s.cfg.BoardTTL > 0 {
		data, err = s.client.GetEx(ctx, s.keys.board(id), s.cfg.BoardTTL).Bytes()
	} else {
		data, err = s.client.Get(ctx, s.keys.board(id)).Bytes()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrBoardNotFound
		}
		return nil, err
	}

	return decodeBoard(data)
}

func (s *Storage) BoardExists(ctx context.Context, id model.BoardID) (bool, error) {
	exists, err := s.client.Exists(ctx, s.keys.board(id)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (s *Storage) DeleteBoard(ctx context.Context, id model.BoardID) (*model.Board, error) {
	var getDel *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getDel = pipe.GetDel(ctx, s.keys.board(id))
		pipe.SRem(ctx, s.keys.boardIndex(), string(id))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	data, err := getDel.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrBoardNotFound
		}
		return nil, err
	}
	return decodeBoard(data)
}

func (s *Storage) UpdateBoard(ctx context.Context, id model.BoardID, fn storage.UpdateFunc) (*model.Board, error) {
	key := s.keys.board(id)

	for attempt := 0; attempt < s.cfg.MaxTxRetries; attempt++ {
		var updated *model.Board

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return model.ErrBoardNotFound
				}
				return err
			}

			board, err := decodeBoard(data)
			if err != nil {
				return err
			}
			if err := fn(board); err != nil {
				return err
			}
			board.ID = id

			encoded, err := json.Marshal(board)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, s.cfg.BoardTTL)
				return nil
			})
			if err != nil {
				return err
			}
			updated = board
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, fmt.Errorf("update board %s: %w", id, storage.ErrConflict)
}

// CountBoards counts the live boards, pruning index entries whose board
// expired
func (s *Storage) CountBoards(ctx context.Context) (int, error) {
	ids, err := s.client.SMembers(ctx, s.keys.boardIndex()).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Exists(ctx, s.keys.board(model.BoardID(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	count := 0
	var stale []any
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			count++
		} else {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.keys.boardIndex(), stale...).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func decodeBoard(data []byte) (*model.Board, error) {
	var board model.Board
	if err := json.Unmarshal(data, &board); err != nil {
		return nil, err
	}
	if board.Data == nil {
		board.Data = map[string]any{}
	}
	return &board, nil
}
