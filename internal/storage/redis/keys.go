package redis

import (
	"fmt"

	"github.com/mcoot/soundboard-relay/internal/model"
)

// keyspace builds the Redis keys for one server instance
type keyspace struct {
	prefix string
}

func newKeyspace(prefix, instanceID string) keyspace {
	return keyspace{prefix: fmt.Sprintf("%s:%s", prefix, instanceID)}
}

// board returns the Redis key for a Board
func (k keyspace) board(id model.BoardID) string {
	return fmt.Sprintf("%s:board:%s", k.prefix, id)
}

// boardIndex returns the Redis key for the SET of live board ids
func (k keyspace) boardIndex() string {
	return fmt.Sprintf("%s:idx:boards", k.prefix)
}
