package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// BoardTTL bounds how long a board survives without registry reads or
	// writes. Zero keeps boards until their last member leaves. Boards whose
	// members only exchange sounds touch nothing here, so a non-zero TTL can
	// expire a board that still has members.
	BoardTTL time.Duration

	// KeyPrefix namespaces every key written by the relay
	KeyPrefix string

	// InstanceID scopes keys to one server process. Boards are never shared
	// between processes nor picked up again after a restart. Generated when
	// empty.
	InstanceID string

	// MaxTxRetries bounds optimistic transaction retries for UpdateBoard
	MaxTxRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		BoardTTL:     0,
		KeyPrefix:    "osb",
		MaxTxRetries: 100,
	}
}
