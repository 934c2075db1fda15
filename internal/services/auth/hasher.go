package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names a supported digest function
type Algorithm string

const (
	AlgorithmSHA256  Algorithm = "sha256"
	AlgorithmBlake2b Algorithm = "blake2b-256"
)

// ErrUnknownAlgorithm is returned for an unsupported algorithm name
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Hasher produces one-way digests of board secrets for storage and comparison.
// Secrets are never stored or logged in clear form.
type Hasher struct {
	algorithm Algorithm
	newHash   func() hash.Hash
}

// Config holds configuration for the hasher
type Config struct {
	Algorithm Algorithm
}

// DefaultConfig returns default hasher configuration
func DefaultConfig() Config {
	return Config{
		Algorithm: AlgorithmSHA256,
	}
}

// New creates a Hasher for the configured algorithm
func New(cfg Config) (*Hasher, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultConfig().Algorithm
	}

	var newHash func() hash.Hash
	switch cfg.Algorithm {
	case AlgorithmSHA256:
		newHash = sha256.New
	case AlgorithmBlake2b:
		newHash = func() hash.Hash {
			// Only fails for an oversized key; we never pass one
			h, _ := blake2b.New256(nil)
			return h
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}

	return &Hasher{algorithm: cfg.Algorithm, newHash: newHash}, nil
}

// Algorithm returns the digest function in use
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Hash returns the hex encoded digest of secret
func (h *Hasher) Hash(secret string) string {
	d := h.newHash()
	d.Write([]byte(secret))
	return hex.EncodeToString(d.Sum(nil))
}

// Equal reports whether secret hashes to digest, in constant time
func (h *Hasher) Equal(secret, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(secret)), []byte(digest)) == 1
}
