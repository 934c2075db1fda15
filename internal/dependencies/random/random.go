package random

import (
	"github.com/google/uuid"
)

// Random generates identifiers that can be mocked for testing
type Random interface {
	// NewID returns a new 128-bit random identifier in canonical UUID form
	NewID() string
}

// UUIDRandom implements Random with version 4 UUIDs
type UUIDRandom struct{}

// New creates a new UUIDRandom
func New() *UUIDRandom {
	return &UUIDRandom{}
}

// NewID returns a random UUID string
func (r *UUIDRandom) NewID() string {
	return uuid.NewString()
}

// IsID reports whether s is a well-formed identifier as produced by NewID
func IsID(s string) bool {
	return uuid.Validate(s) == nil
}
