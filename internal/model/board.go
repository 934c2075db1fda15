package model

import "time"

// BoardID uniquely identifies a board
type BoardID string

// Board is a shared session scoping membership, lock state, data and an
// optional credential
type Board struct {
	ID        BoardID        `json:"id"`
	Locked    bool           `json:"locked"`
	Data      map[string]any `json:"data"`
	AuthHash  string         `json:"auth,omitempty"` // hex digest, never the secret
	CreatedAt time.Time      `json:"createdAt"`
}

// HasAuth returns true if joining the board requires a secret
func (b *Board) HasAuth() bool {
	return b.AuthHash != ""
}

// Clone returns a deep copy of the board
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Data = CloneDocument(b.Data)
	return &clone
}

// BoardInput holds the caller-supplied fields for a new board
type BoardInput struct {
	Auth   *string // nil means no authentication
	Locked bool
	Data   map[string]any
}

// BoardOptions describes a partial board update. Nil fields are left as is.
type BoardOptions struct {
	Locked *bool
	Data   map[string]any
	Auth   AuthUpdate
}

type authOp int

const (
	authKeep authOp = iota
	authClear
	authSet
)

// AuthUpdate distinguishes "leave auth alone" from "remove auth" from
// "replace auth". The zero value keeps the current credential.
type AuthUpdate struct {
	op     authOp
	secret string
}

// AuthKeep leaves the board credential unchanged
func AuthKeep() AuthUpdate { return AuthUpdate{op: authKeep} }

// AuthClear removes the board credential
func AuthClear() AuthUpdate { return AuthUpdate{op: authClear} }

// AuthSet replaces the board credential with the given secret
func AuthSet(secret string) AuthUpdate { return AuthUpdate{op: authSet, secret: secret} }

// IsKeep reports whether the credential is left untouched
func (a AuthUpdate) IsKeep() bool { return a.op == authKeep }

// IsClear reports whether the credential is removed
func (a AuthUpdate) IsClear() bool { return a.op == authClear }

// Secret returns the new secret and whether one was set
func (a AuthUpdate) Secret() (string, bool) {
	return a.secret, a.op == authSet
}

// CloneDocument deep-copies a generic key/value document
func CloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
