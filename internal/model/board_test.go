package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardCloneIsDeep(t *testing.T) {
	original := &Board{
		ID:   "b1",
		Data: map[string]any{"name": "x", "tags": []any{"a", map[string]any{"k": 1.0}}},
	}

	clone := original.Clone()
	clone.Data["name"] = "y"
	clone.Data["tags"].([]any)[1].(map[string]any)["k"] = 2.0

	assert.Equal(t, "x", original.Data["name"])
	assert.Equal(t, 1.0, original.Data["tags"].([]any)[1].(map[string]any)["k"])
}

func TestBoardCloneNil(t *testing.T) {
	var b *Board
	assert.Nil(t, b.Clone())
	assert.Nil(t, CloneDocument(nil))
}

func TestAuthUpdateStates(t *testing.T) {
	var zero AuthUpdate
	assert.True(t, zero.IsKeep())

	assert.True(t, AuthKeep().IsKeep())
	assert.True(t, AuthClear().IsClear())
	assert.False(t, AuthClear().IsKeep())

	secret, ok := AuthSet("pwd").Secret()
	require.True(t, ok)
	assert.Equal(t, "pwd", secret)

	_, ok = AuthClear().Secret()
	assert.False(t, ok)
}
