package keyValue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(zap.NewNop().Sugar(), nil, true)
	t.Cleanup(s.Close)
	return s
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "a", "1", time.Minute))

	value, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	missing, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestStore_ExpiredValueIsMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.hashmap["old"] = Value{value: "x", expires: time.Now().Add(-time.Second)}

	value, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, value)

	stored, err := s.SetNX(ctx, "old", "y", time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestStore_ZeroExpirationKeepsValue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "forever", "1", 0))
	assert.True(t, s.hashmap["forever"].expires.IsZero())

	value, err := s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "1", value)
}

func TestStore_SetNX(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	stored, err := s.SetNX(ctx, "user", "first", 0)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.SetNX(ctx, "user", "second", 0)
	require.NoError(t, err)
	assert.False(t, stored)

	value, err := s.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "first", value)
}

func TestStore_GetDelAndDel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, s.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, s.Set(ctx, "c", "3", time.Minute))

	value, err := s.GetDel(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	value, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, s.Del(ctx, "b", "c"))
	assert.Empty(t, s.hashmap)
}
