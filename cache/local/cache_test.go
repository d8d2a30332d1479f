package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *LocalCache {
	t.Helper()
	c, err := NewCache(Config{})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestKV(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Del(ctx, "k"))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestKV_TTL(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetNX(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "a", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock", "b", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := c.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestHash(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "h", "f1", "v1"))
	require.NoError(t, c.HSet(ctx, "h", "f2", "v2"))

	v, err := c.HGet(ctx, "h", "f1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	all, err := c.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, all)

	require.NoError(t, c.HDel(ctx, "h", "f1"))
	_, err = c.HGet(ctx, "h", "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSet(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "s", "a", "b", "a"))
	members, err := c.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	ok, err := c.SIsMember(ctx, "s", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.SRem(ctx, "s", "a"))
	ok, err = c.SIsMember(ctx, "s", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "l", "a"))
	require.NoError(t, c.LPush(ctx, "l", "b"))

	items, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, items, "LPush prepends")

	require.NoError(t, c.LSet(ctx, "l", []string{"x"}))
	items, err = c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, items, "LSet replaces the whole list")

	require.NoError(t, c.LSet(ctx, "l", nil))
	items, err = c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDel_ClearsAllStructures(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.HSet(ctx, "k", "f", "v"))
	require.NoError(t, c.SAdd(ctx, "k", "m"))
	require.NoError(t, c.LPush(ctx, "k", "i"))

	require.NoError(t, c.Del(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	all, err := c.HGetAll(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, all)
	members, err := c.SMembers(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, members)
	items, err := c.LRange(ctx, "k", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, items)
}
