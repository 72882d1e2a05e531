package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.SetIfAbsent(ctx, "button:page:google", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.SetIfAbsent(ctx, "button:page:google", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must fail while the first is live")

	require.NoError(t, mc.Delete(ctx, "button:page:google"))

	ok, err = mc.SetIfAbsent(ctx, "button:page:google", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheSetIfAbsentReplacesExpired(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", []byte("old"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	ok, err := mc.SetIfAbsent(ctx, "k", []byte("new"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(v))
}

func TestMemoryCacheTakeConsumesOnce(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "pending:device", []byte("identity"), time.Minute))

	v, err := mc.Take(ctx, "pending:device")
	require.NoError(t, err)
	assert.Equal(t, "identity", string(v))

	_, err = mc.Take(ctx, "pending:device")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := mc.Exists(ctx, "pending:device")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryCacheGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", []byte("abc"), time.Minute))

	v, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	v[0] = 'z'

	again, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), 0))
	mc.cleanup()

	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheAppendKeepsNewest(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	for _, v := range []string{"a", "b", "c", "d"} {
		require.NoError(t, mc.Append(ctx, "l", []byte(v), 3, time.Hour))
	}

	got, err := mc.List(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("b"), []byte("c"), []byte("d")}, got)

	got[0][0] = 'x'
	again, err := mc.List(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), again[0])

	require.NoError(t, mc.Delete(ctx, "l"))
	got, err = mc.List(ctx, "l")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryCacheAppendStartsOverAfterExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Append(ctx, "l", []byte("old"), 3, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, mc.Append(ctx, "l", []byte("new"), 3, time.Hour))

	got, err := mc.List(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("new")}, got)
}
