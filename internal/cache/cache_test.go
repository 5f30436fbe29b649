package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(maxKeys int) Cache {
	return NewMemoryCache(&Config{TTL: time.Minute, MaxKeys: maxKeys}, nil)
}

func TestMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(10)
	defer c.Close()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(10)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheEvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(2)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestDeletePattern(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(10)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "progress:u1:explorer", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "progress:u1:reviewer", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "progress:u2:explorer", []byte("1"), 0))

	require.NoError(t, c.DeletePattern(ctx, "progress:u1:*"))

	_, ok := c.Get(ctx, "progress:u1:explorer")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "progress:u2:explorer")
	assert.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(10)
	defer c.Close()

	type payload struct {
		Count int `json:"count"`
	}

	require.NoError(t, SetJSON(ctx, c, "p", payload{Count: 7}, 0))

	var out payload
	require.True(t, GetJSON(ctx, c, "p", &out))
	assert.Equal(t, 7, out.Count)

	require.NoError(t, c.Set(ctx, "junk", []byte("{"), 0))
	assert.False(t, GetJSON(ctx, c, "junk", &out))
}

func TestNewCacheRejectsUnknownProvider(t *testing.T) {
	_, err := NewCache(&Config{Provider: "memcached"}, nil)
	assert.Error(t, err)
}
