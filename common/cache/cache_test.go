package cache

import (
	"context"
	"testing"
	"time"

	"github.com/healthchain/marketplace/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(logger.Discard())
	defer c.Close()

	require.NoError(t, c.Set(ctx, "dataset:1", []byte(`{"id":1}`), time.Minute))

	val, ok, err := c.Get(ctx, "dataset:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":1}`, string(val))

	require.NoError(t, c.Delete(ctx, "dataset:1"))
	_, ok, err = c.Get(ctx, "dataset:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(logger.Discard())
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	c := NewMemoryCache(logger.Discard())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Writes after close are dropped.
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Minute))
	assert.Equal(t, 0, c.Stats()["entries"])
}
